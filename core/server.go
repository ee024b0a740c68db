// Package core implements the HTTP/1.1 serving core: the readiness
// poll loop, the connection registry, and the hook surface the web
// layer builds on.
package core

import (
	"log"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/searchktools/webstack/config"
	"github.com/searchktools/webstack/core/http"
	"github.com/searchktools/webstack/core/poller"
	"github.com/searchktools/webstack/core/pools"
	"github.com/searchktools/webstack/core/socket"
)

const readChunkSize = 8192

// Server runs the accept/read loop on a single I/O goroutine. It owns
// the poller, the listener, the parser, and every accepted connection.
// The registry's handle set always equals the poller's watched set
// minus the listener.
type Server struct {
	cfg   config.Config
	hooks Hooks
	clk   clock.Clock

	parser *http.Parser
	bufs   *pools.BytePool

	mu       sync.Mutex
	poller   poller.Poller
	listener *socket.Listener
	conns    map[int]*socket.Conn
	byID     map[string]*socket.Conn

	quitOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
	ready    chan struct{}
}

// NewServer builds a server around cfg with the given hooks.
func NewServer(cfg config.Config, hooks Hooks) *Server {
	return NewServerWithClock(cfg, hooks, clock.New())
}

// NewServerWithClock is NewServer with an injectable clock, used by
// tests to drive the idle sweeper.
func NewServerWithClock(cfg config.Config, hooks Hooks, clk clock.Clock) *Server {
	return &Server{
		cfg:    cfg,
		hooks:  hooks,
		clk:    clk,
		parser: http.NewParser(cfg.MaxHeaderSize, cfg.MaxBodySize, clk),
		bufs:   pools.NewBytePool(),
		conns:  make(map[int]*socket.Conn),
		byID:   make(map[string]*socket.Conn),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		ready:  make(chan struct{}),
	}
}

// Parser exposes the request parser (the idle sweeper and tests use it).
func (s *Server) Parser() *http.Parser { return s.parser }

// Addr returns the bound endpoint once Listen has bound, "" before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr()
}

// Port returns the bound port once Listen has bound, 0 before. Useful
// when listening on port 0.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0
	}
	return s.listener.Port()
}

// Ready is closed once the server is bound and about to poll.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Listen binds, starts the idle sweeper, and drives the poll loop until
// Shutdown. Bind and poller failures are fatal and returned before any
// serving happens.
func (s *Server) Listen() error {
	ln, err := socket.Listen(s.cfg.Host, s.cfg.Port, s.cfg.Backlog)
	if err != nil {
		return errors.Wrap(err, "starting listener")
	}

	p, err := poller.New(s.cfg.MaxFileDescriptors)
	if err != nil {
		ln.Close()
		return errors.Wrap(err, "creating poller")
	}

	if err := p.Add(ln.FD()); err != nil {
		p.Close()
		ln.Close()
		return errors.Wrap(err, "registering listener")
	}

	s.mu.Lock()
	s.listener = ln
	s.poller = p
	s.mu.Unlock()

	if s.hooks.OnListenSuccess != nil {
		s.hooks.OnListenSuccess()
	}

	go s.sweepIdle()
	close(s.ready)

	s.serve()
	return nil
}

// Shutdown stops the poll loop at its next iteration and waits for all
// connections, the listener, and the poller to be released.
func (s *Server) Shutdown() {
	s.quitOnce.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Server) serve() {
	defer close(s.done)
	defer s.cleanup()

	timeout := int(s.cfg.PollTimeout.Milliseconds())

	for {
		select {
		case <-s.quit:
			return
		default:
		}

		if s.hooks.OnWaitingForActivity != nil {
			s.hooks.OnWaitingForActivity()
		}

		events, err := s.poller.Wait(timeout)
		if err != nil {
			s.exception(err)
			continue
		}

		for _, ev := range events {
			if ev.FD == s.listener.FD() {
				if ev.Readable {
					s.acceptPending()
				}
				continue
			}

			conn := s.lookup(ev.FD)
			if conn == nil {
				continue
			}

			if ev.Readable {
				s.handleReadable(conn)
			} else if ev.Hangup {
				s.closeConnection(conn)
			}
		}
	}
}

func (s *Server) cleanup() {
	s.mu.Lock()
	conns := make([]*socket.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		s.closeConnection(c)
	}

	s.poller.Remove(s.listener.FD())
	s.listener.Close()
	s.poller.Close()

	if s.hooks.OnShutdownSuccess != nil {
		s.hooks.OnShutdownSuccess()
	}
}

func (s *Server) sweepIdle() {
	ticker := s.clk.Ticker(s.cfg.MaxIdleTime)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.parser.CleanupIdle(s.cfg.MaxIdleTime, s.CloseConnectionByID)
		}
	}
}

func (s *Server) acceptPending() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, socket.ErrWouldBlock) {
				return
			}
			s.exception(err)
			return
		}

		// Registration failure is fatal to this handle only.
		if err := s.poller.Add(conn.FD()); err != nil {
			s.exception(err)
			conn.Close()
			continue
		}

		s.mu.Lock()
		s.conns[conn.FD()] = conn
		s.byID[conn.RemoteEndpoint()] = conn
		s.mu.Unlock()

		if s.hooks.OnConnectionOpened != nil {
			s.hooks.OnConnectionOpened(conn)
		}
	}
}

func (s *Server) handleReadable(conn *socket.Conn) {
	buf := s.bufs.Get(readChunkSize)
	defer s.bufs.Put(buf)

	n, err := conn.Read(buf)
	if err != nil {
		if errors.Is(err, socket.ErrWouldBlock) {
			return
		}
		s.exception(err)
		s.closeConnection(conn)
		return
	}
	if n == 0 {
		s.closeConnection(conn)
		return
	}

	data := buf[:n]
	if s.hooks.OnMessageReceived != nil {
		s.hooks.OnMessageReceived(conn, data)
	}

	res := s.parser.Parse(conn.RemoteEndpoint(), data)

	if s.hooks.OnHeadersReceived != nil && res.Err == nil {
		s.hooks.OnHeadersReceived(conn, res.Headers, res.Method, res.URI, res.Version, res.Body)
	}

	if res.Err != nil {
		s.handleBadRequest(conn, res.Err)
		return
	}

	if !res.Complete {
		return
	}

	// One request per connection: stop reading until the response has
	// closed it. Lifted when persistent connections arrive.
	s.poller.Disable(conn.FD())

	closeFn := func() { s.closeConnection(conn) }
	req := http.NewRequest(res, closeFn)
	resp := http.NewResponse(func(b []byte) error {
		_, werr := conn.Write(b)
		return werr
	}, closeFn)

	if s.hooks.OnRequestReceived != nil {
		s.hooks.OnRequestReceived(req, resp)
		return
	}

	s.exception(errors.New("no request handler registered"))
	s.closeConnection(conn)
}

func (s *Server) handleBadRequest(conn *socket.Conn, ferr *http.FramingError) {
	s.poller.Disable(conn.FD())

	if s.hooks.OnBadRequest != nil {
		s.hooks.OnBadRequest(conn, ferr)
		return
	}
	s.closeConnection(conn)
}

func (s *Server) lookup(fd int) *socket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[fd]
}

// CloseConnectionByID closes a connection through the registry, keyed
// by its stable identifier. The idle sweeper uses this; closing by raw
// fd would race with handle recycling.
func (s *Server) CloseConnectionByID(connID string) {
	s.mu.Lock()
	conn := s.byID[connID]
	s.mu.Unlock()

	if conn != nil {
		s.closeConnection(conn)
	}
}

func (s *Server) closeConnection(conn *socket.Conn) {
	s.mu.Lock()
	if _, ok := s.conns[conn.FD()]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.conns, conn.FD())
	delete(s.byID, conn.RemoteEndpoint())
	s.mu.Unlock()

	s.parser.Forget(conn.RemoteEndpoint())
	s.poller.Remove(conn.FD())
	conn.Close()

	if s.hooks.OnConnectionClosed != nil {
		s.hooks.OnConnectionClosed(conn)
	}
}

func (s *Server) exception(err error) {
	if s.hooks.OnException != nil {
		s.hooks.OnException(err)
		return
	}
	log.Printf("server error: %v", err)
}
