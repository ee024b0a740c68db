package web

import (
	"log"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/searchktools/webstack/config"
	"github.com/searchktools/webstack/core"
	"github.com/searchktools/webstack/core/http"
	"github.com/searchktools/webstack/core/pools"
	"github.com/searchktools/webstack/core/socket"
)

const fileCacheSize = 256

// methods the web layer is willing to dispatch. Anything else is
// answered with 400 before a worker is involved.
var knownMethods = map[string]struct{}{
	"GET": {}, "POST": {}, "PUT": {}, "DELETE": {},
	"PATCH": {}, "HEAD": {}, "OPTIONS": {}, "TRACE": {}, "CONNECT": {},
}

// HeadersCallback observes assembled request headers before the body
// finishes arriving. It may close the connection.
type HeadersCallback func(conn *socket.Conn, headers http.Headers, method, uri, version string, partialBody []byte)

// ErrorHandler turns a handler failure into a response.
type ErrorHandler func(req *http.Request, res *http.Response, herr *HTTPError)

// Server is the web-layer shell: it owns the worker pool, the routers,
// the static directories, and the default and error handlers, and it
// converts HTTP server callbacks into routed handler work.
type Server struct {
	cfg        config.Config
	httpServer *core.Server
	pool       *pools.WorkerPool
	files      *fileCache

	mu             sync.RWMutex
	routers        []*Router
	staticDirs     []string
	defaultHandler Handler
	errorHandler   ErrorHandler
	headersCB      HeadersCallback
	listenCB       func()
	errorCB        func(error)
}

// NewServer builds a web server from cfg with a base router installed.
func NewServer(cfg config.Config) *Server {
	return NewServerWithClock(cfg, clock.New())
}

// NewServerWithClock is NewServer with an injectable clock for tests.
func NewServerWithClock(cfg config.Config, clk clock.Clock) *Server {
	s := &Server{
		cfg:     cfg,
		pool:    pools.NewWorkerPool(cfg.Workers),
		files:   newFileCache(fileCacheSize),
		routers: []*Router{NewRouter()},
	}

	s.defaultHandler = func(req *http.Request, res *http.Response) ExitCode {
		res.SetStatus(404, "Not Found")
		res.SendText("404 Not Found")
		return Exit
	}

	s.httpServer = core.NewServerWithClock(cfg, core.Hooks{
		OnListenSuccess:   s.onListenSuccess,
		OnRequestReceived: s.onRequestReceived,
		OnBadRequest:      s.onBadRequest,
		OnHeadersReceived: s.onHeadersReceived,
		OnException:       s.reportError,
	}, clk)

	return s
}

// Use appends middleware to the base router.
func (s *Server) Use(middleware Handler) { s.routers[0].Use(middleware) }

// Get registers a GET route on the base router.
func (s *Server) Get(expression string, handlers ...Handler) {
	s.routers[0].Get(expression, handlers...)
}

// Post registers a POST route on the base router.
func (s *Server) Post(expression string, handlers ...Handler) {
	s.routers[0].Post(expression, handlers...)
}

// Put registers a PUT route on the base router.
func (s *Server) Put(expression string, handlers ...Handler) {
	s.routers[0].Put(expression, handlers...)
}

// Delete registers a DELETE route on the base router.
func (s *Server) Delete(expression string, handlers ...Handler) {
	s.routers[0].Delete(expression, handlers...)
}

// UseRouter registers an additional router. Routers are tried in
// registration order; the first that handles a request wins.
func (s *Server) UseRouter(r *Router) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routers = append(s.routers, r)
}

// UseStatic registers a directory to serve static assets from.
func (s *Server) UseStatic(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staticDirs = append(s.staticDirs, dir)
}

// UseDefault replaces the handler for unmatched requests.
func (s *Server) UseDefault(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultHandler = h
}

// UseError replaces the handler invoked on handler failures.
func (s *Server) UseError(h ErrorHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = h
}

// UseHeadersReceived installs the early-headers callback.
func (s *Server) UseHeadersReceived(cb HeadersCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headersCB = cb
}

// Port returns the bound port once listening (0 before). Useful with
// cfg.Port == 0.
func (s *Server) Port() int { return s.httpServer.Port() }

// Ready is closed once the server is bound and polling.
func (s *Server) Ready() <-chan struct{} { return s.httpServer.Ready() }

// Listen starts serving and blocks until Stop. onListen and onError
// override the default listen/error callbacks when non-nil.
func (s *Server) Listen(onListen func(), onError func(error)) error {
	s.mu.Lock()
	if onListen != nil {
		s.listenCB = onListen
	}
	if onError != nil {
		s.errorCB = onError
	}
	s.mu.Unlock()

	return s.httpServer.Listen()
}

// Stop shuts the HTTP server down and stops the workers.
func (s *Server) Stop() {
	s.httpServer.Shutdown()
	s.pool.Close()
}

func (s *Server) onListenSuccess() {
	s.mu.RLock()
	cb := s.listenCB
	s.mu.RUnlock()

	if cb != nil {
		cb()
		return
	}
	log.Printf("🚀 Server listening at %s", s.httpServer.Addr())
}

func (s *Server) onHeadersReceived(conn *socket.Conn, headers http.Headers, method, uri, version string, partialBody []byte) {
	s.mu.RLock()
	cb := s.headersCB
	s.mu.RUnlock()

	if cb != nil {
		cb(conn, headers, method, uri, version, partialBody)
	}
}

// onRequestReceived runs on the I/O goroutine: reject unknown methods
// outright, then hand the pair to the worker pool.
func (s *Server) onRequestReceived(req *http.Request, res *http.Response) {
	if _, ok := knownMethods[req.Method()]; !ok {
		s.reportError(errors.Errorf("unknown HTTP method %q", req.Method()))
		res.SetStatus(400, "Bad Request")
		res.SendText("400 Bad Request: " + req.Method())
		res.End()
		return
	}

	if !s.pool.Submit(func() { s.requestHandler(req, res) }) {
		res.End()
	}
}

// onBadRequest answers the framing-error channel: 501 for unsupported
// encodings, 400 for everything else, then the connection closes.
func (s *Server) onBadRequest(conn *socket.Conn, ferr *http.FramingError) {
	s.reportError(ferr)

	res := http.NewResponse(func(b []byte) error {
		_, err := conn.Write(b)
		return err
	}, func() {
		s.httpServer.CloseConnectionByID(conn.RemoteEndpoint())
	})

	code, msg := ferr.Status()
	res.SetStatus(code, msg)
	res.SendText(ferr.Code)
	res.End()
}

// requestHandler runs on a worker: statics first, then routers in
// order, then the default handler; finally send and close.
func (s *Server) requestHandler(req *http.Request, res *http.Response) {
	defer func() {
		if p := recover(); p != nil {
			s.handleHTTPError(req, res, NewHTTPError(500, "Internal Server Error", errors.Errorf("%v", p)))
		}
	}()

	s.mu.RLock()
	routers := s.routers
	defaultHandler := s.defaultHandler
	static := isStaticURI(req.URI())
	s.mu.RUnlock()

	handled := false
	if static {
		s.serveStatic(req, res)
		handled = true
	} else {
		for _, r := range routers {
			if r.Handle(req, res) {
				handled = true
				break
			}
		}
	}

	if !handled {
		defaultHandler(req, res)
	}

	if err := res.Send(); err != nil {
		s.reportError(err)
	}
	if !req.KeepAlive() {
		res.End()
	}
}

func (s *Server) handleHTTPError(req *http.Request, res *http.Response, herr *HTTPError) {
	s.mu.RLock()
	handler := s.errorHandler
	s.mu.RUnlock()

	if handler != nil {
		if !s.invokeErrorHandler(handler, req, res, herr) {
			// The error handler failed too: hard-coded minimal 500.
			res.SetStatus(500, "Internal Server Error")
			res.SendText("Internal Server Error")
		}
	} else {
		s.reportError(herr)
		res.SetStatus(herr.Status, herr.Message)
		res.SendText("Internal Server Error")
	}

	if err := res.Send(); err != nil {
		s.reportError(err)
	}
	res.End()
}

// invokeErrorHandler runs the user error handler with its own recover;
// a failing error handler must never take the server down.
func (s *Server) invokeErrorHandler(handler ErrorHandler, req *http.Request, res *http.Response, herr *HTTPError) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			s.reportError(errors.Errorf("error handler panicked: %v", p))
			ok = false
		}
	}()
	handler(req, res, herr)
	return true
}

func (s *Server) reportError(err error) {
	s.mu.RLock()
	cb := s.errorCB
	s.mu.RUnlock()

	if cb != nil {
		cb(err)
		return
	}
	log.Printf("web: %v", err)
}
