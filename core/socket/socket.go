// Package socket wraps nonblocking TCP file descriptors behind small
// Listener and Conn types. The serving core depends only on the
// operations exposed here.
package socket

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Listen opens a nonblocking listening socket bound to host:port.
// Port 0 asks the OS for an ephemeral port; use Port to read it back.
func Listen(host string, port, backlog int) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "creating listener socket")
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "setting SO_REUSEADDR")
	}

	sa := &unix.SockaddrInet4{Port: port}
	if ip := net.ParseIP(host).To4(); ip != nil {
		copy(sa.Addr[:], ip)
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "binding to %s:%d", host, port)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "listening")
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "reading bound address")
	}

	return &Listener{fd: fd, addr: endpointString(bound)}, nil
}

// Listener is a nonblocking listening socket.
type Listener struct {
	fd   int
	addr string
}

// FD returns the native handle for poller registration.
func (l *Listener) FD() int { return l.fd }

// Addr returns the bound endpoint in host:port form.
func (l *Listener) Addr() string { return l.addr }

// Port returns the bound port, useful after listening on port 0.
func (l *Listener) Port() int {
	sa, err := unix.Getsockname(l.fd)
	if err != nil {
		return 0
	}
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		return in4.Port
	}
	return 0
}

// ErrWouldBlock reports that no connection is pending on a nonblocking
// accept or no bytes are available on a nonblocking read.
var ErrWouldBlock = errors.New("operation would block")

// Accept accepts one pending connection. Returns ErrWouldBlock when the
// accept queue is drained.
func (l *Listener) Accept() (*Conn, error) {
	nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, ErrWouldBlock
		}
		return nil, errors.Wrap(err, "accepting connection")
	}

	// Nagle off: responses are written in one shot and the connection closes.
	unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	local, _ := unix.Getsockname(nfd)
	return &Conn{
		fd:     nfd,
		local:  endpointString(local),
		remote: endpointString(sa),
	}, nil
}

// Close closes the listening socket.
func (l *Listener) Close() error {
	return unix.Close(l.fd)
}

// Conn is one accepted TCP stream. It is exclusively owned by the
// connection registry; request and response objects hold non-owning
// references. Close is idempotent: after close, Write is a no-op and
// Read reports end-of-stream.
type Conn struct {
	fd     int
	local  string
	remote string

	closed  atomic.Bool
	writeMu sync.Mutex
}

// FD returns the native handle.
func (c *Conn) FD() int { return c.fd }

// LocalEndpoint returns the local address in host:port form.
func (c *Conn) LocalEndpoint() string { return c.local }

// RemoteEndpoint returns the peer address in host:port form. This is the
// stable connection identifier used by the parser and the registry.
func (c *Conn) RemoteEndpoint() string { return c.remote }

// Read reads available bytes into buf. Returns 0, nil on end-of-stream
// and ErrWouldBlock when the socket has no data ready.
func (c *Conn) Read(buf []byte) (int, error) {
	if c.closed.Load() {
		return 0, nil
	}
	n, err := unix.Read(c.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, errors.Wrap(err, "reading from connection")
	}
	return n, nil
}

// Write pushes data onto the socket, looping until every byte is
// accepted or the connection is broken. Writing to a closed connection
// is a no-op.
func (c *Conn) Write(data []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return 0, nil
	}

	written := 0
	for written < len(data) {
		n, err := unix.Write(c.fd, data[written:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				// Wait for the kernel buffer to drain.
				pfd := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLOUT}}
				if _, perr := unix.Poll(pfd, -1); perr != nil && perr != unix.EINTR {
					return written, errors.Wrap(perr, "waiting for writable socket")
				}
				continue
			}
			if err == unix.EINTR {
				continue
			}
			return written, errors.Wrap(err, "writing to connection")
		}
		written += n
	}
	return written, nil
}

// Close closes the underlying socket once. Further calls are no-ops.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(c.fd)
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool { return c.closed.Load() }

func endpointString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%s]:%d", net.IP(a.Addr[:]).String(), a.Port)
	default:
		return "unknown"
	}
}
