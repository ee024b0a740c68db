package core

import (
	"github.com/searchktools/webstack/core/http"
	"github.com/searchktools/webstack/core/socket"
)

// Hooks are the overridable callbacks of the HTTP server shell. Every
// field is optional; a nil hook falls back to the server's default
// behavior. The web layer installs its own set.
type Hooks struct {
	// OnListenSuccess fires once, after bind/listen succeeds.
	OnListenSuccess func()

	// OnConnectionOpened fires once per accepted connection.
	OnConnectionOpened func(conn *socket.Conn)

	// OnConnectionClosed fires when a connection leaves the registry.
	OnConnectionClosed func(conn *socket.Conn)

	// OnMessageReceived sees every raw chunk before it is parsed. The
	// slice is only valid for the duration of the call.
	OnMessageReceived func(conn *socket.Conn, data []byte)

	// OnHeadersReceived fires once the request line and headers are
	// assembled, even while the body is still arriving. It does not
	// fire for chunks that end in a framing error. The hook may close
	// the connection.
	OnHeadersReceived func(conn *socket.Conn, headers http.Headers, method, uri, version string, partialBody []byte)

	// OnRequestReceived hands over a completed request/response pair.
	// The receiver owns both from this point.
	OnRequestReceived func(req *http.Request, res *http.Response)

	// OnBadRequest fires instead of OnRequestReceived when framing
	// fails. Reading on the connection has already been disabled; the
	// hook decides whether to answer before the connection closes. A
	// nil hook closes without a response.
	OnBadRequest func(conn *socket.Conn, ferr *http.FramingError)

	// OnException reports transport and poller errors. The affected
	// connection is closed; the server keeps running.
	OnException func(err error)

	// OnShutdownSuccess fires after the poll loop has stopped and all
	// connections are closed.
	OnShutdownSuccess func()

	// OnWaitingForActivity fires on every poll iteration.
	OnWaitingForActivity func()
}
