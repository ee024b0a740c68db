// Package web is the application-facing layer: routing with typed path
// parameters, middleware chains, static file serving, and the worker
// pool that runs handlers off the I/O loop.
package web

import (
	"fmt"

	"github.com/searchktools/webstack/core/http"
)

// ExitCode is returned by every handler to steer the chain.
type ExitCode int

const (
	// Continue passes control to the next handler in the chain.
	Continue ExitCode = 0
	// Exit stops the chain; the request counts as handled.
	Exit ExitCode = 1
	// Error stops the chain; like Exit, the request counts as handled.
	Error ExitCode = -1
)

// Handler processes one request. Handlers run on the worker pool;
// blocking is allowed.
type Handler func(req *http.Request, res *http.Response) ExitCode

// HTTPError carries an HTTP status through handler error paths. The
// configured error handler turns it into a response.
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("web error [%d - %s]", e.Status, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HTTPError) Unwrap() error { return e.Err }

// NewHTTPError builds an HTTPError wrapping err.
func NewHTTPError(status int, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Message: message, Err: err}
}
