package http

import (
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Response lifecycle states.
const (
	stateBuilding = iota
	stateSent
	stateClosed
)

// Response builds and transmits one HTTP/1.1 response on its owning
// connection. Like Request it is a single-owner handle; the send and
// close capabilities are bound at construction by the server shell.
//
// A response moves building → sent on Send and reaches closed from any
// state on End. Closing the owning connection by other means does not
// change the response's state; a later Send hands its bytes to the
// closed connection, which discards them.
type Response struct {
	mu sync.Mutex

	version  string
	code     int
	message  string
	headers  Headers
	trailers Headers
	body     []byte
	state    int

	sendFn  func([]byte) error
	closeFn func()
}

// NewResponse builds a response in the building state with version
// HTTP/1.1 and status 200 OK.
func NewResponse(sendFn func([]byte) error, closeFn func()) *Response {
	return &Response{
		version: "HTTP/1.1",
		code:    200,
		message: "OK",
		sendFn:  sendFn,
		closeFn: closeFn,
	}
}

// SetStatus sets the status code and message.
func (r *Response) SetStatus(code int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.code = code
	r.message = message
}

// SetVersion overrides the HTTP version token.
func (r *Response) SetVersion(version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version = version
}

// SetBody replaces the body buffer.
func (r *Response) SetBody(body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.body = body
}

// AddHeader appends a header field. Order is preserved on the wire.
func (r *Response) AddHeader(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.headers.Add(name, value)
}

// AddTrailer appends a trailing header field. Trailers are reserved for
// chunked bodies and are not emitted in this release.
func (r *Response) AddTrailer(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trailers.Add(name, value)
}

// ClearHeaderValues removes every header entry for name.
func (r *Response) ClearHeaderValues(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.headers.Del(name)
}

// Status returns the current status code.
func (r *Response) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code
}

// SendText sets the body and a text/plain content type, then sends.
func (r *Response) SendText(s string) error {
	return r.sendWithType("text/plain", []byte(s))
}

// SendHTML sets the body and a text/html content type, then sends.
func (r *Response) SendHTML(s string) error {
	return r.sendWithType("text/html", []byte(s))
}

// SendJSON sets the body and an application/json content type, then
// sends.
func (r *Response) SendJSON(s string) error {
	return r.sendWithType("application/json", []byte(s))
}

func (r *Response) sendWithType(contentType string, body []byte) error {
	r.mu.Lock()
	r.headers.Del("Content-Type")
	r.headers.Add("Content-Type", contentType)
	r.body = body
	r.mu.Unlock()
	return r.Send()
}

// Send serializes the status line, headers (Content-Length computed
// from the body when not already set, Connection: close always), a
// blank line, and the body, and pushes the bytes onto the connection.
// The first call transitions building → sent; later calls are no-ops.
func (r *Response) Send() error {
	r.mu.Lock()

	if r.state != stateBuilding {
		r.mu.Unlock()
		return nil
	}

	if r.code < 100 || r.code >= 600 {
		r.mu.Unlock()
		return errors.Errorf("invalid response status %d", r.code)
	}
	if r.version == "" {
		r.mu.Unlock()
		return errors.New("response version must not be empty")
	}

	wire := r.serializeLocked()
	r.state = stateSent
	sendFn := r.sendFn
	r.mu.Unlock()

	if sendFn == nil {
		return nil
	}
	if err := sendFn(wire); err != nil {
		return errors.Wrap(err, "sending response")
	}
	return nil
}

// SendTrailers emits the trailing header block after a chunked body.
// Reserved; chunked transfer is not active in this release.
func (r *Response) SendTrailers() error {
	return errors.New("trailers require chunked transfer encoding")
}

// End closes the underlying connection. Idempotent; the response is in
// the closed state afterwards.
func (r *Response) End() {
	r.mu.Lock()
	alreadyClosed := r.state == stateClosed
	r.state = stateClosed
	closeFn := r.closeFn
	r.mu.Unlock()

	if !alreadyClosed && closeFn != nil {
		closeFn()
	}
}

func (r *Response) serializeLocked() []byte {
	var b strings.Builder
	b.Grow(128 + len(r.body))

	b.WriteString(r.version)
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(r.code))
	b.WriteByte(' ')
	b.WriteString(r.message)
	b.WriteString("\r\n")

	for _, f := range r.headers.Fields() {
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString("\r\n")
	}

	if !r.headers.Has("Content-Length") {
		b.WriteString("Content-Length: ")
		b.WriteString(strconv.Itoa(len(r.body)))
		b.WriteString("\r\n")
	}
	b.WriteString("Connection: close\r\n")

	b.WriteString("\r\n")
	b.Write(r.body)

	return []byte(b.String())
}
