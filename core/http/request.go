package http

import (
	"strings"
	"sync"
)

// Request is a read-only view of one parsed request, bound to its
// connection through a close capability. A request has exactly one
// owner at a time (the handler task); it is handed over, never copied.
type Request struct {
	method  string
	uri     string
	version string
	headers Headers
	body    []byte

	pathParams map[string]string

	queryOnce   sync.Once
	queryParams map[string]string

	closeOnce sync.Once
	closeFn   func()
}

// NewRequest builds a request over a completed parse result. closeFn is
// the one-shot capability that closes the owning connection.
func NewRequest(res Result, closeFn func()) *Request {
	return &Request{
		method:  res.Method,
		uri:     res.URI,
		version: res.Version,
		headers: res.Headers,
		body:    res.Body,
		closeFn: closeFn,
	}
}

// Method returns the method token as received.
func (r *Request) Method() string { return r.method }

// URI returns the request-target verbatim, query string included.
func (r *Request) URI() string { return r.uri }

// Version returns the HTTP version token.
func (r *Request) Version() string { return r.version }

// Body returns the raw body bytes.
func (r *Request) Body() []byte { return r.body }

// Headers returns the full header list.
func (r *Request) Headers() Headers { return r.headers }

// Header returns every value for name, matched case-insensitively.
func (r *Request) Header(name string) []string {
	return r.headers.Values(name)
}

// Path returns the URI with any query string stripped.
func (r *Request) Path() string {
	if idx := strings.IndexByte(r.uri, '?'); idx != -1 {
		return r.uri[:idx]
	}
	return r.uri
}

// QueryParams parses the portion of the URI after '?' into a map,
// percent-decoding names and values. Parsed lazily, once.
func (r *Request) QueryParams() map[string]string {
	r.queryOnce.Do(func() {
		r.queryParams = make(map[string]string)
		idx := strings.IndexByte(r.uri, '?')
		if idx == -1 {
			return
		}
		for _, pair := range strings.Split(r.uri[idx+1:], "&") {
			if pair == "" {
				continue
			}
			if eq := strings.IndexByte(pair, '='); eq != -1 {
				r.queryParams[URLDecode(pair[:eq])] = URLDecode(pair[eq+1:])
			} else {
				r.queryParams[URLDecode(pair)] = ""
			}
		}
	})
	return r.queryParams
}

// PathParams returns the parameters bound by route matching. Nil until
// SetPathParams is called.
func (r *Request) PathParams() map[string]string { return r.pathParams }

// SetPathParams is called by the router on a successful match.
func (r *Request) SetPathParams(params map[string]string) {
	r.pathParams = params
}

// KeepAlive reports whether the connection survives this request.
// Always false in this release; reserved for persistent connections.
func (r *Request) KeepAlive() bool { return false }

// Close closes the owning connection. Idempotent.
func (r *Request) Close() {
	r.closeOnce.Do(func() {
		if r.closeFn != nil {
			r.closeFn()
		}
	})
}
