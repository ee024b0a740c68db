package web

import (
	"strings"

	"github.com/searchktools/webstack/core/http"
)

// Route binds a method and a path expression to a handler chain. A path
// expression is a slash-delimited sequence of literal segments and
// ":name" parameter segments; matching is case-sensitive and requires
// the same segment count. A route carries at least one handler.
type Route struct {
	method     string
	expression string
	handlers   []Handler
}

// NewRoute builds a route. Panics when no handler is given; a route
// without handlers is a programming error, caught at registration.
func NewRoute(method, expression string, handlers ...Handler) *Route {
	if len(handlers) == 0 {
		panic("web: route " + method + " " + expression + " needs at least one handler")
	}
	return &Route{
		method:     method,
		expression: expression,
		handlers:   handlers,
	}
}

// Method returns the route's method token.
func (r *Route) Method() string { return r.method }

// Expression returns the route's path expression.
func (r *Route) Expression() string { return r.expression }

// match unifies the expression with a request path. On success the
// returned map holds one entry per ":name" segment.
func (r *Route) match(path string) (bool, map[string]string) {
	expr := splitSegments(r.expression)
	got := splitSegments(path)

	if len(expr) != len(got) {
		return false, nil
	}

	params := make(map[string]string)
	for i, seg := range expr {
		if strings.HasPrefix(seg, ":") && len(seg) > 1 {
			params[seg[1:]] = got[i]
			continue
		}
		if seg != got[i] {
			return false, nil
		}
	}
	return true, params
}

// run walks the handler chain under the exit-code contract. A return
// value outside the contract is a programming error and panics; the
// dispatch layer converts the panic into a 500.
func (r *Route) run(req *http.Request, res *http.Response) ExitCode {
	for _, h := range r.handlers {
		switch code := h(req, res); code {
		case Continue:
		case Exit:
			return Exit
		case Error:
			return Error
		default:
			panic("web: handler returned invalid exit code")
		}
	}
	return Exit
}

// splitSegments splits a path on '/' into its non-empty segments.
func splitSegments(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
