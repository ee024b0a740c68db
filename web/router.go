package web

import "github.com/searchktools/webstack/core/http"

// Router holds an ordered middleware list and an ordered route list.
// Insertion order defines matching priority. Multiple routers can be
// registered with one server; the first to handle a request wins.
type Router struct {
	middleware []Handler
	routes     []*Route
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Use appends a middleware handler. Middleware runs before any route,
// in insertion order, and can short-circuit the pipeline.
func (r *Router) Use(middleware Handler) {
	r.middleware = append(r.middleware, middleware)
}

// AddRoute appends a route.
func (r *Router) AddRoute(route *Route) {
	r.routes = append(r.routes, route)
}

// Add registers method+expression with a handler chain.
func (r *Router) Add(method, expression string, handlers ...Handler) {
	r.AddRoute(NewRoute(method, expression, handlers...))
}

// Get registers a GET route.
func (r *Router) Get(expression string, handlers ...Handler) {
	r.Add("GET", expression, handlers...)
}

// Post registers a POST route.
func (r *Router) Post(expression string, handlers ...Handler) {
	r.Add("POST", expression, handlers...)
}

// Put registers a PUT route.
func (r *Router) Put(expression string, handlers ...Handler) {
	r.Add("PUT", expression, handlers...)
}

// Delete registers a DELETE route.
func (r *Router) Delete(expression string, handlers ...Handler) {
	r.Add("DELETE", expression, handlers...)
}

// Handle walks middleware, then routes. It reports whether the request
// was handled here: true when a middleware short-circuited or a route
// matched, false when the caller should fall through to the default
// handler.
func (r *Router) Handle(req *http.Request, res *http.Response) bool {
	for _, m := range r.middleware {
		switch code := m(req, res); code {
		case Continue:
		case Exit, Error:
			return true
		default:
			panic("web: middleware returned invalid exit code")
		}
	}

	path := req.Path()
	for _, route := range r.routes {
		if route.method != req.Method() {
			continue
		}
		matched, params := route.match(path)
		if !matched {
			continue
		}
		req.SetPathParams(params)
		route.run(req, res)
		return true
	}

	return false
}
