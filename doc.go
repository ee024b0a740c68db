/*
Package webstack is a small HTTP/1.1 web framework built on an epoll
readiness loop.

The serving core keeps one I/O goroutine driving the poller; parsing is
incremental, so requests split across TCP segments assemble correctly.
Completed requests are dispatched onto a work-stealing worker pool and
routed through middleware chains to route handlers with typed path
parameters. Every response closes its connection after transmission;
keep-alive and chunked transfer are reserved extension points.

Layers, leaves first:

  - core/poller: epoll multiplexer behind a portable Poller interface
  - core/socket: nonblocking listener and connection wrappers
  - core/http: incremental request parser, request/response objects
  - core: connection registry, poll loop, overridable server hooks
  - core/pools: worker pool and read-buffer pool
  - web: router, middleware, static files, dispatch
  - app: config + signal wiring

Basic usage:

	cfg := config.New()
	application := app.New(cfg)

	server := application.Server()
	server.Get("/hello", func(req *http.Request, res *http.Response) web.ExitCode {
		res.SendText("Hello, World!")
		return web.Exit
	})
	server.Get("/users/:id", func(req *http.Request, res *http.Response) web.ExitCode {
		res.SendJSON(`{"id":"` + req.PathParams()["id"] + `"}`)
		return web.Exit
	})

	application.Run()

For more information, see https://github.com/searchktools/webstack
*/
package webstack
