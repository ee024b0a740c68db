package web

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchktools/webstack/core/http"
)

func request(t *testing.T, method, uri string) *http.Request {
	t.Helper()
	return http.NewRequest(http.Result{
		Complete: true,
		Method:   method,
		URI:      uri,
		Version:  "HTTP/1.1",
	}, nil)
}

func discard() *http.Response {
	return http.NewResponse(func([]byte) error { return nil }, nil)
}

func TestRouteMatching(t *testing.T) {
	tests := []struct {
		expression string
		path       string
		matches    bool
		params     map[string]string
	}{
		{"/users", "/users", true, map[string]string{}},
		{"/users", "/posts", false, nil},
		{"/users/:id", "/users/123", true, map[string]string{"id": "123"}},
		{"/users/:id", "/users", false, nil},
		{"/users/:id", "/users/123/posts", false, nil},
		{"/users/:id/posts/:postId", "/users/123/posts/456", true, map[string]string{"id": "123", "postId": "456"}},
		{"/a/b", "/a/b/", true, map[string]string{}},
		{"/Users", "/users", false, nil}, // case-sensitive
	}

	for _, tt := range tests {
		t.Run(tt.expression+" vs "+tt.path, func(t *testing.T) {
			route := NewRoute("GET", tt.expression, func(*http.Request, *http.Response) ExitCode { return Exit })
			matched, params := route.match(tt.path)
			assert.Equal(t, tt.matches, matched)
			if tt.matches {
				assert.Equal(t, tt.params, params)
			}
		})
	}
}

func TestRouteRequiresHandler(t *testing.T) {
	assert.Panics(t, func() { NewRoute("GET", "/x") })
}

func TestRouterDispatch(t *testing.T) {
	r := NewRouter()

	var got map[string]string
	r.Get("/users/:id/posts/:postId", func(req *http.Request, res *http.Response) ExitCode {
		got = req.PathParams()
		return Exit
	})

	req := request(t, "GET", "/users/123/posts/456")
	handled := r.Handle(req, discard())

	require.True(t, handled)
	assert.Equal(t, map[string]string{"id": "123", "postId": "456"}, got)
	assert.Equal(t, got, req.PathParams())
}

func TestRouterMethodMismatch(t *testing.T) {
	r := NewRouter()
	r.Get("/thing", func(*http.Request, *http.Response) ExitCode { return Exit })

	assert.False(t, r.Handle(request(t, "POST", "/thing"), discard()))
}

func TestRouterInsertionOrderPriority(t *testing.T) {
	r := NewRouter()

	var winner string
	r.Get("/users/:id", func(*http.Request, *http.Response) ExitCode {
		winner = "param"
		return Exit
	})
	r.Get("/users/admin", func(*http.Request, *http.Response) ExitCode {
		winner = "literal"
		return Exit
	})

	require.True(t, r.Handle(request(t, "GET", "/users/admin"), discard()))
	assert.Equal(t, "param", winner, "first registered route wins")
}

func TestRouterHandlerChain(t *testing.T) {
	r := NewRouter()

	var calls []string
	r.Get("/chain",
		func(*http.Request, *http.Response) ExitCode {
			calls = append(calls, "first")
			return Continue
		},
		func(*http.Request, *http.Response) ExitCode {
			calls = append(calls, "second")
			return Exit
		},
		func(*http.Request, *http.Response) ExitCode {
			calls = append(calls, "third")
			return Exit
		},
	)

	require.True(t, r.Handle(request(t, "GET", "/chain"), discard()))
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestRouterMiddlewareContinue(t *testing.T) {
	r := NewRouter()

	var calls []string
	r.Use(func(*http.Request, *http.Response) ExitCode {
		calls = append(calls, "mw1")
		return Continue
	})
	r.Use(func(*http.Request, *http.Response) ExitCode {
		calls = append(calls, "mw2")
		return Continue
	})
	r.Get("/x", func(*http.Request, *http.Response) ExitCode {
		calls = append(calls, "handler")
		return Exit
	})

	require.True(t, r.Handle(request(t, "GET", "/x"), discard()))
	assert.Equal(t, []string{"mw1", "mw2", "handler"}, calls)
}

func TestRouterMiddlewareShortCircuit(t *testing.T) {
	for _, code := range []ExitCode{Exit, Error} {
		r := NewRouter()

		var routeRan bool
		r.Use(func(*http.Request, *http.Response) ExitCode { return code })
		r.Get("/x", func(*http.Request, *http.Response) ExitCode {
			routeRan = true
			return Exit
		})

		// Short-circuited middleware still counts as handled.
		assert.True(t, r.Handle(request(t, "GET", "/x"), discard()))
		assert.False(t, routeRan)
	}
}

func TestRouterMiddlewareRunsEvenWithoutMatch(t *testing.T) {
	r := NewRouter()

	var mwRan bool
	r.Use(func(*http.Request, *http.Response) ExitCode {
		mwRan = true
		return Continue
	})

	assert.False(t, r.Handle(request(t, "GET", "/missing"), discard()))
	assert.True(t, mwRan)
}

func TestRouterInvalidExitCodePanics(t *testing.T) {
	r := NewRouter()
	r.Get("/bad", func(*http.Request, *http.Response) ExitCode { return ExitCode(42) })

	assert.Panics(t, func() { r.Handle(request(t, "GET", "/bad"), discard()) })
}

func TestRouterQueryStringIgnoredByMatching(t *testing.T) {
	r := NewRouter()

	var id string
	r.Get("/users/:id", func(req *http.Request, res *http.Response) ExitCode {
		id = req.PathParams()["id"]
		return Exit
	})

	require.True(t, r.Handle(request(t, "GET", "/users/9?full=1"), discard()))
	assert.Equal(t, "9", id)
}
