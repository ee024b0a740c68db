// Package app wires configuration, the web server, and OS signals into
// a runnable application.
package app

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/searchktools/webstack/config"
	"github.com/searchktools/webstack/web"
)

// App is one application instance.
type App struct {
	cfg    config.Config
	server *web.Server
}

// New creates an application instance around cfg.
func New(cfg config.Config) *App {
	return &App{
		cfg:    cfg,
		server: web.NewServer(cfg),
	}
}

// Server returns the underlying web server for route registration.
func (a *App) Server() *web.Server {
	return a.server
}

// Run starts the server and blocks until SIGINT/SIGTERM.
func (a *App) Run() {
	go a.awaitSignal()

	log.Printf("🚀 webstack starting on %s:%d", a.cfg.Host, a.cfg.Port)
	log.Printf("⚡ epoll I/O loop, %d handler workers", a.cfg.Workers)

	if err := a.server.Listen(nil, nil); err != nil {
		log.Fatalf("Server startup failed: %v", err)
	}
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal %v, shutting down", sig)
	a.server.Stop()
}
