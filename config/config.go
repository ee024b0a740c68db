package config

import (
	"flag"
	"os"
	"runtime"
	"strconv"
	"time"
)

// Config holds all server configuration.
//
// Every tunable is scoped to the Config value handed to the server
// constructors. Mutating a Config after Listen has been called has no
// effect on the running server.
type Config struct {
	Port int
	Host string

	// MaxHeaderSize bounds the cumulative header name+value bytes of one
	// request, not the raw wire length of the header lines.
	MaxHeaderSize int

	// MaxBodySize bounds the accumulated request body in bytes.
	MaxBodySize int

	// MaxIdleTime is both the idle-sweep interval and the threshold after
	// which a stalled in-flight request has its connection closed.
	MaxIdleTime time.Duration

	// Backlog is the listen(2) backlog.
	Backlog int

	// MaxFileDescriptors sizes the poller's event batch.
	MaxFileDescriptors int

	// PollTimeout bounds a single poller wait.
	PollTimeout time.Duration

	// Workers is the handler pool size. Zero means runtime.NumCPU().
	Workers int
}

// Default returns the documented defaults. Tests build on this.
func Default() Config {
	return Config{
		Port:               8080,
		Host:               "0.0.0.0",
		MaxHeaderSize:      8 * 1024,
		MaxBodySize:        1 << 20,
		MaxIdleTime:        30 * time.Second,
		Backlog:            128,
		MaxFileDescriptors: 1024,
		PollTimeout:        100 * time.Millisecond,
		Workers:            runtime.NumCPU(),
	}
}

// New loads configuration from flags, with a PORT env override.
func New() Config {
	cfg := Default()

	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.Host, "host", cfg.Host, "bind address")
	flag.IntVar(&cfg.MaxHeaderSize, "max-header-size", cfg.MaxHeaderSize, "max cumulative header bytes per request")
	flag.IntVar(&cfg.MaxBodySize, "max-body-size", cfg.MaxBodySize, "max request body bytes")
	flag.DurationVar(&cfg.MaxIdleTime, "max-idle-time", cfg.MaxIdleTime, "idle connection sweep threshold")
	flag.IntVar(&cfg.Backlog, "backlog", cfg.Backlog, "listen backlog")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "handler worker pool size")

	flag.Parse()

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}

	return cfg
}
