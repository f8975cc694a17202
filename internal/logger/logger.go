// Package logger provides structured logging setup for OpsDesk.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/opsdesk/opsdesk/internal/config"
)

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stdout with a "service" attribute on every record, plus
// the request ID when one is in the context. When cfg.Async is set the
// handler buffers records through a worker pool; the returned Closer flushes
// it on shutdown.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	closer := Closer(nopCloser{})
	if cfg.Async {
		async := NewAsyncHandler(handler, cfg.AsyncBuffer, cfg.AsyncWorkers)
		handler = async
		closer = async
	}

	// Outermost so the request ID is read from the live context before any
	// async hand-off discards it.
	handler = contextHandler{inner: handler}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
