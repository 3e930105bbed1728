// Package logger configures the process-wide structured JSON logger.
package logger

import (
	"io"
	"log"
	"log/slog"
	"os"
)

const service = "marketplace-api"

// New returns a JSON logger tagged with the service name.
func New(w io.Writer, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", service)
}

// Setup installs a stdout logger as the default for both slog and the log package.
func Setup(level slog.Level) *slog.Logger {
	l := New(os.Stdout, level)
	slog.SetDefault(l)
	log.SetFlags(0)
	return l
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
