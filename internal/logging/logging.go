// Package logging builds the slog loggers shared by every tradebot component.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/me/tradebot/internal/config"
)

// New creates a logger from the server section of the configuration.
// Output goes to stderr; stdout is reserved for CLI output.
func New(cfg config.ServerConfig) *slog.Logger {
	return NewWithWriter(ParseLevel(cfg.LogLevel), cfg.LogFormat, os.Stderr)
}

// NewWithWriter creates a logger writing to w.
//
// format: "text" (human-readable) or "json" (structured)
func NewWithWriter(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops everything. Used in tests and by
// offline CLI commands running in quiet mode.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
