// Package logger provides the slog constructors used across the scraper.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewDefault creates a text logger on stderr with the given level.
// Unknown level strings fall back to info.
func NewDefault(level string) *slog.Logger {
	return New(os.Stderr, level)
}

// New creates a text logger writing to w.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
