package logging

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps "debug", "warn", "error" to their slog levels; anything else is info.
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

// NewLogger builds a correlation-aware logger writing to w.
// format "text" selects the human-readable handler; JSON is the default.
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	return NewLeveledLogger(ParseLevel(level), format, w)
}

// NewLeveledLogger is NewLogger with an explicit level. Pass a *slog.LevelVar
// to change the level while the logger is in use.
func NewLeveledLogger(level slog.Leveler, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if strings.EqualFold(format, "text") {
		inner = slog.NewTextHandler(w, opts)
	} else {
		inner = slog.NewJSONHandler(w, opts)
	}
	return slog.New(NewCorrelationHandler(inner))
}

// Discard returns a logger that drops every record. Handy for tests and for
// components constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
