// Package logging builds the process-wide log sink, installed once at
// startup and threaded explicitly thereafter (spec §5, §9 "Global
// logger").
package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// New builds a *slog.Logger writing to w at level, either as colorized
// text via tint or as JSON when jsonOutput is set.
func New(w io.Writer, level slog.Level, jsonOutput bool) *slog.Logger {
	var handler slog.Handler

	if jsonOutput {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	}

	return slog.New(handler)
}

// ParseLevel parses the four recognized level names (plus "warning" as
// an alias for "warn"); unrecognized values fall back to info.
func ParseLevel(s string) (slog.Level, bool) {
	switch s {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
