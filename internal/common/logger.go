package common

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger returns a JSON logger at the given level. Debug logging switches
// to the text handler, which reads better in a terminal.
func NewLogger(w io.Writer, level string) *slog.Logger {
	options := &slog.HandlerOptions{Level: ParseLevel(level)}
	if options.Level == slog.LevelDebug {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

// ParseLevel maps debug, info, warn and error to slog levels; anything else
// is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
