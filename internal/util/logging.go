package util

import (
	"log/slog"
	"os"
	"strings"
)

// InitLogger configures the process-wide slog logger: JSON records on
// stdout at the given level. Source locations are only attached at debug
// level; the portal's request and job logs carry their own keys.
func InitLogger(level string) *slog.Logger {
	slogLevel := ParseLevel(level)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slogLevel,
		AddSource: slogLevel == slog.LevelDebug,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a config level string onto a slog level. Unknown or empty
// input falls back to info.
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
