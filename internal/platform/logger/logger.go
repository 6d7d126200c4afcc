package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Setup initializes the application's logging system. It creates a
// structured JSON logger writing to stdout at the given level, sets it as
// the process default, and returns it.
func Setup(logLevel string) (*slog.Logger, error) {
	level, err := ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	log := slog.New(handler)

	// Allow package-level slog calls to use the same handler.
	slog.SetDefault(log)

	return log, nil
}

// ParseLevel converts a config log level string to a slog.Level
// (case-insensitive). Returns an error for unknown levels.
func ParseLevel(logLevel string) (slog.Level, error) {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", logLevel)
	}
}
