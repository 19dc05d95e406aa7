// Package logging builds the process-wide structured logger. Every package
// in this repository logs through log/slog with key-value attributes.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init builds a *slog.Logger for the given format ("json", the default,
// or "text") and level ("debug"/"info"/"warn"/"error"), installs it as the
// process default, and returns it.
func Init(format, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
