package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/c360/recordcache/config"
)

// setupLogger builds the process logger. Unknown levels fall back to info and
// unknown formats to JSON.
func setupLogger(w io.Writer, level, format string) *slog.Logger {
	logLevel, err := config.ParseLevel(level)
	if err != nil {
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	)
}

// firstNonEmpty returns the first non-empty value.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
