// Package logging provides structured logging utilities.
//
// Text logs are formatted in Maven-style, colored when writing to a terminal:
// [LEVEL] [SYSTEM] [HH:MM:SS] message key=value
//
// Setting format to json switches to slog's JSON handler for log shipping.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/eshaffer321/reconciler/internal/infrastructure/config"
)

// NewLogger creates a structured logger writing to stdout based on config
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	return NewLoggerTo(os.Stdout, cfg)
}

// NewLoggerTo creates a logger writing to w
func NewLoggerTo(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(NewMavenHandler(w, opts))
}

// NewLoggerWithSystem creates a logger with a system prefix (e.g., "reconcile", "api")
func NewLoggerWithSystem(cfg config.LoggingConfig, system string) *slog.Logger {
	return NewLogger(cfg).With(systemKey, system)
}

// NewLoggerWithSystemTo is NewLoggerWithSystem writing to w
func NewLoggerWithSystemTo(w io.Writer, cfg config.LoggingConfig, system string) *slog.Logger {
	return NewLoggerTo(w, cfg).With(systemKey, system)
}

// ParseLevel maps a config level name onto a slog level. Unknown names are info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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
