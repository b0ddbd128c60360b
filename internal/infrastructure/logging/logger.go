package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
)

const serviceName = "accesscore"

// Logger is a slog.Logger carrying service and version on every entry.
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger writing to the configured stream (stdout unless
// output is "stderr").
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return NewWithWriter(cfg, version, w)
}

// NewWithWriter builds a Logger writing to w. Format "text" selects the
// text handler; anything else is JSON.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{slog.New(h).With("service", serviceName, "version", version)}
}

// Default is the bootstrap logger used until configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{}, "dev")
}

// parseLevel accepts debug, info, warn/warning and error in any case.
// Anything else is info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Component returns a child logger tagged with component=name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{l.Logger.With("component", name)}
}
