// Package logger builds the process-wide structured logger from configuration.
package logger

import (
	"io"
	"log/slog"
	"strings"

	"pdfchat/internal/config"
)

// New returns a slog logger writing to w. Format "json" selects the JSON
// handler; anything else falls back to text.
func New(cfg config.LogConfig, appName string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("app", appName)
}

func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
