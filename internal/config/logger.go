package config

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger: JSON in production, text with debug
// level everywhere else.
func NewLogger(env string) *slog.Logger {
	opts := &slog.HandlerOptions{}

	var handler slog.Handler
	if env == "production" {
		opts.Level = slog.LevelInfo
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
