package logging

import (
	"context"
	"log/slog"
	"os"
)

// multiHandler is a custom slog.Handler that combines multiple handlers
type multiHandler []slog.Handler

func (h multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h))
	for i, handler := range h {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return multiHandler(handlers)
}

func (h multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h))
	for i, handler := range h {
		handlers[i] = handler.WithGroup(name)
	}
	return multiHandler(handlers)
}

// NewLogger creates a slog.Logger that writes JSON to the file named by
// LOG_FILE and text to stdout. When the file cannot be opened the logger
// falls back to stdout only and the returned file is nil.
func NewLogger() (*slog.Logger, *os.File, error) {
	terminalHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelInfo,
	})

	path := os.Getenv("LOG_FILE")
	if path == "" {
		path = "voltcare.log"
	}
	logFile, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return slog.New(terminalHandler), nil, nil
	}

	fileHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelInfo,
	})

	logger := slog.New(multiHandler{fileHandler, terminalHandler})
	return logger, logFile, nil
}
