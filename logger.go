package idxstore

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with idxstore-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithPath adds a store path field to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// LogOpenFailure logs a store that could not be opened.
func (l *Logger) LogOpenFailure(ctx context.Context, d time.Duration, err error) {
	l.ErrorContext(ctx, "open failed",
		"error", err,
		"duration", d,
	)
}

// LogCorruption logs data that cannot be trusted anymore.
func (l *Logger) LogCorruption(ctx context.Context, what string, err error) {
	l.ErrorContext(ctx, "corruption detected",
		"what", what,
		"error", err,
	)
}
