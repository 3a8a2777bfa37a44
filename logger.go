package shardann

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger wraps slog.Logger with pipeline-specific context.
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
	return newLogger(os.Stderr, "json", level)
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return newLogger(os.Stderr, "text", level)
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// ParseLevel maps debug, info, warn and error (any case) to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// NewLoggerFor builds a Logger writing to w in the given format ("text" or
// "json") at the given level name.
func NewLoggerFor(w io.Writer, format, level string) (*Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(format) {
	case "", "text", "json":
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return newLogger(w, format, lvl), nil
}

func newLogger(w io.Writer, format string, level slog.Level) *Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// WithMethod adds the partition method label.
func (l *Logger) WithMethod(method string) *Logger {
	return &Logger{
		Logger: l.Logger.With("method", method),
	}
}

// WithShards adds the shard count.
func (l *Logger) WithShards(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("shards", k),
	}
}

// LogLoaded logs a loaded point set.
func (l *Logger) LogLoaded(ctx context.Context, what, path string, n, d int) {
	l.InfoContext(ctx, "Loaded point set",
		"what", what,
		"path", path,
		"points", n,
		"dimension", d,
	)
}

// LogStage logs the completion of a pipeline stage.
func (l *Logger) LogStage(ctx context.Context, stage string, start time.Time, err error) {
	if err != nil {
		l.ErrorContext(ctx, "Stage failed",
			"stage", stage,
			"elapsed", time.Since(start),
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "Stage completed",
			"stage", stage,
			"elapsed", time.Since(start),
		)
	}
}

// LogWritten logs an artifact written to disk.
func (l *Logger) LogWritten(ctx context.Context, path string) {
	l.DebugContext(ctx, "Wrote artifact",
		"path", path,
	)
}
