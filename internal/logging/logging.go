// Package logging provides the structured logger shared by the cache and
// delivery layers.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Level is a minimum log level.
type Level int

// Log levels.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel parses a level name.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config holds configuration for a Logger.
type Config struct {
	Level Level
	// Output defaults to stderr.
	Output io.Writer
	// JSON selects the JSON handler instead of text.
	JSON bool
	// AddSource includes file and line in records.
	AddSource bool
}

// Logger is a thin wrapper around slog. A nil or nop Logger discards
// everything, so components never need to nil-check.
type Logger struct {
	logger *slog.Logger
}

// New creates a logger from a Config.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel(), AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return &Logger{logger: slog.New(handler)}
}

// FromSlog wraps an existing slog logger.
func FromSlog(l *slog.Logger) *Logger {
	return &Logger{logger: l}
}

// Slog returns the underlying slog logger, or nil for a nop logger.
func (l *Logger) Slog() *slog.Logger {
	if l == nil {
		return nil
	}
	return l.logger
}

// NewNopLogger returns a logger that discards all messages.
func NewNopLogger() *Logger {
	return &Logger{}
}

// Debug logs at debug level.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	if l != nil && l.logger != nil {
		l.logger.DebugContext(ctx, msg, args...)
	}
}

// Info logs at info level.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	if l != nil && l.logger != nil {
		l.logger.InfoContext(ctx, msg, args...)
	}
}

// Warn logs at warn level.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	if l != nil && l.logger != nil {
		l.logger.WarnContext(ctx, msg, args...)
	}
}

// Error logs at error level.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	if l != nil && l.logger != nil {
		l.logger.ErrorContext(ctx, msg, args...)
	}
}

// With returns a logger with additional fields.
func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.logger == nil {
		return l
	}
	return &Logger{logger: l.logger.With(args...)}
}

// WithOperation returns a logger tagged with an operation name.
func (l *Logger) WithOperation(op Operation) *Logger {
	return l.With("operation", string(op))
}

// WithKey returns a logger tagged with a canonical asset key.
func (l *Logger) WithKey(key fmt.Stringer) *Logger {
	return l.With("key", key.String())
}

// Operation names a logged activity.
type Operation string

// Operations.
const (
	OpGet        Operation = "get"
	OpPut        Operation = "put"
	OpEvict      Operation = "evict"
	OpCleanup    Operation = "cleanup"
	OpFetch      Operation = "fetch"
	OpLoad       Operation = "load"
	OpPreload    Operation = "preload"
	OpProbe      Operation = "probe"
	OpInitialize Operation = "initialize"
)

// LogCacheHit logs a cache hit.
func LogCacheHit(ctx context.Context, logger *Logger, key string, size int64) {
	logger.Debug(ctx, "cache hit", "key", key, "size", size, "result", "hit")
}

// LogCacheMiss logs a cache miss.
func LogCacheMiss(ctx context.Context, logger *Logger, key string, reason string) {
	logger.Debug(ctx, "cache miss", "key", key, "reason", reason, "result", "miss")
}

// LogEviction logs the removal of one entry.
func LogEviction(ctx context.Context, logger *Logger, key string, size int64, reason string) {
	logger.Info(ctx, "cache entry evicted", "key", key, "size", size, "reason", reason)
}

// LogCleanup logs the result of a cleanup pass.
func LogCleanup(ctx context.Context, logger *Logger, entriesRemoved int, bytesFreed int64, duration time.Duration) {
	logger.Info(ctx, "cache cleanup completed",
		"entries_removed", entriesRemoved,
		"bytes_freed", bytesFreed,
		"duration_ms", duration.Milliseconds())
}

// LogRetry logs a failed attempt that will be retried.
func LogRetry(ctx context.Context, logger *Logger, url string, attempt int, delay time.Duration, err error) {
	logger.Warn(ctx, "fetch attempt failed, retrying",
		"url", url,
		"attempt", attempt,
		"delay_ms", delay.Milliseconds(),
		"error", err.Error())
}

// LogFailover logs the primary endpoint being marked failed.
func LogFailover(ctx context.Context, logger *Logger, endpoint string, err error) {
	logger.Warn(ctx, "endpoint marked failed, switching to fallback",
		"endpoint", endpoint,
		"error", err.Error())
}
