// Package rlog wraps log/slog with the contextual fields the event loop
// needs to thread through a connection's lifetime: a per-connection id,
// since there is no RPC call boundary here, just accept-to-close.
package rlog

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

type connIDKey struct{}

var connIDCounter atomic.Uint64

// Logger wraps slog.Logger, optionally injecting a connection id carried on
// the context into every log line.
type Logger struct {
	*slog.Logger
	connIDEnabled bool
}

// Config controls the logger's output format, level, and whether
// connection ids are attached to log lines.
type Config struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`
	ConnIDEnabled bool   `mapstructure:"conn_id_enabled"`
}

// New builds a Logger per cfg, writing to stdout.
func New(cfg Config) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler), connIDEnabled: cfg.ConnIDEnabled}
}

// WithNewConnID allocates a fresh connection id and attaches it to ctx.
func WithNewConnID(ctx context.Context) context.Context {
	id := connIDCounter.Add(1)
	return context.WithValue(ctx, connIDKey{}, id)
}

// ConnID retrieves the connection id attached to ctx, if any.
func ConnID(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(connIDKey{}).(uint64)
	return id, ok
}

func (l *Logger) withConnID(ctx context.Context, args []any) []any {
	if l.connIDEnabled {
		if id, ok := ConnID(ctx); ok {
			args = append([]any{"conn_id", id}, args...)
		}
	}
	return args
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.Logger.InfoContext(ctx, msg, l.withConnID(ctx, args)...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.Logger.ErrorContext(ctx, msg, l.withConnID(ctx, args)...)
}

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.Logger.DebugContext(ctx, msg, l.withConnID(ctx, args)...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.Logger.WarnContext(ctx, msg, l.withConnID(ctx, args)...)
}

// WithFD returns a logger with the connection's file descriptor attached to
// every subsequent line, mirroring WithWorker's per-entity binding.
func (l *Logger) WithFD(fd int) *Logger {
	return &Logger{Logger: l.Logger.With("fd", fd), connIDEnabled: l.connIDEnabled}
}

// WithComponent returns a logger with a component name attached, used to
// tag lines coming from the reactor loop, a worker, or the timer list.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name), connIDEnabled: l.connIDEnabled}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
