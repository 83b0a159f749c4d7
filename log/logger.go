// Package log defines the logging interface used across treeforge.
//
// Loggers travel in the context. Code that finds no logger there logs nowhere.
package log

import (
	"context"
	"log/slog"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -o mocks/logger.go . Logger

// Logger is a minimal logging interface for treeforge components.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

type loggerCtxKey struct{}

// ToContext adds a logger to the context.
func ToContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored in the context, or a no-op logger.
func FromContext(ctx context.Context) Logger {
	logger, ok := ctx.Value(loggerCtxKey{}).(Logger)
	if !ok || logger == nil {
		return Noop()
	}

	return logger
}

// With returns a context whose logger carries the given key-value pairs on every entry.
func With(ctx context.Context, keysAndValues ...any) context.Context {
	return ToContext(ctx, &withLogger{
		parent: FromContext(ctx),
		kv:     keysAndValues,
	})
}

type withLogger struct {
	parent Logger
	kv     []any
}

func (w *withLogger) merge(keysAndValues []any) []any {
	out := make([]any, 0, len(w.kv)+len(keysAndValues))
	out = append(out, w.kv...)
	return append(out, keysAndValues...)
}

func (w *withLogger) Debug(msg string, kv ...any) { w.parent.Debug(msg, w.merge(kv)...) }
func (w *withLogger) Info(msg string, kv ...any)  { w.parent.Info(msg, w.merge(kv)...) }
func (w *withLogger) Error(msg string, kv ...any) { w.parent.Error(msg, w.merge(kv)...) }
func (w *withLogger) Warn(msg string, kv ...any)  { w.parent.Warn(msg, w.merge(kv)...) }

// noopLogger implements Logger but does nothing.
type noopLogger struct{}

func (n *noopLogger) Debug(msg string, keysAndValues ...any) {}
func (n *noopLogger) Info(msg string, keysAndValues ...any)  {}
func (n *noopLogger) Error(msg string, keysAndValues ...any) {}
func (n *noopLogger) Warn(msg string, keysAndValues ...any)  {}

// Noop returns a logger that discards everything.
func Noop() Logger {
	return &noopLogger{}
}

// FromSlog adapts a *slog.Logger.
func FromSlog(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, keysAndValues ...any) { s.l.Debug(msg, keysAndValues...) }
func (s *slogLogger) Info(msg string, keysAndValues ...any)  { s.l.Info(msg, keysAndValues...) }
func (s *slogLogger) Error(msg string, keysAndValues ...any) { s.l.Error(msg, keysAndValues...) }
func (s *slogLogger) Warn(msg string, keysAndValues ...any)  { s.l.Warn(msg, keysAndValues...) }
