// Package logctx flows a structured logger through context.Context and
// accumulates the warnings a run produces, mirroring spec.md §7's
// process-global logger with three streams (error, warning, info) but
// without the global: callers pass the logger down explicitly.
package logctx

import (
	"context"
	"log/slog"
	"sync"
)

type ctxKey struct{}

// Logger wraps a *slog.Logger with a collected-warnings slice, since
// spec.md §7 requires that warnings "accumulate and continue" rather than
// being emitted and forgotten as each one occurs.
type Logger struct {
	base *slog.Logger

	mu       sync.Mutex
	warnings []string
}

// New returns a Logger that writes through base.
func New(base *slog.Logger) *Logger {
	return &Logger{base: base}
}

// WithLogger returns a context carrying l, retrievable with FromContext.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the Logger stored in ctx, or a Logger wrapping
// slog.Default if none was attached.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return New(slog.Default())
}

// Error logs at error level. Per spec.md §7, an error aborts the current
// operation; Error itself does not abort anything — callers still return
// the error up the call stack.
func (l *Logger) Error(source, msg string, args ...any) {
	l.base.Error(msg, append([]any{"source", source}, args...)...)
}

// Warning logs at warning level and records msg for later retrieval via
// Warnings, so a driver can report every warning accumulated over a run
// at the end, the way Crinkler's Log::Warning calls do.
func (l *Logger) Warning(source, msg string, args ...any) {
	l.base.Warn(msg, append([]any{"source", source}, args...)...)
	l.mu.Lock()
	l.warnings = append(l.warnings, formatWarning(source, msg))
	l.mu.Unlock()
}

// Info logs at info level.
func (l *Logger) Info(source, msg string, args ...any) {
	l.base.Info(msg, append([]any{"source", source}, args...)...)
}

// Warnings returns every warning recorded so far, in order.
func (l *Logger) Warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warnings...)
}

func formatWarning(source, msg string) string {
	if source == "" {
		return msg
	}
	return source + ": " + msg
}
