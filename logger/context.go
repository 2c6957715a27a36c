package logger

import "context"

// contextKey is the type for context keys to avoid collisions
type contextKey string

const loggerKey contextKey = "request_logger"

// WithLogger stores a request-scoped logger in ctx.
func WithLogger(ctx context.Context, l Logger) context.Context {
	if ctx == nil || l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the request-scoped logger in ctx, or fallback.
func FromContext(ctx context.Context, fallback Logger) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(Logger); ok && l != nil {
			return l
		}
	}
	return fallback
}
