package log

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// NewContext returns a context carrying logger, for request-scoped fields.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the request logger, or one over slog.Default when
// none was attached.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return wrap(slog.Default(), ComponentApp)
}

// LogError logs err with the operation and a category, using the request
// logger when there is one.
func LogError(ctx context.Context, msg string, err error, operation, errorType string, extra LogFields) {
	fields := extra
	if fields == nil {
		fields = NewFields()
	}
	fields = fields.WithError(err).WithOperation(operation)
	fields[FieldErrorType] = errorType
	FromContext(ctx).ErrorContext(ctx, msg, fields.ToSlice()...)
}
