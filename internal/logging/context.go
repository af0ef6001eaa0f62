package logging

import (
	"context"
	"log/slog"

	"switchboard/internal/services"
)

type loggerKey struct{}

// NewContext returns a context carrying the logger. The pipeline driver uses
// it to hand each stage attempt a request-scoped logger without mutating
// handler state shared between workers.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger carried on the context, or fallback when
// none is present.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	if fallback == nil {
		return NewNop()
	}
	return fallback
}

// WithContext decorates the logger with identity, stage, and request ID
// annotations carried on the context, when present.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	attrs := make([]Attr, 0, 3)
	if identity, ok := services.IdentityFromContext(ctx); ok {
		attrs = append(attrs, String(FieldIdentity, identity))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		attrs = append(attrs, String(FieldStage, stage))
	}
	if requestID, ok := services.RequestIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldRequestID, requestID))
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(Args(attrs...)...)
}
