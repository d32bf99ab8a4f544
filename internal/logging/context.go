package logging

import (
	"context"
	"log/slog"

	"vigil/internal/services"
)

// Keys shared by every log record and stream event.
const (
	FieldComponent     = "component"
	FieldSessionID     = "session_id"
	FieldStage         = "stage"
	FieldCorrelationID = "correlation_id"

	// FieldAlert flags anomalies operators should notice.
	FieldAlert = "alert"
	// FieldEventType classifies a line (stage_start, stage_failure, ...).
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	// FieldErrorKind carries the services error marker classification.
	FieldErrorKind = "error_kind"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields turns the session, stage and request identifiers carried by
// ctx into attrs, in that order.
func ContextFields(ctx context.Context) []slog.Attr {
	var fields []slog.Attr
	add := func(key string, lookup func(context.Context) (string, bool)) {
		if value, ok := lookup(ctx); ok {
			fields = append(fields, slog.String(key, value))
		}
	}
	if ctx != nil {
		add(FieldSessionID, services.SessionIDFromContext)
		add(FieldStage, services.StageFromContext)
		add(FieldCorrelationID, services.RequestIDFromContext)
	}
	return fields
}

// WithContext binds the identifiers carried by ctx to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if fields := ContextFields(ctx); len(fields) > 0 {
		return logger.With(Args(fields...)...)
	}
	return logger
}
