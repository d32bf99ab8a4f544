package services

import "context"

// contextKey scopes values this package stores on a context.
type contextKey int

const (
	sessionIDKey contextKey = iota
	stageKey
	requestIDKey
)

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func lookup(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(key).(string)
	return value, ok && value != ""
}

// WithSessionID tags ctx with the analysis session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	return withValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext returns the session identifier, if any.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	return lookup(ctx, sessionIDKey)
}

// WithStage tags ctx with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) {
	return lookup(ctx, stageKey)
}

// WithRequestID tags ctx with a correlation identifier. Outbound detector
// requests forward it as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	return lookup(ctx, requestIDKey)
}
