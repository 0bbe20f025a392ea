package infrastructure

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

// TraceIDContextKey is the key for storing trace ID in context
const TraceIDContextKey contextKey = "trace_id"

// NewID returns a random UUIDv4, used for request and run ids
func NewID() string {
	return uuid.NewString()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDContextKey, traceID)
}

// GetTraceID retrieves the trace ID from context
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceID, _ := ctx.Value(TraceIDContextKey).(string)
	return traceID
}

// EnsureTraceID keeps an existing trace ID; otherwise fallback becomes the
// trace ID, or a fresh one when fallback is empty.
func EnsureTraceID(ctx context.Context, fallback string) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	if fallback == "" {
		fallback = NewID()
	}
	return WithTraceID(ctx, fallback)
}
