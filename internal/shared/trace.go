package shared

import (
	"context"

	"github.com/google/uuid"
)

type traceKey struct{}
type taskNameKey struct{}

// WithTraceID attaches a trace_id to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID extracts trace_id from context. Returns "-" if absent.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok && v != "" {
		return v
	}
	return "-"
}

// NewTraceID generates a new trace_id.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTaskName attaches the current task artifact name to the context.
func WithTaskName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, taskNameKey{}, name)
}

// TaskName extracts the task artifact name from context. Returns "" if absent.
func TaskName(ctx context.Context) string {
	if v, ok := ctx.Value(taskNameKey{}).(string); ok {
		return v
	}
	return ""
}
