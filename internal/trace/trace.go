// Package trace carries a per-request trace id through context.Context so
// log entries from every layer can be correlated.
package trace

import (
	"context"

	"github.com/google/uuid"
)

// Log field names shared by all packages.
const (
	FieldTraceID    = "trace_id"
	FieldOperation  = "operation"
	FieldDurationMs = "duration_ms"
)

// HeaderRequestID is the HTTP header and gRPC metadata key carrying the id.
const HeaderRequestID = "X-Request-Id"

type ctxKey struct{}

// NewID returns a fresh trace id.
func NewID() string {
	return uuid.New().String()
}

// WithID returns a copy of ctx carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// ID returns the trace id stored in ctx, or "" when there is none.
func ID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Ensure returns ctx and its trace id, attaching a new id when ctx has none.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := ID(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return WithID(ctx, id), id
}
