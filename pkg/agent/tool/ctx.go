package tool

import (
	"context"
	"fmt"
)

// UpdateFunc receives progress messages while a tool runs, e.g. to show the
// operator which memory operation the agent is performing
type UpdateFunc func(ctx context.Context, message string)

type contextKey struct{}

// WithUpdate returns a context carrying fn
func WithUpdate(ctx context.Context, fn UpdateFunc) context.Context {
	return context.WithValue(ctx, contextKey{}, fn)
}

// Update reports message to the UpdateFunc in ctx. No-op without one.
func Update(ctx context.Context, message string) {
	if fn, ok := ctx.Value(contextKey{}).(UpdateFunc); ok {
		fn(ctx, message)
	}
}

// Updatef is Update with formatting
func Updatef(ctx context.Context, format string, args ...any) {
	if _, ok := ctx.Value(contextKey{}).(UpdateFunc); !ok {
		return
	}
	Update(ctx, fmt.Sprintf(format, args...))
}
