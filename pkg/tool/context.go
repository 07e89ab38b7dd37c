package tool

import "context"

type execContextKey struct{}

// ContextWith attaches the execution context to a context.Context for tool
// handlers.
func ContextWith(ctx context.Context, tc *Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if tc == nil {
		return ctx
	}
	return context.WithValue(ctx, execContextKey{}, tc)
}

// FromContext extracts the execution context from a context.Context.
// Returns nil if none is attached.
func FromContext(ctx context.Context) *Context {
	if ctx == nil {
		return nil
	}
	if v := ctx.Value(execContextKey{}); v != nil {
		if tc, ok := v.(*Context); ok {
			return tc
		}
	}
	return nil
}
