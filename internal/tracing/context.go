package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// TurnIDKey is the context key for the turn ID
	TurnIDKey ContextKey = "turn_id"
	// BackendKey is the context key for the backend identifier
	BackendKey ContextKey = "backend"
	// SessionIDKey is the context key for the session ID
	SessionIDKey ContextKey = "session_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	TurnID    string
	Backend   string
	SessionID string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewTurnID generates a new turn ID
func NewTurnID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithTurnID adds a turn ID to the context
func WithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, TurnIDKey, turnID)
}

// WithBackend adds a backend identifier to the context
func WithBackend(ctx context.Context, backend string) context.Context {
	return context.WithValue(ctx, BackendKey, backend)
}

// WithSessionID adds a session ID to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetTurnID retrieves the turn ID from the context
func GetTurnID(ctx context.Context) string {
	if turnID, ok := ctx.Value(TurnIDKey).(string); ok {
		return turnID
	}
	return ""
}

// GetBackend retrieves the backend identifier from the context
func GetBackend(ctx context.Context) string {
	if backend, ok := ctx.Value(BackendKey).(string); ok {
		return backend
	}
	return ""
}

// GetSessionID retrieves the session ID from the context
func GetSessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		TurnID:    GetTurnID(ctx),
		Backend:   GetBackend(ctx),
		SessionID: GetSessionID(ctx),
	}
}

// NewRequestContext creates a new context for a request with a new trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// NewTurnContext creates a new context for one turn against a backend
func NewTurnContext(ctx context.Context, backend string) context.Context {
	ctx = WithTurnID(ctx, NewTurnID())
	return WithBackend(ctx, backend)
}
