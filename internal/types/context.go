package types

import (
	"context"
	"sync"
)

// Context Keys
type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	sessionIDKey   contextKey = "session_id"
	sessionSlotKey contextKey = "session_slot"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// sessionSlot lets an outer middleware see a session ID that a handler
// further down the chain resolves.
type sessionSlot struct {
	mu sync.Mutex
	id string
}

// WithSessionSlot prepares ctx to carry a session ID set later by
// WithSessionID on a derived context.
func WithSessionSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, sessionSlotKey, &sessionSlot{})
}

// WithSessionID stores the workflow session ID in the context so that log
// lines and outbound calls can be correlated with one user's workflow.
func WithSessionID(ctx context.Context, id string) context.Context {
	if slot, ok := ctx.Value(sessionSlotKey).(*sessionSlot); ok {
		slot.mu.Lock()
		slot.id = id
		slot.mu.Unlock()
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// GetSessionID retrieves the workflow session ID from the context.
func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	if slot, ok := ctx.Value(sessionSlotKey).(*sessionSlot); ok {
		slot.mu.Lock()
		defer slot.mu.Unlock()
		return slot.id
	}
	return ""
}
