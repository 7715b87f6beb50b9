// Package ctxutil provides shared context key accessors.
//
// The HTTP server stamps every request with an ID, and the MCP tool
// handlers mounted under it echo that ID in their failure envelopes.
// server imports mcp, so both read the key from here instead of from
// each other.
package ctxutil

import "context"

type contextKey string

const keyRequestID contextKey = "request_id"

// WithRequestID returns a new context carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestIDFromContext extracts the request ID, or "" when none was set.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}
