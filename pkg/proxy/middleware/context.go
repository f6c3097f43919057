package middleware

import (
	"context"
	"time"

	"kirohq/gateway/pkg/storage"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey stores the unique request ID.
	RequestIDKey contextKey = "request_id"

	// StartTimeKey stores the request start time for latency calculation.
	StartTimeKey contextKey = "start_time"

	// APIKeyKey stores the authenticated API key record, when client
	// auth ran against the database rather than the static key.
	APIKeyKey contextKey = "api_key"
)

// GetRequestID extracts the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetStartTime extracts the request start time from the context.
func GetStartTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(StartTimeKey).(time.Time); ok {
		return t
	}
	return time.Time{}
}

// GetAPIKey extracts the authenticated key record from the context.
// Nil means the request was admitted by the static key or open access.
func GetAPIKey(ctx context.Context) *storage.APIKey {
	if k, ok := ctx.Value(APIKeyKey).(*storage.APIKey); ok {
		return k
	}
	return nil
}
