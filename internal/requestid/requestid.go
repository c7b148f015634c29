// Package requestid assigns and propagates per-request correlation IDs.
package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Header is the inbound/outbound correlation header.
const Header = "X-Request-ID"

type contextKey struct{}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext retrieves the request ID, or "" when absent.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

// FromRequest reuses the caller-supplied header when present, otherwise
// synthesizes a new ID.
func FromRequest(r *http.Request) string {
	if id := r.Header.Get(Header); id != "" {
		return id
	}
	return uuid.New().String()
}
