// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that
// producers and consumers agree on names and value types.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithPrincipal(ctx, principal)
//	principal, ok := contextkeys.GetPrincipal(ctx)
package contextkeys

import (
	"context"

	"github.com/platinummonkey/potkeeper/pkg/auth"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *auth.Principal
	// Set by: middleware.IdentityMiddleware (pkg/middleware/identity.go)
	// Required by: authenticated and admin routes
	// Type: *auth.Principal
	PrincipalKey Key = "principal"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error responses
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: Identity middleware after token verification
	// Used by: Logger
	// Type: string
	UserIDKey Key = "user_id"

	// RouteKey contains the matched route name
	// Set by: api.Server when registering the route table
	// Used by: metrics middleware
	// Type: string
	RouteKey Key = "route"
)

// WithPrincipal attaches the resolved identity to ctx.
func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	ctx = context.WithValue(ctx, PrincipalKey, p)
	return context.WithValue(ctx, UserIDKey, p.UserID)
}

// GetPrincipal returns the identity attached to ctx, if any.
func GetPrincipal(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*auth.Principal)
	return p, ok && p != nil
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetUserID retrieves the user ID from context
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRoute records the matched route name.
func WithRoute(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, RouteKey, name)
}

// GetRoute returns the matched route name.
func GetRoute(ctx context.Context) string {
	if name, ok := ctx.Value(RouteKey).(string); ok {
		return name
	}
	return ""
}
