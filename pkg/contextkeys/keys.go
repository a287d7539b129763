// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/retailops/crewdeck/pkg/contextkeys"
//   ctx = contextkeys.WithPrincipal(ctx, principal)
//   principal, ok := ctx.Value(contextkeys.PrincipalKey).(tenancy.Principal)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains tenancy.Principal
	// Set by: middleware.Auth (pkg/middleware/auth.go)
	// Required by: All protected API endpoints
	// Type: tenancy.Principal
	PrincipalKey Key = "principal"

	// ResolvedContextKey contains tenancy.ResolvedContext
	// Set by: middleware.StoreContext (pkg/middleware/storectx.go)
	// Required by: Store-scoped endpoints, ownership checks
	// Type: tenancy.ResolvedContext
	ResolvedContextKey Key = "resolved_context"
)

// Helper functions for type-safe context operations

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// WithResolvedContext adds the resolved store context to the context
func WithResolvedContext(ctx context.Context, rc interface{}) context.Context {
	return context.WithValue(ctx, ResolvedContextKey, rc)
}
