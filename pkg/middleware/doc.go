// Package middleware provides the thin HTTP plumbing around the
// authorization core: credential extraction, principal resolution, store
// context resolution, API-key scope checks and per-key rate limiting.
//
// # Overview
//
// Handlers behind these middlewares never interpret credentials or store
// ids themselves; they read the typed Principal and ResolvedContext from
// the request context and pass them on. The error-kind to status-code
// mapping lives here and nowhere else.
//
// # Middleware Components
//
// Auth: principal resolution from Bearer tokens or X-Api-Key headers
//
//	auth := middleware.NewAuth(verifier, resolver, log, metrics)
//	router.Use(auth.Handler)
//
// StoreContext: effective store scope from the store_id path variable or,
// failing that, the store_id query parameter
//
//	router.Use(middleware.StoreContext(scopeResolver, metrics, scope.ModeOptional))
//
// RequireScope: API-key permission scope enforcement
//
//	router.Use(middleware.RequireScope(guard, metrics, tenancy.ScopeUsersWrite))
//
// KeyRateLimit: Redis-backed per-key rate limiting
//
//	limiter := middleware.NewKeyRateLimiter(redisClient, nil, "")
//	router.Use(middleware.KeyRateLimit(limiter, log))
//
// # Related Packages
//
//   - pkg/principal: credential interpretation
//   - pkg/scope: store context resolution
//   - pkg/keyguard: API-key scoping
package middleware
