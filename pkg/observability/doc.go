// Package observability provides structured logging, Prometheus metrics,
// and dependency health checks.
//
// # Structured Logging
//
// Create a JSON logger and attach fields:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("store_id", id).Info("store context resolved")
//
// Request-scoped values (request id, principal id) travel on the context:
//
//	ctx = observability.WithPrincipalID(ctx, principal.ID)
//	observability.FromContext(ctx).Warn("rate limit hit")
//
// # Prometheus Metrics
//
// Initialize against a registry and record:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.PrincipalResolutionsTotal.WithLabelValues("token", "owner", "ok").Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, metrics)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/middleware: request-level auth and rate-limit middleware
package observability
