// Package observability provides structured logging, Prometheus metrics,
// health checks, graceful shutdown and OpenTelemetry tracing.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("pot_id", potID).Info("pot deleted")
//
// Request-scoped logging:
//
//	observability.FromContext(ctx).WithError(err).Error("cleanup failed")
//
// # Prometheus Metrics
//
// Metrics are registered on an explicit registry and exposed on the health
// port:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.BlobDeletesTotal.WithLabelValues("ok").Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, blobs)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging middleware
package observability
