// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Overview
//
// This package centralizes observability infrastructure including JSON logging, metrics
// collection, health checks, and distributed tracing integration.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.LevelInfo)
//	logger.Info("Server started", "port", 3000)
//
// Context-aware logging:
//
//	logger.WithField("request_id", reqID).Error("Preview failed", err)
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.PreviewsTotal.WithLabelValues("image", "320", "240").Inc()
//	metrics.ConversionDuration.WithLabelValues("pdf", "image").Observe(0.123)
//
// Storage metrics:
//
//	metrics.StoreFiles.Set(float64(files))
//	metrics.StoreBytes.Set(float64(bytes))
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(fileRoot, storePath, officeEndpoint, engines, redisClient)
//	status := checker.Check(ctx)
//	fmt.Printf("Status: %v\n", status.Status)
//
// # OpenTelemetry
//
// Initialize tracing:
//
//	providers, err := observability.InitOTel(&observability.OTelConfig{
//		ServiceName:    "pvs",
//		ServiceVersion: "v1.0.0",
//		OTLPEndpoint:   "otel-collector:4317",
//	})
//	defer providers.Shutdown(ctx)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/api: Request logging and metrics middleware
package observability
