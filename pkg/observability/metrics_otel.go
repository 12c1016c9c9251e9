package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds OpenTelemetry metric instruments
type OTelMetrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Preview pipeline metrics
	previewsTotal      metric.Int64Counter
	conversionsTotal   metric.Int64Counter
	conversionDuration metric.Float64Histogram
	conversionErrors   metric.Int64Counter

	// Store metrics
	storeOperations metric.Int64Counter

	// Transfer metrics
	transferDuration metric.Float64Histogram

	// Icon metrics
	iconFallbacks metric.Int64Counter
}

// NewOTelMetrics creates a new OTel metrics instance
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("github.com/platinummonkey/pvs")

	m := &OTelMetrics{}
	var err error

	// HTTP metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http.server.requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	// Preview pipeline metrics
	m.previewsTotal, err = meter.Int64Counter(
		"preview.requests",
		metric.WithDescription("Total number of previews served"),
		metric.WithUnit("{preview}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create previews_total counter: %w", err)
	}

	m.conversionsTotal, err = meter.Int64Counter(
		"preview.conversions",
		metric.WithDescription("Total number of conversions by backend"),
		metric.WithUnit("{conversion}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversions_total counter: %w", err)
	}

	m.conversionDuration, err = meter.Float64Histogram(
		"preview.conversion.duration",
		metric.WithDescription("Conversion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversion_duration histogram: %w", err)
	}

	m.conversionErrors, err = meter.Int64Counter(
		"preview.conversion.errors",
		metric.WithDescription("Total number of conversion errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversion_errors counter: %w", err)
	}

	// Store metrics
	m.storeOperations, err = meter.Int64Counter(
		"store.operations",
		metric.WithDescription("Total number of preview store operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store_operations counter: %w", err)
	}

	// Transfer metrics
	m.transferDuration, err = meter.Float64Histogram(
		"transfer.duration",
		metric.WithDescription("File transfer duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer_duration histogram: %w", err)
	}

	// Icon metrics
	m.iconFallbacks, err = meter.Int64Counter(
		"icon.fallbacks",
		metric.WithDescription("Total number of previews answered with a file-type icon"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create icon_fallbacks counter: %w", err)
	}

	return m, nil
}

// Middleware instruments HTTP requests with the OTLP counterparts of the
// Prometheus HTTP metrics. Mounted only when OpenTelemetry is enabled.
func (m *OTelMetrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			m.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rw.statusCode, time.Since(start))
		})
	}
}

// RecordHTTPRequest records an HTTP request metric
func (m *OTelMetrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", endpoint),
		attribute.Int("http.status_code", statusCode),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordPreview records a served preview
func (m *OTelMetrics) RecordPreview(ctx context.Context, format string, width, height int) {
	attrs := []attribute.KeyValue{
		attribute.String("preview.format", format),
		attribute.Int("preview.width", width),
		attribute.Int("preview.height", height),
	}
	m.previewsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordConversion records a conversion attempt with its outcome
func (m *OTelMetrics) RecordConversion(ctx context.Context, backend, format string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("conversion.backend", backend),
		attribute.String("conversion.format", format),
	}

	m.conversionsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.conversionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if err != nil {
		m.conversionErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordStoreOperation records a preview store operation
func (m *OTelMetrics) RecordStoreOperation(ctx context.Context, operation string) {
	attrs := []attribute.KeyValue{
		attribute.String("store.operation", operation),
	}
	m.storeOperations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTransfer records a file transfer
func (m *OTelMetrics) RecordTransfer(ctx context.Context, operation string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("transfer.operation", operation),
	}
	m.transferDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordIconFallback records a preview answered with a file-type icon
func (m *OTelMetrics) RecordIconFallback(ctx context.Context, extension string) {
	attrs := []attribute.KeyValue{
		attribute.String("icon.extension", extension),
	}
	m.iconFallbacks.Add(ctx, 1, metric.WithAttributes(attrs...))
}
