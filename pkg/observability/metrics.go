package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestsInFlight  *prometheus.GaugeVec
	HTTPRequestDuration   *prometheus.HistogramVec

	// Preview pipeline metrics
	PreviewsTotal         *prometheus.CounterVec
	ConversionsTotal      *prometheus.CounterVec
	ConversionDuration    *prometheus.HistogramVec
	ConversionErrorsTotal *prometheus.CounterVec

	// Store metrics
	StoreOperationsTotal *prometheus.CounterVec
	StoreBytes           prometheus.Gauge
	StoreFiles           prometheus.Gauge

	// Transfer metrics
	TransfersInFlight *prometheus.GaugeVec
	TransferDuration  *prometheus.HistogramVec

	// Icon metrics
	IconFallbacksTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pvs_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pvs_http_requests_in_progress",
				Help: "Number of HTTP requests currently being served",
			},
			[]string{"endpoint", "method"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pvs_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),

		// Preview pipeline metrics
		PreviewsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pvs_previews_total",
				Help: "Total number of previews served",
			},
			[]string{"format", "width", "height"},
		),
		ConversionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pvs_conversions_total",
				Help: "Total number of conversions by backend",
			},
			[]string{"backend", "format"},
		),
		ConversionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pvs_conversion_duration_seconds",
				Help:    "Conversion duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"backend", "format"},
		),
		ConversionErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pvs_conversion_errors_total",
				Help: "Total number of conversion errors",
			},
			[]string{"backend", "format"},
		),

		// Store metrics
		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pvs_storage_operations_total",
				Help: "Total number of preview store operations",
			},
			[]string{"operation"},
		),
		StoreBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pvs_storage_bytes_total",
				Help: "Bytes currently held by the preview store",
			},
		),
		StoreFiles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pvs_storage_files_total",
				Help: "Files currently held by the preview store",
			},
		),

		// Transfer metrics
		TransfersInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pvs_transfers_in_progress",
				Help: "Number of file transfers currently in progress",
			},
			[]string{"operation"},
		),
		TransferDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pvs_transfer_duration_seconds",
				Help:    "File transfer duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		// Icon metrics
		IconFallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pvs_icon_fallbacks_total",
				Help: "Total number of previews answered with a file-type icon",
			},
			[]string{"extension"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.HTTPRequestDuration,
		m.PreviewsTotal,
		m.ConversionsTotal,
		m.ConversionDuration,
		m.ConversionErrorsTotal,
		m.StoreOperationsTotal,
		m.StoreBytes,
		m.StoreFiles,
		m.TransfersInFlight,
		m.TransferDuration,
		m.IconFallbacksTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			endpoint := r.URL.Path

			// Wrap response writer to capture status
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			metrics.HTTPRequestsInFlight.WithLabelValues(endpoint, r.Method).Inc()
			defer metrics.HTTPRequestsInFlight.WithLabelValues(endpoint, r.Method).Dec()

			// Serve the request
			next.ServeHTTP(rw, r)

			// Record metrics
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(endpoint, r.Method, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration)
		})
	}
}

// MetricsHandler returns the Prometheus scrape handler for the registry
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
