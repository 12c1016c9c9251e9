package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/pvs/pkg/backend"
	"github.com/platinummonkey/pvs/pkg/config"
	"github.com/platinummonkey/pvs/pkg/coordinator"
	"github.com/platinummonkey/pvs/pkg/httputil"
	"github.com/platinummonkey/pvs/pkg/observability"
	"github.com/platinummonkey/pvs/pkg/plugins"
	"github.com/platinummonkey/pvs/pkg/source"
)

// Server represents the preview API server
type Server struct {
	cfg      *config.Config
	source   *source.FileSource
	coord    *coordinator.Coordinator
	registry *backend.Registry
	health   *observability.HealthChecker
	promReg  *prometheus.Registry
	router   *mux.Router
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// NewServer creates a new API server. health, promReg and metrics may be nil
// in tests; the corresponding routes and instrumentation are then skipped.
func NewServer(cfg *config.Config, src *source.FileSource, coord *coordinator.Coordinator,
	registry *backend.Registry, health *observability.HealthChecker,
	promReg *prometheus.Registry, metrics *observability.Metrics,
	logger *observability.Logger) *Server {
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	}

	s := &Server{
		cfg:      cfg,
		source:   src,
		coord:    coord,
		registry: registry,
		health:   health,
		promReg:  promReg,
		router:   mux.NewRouter().StrictSlash(true),
		metrics:  metrics,
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

// Router returns the underlying mux router.
func (s *Server) Router() *mux.Router { return s.router }

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.listExtensions).Methods(http.MethodGet)
	s.router.HandleFunc("/test/", s.testPage).Methods(http.MethodGet)
	s.router.Handle("/metrics/", s.metricsEndpoint()).Methods(http.MethodGet)
	s.router.HandleFunc("/preview/", s.handlePreview).Methods(http.MethodGet, http.MethodPost)

	if s.health != nil {
		s.router.HandleFunc("/health", s.health.Readiness).Methods(http.MethodGet)
		s.router.HandleFunc("/health/live", s.health.Liveness).Methods(http.MethodGet)
		s.router.HandleFunc("/health/ready", s.health.Readiness).Methods(http.MethodGet)
	}
}

// metricsEndpoint gates the Prometheus scrape handler behind PVS_METRICS.
// The registry always exists so internal collection keeps working; only the
// endpoint is hidden.
func (s *Server) metricsEndpoint() http.Handler {
	if s.promReg == nil || !s.cfg.Observability.MetricsEnabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteNotFound(w, "metrics are not enabled")
		})
	}
	return observability.MetricsHandler(s.promReg)
}

// MountPlugin registers a path-resolver plugin on its declared route.
func (s *Server) MountPlugin(p plugins.Plugin) {
	s.router.HandleFunc(p.Pattern(), s.pluginPreview(p)).Methods(p.Methods()...)
	s.logger.WithField("plugin", p.Manifest().Name).
		Infof("mounted plugin route %s", p.Pattern())
}

// Handler assembles the middleware stack around the router. Request IDs are
// assigned outermost so every later layer logs them.
func (s *Server) Handler() http.Handler {
	mw := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger, s.cfg.Observability.HTTPLogLevel),
		httputil.RecoveryMiddleware(s.logger),
		httputil.MaxBytesMiddleware(s.cfg.Source.MaxUpload),
	}
	if s.metrics != nil {
		mw = append(mw, observability.HTTPMetricsMiddleware(s.metrics))
	}

	h := httputil.Chain(mw...)(s.router)
	if s.cfg.Observability.OTelEnabled {
		h = otelhttp.NewHandler(h, "pvs")
	}
	return h
}
