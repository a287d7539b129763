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
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	PrincipalResolutionsTotal *prometheus.CounterVec
	KeyVerificationsTotal     *prometheus.CounterVec
	StoreContextsTotal        *prometheus.CounterVec
	AccessDeniedTotal         *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Business metrics
	APIKeysActive prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crewdeck_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crewdeck_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Authorization metrics
		PrincipalResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crewdeck_principal_resolutions_total",
				Help: "Total number of principal resolutions",
			},
			[]string{"credential", "role", "outcome"},
		),
		KeyVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crewdeck_api_key_verifications_total",
				Help: "Total number of API key secret verifications",
			},
			[]string{"outcome"},
		),
		StoreContextsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crewdeck_store_contexts_total",
				Help: "Total number of store context resolutions",
			},
			[]string{"role", "view_mode"},
		),
		AccessDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crewdeck_access_denied_total",
				Help: "Total number of denied authorization decisions by error kind",
			},
			[]string{"kind"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crewdeck_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crewdeck_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		// Business metrics
		APIKeysActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crewdeck_api_keys_active",
				Help: "Number of active API keys",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PrincipalResolutionsTotal,
		m.KeyVerificationsTotal,
		m.StoreContextsTotal,
		m.AccessDeniedTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.APIKeysActive,
	)

	return m
}

// responseWriter captures the status code for metrics
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware records request counts and latency
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			metrics.HTTPRequestsTotal.WithLabelValues(
				r.Method, r.URL.Path, strconv.Itoa(rw.statusCode),
			).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(
				r.Method, r.URL.Path,
			).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint mounts the Prometheus scrape handler
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
