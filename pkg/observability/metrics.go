package observability

import (
	"database/sql"
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
	HTTPResponseSize    *prometheus.HistogramVec

	// Lifecycle metrics
	BlobDeletesTotal       *prometheus.CounterVec
	QuotaRejectionsTotal   *prometheus.CounterVec
	AdminBatchItemsTotal   *prometheus.CounterVec
	BackgroundTasksTotal   *prometheus.CounterVec
	BackgroundTasksRunning prometheus.Gauge

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
	DBConnectionsWait   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "potkeeper_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "potkeeper_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "potkeeper_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		BlobDeletesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "potkeeper_blob_deletes_total",
				Help: "Blob deletions requested by cleanup tasks, by result",
			},
			[]string{"result"},
		),
		QuotaRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "potkeeper_quota_rejections_total",
				Help: "Pot creations rejected by quota, by account tier",
			},
			[]string{"tier"},
		),
		AdminBatchItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "potkeeper_admin_batch_items_total",
				Help: "Items processed by admin batch operations",
			},
			[]string{"operation", "result"},
		),
		BackgroundTasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "potkeeper_background_tasks_total",
				Help: "Background tasks finished, by task and result",
			},
			[]string{"task", "result"},
		),
		BackgroundTasksRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "potkeeper_background_tasks_running",
				Help: "Background tasks currently in flight",
			},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "potkeeper_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "potkeeper_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "potkeeper_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "potkeeper_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWait: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "potkeeper_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.BlobDeletesTotal,
		m.QuotaRejectionsTotal,
		m.AdminBatchItemsTotal,
		m.BackgroundTasksTotal,
		m.BackgroundTasksRunning,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWait,
	)

	return m
}

// RecordDBStats copies connection pool statistics into the gauges.
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWait.Set(float64(stats.WaitCount))
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

// HTTPMetricsMiddleware instruments one route. The route name is used as the
// label so path parameters never inflate cardinality.
func HTTPMetricsMiddleware(metrics *Metrics, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
