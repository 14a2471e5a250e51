package observability

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(metrics, "pots.get")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"pot not found"}`))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pots/abc", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pots/def", nil))

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "pots.get", "404")))
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	HTTPMetricsMiddleware(nil, "x")(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestRecordDBStats(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	metrics.RecordDBStats(sql.DBStats{InUse: 4, Idle: 2, WaitCount: 7})

	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.DBConnectionsActive))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.DBConnectionsIdle))
	assert.Equal(t, float64(7), testutil.ToFloat64(metrics.DBConnectionsWait))
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.BlobDeletesTotal.WithLabelValues("ok").Add(3)

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `potkeeper_blob_deletes_total{result="ok"} 3`)
}
