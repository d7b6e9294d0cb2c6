package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestMetricsRecordHTTPRequest(t *testing.T) {
	m := NewMetrics()
	m.RecordHTTPRequest("GET", "/rag/queries/{id}", 200, 0)
	require.NotNil(t, m.Handler())
}

func TestMetricsHandlerServesExposition(t *testing.T) {
	m := NewMetrics()
	m.RecordHTTPRequest("GET", "/rag/queries/{id}", 200, 0)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ragcore_http_requests_total")
}

func TestHTTPMiddlewareRecordsRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rag/queries/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	m := NewMetrics()
	wrapped := HTTPMiddleware(mux, m, noop.NewTracerProvider().Tracer("test"))(mux)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rag/queries/abc123", nil)
	wrapped.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	metricsRec := httptest.NewRecorder()
	m.Handler().ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, metricsRec.Body.String(), `route="GET /rag/queries/{id}"`)
}

func TestInitTracerDisabledReturnsNoop(t *testing.T) {
	tp, shutdown, err := InitTracer(TracerConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, tp)
	require.NoError(t, shutdown(nil))
}
