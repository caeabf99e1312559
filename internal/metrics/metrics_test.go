package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistered(t *testing.T) {
	RunsTotal.WithLabelValues("success").Inc()
	RunDuration.WithLabelValues("success").Observe(0.1)
	RequestsTotal.WithLabelValues("GET", "/x", "2xx").Inc()
	RequestDuration.WithLabelValues("GET", "/x").Observe(0.1)
	QueueWait.Observe(0)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	expected := map[string]bool{
		"runbroker_http_requests_total":             false,
		"runbroker_http_request_duration_seconds":   false,
		"runbroker_runs_total":                      false,
		"runbroker_run_duration_seconds":            false,
		"runbroker_runs_in_flight":                  false,
		"runbroker_admission_wait_seconds":          false,
		"runbroker_admission_rejected_total":        false,
		"runbroker_artifacts_live":                  false,
		"runbroker_artifact_cleanup_failures_total": false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		assert.True(t, found, "metric %s not registered", name)
	}
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/api/items/{id}", "4xx"))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/items/42", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	after := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/api/items/{id}", "4xx"))
	assert.Equal(t, before+1, after)

	var m dto.Metric
	require.NoError(t, RequestDuration.WithLabelValues("GET", "/api/items/{id}").(prometheus.Histogram).Write(&m))
	assert.GreaterOrEqual(t, m.GetHistogram().GetSampleCount(), uint64(1))
}

func TestMiddleware_ReusesWrappedWriter(t *testing.T) {
	rr := httptest.NewRecorder()
	outer := chimiddleware.NewWrapResponseWriter(rr, 1)

	var seen http.ResponseWriter
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w
		w.WriteHeader(http.StatusNoContent)
	}))
	h.ServeHTTP(outer, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.True(t, seen == http.ResponseWriter(outer), "handler should receive the outer wrapper, not a second one")
	assert.Equal(t, http.StatusNoContent, outer.Status())
}

func TestMiddleware_ImplicitOK(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "unmatched", "2xx"))

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/silent", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "unmatched", "2xx")))
}
