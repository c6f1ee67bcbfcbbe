package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/geoint/internal/gateway"
)

func TestObserveUpstream(t *testing.T) {
	m := New()
	m.ObserveUpstream("detection", gateway.KindSuccess, 20*time.Millisecond)
	m.ObserveUpstream("detection", gateway.KindTimeout, time.Second)
	m.ObserveUpstream("detection", gateway.KindTimeout, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamCalls.WithLabelValues("detection", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.upstreamCalls.WithLabelValues("detection", "timeout")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.upstreamDuration))
}

func TestObserveRetrieval(t *testing.T) {
	m := New()
	m.ObserveRetrieval(true, nil)
	m.ObserveRetrieval(false, nil)
	m.ObserveRetrieval(false, errors.New("backend down"))

	for _, result := range []string{"hit", "empty", "error"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.retrievals.WithLabelValues(result)), result)
	}
}

func TestCountersAndGauge(t *testing.T) {
	m := New()
	m.AddIngestedChunks(3)
	m.AddIngestedChunks(0)
	m.SetDetections(7)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ingestedChunks))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.detections))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveUpstream("x", gateway.KindSuccess, 0)
	m.ObserveRetrieval(true, nil)
	m.AddIngestedChunks(1)
	m.SetDetections(1)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, m.Middleware(h))
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/reports/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/abc", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/reports/{id}", "404")))

	srv := httptest.NewServer(r)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "geoint_http_requests_total")
	assert.Contains(t, string(body), "go_goroutines")
}
