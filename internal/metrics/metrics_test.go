package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry(), false)
}

func TestInstrument(t *testing.T) {
	m := newTestMetrics()
	h := m.Instrument("GET /api/entries/{date}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	for _, date := range []string{"2024-01-01", "2024-01-02"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/entries/"+date, nil))
	}

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "GET /api/entries/{date}", "404"))
	assert.Equal(t, float64(2), got)
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestsTotal), "one series per route, not per path")
}

func TestObserveUpstream(t *testing.T) {
	m := newTestMetrics()
	start := time.Now()
	m.ObserveUpstream("charges", start, nil)
	m.ObserveUpstream("charges", start, errors.New("boom"))
	m.ObserveUpstream("charges", start, errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.UpstreamRequestsTotal.WithLabelValues("charges", "success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.UpstreamRequestsTotal.WithLabelValues("charges", "error")))
}

func TestCacheObserver(t *testing.T) {
	m := newTestMetrics()
	m.CacheHit("book-cover")
	m.CacheMiss("book-cover")
	m.CacheMiss("book-cover")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("book-cover")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("book-cover")))
}

func TestSetBusinessAndHandler(t *testing.T) {
	m := newTestMetrics()
	m.SetBusiness(10100, 76, 2, time.Unix(1700000000, 0))
	m.SnapshotStored("direct")

	assert.Equal(t, float64(10100), testutil.ToFloat64(m.MRR))
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(m.LastRefresh))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "personalos_mrr 10100"), body)
	assert.True(t, strings.Contains(body, `personalos_snapshots_stored_total{via="direct"} 1`), body)
}
