// Package metrics exposes the dashboard's Prometheus instruments.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Upstream calls (Stripe, Notion, media sources)
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec

	// Media cache
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Business figures from the last successful refresh
	MRR                 prometheus.Gauge
	MonthlyRevenue      prometheus.Gauge
	ActiveSubscriptions prometheus.Gauge
	LastRefresh         prometheus.Gauge

	SnapshotsStoredTotal *prometheus.CounterVec
}

// New creates and registers all metrics on a fresh registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry(), true)
}

// NewWithRegistry registers on reg. Runtime collectors are optional so
// tests can assert on an otherwise empty registry.
func NewWithRegistry(reg *prometheus.Registry, runtime bool) *Metrics {
	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "personalos_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "personalos_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		UpstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "personalos_upstream_requests_total",
				Help: "Calls to third-party APIs by resource and outcome",
			},
			[]string{"resource", "outcome"},
		),
		UpstreamRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "personalos_upstream_request_duration_seconds",
				Help:    "Duration of third-party API calls in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"resource"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "personalos_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "personalos_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),
		MRR: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "personalos_mrr",
			Help: "Monthly recurring revenue from the last successful refresh, major units",
		}),
		MonthlyRevenue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "personalos_monthly_revenue",
			Help: "Paid charges this calendar month from the last successful refresh, major units",
		}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "personalos_active_subscriptions",
			Help: "Subscriptions counted towards MRR at the last refresh",
		}),
		LastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "personalos_metrics_last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful business metrics refresh",
		}),
		SnapshotsStoredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "personalos_snapshots_stored_total",
				Help: "Metrics snapshots persisted, by path",
			},
			[]string{"via"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.UpstreamRequestsTotal,
		m.UpstreamRequestDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.MRR,
		m.MonthlyRevenue,
		m.ActiveSubscriptions,
		m.LastRefresh,
		m.SnapshotsStoredTotal,
	)
	if runtime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return m
}

// Registry returns the registry the metrics were registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CacheHit implements cache.Observer.
func (m *Metrics) CacheHit(name string) { m.CacheHitsTotal.WithLabelValues(name).Inc() }

// CacheMiss implements cache.Observer.
func (m *Metrics) CacheMiss(name string) { m.CacheMissesTotal.WithLabelValues(name).Inc() }

// ObserveUpstream records one third-party call.
func (m *Metrics) ObserveUpstream(resource string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.UpstreamRequestsTotal.WithLabelValues(resource, outcome).Inc()
	m.UpstreamRequestDuration.WithLabelValues(resource).Observe(time.Since(start).Seconds())
}

// SetBusiness records the figures of a successful refresh.
func (m *Metrics) SetBusiness(mrr, monthlyRevenue int64, activeSubs int, at time.Time) {
	m.MRR.Set(float64(mrr))
	m.MonthlyRevenue.Set(float64(monthlyRevenue))
	m.ActiveSubscriptions.Set(float64(activeSubs))
	m.LastRefresh.Set(float64(at.Unix()))
}

// SnapshotStored counts a persisted snapshot; via is "amqp" or "direct".
func (m *Metrics) SnapshotStored(via string) {
	m.SnapshotsStoredTotal.WithLabelValues(via).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Instrument wraps a handler registered under route. The route pattern is
// used as the label so path parameters never blow up cardinality.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
