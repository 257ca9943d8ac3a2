package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personalos/internal/core"
	"personalos/internal/history/memory"
	"personalos/internal/journal"
	"personalos/internal/log"
	"personalos/internal/media"
	"personalos/internal/metrics"
)

type fakeBusiness struct {
	m   core.BusinessMetrics
	err error
}

func (f fakeBusiness) Metrics(context.Context) (core.BusinessMetrics, error) { return f.m, f.err }

type fakeMedia struct {
	book       media.BookCover
	podcast    media.PodcastArtwork
	newsletter media.NewsletterCover
	err        error
	lastBook   media.BookQuery
}

func (f *fakeMedia) BookCover(_ context.Context, q media.BookQuery) (media.BookCover, error) {
	f.lastBook = q
	return f.book, f.err
}

func (f *fakeMedia) PodcastArtwork(context.Context, string) (media.PodcastArtwork, error) {
	return f.podcast, f.err
}

func (f *fakeMedia) NewsletterCover(context.Context, string) (media.NewsletterCover, error) {
	return f.newsletter, f.err
}

type fakeContent struct {
	items []core.ContentItem
	err   error
}

func (f fakeContent) ContentPipeline(context.Context) ([]core.ContentItem, error) {
	return f.items, f.err
}

type brokenStore struct{ *memory.Store }

func (brokenStore) Ping(context.Context) error { return errors.New("database is locked") }

var testNow = time.Date(2025, 5, 27, 22, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, deps Dependencies, opts Options) *Server {
	t.Helper()
	if deps.Journal == nil {
		j, err := journal.Open("")
		require.NoError(t, err)
		deps.Journal = j
	}
	if deps.Logger == nil {
		deps.Logger = log.New(log.Config{Output: io.Discard})
	}
	if opts.RateLimitPerMinute == 0 {
		opts.RateLimitPerMinute = 1000
	}
	srv := NewServer(":0", deps, opts)
	srv.now = func() time.Time { return testNow }
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func get(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), "body: %s", rr.Body.String())
	}
	return rr, body
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Dependencies{History: memory.New(10)}, Options{})

	rr, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body["status"])

	rr, body = get(t, srv, "/readyz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ready", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["history"])
	assert.Equal(t, "not_configured", checks["stripe"])
	assert.Equal(t, "not_configured", checks["notion"])
	assert.Equal(t, float64(3), checks["journal"].(map[string]any)["entries"])
}

func TestReady_HistoryDown(t *testing.T) {
	srv := newTestServer(t, Dependencies{History: brokenStore{memory.New(1)}}, Options{})

	rr, body := get(t, srv, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "not_ready", body["status"])
	assert.Contains(t, body["checks"].(map[string]any)["history"], "database is locked")
}

func TestBusinessMetrics(t *testing.T) {
	m := core.BusinessMetrics{
		MRR:                 10100,
		ExactMRR:            decimal.NewFromInt(10100),
		MonthlyRevenue:      76,
		ActiveSubscriptions: 2,
		RecentCharges:       3,
		LastUpdated:         time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
		Note:                core.MRRNote,
	}
	srv := newTestServer(t, Dependencies{Business: fakeBusiness{m: m}}, Options{})

	rr, body := get(t, srv, "/api/business/stripe")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(10100), body["mrr"])
	assert.Equal(t, float64(76), body["monthlyRevenue"])
	assert.Equal(t, float64(2), body["activeSubscriptions"])
	assert.Equal(t, float64(3), body["recentCharges"])
	assert.Equal(t, "2024-06-15T12:00:00.000Z", body["lastUpdated"])
	assert.Equal(t, core.MRRNote, body["note"])
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
}

func TestBusinessMetrics_Errors(t *testing.T) {
	fetchErrs := core.FetchErrors{
		{Resource: "subscriptions:past_due", Err: errors.New("timeout")},
		{Resource: "charges", Err: errors.New("500")},
	}

	tests := []struct {
		name   string
		deps   Dependencies
		status int
		errMsg string
		failed []any
	}{
		{"not configured", Dependencies{}, http.StatusServiceUnavailable, "Stripe is not configured", nil},
		{"configured but unusable", Dependencies{Business: fakeBusiness{err: core.ErrNotConfigured}}, http.StatusServiceUnavailable, "Stripe is not configured", nil},
		{"upstream failures", Dependencies{Business: fakeBusiness{err: fetchErrs}}, http.StatusInternalServerError, "Failed to fetch Stripe data", []any{"subscriptions:past_due", "charges"}},
		{"invalid input", Dependencies{Business: fakeBusiness{err: &core.InvalidInputError{Field: "quantity"}}}, http.StatusInternalServerError, "Failed to fetch Stripe data", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.deps, Options{})
			rr, body := get(t, srv, "/api/business/stripe")
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.errMsg, body["error"])
			if tt.failed == nil {
				assert.NotContains(t, body, "failed")
			} else {
				assert.Equal(t, tt.failed, body["failed"])
			}
		})
	}
}

func TestBusinessHistory(t *testing.T) {
	store := memory.New(100)
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		_, err := store.SaveSnapshot(context.Background(), core.MetricsSnapshot{
			TakenAt: base.Add(time.Duration(i) * time.Hour),
			MRR:     int64(i),
		})
		require.NoError(t, err)
	}
	srv := newTestServer(t, Dependencies{History: store}, Options{})

	rr, body := get(t, srv, "/api/business/history")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(30), body["count"])
	snaps := body["snapshots"].([]any)
	assert.Equal(t, float64(39), snaps[0].(map[string]any)["mrr"], "newest first")

	_, body = get(t, srv, "/api/business/history?limit=5")
	assert.Equal(t, float64(5), body["count"])

	_, body = get(t, srv, "/api/business/history?limit=9999")
	assert.Equal(t, float64(40), body["count"])
}

func TestBusinessHistory_Unavailable(t *testing.T) {
	srv := newTestServer(t, Dependencies{}, Options{})
	rr, _ := get(t, srv, "/api/business/history")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestBookCover(t *testing.T) {
	fm := &fakeMedia{book: media.BookCover{CoverURL: "https://covers.example/x.jpg", Source: "found"}}
	srv := newTestServer(t, Dependencies{Media: fm}, Options{MediaMaxAge: time.Hour})

	rr, body := get(t, srv, "/api/media/book-cover?title=Dune&author=Frank+Herbert&isbn=978-0441013593")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://covers.example/x.jpg", body["coverUrl"])
	assert.Equal(t, "found", body["source"])
	assert.Equal(t, media.BookQuery{Title: "Dune", Author: "Frank Herbert", ISBN: "978-0441013593"}, fm.lastBook)
	assert.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))

	rr, body = get(t, srv, "/api/media/book-cover?author=Nobody")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Book title is required", body["error"])
}

func TestMediaLookupErrors(t *testing.T) {
	upstream := core.FetchErrors{{Resource: "podcast_artwork:itunes", Err: errors.New("503")}}

	tests := []struct {
		name   string
		path   string
		err    error
		status int
		msg    string
	}{
		{"book not found", "/api/media/book-cover?title=x", core.ErrNotFound, http.StatusNotFound, "Book cover not found"},
		{"book failure", "/api/media/book-cover?title=x", errors.New("boom"), http.StatusInternalServerError, "Failed to fetch book cover"},
		{"podcast missing name", "/api/media/podcast-artwork", nil, http.StatusBadRequest, "Podcast name is required"},
		{"podcast not found", "/api/media/podcast-artwork?name=x", core.ErrNotFound, http.StatusNotFound, "Podcast not found"},
		{"podcast failure", "/api/media/podcast-artwork?name=x", upstream, http.StatusInternalServerError, "Failed to fetch podcast artwork"},
		{"newsletter missing title", "/api/media/newsletter-cover?title=%20", nil, http.StatusBadRequest, "Title parameter required"},
		{"newsletter failure", "/api/media/newsletter-cover?title=x", errors.New("boom"), http.StatusInternalServerError, "Failed to fetch newsletter cover"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Dependencies{Media: &fakeMedia{err: tt.err}}, Options{MediaMaxAge: time.Hour})
			rr, body := get(t, srv, tt.path)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.msg, body["error"])
			assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"), "errors must not be cached")
		})
	}
}

func TestPodcastAndNewsletter(t *testing.T) {
	fm := &fakeMedia{
		podcast:    media.PodcastArtwork{ArtworkURL: "https://art/600.jpg", PodcastName: "Acquired", ArtistName: "Ben & David"},
		newsletter: media.NewsletterCover{Title: "AI Supremacy", ImageURL: "https://img", Source: "known-substack", URL: "https://substack.com/@aisupremacy"},
	}
	srv := newTestServer(t, Dependencies{Media: fm}, Options{})

	rr, body := get(t, srv, "/api/media/podcast-artwork?name=Acquired")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://art/600.jpg", body["artworkUrl"])
	assert.Equal(t, "Acquired", body["podcastName"])

	rr, body = get(t, srv, "/api/media/newsletter-cover?title=AI+Supremacy")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "known-substack", body["source"])
	assert.Equal(t, "https://img", body["imageUrl"])
}

func TestContentPipeline(t *testing.T) {
	deadline := "2025-06-01"
	items := []core.ContentItem{{
		Title:    "Pricing teardown",
		Status:   "In Progress",
		Deadline: &deadline,
		DistributionChecklist: []core.ChecklistItem{
			{Item: "LinkedIn Article", Done: true},
		},
	}}

	srv := newTestServer(t, Dependencies{Content: fakeContent{items: items}}, Options{})
	rr, body := get(t, srv, "/api/content/notion")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), body["totalItems"])
	assert.Equal(t, "2025-05-27T22:00:00.000Z", body["lastUpdated"])
	first := body["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "Pricing teardown", first["title"])
	assert.Equal(t, "2025-06-01", first["deadline"])

	srv = newTestServer(t, Dependencies{Content: fakeContent{}}, Options{})
	_, body = get(t, srv, "/api/content/notion")
	assert.Equal(t, []any{}, body["content"])
}

func TestContentPipeline_Errors(t *testing.T) {
	srv := newTestServer(t, Dependencies{}, Options{})
	rr, body := get(t, srv, "/api/content/notion")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Missing Notion credentials", body["error"])

	srv = newTestServer(t, Dependencies{Content: fakeContent{err: errors.New("401")}}, Options{})
	rr, body = get(t, srv, "/api/content/notion")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to fetch Notion data", body["error"])
}

func TestEntries(t *testing.T) {
	srv := newTestServer(t, Dependencies{}, Options{})

	rr, body := get(t, srv, "/api/entries")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{"2025-05-23", "2025-05-24", "2025-05-25"}, body["dates"])
	assert.Equal(t, "2025-05-25T21:40:00Z", body["lastUpdated"])
	assert.Equal(t, float64(2), body["daysSinceUpdate"])
	assert.Equal(t, journal.FreshnessStale, body["freshness"])

	rr, body = get(t, srv, "/api/entries/2025-05-24")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "2025-05-24", body["date"])

	rr, body = get(t, srv, "/api/entries/2025-01-01")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "No data logged for this date", body["error"])

	rr, body = get(t, srv, "/api/entries/yesterday")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid date format. Use YYYY-MM-DD", body["error"])
}

func TestAdjacentEntries(t *testing.T) {
	srv := newTestServer(t, Dependencies{}, Options{})

	tests := []struct {
		date       string
		prev, next any
	}{
		{"2025-05-24", "2025-05-23", "2025-05-25"},
		{"2025-05-23", nil, "2025-05-24"},
		{"2025-05-25", "2025-05-24", nil},
		{"2025-06-10", "2025-05-25", nil},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			rr, body := get(t, srv, "/api/entries/"+tt.date+"/adjacent")
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.date, body["date"])
			assert.Equal(t, tt.prev, body["previous"])
			assert.Equal(t, tt.next, body["next"])
		})
	}
}

func TestUnknownRouteIsJSON(t *testing.T) {
	srv := newTestServer(t, Dependencies{}, Options{})
	rr, body := get(t, srv, "/nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Not found", body["error"])
}

func TestMiddlewareChain(t *testing.T) {
	srv := newTestServer(t, Dependencies{}, Options{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		rr, _ := get(t, srv, "/api/entries")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	}

	rr, body := get(t, srv, "/api/entries")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Equal(t, "Rate limit exceeded. Please try again later.", body["error"])

	rr, _ = get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code, "health checks are not rate limited")
}

func TestPrometheusInstrumentation(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry(), false)
	srv := newTestServer(t, Dependencies{Metrics: m}, Options{})

	get(t, srv, "/api/entries")
	get(t, srv, "/api/entries/2025-05-24")
	get(t, srv, "/api/entries/2025-05-23")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "GET /api/entries", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "GET /api/entries/{date}", "200")))

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "personalos_http_requests_total")
}
