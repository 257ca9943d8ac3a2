package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"personalos/internal/core"
	"personalos/internal/log"
	"personalos/internal/media"
	"personalos/internal/metrics"
	"personalos/internal/middleware/ratelimit"
	"personalos/internal/middleware/security"
	"personalos/internal/middleware/trace"
	"personalos/internal/ports"
)

// Collaborators the handlers depend on. Nil business or content sources
// mean the integration is not configured.
type (
	BusinessMetricsSource interface {
		Metrics(ctx context.Context) (core.BusinessMetrics, error)
	}

	MediaLookup interface {
		BookCover(ctx context.Context, q media.BookQuery) (media.BookCover, error)
		PodcastArtwork(ctx context.Context, name string) (media.PodcastArtwork, error)
		NewsletterCover(ctx context.Context, title string) (media.NewsletterCover, error)
	}

	ContentSource interface {
		ContentPipeline(ctx context.Context) ([]core.ContentItem, error)
	}

	JournalReader interface {
		ports.EntryReader
		DaysSinceUpdate(now time.Time) (int, bool)
	}
)

// Dependencies wires the server to the rest of the application.
type Dependencies struct {
	Business BusinessMetricsSource
	History  ports.SnapshotStore
	Media    MediaLookup
	Content  ContentSource
	Journal  JournalReader
	Metrics  *metrics.Metrics
	Logger   *log.Logger
}

// Options tunes the middleware.
type Options struct {
	RateLimitPerMinute int
	// TrustedProxies are extra CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string
	// MediaMaxAge is the Cache-Control max-age of found artwork.
	MediaMaxAge time.Duration
}

func DefaultOptions() Options {
	return Options{
		RateLimitPerMinute: ratelimit.DefaultConfig().RequestsPerMinute,
		MediaMaxAge:        time.Hour,
	}
}

// Server is the dashboard's JSON API.
type Server struct {
	http.Server

	business BusinessMetricsSource
	history  ports.SnapshotStore
	media    MediaLookup
	content  ContentSource
	journal  JournalReader
	metrics  *metrics.Metrics
	logger   *log.Logger

	rateLimiter     *ratelimit.Limiter
	detector        *security.Detector
	traceMiddleware *trace.Middleware

	started      time.Time
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, deps Dependencies, opts Options) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		business:    deps.Business,
		history:     deps.History,
		media:       deps.Media,
		content:     deps.Content,
		journal:     deps.Journal,
		metrics:     deps.Metrics,
		logger:      logger,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:    security.NewDetector(),
		started:     time.Now(),
		now:         time.Now,
	}

	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	cacheMedia := security.CacheFor(int(opts.MediaMaxAge.Seconds()))

	s.route(mux, "GET /api/business/stripe", http.HandlerFunc(s.handleBusinessMetrics))
	s.route(mux, "GET /api/business/history", http.HandlerFunc(s.handleBusinessHistory))
	s.route(mux, "GET /api/media/book-cover", cacheMedia(http.HandlerFunc(s.handleBookCover)))
	s.route(mux, "GET /api/media/podcast-artwork", cacheMedia(http.HandlerFunc(s.handlePodcastArtwork)))
	s.route(mux, "GET /api/media/newsletter-cover", cacheMedia(http.HandlerFunc(s.handleNewsletterCover)))
	s.route(mux, "GET /api/content/notion", http.HandlerFunc(s.handleContentPipeline))
	s.route(mux, "GET /api/entries", http.HandlerFunc(s.handleEntryIndex))
	s.route(mux, "GET /api/entries/{date}", http.HandlerFunc(s.handleEntry))
	s.route(mux, "GET /api/entries/{date}/adjacent", http.HandlerFunc(s.handleAdjacentEntries))
	s.route(mux, "GET /healthz", http.HandlerFunc(s.handleHealth))
	s.route(mux, "GET /readyz", http.HandlerFunc(s.handleReady))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	s.route(mux, "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Not found").Write(w)
	}))

	// Outermost first: trace, headers, screening, rate limit.
	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	}, "/api/")(handler)
	handler = s.detector.Middleware(logger)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	s.Handler = handler

	return s
}

// route registers h under pattern, instrumented with the pattern as its
// route label.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.Handler) {
	if s.metrics != nil {
		h = s.metrics.Instrument(pattern, h)
	}
	mux.Handle(pattern, h)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
