package media

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/books/v1"
	"google.golang.org/api/option"

	"personalos/internal/cache"
)

// Endpoints lists the base URLs of every source. Tests point them at
// local servers.
type Endpoints struct {
	OpenLibraryCovers string
	GoogleBooks       string
	ITunes            string
	SubstackAPI       string
	// SubstackSite returns the home page URL of a publication subdomain.
	SubstackSite func(subdomain string) string
	// KnownNewsletters maps exact newsletter titles to their home page.
	KnownNewsletters map[string]string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		OpenLibraryCovers: "https://covers.openlibrary.org",
		GoogleBooks:       "https://books.googleapis.com/",
		ITunes:            "https://itunes.apple.com",
		SubstackAPI:       "https://substack.com",
		SubstackSite: func(subdomain string) string {
			return "https://" + subdomain + ".substack.com"
		},
		KnownNewsletters: map[string]string{
			"Marketing Accountability Council": "https://marketingaccountability.substack.com/",
			"AI Supremacy":                     "https://substack.com/@aisupremacy",
		},
	}
}

// Config holds media lookup settings.
type Config struct {
	// Timeout bounds each request to a source (default: 5s)
	Timeout time.Duration

	// CacheTTL is how long a found result is reused (default: 6h)
	CacheTTL time.Duration

	// CacheSize caps cached results per lookup kind (default: 256)
	CacheSize int

	HTTPClient *http.Client
	Endpoints  Endpoints

	// Observer is told about cache hits and misses.
	Observer cache.Observer
}

func DefaultConfig() Config {
	return Config{
		Timeout:   5 * time.Second,
		CacheTTL:  6 * time.Hour,
		CacheSize: 256,
		Endpoints: DefaultEndpoints(),
	}
}

// Service answers the three artwork lookups.
type Service struct {
	client    *http.Client
	endpoints Endpoints
	gbooks    *books.Service

	bookChain       *Chain[BookQuery, string]
	podcastChain    *Chain[string, PodcastArtwork]
	newsletterChain *Chain[string, NewsletterCover]

	caches map[string]cache.Cleaner
}

func NewService(ctx context.Context, config Config) (*Service, error) {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	gbooks, err := books.NewService(ctx,
		option.WithHTTPClient(client),
		option.WithoutAuthentication(),
		option.WithEndpoint(config.Endpoints.GoogleBooks),
		option.WithUserAgent(apiUserAgent),
	)
	if err != nil {
		return nil, fmt.Errorf("create google books client: %w", err)
	}

	s := &Service{
		client:    client,
		endpoints: config.Endpoints,
		gbooks:    gbooks,
		caches:    make(map[string]cache.Cleaner),
	}

	opts := func(name string) []cache.Option {
		o := []cache.Option{cache.WithName(name)}
		if config.Observer != nil {
			o = append(o, cache.WithObserver(config.Observer))
		}
		return o
	}

	bookCache := cache.NewLRUCache[Found[string]](config.CacheSize, config.CacheTTL, opts(KindBookCover)...)
	podcastCache := cache.NewLRUCache[Found[PodcastArtwork]](config.CacheSize, config.CacheTTL, opts(KindPodcastArtwork)...)
	newsletterCache := cache.NewLRUCache[Found[NewsletterCover]](config.CacheSize, config.CacheTTL, opts(KindNewsletterCover)...)
	s.caches[KindBookCover] = bookCache
	s.caches[KindPodcastArtwork] = podcastCache
	s.caches[KindNewsletterCover] = newsletterCache

	t := config.Timeout
	s.bookChain = NewChain(KindBookCover, BookQuery.key, bookCache,
		withTimeout(t, Strategy[BookQuery, string]{Name: "openlibrary-isbn", Lookup: s.openLibraryByISBN}),
		withTimeout(t, Strategy[BookQuery, string]{Name: "openlibrary-title", Lookup: s.openLibraryByTitle}),
		withTimeout(t, Strategy[BookQuery, string]{Name: "google-books", Lookup: s.googleBooks}),
	)
	s.podcastChain = NewChain(KindPodcastArtwork, normalizeKey, podcastCache,
		withTimeout(t, Strategy[string, PodcastArtwork]{Name: "itunes", Lookup: s.iTunes}),
	)
	// Keyed on the exact title: results echo the query text back.
	s.newsletterChain = NewChain(KindNewsletterCover, strings.TrimSpace, newsletterCache,
		withTimeout(t, Strategy[string, NewsletterCover]{Name: SourceKnownSubstack, Lookup: s.knownNewsletter}),
		// Each subdomain guess gets its own timeout inside the strategy.
		Strategy[string, NewsletterCover]{Name: SourceSubstack, Lookup: s.substackSubdomain(t)},
		withTimeout(t, Strategy[string, NewsletterCover]{Name: SourceSubstackSearch, Lookup: s.substackSearch}),
		Strategy[string, NewsletterCover]{Name: SourcePlaceholder, Lookup: placeholderNewsletter, Fallback: true},
	)

	return s, nil
}

// Caches returns the result caches by name, for periodic sweeping.
func (s *Service) Caches() map[string]cache.Cleaner {
	return s.caches
}

func withTimeout[Q, T any](d time.Duration, s Strategy[Q, T]) Strategy[Q, T] {
	lookup := s.Lookup
	s.Lookup = func(ctx context.Context, q Q) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return lookup(ctx, q)
	}
	return s
}
