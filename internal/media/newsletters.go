package media

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"

	"personalos/internal/core"
)

const KindNewsletterCover = "newsletter_cover"

// Newsletter sources, reported in the response.
const (
	SourceKnownSubstack  = "known-substack"
	SourceSubstack       = "substack"
	SourceSubstackSearch = "substack-search"
	SourcePlaceholder    = "placeholder"
)

// NewsletterCover is the response of a newsletter lookup.
type NewsletterCover struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	Source      string `json:"source"`
	URL         string `json:"url"`
}

// NewsletterCover finds a logo for a newsletter. It always succeeds with
// at least a placeholder unless ctx is done.
func (s *Service) NewsletterCover(ctx context.Context, title string) (NewsletterCover, error) {
	f, err := s.newsletterChain.Lookup(ctx, title)
	if err != nil {
		return NewsletterCover{}, err
	}
	return f.Value, nil
}

func (s *Service) knownNewsletter(ctx context.Context, title string) (NewsletterCover, error) {
	for name, site := range s.endpoints.KnownNewsletters {
		if strings.EqualFold(name, strings.TrimSpace(title)) {
			return s.scrapeNewsletter(ctx, title, site, SourceKnownSubstack)
		}
	}
	return NewsletterCover{}, core.ErrNotFound
}

// substackSubdomain guesses publication subdomains from the title: the
// whole title hyphenated, then its first word.
func (s *Service) substackSubdomain(timeout time.Duration) func(context.Context, string) (NewsletterCover, error) {
	return func(ctx context.Context, title string) (NewsletterCover, error) {
		for _, sub := range subdomainGuesses(title) {
			site := s.endpoints.SubstackSite(sub)

			gctx, cancel := context.WithTimeout(ctx, timeout)
			nc, err := s.scrapeNewsletter(gctx, title, site, SourceSubstack)
			cancel()
			if err == nil {
				return nc, nil
			}
			if ctx.Err() != nil {
				return NewsletterCover{}, ctx.Err()
			}
			// Most guesses point at publications that don't exist.
			slog.DebugContext(ctx, "Substack subdomain guess failed", "url", site, "error", err)
		}
		return NewsletterCover{}, core.ErrNotFound
	}
}

func subdomainGuesses(title string) []string {
	hyphenated := strings.ToLower(multipleSpace.ReplaceAllString(strings.TrimSpace(title), "-"))
	candidates := []string{hyphenated}
	if fields := strings.Fields(title); len(fields) > 0 {
		candidates = append(candidates, strings.ToLower(fields[0]))
	}

	seen := make(map[string]bool)
	var out []string
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func (s *Service) scrapeNewsletter(ctx context.Context, title, site, source string) (NewsletterCover, error) {
	page, err := getHTML(ctx, s.client, site)
	if err != nil {
		return NewsletterCover{}, err
	}

	og := openGraph(page)
	if og["og:image"] == "" {
		return NewsletterCover{}, core.ErrNotFound
	}

	nc := NewsletterCover{
		Title:       title,
		Description: og["og:description"],
		ImageURL:    og["og:image"],
		Source:      source,
		URL:         site,
	}
	if t := og["og:title"]; t != "" {
		nc.Title = t
	}
	return nc, nil
}

type substackSearchResponse struct {
	Publications []struct {
		Name          string `json:"name"`
		Description   string `json:"description"`
		LogoURL       string `json:"logo_url"`
		CoverPhotoURL string `json:"cover_photo_url"`
		Subdomain     string `json:"subdomain"`
	} `json:"publications"`
}

func (s *Service) substackSearch(ctx context.Context, title string) (NewsletterCover, error) {
	u := s.endpoints.SubstackAPI + "/api/v1/publications/search?q=" + url.QueryEscape(title)

	var resp substackSearchResponse
	if err := getJSON(ctx, s.client, u, browserUserAgent, &resp); err != nil {
		return NewsletterCover{}, err
	}
	if len(resp.Publications) == 0 {
		return NewsletterCover{}, core.ErrNotFound
	}

	p := resp.Publications[0]
	nc := NewsletterCover{
		Title:       p.Name,
		Description: p.Description,
		ImageURL:    p.LogoURL,
		Source:      SourceSubstackSearch,
		URL:         s.endpoints.SubstackSite(p.Subdomain),
	}
	if nc.Title == "" {
		nc.Title = title
	}
	if nc.ImageURL == "" {
		nc.ImageURL = p.CoverPhotoURL
	}
	return nc, nil
}

// placeholderNewsletter builds a lettered placeholder image. It never fails.
func placeholderNewsletter(_ context.Context, title string) (NewsletterCover, error) {
	initial := ""
	if r, _ := utf8.DecodeRuneInString(title); r != utf8.RuneError {
		initial = string(unicode.ToUpper(r))
	}
	return NewsletterCover{
		Title:       title,
		Description: "Newsletter",
		ImageURL:    "https://via.placeholder.com/64x64/FF6719/FFFFFF?text=" + url.QueryEscape(initial),
		Source:      SourcePlaceholder,
		URL:         "https://www.google.com/search?q=" + url.QueryEscape(title+" newsletter substack"),
	}, nil
}

// openGraph collects the first value of every og:* meta property.
func openGraph(page string) map[string]string {
	og := make(map[string]string)
	z := html.NewTokenizer(strings.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return og
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "meta" || !hasAttr {
				continue
			}
			var property, content string
			for {
				key, val, more := z.TagAttr()
				switch strings.ToLower(string(key)) {
				case "property":
					property = strings.ToLower(string(val))
				case "content":
					content = string(val)
				}
				if !more {
					break
				}
			}
			if strings.HasPrefix(property, "og:") && content != "" {
				if _, seen := og[property]; !seen {
					og[property] = content
				}
			}
		}
	}
}
