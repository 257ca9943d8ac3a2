package media

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"personalos/internal/core"
)

const KindBookCover = "book_cover"

var (
	nonISBNChars  = regexp.MustCompile(`[^0-9X]`)
	nonWordChars  = regexp.MustCompile(`[^\w\s]`)
	multipleSpace = regexp.MustCompile(`\s+`)
)

// BookQuery identifies a book. Only Title is required.
type BookQuery struct {
	Title  string
	Author string
	ISBN   string
}

func (q BookQuery) key() string {
	return normalizeKey(q.Title) + "|" + normalizeKey(q.Author) + "|" + q.ISBN
}

// BookCover is the response of a successful cover lookup.
type BookCover struct {
	CoverURL string `json:"coverUrl"`
	Source   string `json:"source"`
}

// BookCover finds a cover image URL: Open Library by ISBN, then Open
// Library by title, then Google Books.
func (s *Service) BookCover(ctx context.Context, q BookQuery) (BookCover, error) {
	f, err := s.bookChain.Lookup(ctx, q)
	if err != nil {
		return BookCover{}, err
	}
	return BookCover{CoverURL: f.Value, Source: "found"}, nil
}

func (s *Service) openLibraryByISBN(ctx context.Context, q BookQuery) (string, error) {
	isbn := nonISBNChars.ReplaceAllString(q.ISBN, "")
	if isbn == "" {
		return "", core.ErrNotFound
	}
	return s.openLibraryCover(ctx, "isbn", isbn)
}

func (s *Service) openLibraryByTitle(ctx context.Context, q BookQuery) (string, error) {
	title := cleanTitle(q.Title)
	if title == "" {
		return "", core.ErrNotFound
	}
	return s.openLibraryCover(ctx, "title", title)
}

func (s *Service) openLibraryCover(ctx context.Context, by, value string) (string, error) {
	u := fmt.Sprintf("%s/b/%s/%s-L.jpg", s.endpoints.OpenLibraryCovers, by, url.PathEscape(value))
	ok, err := isImage(ctx, s.client, u)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", core.ErrNotFound
	}
	return u, nil
}

func (s *Service) googleBooks(ctx context.Context, q BookQuery) (string, error) {
	query := q.Title
	if q.Author != "" {
		query += " inauthor:" + q.Author
	}

	vols, err := s.gbooks.Volumes.List(query).MaxResults(1).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("google books search: %w", err)
	}
	if len(vols.Items) == 0 || vols.Items[0].VolumeInfo == nil || vols.Items[0].VolumeInfo.ImageLinks == nil {
		return "", core.ErrNotFound
	}

	links := vols.Items[0].VolumeInfo.ImageLinks
	for _, u := range []string{links.Large, links.Medium, links.Thumbnail} {
		if u != "" {
			return u, nil
		}
	}
	return "", core.ErrNotFound
}

// cleanTitle lower-cases a title, drops punctuation and collapses spaces.
func cleanTitle(title string) string {
	t := strings.ToLower(title)
	t = nonWordChars.ReplaceAllString(t, "")
	t = multipleSpace.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
