package http

import (
	"errors"
	"net/http"

	"personalos/internal/core"
	"personalos/internal/log"
	"personalos/internal/media"
)

// mediaMessages are the client-facing messages of one lookup endpoint.
type mediaMessages struct {
	missing  string
	notFound string
	failed   string
}

var (
	bookCoverMessages = mediaMessages{
		missing:  "Book title is required",
		notFound: "Book cover not found",
		failed:   "Failed to fetch book cover",
	}
	podcastMessages = mediaMessages{
		missing:  "Podcast name is required",
		notFound: "Podcast not found",
		failed:   "Failed to fetch podcast artwork",
	}
	newsletterMessages = mediaMessages{
		missing:  "Title parameter required",
		notFound: "Newsletter not found",
		failed:   "Failed to fetch newsletter cover",
	}
)

func (s *Server) handleBookCover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := media.BookQuery{
		Title:  QueryParam(q, "title"),
		Author: QueryParam(q, "author"),
		ISBN:   QueryParam(q, "isbn"),
	}
	if query.Title == "" {
		BadRequestError(bookCoverMessages.missing).Write(w)
		return
	}
	if s.media == nil {
		ServiceUnavailableError(bookCoverMessages.failed).Write(w)
		return
	}

	cover, err := s.media.BookCover(r.Context(), query)
	s.writeLookup(w, r, cover, err, bookCoverMessages)
}

func (s *Server) handlePodcastArtwork(w http.ResponseWriter, r *http.Request) {
	name := QueryParam(r.URL.Query(), "name")
	if name == "" {
		BadRequestError(podcastMessages.missing).Write(w)
		return
	}
	if s.media == nil {
		ServiceUnavailableError(podcastMessages.failed).Write(w)
		return
	}

	artwork, err := s.media.PodcastArtwork(r.Context(), name)
	s.writeLookup(w, r, artwork, err, podcastMessages)
}

// handleNewsletterCover always finds something: the last source is a
// generated placeholder.
func (s *Server) handleNewsletterCover(w http.ResponseWriter, r *http.Request) {
	title := QueryParam(r.URL.Query(), "title")
	if title == "" {
		BadRequestError(newsletterMessages.missing).Write(w)
		return
	}
	if s.media == nil {
		ServiceUnavailableError(newsletterMessages.failed).Write(w)
		return
	}

	cover, err := s.media.NewsletterCover(r.Context(), title)
	s.writeLookup(w, r, cover, err, newsletterMessages)
}

func (s *Server) writeLookup(w http.ResponseWriter, r *http.Request, body any, err error, msgs mediaMessages) {
	switch {
	case err == nil:
		NewJSONResponse().Body(body).Write(w)
	case errors.Is(err, core.ErrNotFound):
		NotFoundError(msgs.notFound).Write(w)
	default:
		s.logError(r, msgs.failed, err, log.ComponentMedia, nil)
		InternalServerError(msgs.failed).Write(w)
	}
}
