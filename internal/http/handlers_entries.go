package http

import (
	"errors"
	"net/http"

	"personalos/internal/core"
	"personalos/internal/journal"
	"personalos/internal/log"
)

type entryIndexResponse struct {
	Dates           []string `json:"dates"`
	LastUpdated     string   `json:"lastUpdated"`
	DaysSinceUpdate *int     `json:"daysSinceUpdate"`
	Freshness       string   `json:"freshness"`
}

type adjacentResponse struct {
	Date     string  `json:"date"`
	Previous *string `json:"previous"`
	Next     *string `json:"next"`
}

func (s *Server) handleEntryIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.journal == nil {
		ServiceUnavailableError("Journal is not loaded").Write(w)
		return
	}

	dates, err := s.journal.Dates(ctx)
	if err != nil {
		s.logError(r, "Failed to list journal dates", err, log.ComponentJournal, nil)
		InternalServerError("Failed to load entries").Write(w)
		return
	}
	lastUpdated, err := s.journal.LastUpdated(ctx)
	if err != nil {
		s.logError(r, "Failed to read journal timestamp", err, log.ComponentJournal, nil)
		InternalServerError("Failed to load entries").Write(w)
		return
	}

	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.String())
	}
	resp := entryIndexResponse{
		Dates:       out,
		LastUpdated: lastUpdated,
		Freshness:   journal.FreshnessOffline,
	}
	if days, ok := s.journal.DaysSinceUpdate(s.now()); ok {
		resp.DaysSinceUpdate = &days
		resp.Freshness = journal.Freshness(days)
	}

	NewJSONResponse().Body(resp).Write(w)
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	date, ok := s.entryDate(w, r)
	if !ok {
		return
	}

	entry, err := s.journal.Entry(r.Context(), date)
	switch {
	case errors.Is(err, core.ErrNotFound):
		NotFoundError("No data logged for this date").Write(w)
	case err != nil:
		s.logError(r, "Failed to read journal entry", err, log.ComponentJournal,
			log.LogFields{log.FieldEntryDate: date.String()})
		InternalServerError("Failed to load entry").Write(w)
	default:
		NewJSONResponse().Body(entry).Write(w)
	}
}

// handleAdjacentEntries returns the nearest logged days around {date},
// for stepping through the journal.
func (s *Server) handleAdjacentEntries(w http.ResponseWriter, r *http.Request) {
	date, ok := s.entryDate(w, r)
	if !ok {
		return
	}

	prev, next, err := s.journal.Adjacent(r.Context(), date)
	if err != nil {
		s.logError(r, "Failed to find adjacent entries", err, log.ComponentJournal,
			log.LogFields{log.FieldEntryDate: date.String()})
		InternalServerError("Failed to load entries").Write(w)
		return
	}

	NewJSONResponse().Body(adjacentResponse{
		Date:     date.String(),
		Previous: dateString(prev),
		Next:     dateString(next),
	}).Write(w)
}

// entryDate parses {date} and writes the error response when it can't.
func (s *Server) entryDate(w http.ResponseWriter, r *http.Request) (core.Date, bool) {
	if s.journal == nil {
		ServiceUnavailableError("Journal is not loaded").Write(w)
		return core.Date{}, false
	}
	date, err := PathDate(r)
	if err != nil {
		BadRequestError("Invalid date format. Use YYYY-MM-DD").Write(w)
		return core.Date{}, false
	}
	return date, true
}

func dateString(d *core.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
