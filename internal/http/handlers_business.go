package http

import (
	"errors"
	"net/http"
	"strings"

	"personalos/internal/core"
	"personalos/internal/log"
)

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 365
)

type businessResponse struct {
	MRR                 int64  `json:"mrr"`
	MonthlyRevenue      int64  `json:"monthlyRevenue"`
	ActiveSubscriptions int    `json:"activeSubscriptions"`
	RecentCharges       int    `json:"recentCharges"`
	LastUpdated         string `json:"lastUpdated"`
	Note                string `json:"note"`
}

type snapshotResponse struct {
	TakenAt             string `json:"takenAt"`
	MRR                 int64  `json:"mrr"`
	ExactMRR            string `json:"exactMrr"`
	MonthlyRevenue      int64  `json:"monthlyRevenue"`
	ActiveSubscriptions int    `json:"activeSubscriptions"`
	RecentCharges       int    `json:"recentCharges"`
}

type historyResponse struct {
	Snapshots []snapshotResponse `json:"snapshots"`
	Count     int                `json:"count"`
}

// handleBusinessMetrics serves MRR and this month's revenue. Any failed
// upstream fetch fails the request; the failed resources are named.
func (s *Server) handleBusinessMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.business == nil {
		ServiceUnavailableError("Stripe is not configured").Write(w)
		return
	}

	m, err := s.business.Metrics(ctx)
	if err != nil {
		var fetchErrs core.FetchErrors
		switch {
		case errors.Is(err, core.ErrNotConfigured):
			ServiceUnavailableError("Stripe is not configured").Write(w)
		case errors.As(err, &fetchErrs):
			s.logError(r, "Stripe fetch failed", err, log.ComponentStripe,
				log.NewFields().WithResource(strings.Join(fetchErrs.Resources(), ",")))
			UpstreamError("Failed to fetch Stripe data", fetchErrs.Resources()).Write(w)
		default:
			s.logError(r, "Business metrics failed", err, log.ComponentBusiness, nil)
			InternalServerError("Failed to fetch Stripe data").Write(w)
		}
		return
	}

	NewJSONResponse().Body(businessResponse{
		MRR:                 m.MRR,
		MonthlyRevenue:      m.MonthlyRevenue,
		ActiveSubscriptions: m.ActiveSubscriptions,
		RecentCharges:       m.RecentCharges,
		LastUpdated:         formatTime(m.LastUpdated),
		Note:                m.Note,
	}).Write(w)
}

// handleBusinessHistory lists stored snapshots, newest first.
func (s *Server) handleBusinessHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		ServiceUnavailableError("Metrics history is not available").Write(w)
		return
	}

	limit := ParseLimit(r.URL.Query(), "limit", defaultHistoryLimit, maxHistoryLimit)
	snaps, err := s.history.ListSnapshots(r.Context(), limit)
	if err != nil {
		s.logError(r, "Failed to list snapshots", err, log.ComponentStorage, nil)
		InternalServerError("Failed to load metrics history").Write(w)
		return
	}

	out := make([]snapshotResponse, 0, len(snaps))
	for _, sn := range snaps {
		out = append(out, snapshotResponse{
			TakenAt:             formatTime(sn.TakenAt),
			MRR:                 sn.MRR,
			ExactMRR:            sn.ExactMRR,
			MonthlyRevenue:      sn.MonthlyRevenue,
			ActiveSubscriptions: sn.ActiveSubscriptions,
			RecentCharges:       sn.RecentCharges,
		})
	}
	NewJSONResponse().Body(historyResponse{Snapshots: out, Count: len(out)}).Write(w)
}

// logError logs through the request's logger so the request ID is kept.
func (s *Server) logError(r *http.Request, msg string, err error, component string, fields log.LogFields) {
	ctx := r.Context()
	if fields == nil {
		fields = log.NewFields()
	}
	fields[log.FieldPath] = r.URL.Path
	log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, msg, err, component, log.OpFetch, fields)
}
