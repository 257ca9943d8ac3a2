package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// MRRNote describes the methodology behind the MRR figure.
const MRRNote = "MRR calculated using Stripe's official methodology: active + past_due subscriptions, excluding trials, taxes, free plans, and usage-based products"

// MRRResult is the output of the revenue normalizer.
type MRRResult struct {
	Amount            decimal.Decimal // rounded to whole major units
	Exact             decimal.Decimal
	SubscriptionCount int
}

// BusinessMetrics is what the dashboard shows in its business card.
type BusinessMetrics struct {
	MRR                 int64
	ExactMRR            decimal.Decimal
	MonthlyRevenue      int64
	ActiveSubscriptions int
	RecentCharges       int
	LastUpdated         time.Time
	Note                string
}

// MetricsSnapshot is a persisted point of the business metrics history.
type MetricsSnapshot struct {
	ID                  int64
	TakenAt             time.Time
	MRR                 int64
	ExactMRR            string
	MonthlyRevenue      int64
	ActiveSubscriptions int
	RecentCharges       int
}

// Snapshot converts metrics into a history point.
func (m BusinessMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TakenAt:             m.LastUpdated,
		MRR:                 m.MRR,
		ExactMRR:            m.ExactMRR.String(),
		MonthlyRevenue:      m.MonthlyRevenue,
		ActiveSubscriptions: m.ActiveSubscriptions,
		RecentCharges:       m.RecentCharges,
	}
}
