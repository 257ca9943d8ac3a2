// Package ports declares the outbound interfaces the services depend on.
// Adapters for Stripe, SQLite, AMQP and the journal file implement them.
package ports

import (
	"context"
	"time"

	"personalos/internal/core"
)

// Ports for outbound adapters.
type (
	// SubscriptionLister lists the provider's subscriptions in one status,
	// stopping after limit records.
	SubscriptionLister interface {
		ListSubscriptions(ctx context.Context, status core.SubscriptionStatus, limit int) ([]core.Subscription, error)
	}

	// ChargeLister lists charges created in [from, to], stopping after
	// limit records.
	ChargeLister interface {
		ListCharges(ctx context.Context, from, to time.Time, limit int) ([]core.Charge, error)
	}

	// BillingProvider is the full read surface the business service needs.
	BillingProvider interface {
		SubscriptionLister
		ChargeLister
	}

	// SnapshotStore persists metrics snapshots.
	SnapshotStore interface {
		SaveSnapshot(ctx context.Context, s core.MetricsSnapshot) (core.MetricsSnapshot, error)
		// ListSnapshots returns up to limit snapshots, newest first.
		ListSnapshots(ctx context.Context, limit int) ([]core.MetricsSnapshot, error)
		// PruneSnapshots deletes snapshots taken before cutoff and reports
		// how many were removed.
		PruneSnapshots(ctx context.Context, cutoff time.Time) (int64, error)
		Ping(ctx context.Context) error
	}

	// SnapshotPublisher hands a snapshot to whatever records history.
	SnapshotPublisher interface {
		PublishSnapshot(ctx context.Context, s core.MetricsSnapshot) error
	}

	// EntryReader reads the daily journal.
	EntryReader interface {
		Dates(ctx context.Context) ([]core.Date, error)
		Entry(ctx context.Context, date core.Date) (core.DailyEntry, error)
		LastUpdated(ctx context.Context) (string, error)
		// Adjacent returns the nearest logged dates before and after date;
		// either may be nil.
		Adjacent(ctx context.Context, date core.Date) (prev, next *core.Date, err error)
	}
)
