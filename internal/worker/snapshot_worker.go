package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"personalos/internal/core"
	"personalos/internal/ports"
)

// SnapshotWorker persists metrics snapshots received from AMQP into the
// history store.
type SnapshotWorker struct {
	store    ports.SnapshotStore
	onStored func()
}

// NewSnapshotWorker creates a worker writing to store. onStored, if set,
// is called after every snapshot actually written.
func NewSnapshotWorker(store ports.SnapshotStore, onStored func()) *SnapshotWorker {
	return &SnapshotWorker{
		store:    store,
		onStored: onStored,
	}
}

// HandleSnapshot processes a single snapshot message. It matches
// amqp.SnapshotHandler. A redelivered message whose snapshot is already
// the newest in history is acknowledged without writing it twice.
func (w *SnapshotWorker) HandleSnapshot(ctx context.Context, s core.MetricsSnapshot) error {
	slog.InfoContext(ctx, "Processing snapshot message",
		"taken_at", s.TakenAt,
		"mrr", s.MRR)

	latest, err := w.store.ListSnapshots(ctx, 1)
	if err != nil {
		return fmt.Errorf("read latest snapshot: %w", err)
	}
	if len(latest) == 1 && latest[0].TakenAt.Equal(s.TakenAt) {
		slog.DebugContext(ctx, "Snapshot already stored, skipping", "taken_at", s.TakenAt)
		return nil
	}

	saved, err := w.store.SaveSnapshot(ctx, s)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	if w.onStored != nil {
		w.onStored()
	}

	slog.InfoContext(ctx, "Successfully stored snapshot",
		"snapshot_id", saved.ID,
		"taken_at", saved.TakenAt,
		"mrr", saved.MRR,
		"monthly_revenue", saved.MonthlyRevenue)

	return nil
}

// StartupCheck verifies the history store is reachable and reports how
// stale the newest snapshot is, which helps spot a worker that was down.
func (w *SnapshotWorker) StartupCheck(ctx context.Context) error {
	if err := w.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping history store: %w", err)
	}

	latest, err := w.store.ListSnapshots(ctx, 1)
	if err != nil {
		return fmt.Errorf("read latest snapshot: %w", err)
	}

	if len(latest) == 0 {
		slog.InfoContext(ctx, "No snapshots found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Latest snapshot on startup",
		"snapshot_id", latest[0].ID,
		"taken_at", latest[0].TakenAt.Format(time.RFC3339),
		"age", time.Since(latest[0].TakenAt).Round(time.Minute))

	return nil
}
