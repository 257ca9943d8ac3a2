package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"personalos/internal/core"
	"personalos/internal/ports"
)

// SnapshotProcessorConfig holds configuration for the snapshot processor
type SnapshotProcessorConfig struct {
	// RefreshInterval is how often metrics are recomputed (default: 15m)
	RefreshInterval time.Duration

	// CleanupInterval is how often old snapshots are pruned (default: 24h)
	CleanupInterval time.Duration

	// Retention is how long snapshots are kept (default: 365 days)
	Retention time.Duration
}

// DefaultSnapshotProcessorConfig returns sensible defaults
func DefaultSnapshotProcessorConfig() SnapshotProcessorConfig {
	return SnapshotProcessorConfig{
		RefreshInterval: 15 * time.Minute,
		CleanupInterval: 24 * time.Hour,
		Retention:       365 * 24 * time.Hour,
	}
}

// MetricsSource is satisfied by *BusinessService.
type MetricsSource interface {
	Metrics(ctx context.Context) (core.BusinessMetrics, error)
}

// SnapshotProcessor refreshes business metrics on a schedule so history
// keeps growing even when nobody opens the dashboard, and prunes
// snapshots past retention.
type SnapshotProcessor struct {
	source MetricsSource
	store  ports.SnapshotStore
	config SnapshotProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSnapshotProcessor(source MetricsSource, store ports.SnapshotStore, config SnapshotProcessorConfig) *SnapshotProcessor {
	return &SnapshotProcessor{
		source: source,
		store:  store,
		config: config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SnapshotProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("snapshot processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Snapshot processor started",
		"refresh_interval", p.config.RefreshInterval,
		"retention", p.config.Retention)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SnapshotProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Snapshot processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Snapshot processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

func (p *SnapshotProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SnapshotProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	refreshTicker := time.NewTicker(p.config.RefreshInterval)
	defer refreshTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	p.Refresh(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-refreshTicker.C:
			p.Refresh(ctx)
		case <-cleanupTicker.C:
			p.Cleanup(ctx)
		}
	}
}

// Refresh computes metrics once. The source publishes the snapshot.
func (p *SnapshotProcessor) Refresh(ctx context.Context) {
	m, err := p.source.Metrics(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Scheduled metrics refresh failed", "error", err)
		return
	}
	slog.DebugContext(ctx, "Scheduled metrics refresh", "mrr", m.MRR, "monthly_revenue", m.MonthlyRevenue)
}

// Cleanup prunes snapshots older than the retention window.
func (p *SnapshotProcessor) Cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.Retention)
	n, err := p.store.PruneSnapshots(ctx, cutoff)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to prune snapshots", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Pruned old snapshots", "removed", n, "cutoff", cutoff)
	}
}

// StorePublisher publishes snapshots by writing them straight to a store.
// It is used when no message broker is configured.
type StorePublisher struct {
	Store ports.SnapshotStore
	// OnStored is called after each successful save, e.g. to count it.
	OnStored func()
}

func (sp StorePublisher) PublishSnapshot(ctx context.Context, s core.MetricsSnapshot) error {
	if _, err := sp.Store.SaveSnapshot(ctx, s); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	if sp.OnStored != nil {
		sp.OnStored()
	}
	return nil
}
