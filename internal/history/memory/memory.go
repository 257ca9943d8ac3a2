// Package memory provides an in-process snapshot history used when no
// database is configured. History is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"personalos/internal/core"
)

// Store keeps snapshots in memory, bounded by capacity.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	capacity int
	items    []core.MetricsSnapshot
}

// New returns a store that keeps at most capacity snapshots, dropping the
// oldest first. A non-positive capacity means 365.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = 365
	}
	return &Store{capacity: capacity}
}

// SaveSnapshot stores the snapshot and assigns it an id.
func (s *Store) SaveSnapshot(_ context.Context, snap core.MetricsSnapshot) (core.MetricsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	snap.ID = s.nextID
	if snap.ExactMRR == "" {
		snap.ExactMRR = "0"
	}
	s.items = append(s.items, snap)
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.items[i].TakenAt.Before(s.items[j].TakenAt)
	})
	if over := len(s.items) - s.capacity; over > 0 {
		s.items = append([]core.MetricsSnapshot(nil), s.items[over:]...)
	}
	return snap, nil
}

// ListSnapshots returns up to limit snapshots, newest first.
func (s *Store) ListSnapshots(_ context.Context, limit int) ([]core.MetricsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.MetricsSnapshot, 0, min(limit, len(s.items)))
	for i := len(s.items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.items[i])
	}
	return out, nil
}

// PruneSnapshots removes snapshots taken before cutoff.
func (s *Store) PruneSnapshots(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.items[:0]
	var removed int64
	for _, it := range s.items {
		if it.TakenAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	s.items = kept
	return removed, nil
}

func (s *Store) Ping(context.Context) error { return nil }
