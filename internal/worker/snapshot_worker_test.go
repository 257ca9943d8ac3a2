package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personalos/internal/core"
	"personalos/internal/history/memory"
)

func TestSnapshotWorker_HandleSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	stored := 0
	w := NewSnapshotWorker(store, func() { stored++ })

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, w.HandleSnapshot(ctx, core.MetricsSnapshot{TakenAt: at, MRR: 100}))
	require.NoError(t, w.HandleSnapshot(ctx, core.MetricsSnapshot{TakenAt: at.Add(time.Hour), MRR: 120}))

	got, err := store.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(120), got[0].MRR)
	assert.Equal(t, 2, stored)
}

func TestSnapshotWorker_RedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	stored := 0
	w := NewSnapshotWorker(store, func() { stored++ })

	s := core.MetricsSnapshot{TakenAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), MRR: 100}
	require.NoError(t, w.HandleSnapshot(ctx, s))
	require.NoError(t, w.HandleSnapshot(ctx, s))

	got, err := store.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, stored)
}

type failingStore struct {
	*memory.Store
}

func (failingStore) SaveSnapshot(context.Context, core.MetricsSnapshot) (core.MetricsSnapshot, error) {
	return core.MetricsSnapshot{}, errors.New("disk full")
}

func (failingStore) Ping(context.Context) error { return errors.New("unreachable") }

func TestSnapshotWorker_StoreFailure(t *testing.T) {
	w := NewSnapshotWorker(failingStore{memory.New(0)}, nil)

	err := w.HandleSnapshot(context.Background(), core.MetricsSnapshot{TakenAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save snapshot")

	assert.Error(t, w.StartupCheck(context.Background()))
}

func TestSnapshotWorker_StartupCheck(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	w := NewSnapshotWorker(store, nil)

	assert.NoError(t, w.StartupCheck(ctx))

	_, err := store.SaveSnapshot(ctx, core.MetricsSnapshot{TakenAt: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.NoError(t, w.StartupCheck(ctx))
}
