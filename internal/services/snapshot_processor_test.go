package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personalos/internal/core"
	"personalos/internal/history/memory"
)

type countingSource struct {
	calls atomic.Int32
	err   error
}

func (s *countingSource) Metrics(context.Context) (core.BusinessMetrics, error) {
	s.calls.Add(1)
	return core.BusinessMetrics{MRR: 1}, s.err
}

func TestDefaultSnapshotProcessorConfig(t *testing.T) {
	config := DefaultSnapshotProcessorConfig()

	if config.RefreshInterval != 15*time.Minute {
		t.Errorf("expected RefreshInterval 15m, got %v", config.RefreshInterval)
	}
	if config.CleanupInterval != 24*time.Hour {
		t.Errorf("expected CleanupInterval 24h, got %v", config.CleanupInterval)
	}
	if config.Retention != 365*24*time.Hour {
		t.Errorf("expected Retention 365d, got %v", config.Retention)
	}
}

func TestSnapshotProcessor_StartStop(t *testing.T) {
	src := &countingSource{}
	config := DefaultSnapshotProcessorConfig()
	config.RefreshInterval = 10 * time.Millisecond
	p := NewSnapshotProcessor(src, memory.New(0), config)

	if p.IsRunning() {
		t.Fatal("processor should not be running initially")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx))
	assert.Error(t, p.Start(ctx), "second start must fail")

	assert.Eventually(t, func() bool { return src.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, p.Stop(stopCtx))
	assert.False(t, p.IsRunning())
}

func TestSnapshotProcessor_StopNotRunning(t *testing.T) {
	p := NewSnapshotProcessor(&countingSource{}, memory.New(0), DefaultSnapshotProcessorConfig())
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestSnapshotProcessor_RefreshSurvivesErrors(t *testing.T) {
	src := &countingSource{err: errors.New("stripe down")}
	p := NewSnapshotProcessor(src, memory.New(0), DefaultSnapshotProcessorConfig())
	p.Refresh(context.Background())
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestSnapshotProcessor_Cleanup(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	store.SaveSnapshot(ctx, core.MetricsSnapshot{TakenAt: time.Now().Add(-400 * 24 * time.Hour)})
	store.SaveSnapshot(ctx, core.MetricsSnapshot{TakenAt: time.Now()})

	p := NewSnapshotProcessor(&countingSource{}, store, DefaultSnapshotProcessorConfig())
	p.Cleanup(ctx)

	left, err := store.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestStorePublisher(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	stored := 0
	pub := StorePublisher{Store: store, OnStored: func() { stored++ }}

	require.NoError(t, pub.PublishSnapshot(ctx, core.MetricsSnapshot{TakenAt: time.Now(), MRR: 42}))

	got, err := store.ListSnapshots(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(42), got[0].MRR)
	assert.Equal(t, 1, stored)
}
