package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personalos/internal/core"
	"personalos/internal/log"
)

type fakeBilling struct {
	mu          sync.Mutex
	subs        map[core.SubscriptionStatus][]core.Subscription
	subErr      map[core.SubscriptionStatus]error
	charges     []core.Charge
	chargeErr   error
	gotLimits   map[string]int
	gotFrom     time.Time
	gotTo       time.Time
	hadDeadline bool
}

func (f *fakeBilling) ListSubscriptions(ctx context.Context, status core.SubscriptionStatus, limit int) ([]core.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gotLimits == nil {
		f.gotLimits = map[string]int{}
	}
	f.gotLimits[string(status)] = limit
	_, f.hadDeadline = ctx.Deadline()
	if err := f.subErr[status]; err != nil {
		return nil, err
	}
	return f.subs[status], nil
}

func (f *fakeBilling) ListCharges(_ context.Context, from, to time.Time, limit int) ([]core.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gotLimits == nil {
		f.gotLimits = map[string]int{}
	}
	f.gotLimits["charges"] = limit
	f.gotFrom, f.gotTo = from, to
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	return f.charges, nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []core.MetricsSnapshot
	err   error
}

func (p *recordingPublisher) PublishSnapshot(_ context.Context, s core.MetricsSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.snaps = append(p.snaps, s)
	return nil
}

type recordingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]bool
	mrr      int64
}

func (r *recordingRecorder) ObserveUpstream(resource string, _ time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]bool{}
	}
	r.outcomes[resource] = err == nil
}

func (r *recordingRecorder) SetBusiness(mrr, _ int64, _ int, _ time.Time) {
	r.mu.Lock()
	r.mrr = mrr
	r.mu.Unlock()
}

var fixedNow = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

func happyBilling() *fakeBilling {
	return &fakeBilling{
		subs: map[core.SubscriptionStatus][]core.Subscription{
			core.StatusActive: {
				{ID: "sub_a", Status: core.StatusActive, Items: []core.LineItem{item(10000, 1, core.IntervalMonth)}},
			},
			core.StatusPastDue: {
				{ID: "sub_b", Status: core.StatusPastDue, Items: []core.LineItem{item(12000000, 1, core.IntervalYear)}},
			},
		},
		charges: []core.Charge{
			{ID: "ch_1", Amount: core.Money{MinorUnits: 4999}, Paid: true},
			{ID: "ch_2", Amount: core.Money{MinorUnits: 2551}, Paid: true},
			{ID: "ch_3", Amount: core.Money{MinorUnits: 90000}, Paid: false},
		},
	}
}

func TestBusinessService_Metrics(t *testing.T) {
	billing := happyBilling()
	pub := &recordingPublisher{}
	rec := &recordingRecorder{}
	svc := NewBusinessService(billing, DefaultBusinessConfig(),
		WithClock(func() time.Time { return fixedNow }),
		WithSnapshotPublisher(pub),
		WithRecorder(rec))

	m, err := svc.Metrics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(10100), m.MRR)
	assert.Equal(t, int64(76), m.MonthlyRevenue)
	assert.Equal(t, 2, m.ActiveSubscriptions)
	assert.Equal(t, 3, m.RecentCharges, "unpaid charges are still counted")
	assert.Equal(t, fixedNow, m.LastUpdated)
	assert.Equal(t, core.MRRNote, m.Note)

	assert.Equal(t, 100, billing.gotLimits["active"])
	assert.Equal(t, 100, billing.gotLimits["past_due"])
	assert.Equal(t, 10, billing.gotLimits["charges"])
	assert.True(t, billing.hadDeadline, "upstream calls must be bounded")
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), billing.gotFrom)
	assert.Equal(t, time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC), billing.gotTo)

	require.Len(t, pub.snaps, 1)
	assert.Equal(t, int64(10100), pub.snaps[0].MRR)
	assert.Equal(t, fixedNow, pub.snaps[0].TakenAt)

	assert.Equal(t, int64(10100), rec.mrr)
	assert.Equal(t, map[string]bool{
		ResourceActiveSubscriptions:  true,
		ResourcePastDueSubscriptions: true,
		ResourceCharges:              true,
	}, rec.outcomes)
}

func TestBusinessService_Metrics_CollectsAllFailures(t *testing.T) {
	billing := happyBilling()
	billing.subErr = map[core.SubscriptionStatus]error{core.StatusPastDue: errors.New("rate limited")}
	billing.chargeErr = errors.New("timeout")
	pub := &recordingPublisher{}
	svc := NewBusinessService(billing, DefaultBusinessConfig(), WithSnapshotPublisher(pub))

	m, err := svc.Metrics(context.Background())
	require.Error(t, err)
	assert.Zero(t, m.MRR, "no partial result")

	var fe core.FetchErrors
	require.True(t, errors.As(err, &fe))
	assert.ElementsMatch(t, []string{ResourcePastDueSubscriptions, ResourceCharges}, fe.Resources())
	assert.Empty(t, pub.snaps, "failed refreshes are not recorded")
}

func TestBusinessService_Metrics_FetchFailuresLeftToCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelDebug, Output: &buf})
	prev := slog.Default()
	slog.SetDefault(logger.Logger)
	t.Cleanup(func() { slog.SetDefault(prev) })

	billing := happyBilling()
	billing.chargeErr = errors.New("timeout")
	svc := NewBusinessService(billing, DefaultBusinessConfig())

	_, err := svc.Metrics(log.NewContext(context.Background(), logger))
	require.Error(t, err)
	assert.NotContains(t, buf.String(), "level=ERROR", "the handler or processor logs the failure once")
}

func TestBusinessService_Metrics_InvalidInput(t *testing.T) {
	billing := happyBilling()
	billing.subs[core.StatusActive] = []core.Subscription{
		{ID: "sub_neg", Items: []core.LineItem{{ID: "si", UnitAmount: core.Int64(-1), Interval: core.IntervalMonth}}},
	}
	svc := NewBusinessService(billing, DefaultBusinessConfig())

	_, err := svc.Metrics(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
}

func TestBusinessService_Metrics_PublishFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewBusinessService(happyBilling(), DefaultBusinessConfig(), WithSnapshotPublisher(pub))

	m, err := svc.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10100), m.MRR)
}

func TestBusinessService_Metrics_NoBilling(t *testing.T) {
	svc := NewBusinessService(nil, DefaultBusinessConfig())
	_, err := svc.Metrics(context.Background())
	assert.True(t, errors.Is(err, core.ErrNotConfigured))
}

func TestBusinessService_Metrics_Empty(t *testing.T) {
	svc := NewBusinessService(&fakeBilling{}, DefaultBusinessConfig())
	m, err := svc.Metrics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, m.MRR)
	assert.Zero(t, m.MonthlyRevenue)
	assert.Zero(t, m.ActiveSubscriptions)
	assert.Zero(t, m.RecentCharges)
}

func TestMonthRange(t *testing.T) {
	tests := []struct {
		in       time.Time
		from, to time.Time
	}{
		{
			in:   time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC),
			from: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			to:   time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC),
		},
		{
			in:   time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC),
			from: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
			to:   time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		from, to := MonthRange(tt.in)
		assert.Equal(t, tt.from, from)
		assert.Equal(t, tt.to, to)
	}
}
