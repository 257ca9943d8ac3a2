package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"personalos/internal/core"
	"personalos/internal/log"
	"personalos/internal/ports"
)

// Upstream resource names reported in fetch errors and metrics.
const (
	ResourceActiveSubscriptions  = "subscriptions:active"
	ResourcePastDueSubscriptions = "subscriptions:past_due"
	ResourceCharges              = "charges"
)

// BusinessConfig holds the limits applied to every refresh.
type BusinessConfig struct {
	// Timeout bounds all upstream calls of one refresh (default: 10s)
	Timeout time.Duration

	// SubscriptionLimit caps subscriptions listed per status (default: 100)
	SubscriptionLimit int

	// ChargeLimit caps charges listed for the month (default: 10)
	ChargeLimit int
}

func DefaultBusinessConfig() BusinessConfig {
	return BusinessConfig{
		Timeout:           10 * time.Second,
		SubscriptionLimit: 100,
		ChargeLimit:       10,
	}
}

// Recorder receives refresh telemetry. *metrics.Metrics implements it.
type Recorder interface {
	ObserveUpstream(resource string, start time.Time, err error)
	SetBusiness(mrr, monthlyRevenue int64, activeSubs int, at time.Time)
}

// BusinessService computes the dashboard's revenue figures from the
// billing provider.
type BusinessService struct {
	billing   ports.BillingProvider
	publisher ports.SnapshotPublisher
	recorder  Recorder
	config    BusinessConfig
	now       func() time.Time
}

// BusinessOption configures optional collaborators.
type BusinessOption func(*BusinessService)

// WithSnapshotPublisher hands every successful result to p.
func WithSnapshotPublisher(p ports.SnapshotPublisher) BusinessOption {
	return func(s *BusinessService) { s.publisher = p }
}

// WithRecorder reports upstream calls and results to r.
func WithRecorder(r Recorder) BusinessOption {
	return func(s *BusinessService) { s.recorder = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) BusinessOption {
	return func(s *BusinessService) { s.now = now }
}

func NewBusinessService(billing ports.BillingProvider, config BusinessConfig, opts ...BusinessOption) *BusinessService {
	s := &BusinessService{
		billing: billing,
		config:  config,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MonthRange returns the first and last second of the calendar month
// containing t, in UTC.
func MonthRange(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Second)
	return start, end
}

// Metrics fetches active and past_due subscriptions plus this month's
// charges concurrently and reduces them to the dashboard figures.
//
// Every failed fetch is reported in the returned core.FetchErrors and no
// partial result is produced.
func (s *BusinessService) Metrics(ctx context.Context) (core.BusinessMetrics, error) {
	if s.billing == nil {
		return core.BusinessMetrics{}, fmt.Errorf("billing provider: %w", core.ErrNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	now := s.now()
	from, to := MonthRange(now)

	var (
		active, pastDue []core.Subscription
		charges         []core.Charge
		fetchErrs       [3]error
	)

	var g errgroup.Group
	g.Go(func() error {
		active, fetchErrs[0] = s.listSubscriptions(ctx, core.StatusActive, ResourceActiveSubscriptions)
		return nil
	})
	g.Go(func() error {
		pastDue, fetchErrs[1] = s.listSubscriptions(ctx, core.StatusPastDue, ResourcePastDueSubscriptions)
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		var err error
		charges, err = s.billing.ListCharges(ctx, from, to, s.config.ChargeLimit)
		s.observe(ResourceCharges, start, err)
		if err != nil {
			fetchErrs[2] = &core.UpstreamFetchError{Resource: ResourceCharges, Err: err}
		}
		return nil
	})
	_ = g.Wait()

	var failed core.FetchErrors
	for _, err := range fetchErrs {
		var ufe *core.UpstreamFetchError
		if errors.As(err, &ufe) {
			failed = append(failed, ufe)
		}
	}
	// Callers log the failure; every failed resource is named in it.
	if len(failed) > 0 {
		return core.BusinessMetrics{}, failed
	}

	subs := make([]core.Subscription, 0, len(active)+len(pastDue))
	subs = append(subs, active...)
	subs = append(subs, pastDue...)

	mrr, err := NormalizeMRR(subs)
	if err != nil {
		var iie *core.InvalidInputError
		if errors.As(err, &iie) {
			log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, "Unusable subscription line item", err,
				log.ComponentBusiness, log.OpNormalize, log.NewFields().WithLineItem(iie.SubscriptionID, iie.ItemID))
		}
		return core.BusinessMetrics{}, fmt.Errorf("normalize mrr: %w", err)
	}

	result := core.BusinessMetrics{
		MRR:                 mrr.Amount.IntPart(),
		ExactMRR:            mrr.Exact,
		MonthlyRevenue:      SumPaidCharges(charges).IntPart(),
		ActiveSubscriptions: mrr.SubscriptionCount,
		RecentCharges:       len(charges),
		LastUpdated:         now.UTC(),
		Note:                core.MRRNote,
	}

	if s.recorder != nil {
		s.recorder.SetBusiness(result.MRR, result.MonthlyRevenue, result.ActiveSubscriptions, result.LastUpdated)
	}
	log.NewStructuredLogger(log.FromContext(ctx)).
		LogMetricsComputed(ctx, result.MRR, result.MonthlyRevenue, result.ActiveSubscriptions, result.RecentCharges)
	s.publish(ctx, result)

	return result, nil
}

func (s *BusinessService) listSubscriptions(ctx context.Context, status core.SubscriptionStatus, resource string) ([]core.Subscription, error) {
	start := time.Now()
	subs, err := s.billing.ListSubscriptions(ctx, status, s.config.SubscriptionLimit)
	s.observe(resource, start, err)
	if err != nil {
		return nil, &core.UpstreamFetchError{Resource: resource, Err: err}
	}
	return subs, nil
}

func (s *BusinessService) observe(resource string, start time.Time, err error) {
	if s.recorder != nil {
		s.recorder.ObserveUpstream(resource, start, err)
	}
}

// publish records the result in history. Failures never fail the
// request; the snapshot is simply missing from history.
func (s *BusinessService) publish(ctx context.Context, m core.BusinessMetrics) {
	if s.publisher == nil {
		return
	}
	// Detached so a client hanging up does not drop the snapshot.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.publisher.PublishSnapshot(pctx, m.Snapshot()); err != nil {
		slog.WarnContext(ctx, "Failed to publish metrics snapshot",
			"component", "business",
			"mrr", m.MRR,
			"error", err)
	}
}
