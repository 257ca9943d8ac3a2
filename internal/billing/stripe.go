// Package billing adapts the Stripe API to the ports the business
// service consumes. It maps provider records onto core types and leaves
// all revenue arithmetic to the services package.
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"personalos/internal/core"
)

// Config configures the Stripe client.
type Config struct {
	SecretKey string
	// APIURL overrides the API base URL, e.g. for stripe-mock or tests.
	APIURL     string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// StripeClient lists subscriptions and charges through stripe-go. It
// implements ports.BillingProvider.
type StripeClient struct {
	api    *client.API
	logger *slog.Logger
}

// NewStripeClient builds a client with its own backend, so nothing is
// shared through stripe-go's package-level key.
func NewStripeClient(cfg Config) (*StripeClient, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key: %w", core.ErrNotConfigured)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backendCfg := &stripe.BackendConfig{
		// Failures surface to the caller; the dashboard never retries.
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &leveledLogger{logger: logger},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}
	if cfg.HTTPClient != nil {
		backendCfg.HTTPClient = cfg.HTTPClient
	}

	api := client.New(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})

	return &StripeClient{api: api, logger: logger}, nil
}

// ListSubscriptions returns up to limit subscriptions in the given status.
// Items without a price are skipped with a warning.
func (c *StripeClient) ListSubscriptions(ctx context.Context, status core.SubscriptionStatus, limit int) ([]core.Subscription, error) {
	params := &stripe.SubscriptionListParams{
		ListParams: stripe.ListParams{Context: ctx, Limit: stripe.Int64(int64(limit))},
		Status:     stripe.String(string(status)),
	}

	iter := c.api.Subscriptions.List(params)
	var out []core.Subscription
	for len(out) < limit && iter.Next() {
		sub := iter.Subscription()
		if sub == nil {
			continue
		}
		out = append(out, c.toSubscription(ctx, sub))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list %s subscriptions: %w", status, err)
	}
	return out, nil
}

func (c *StripeClient) toSubscription(ctx context.Context, sub *stripe.Subscription) core.Subscription {
	s := core.Subscription{
		ID:     sub.ID,
		Status: core.SubscriptionStatus(sub.Status),
	}
	if sub.Items == nil {
		return s
	}
	for _, it := range sub.Items.Data {
		if it == nil {
			continue
		}
		li, err := toLineItem(sub.ID, it)
		if err != nil {
			c.logger.WarnContext(ctx, "Skipping malformed subscription item",
				"component", "stripe",
				"subscription_id", sub.ID,
				"item_id", it.ID,
				"error", err)
			continue
		}
		s.Items = append(s.Items, li)
	}
	return s
}

// toLineItem maps a subscription item. A zero quantity is treated as
// absent, which the normalizer reads as 1.
func toLineItem(subID string, it *stripe.SubscriptionItem) (core.LineItem, error) {
	if it.Price == nil {
		return core.LineItem{}, &core.MalformedRecordError{
			SubscriptionID: subID,
			ItemID:         it.ID,
			Reason:         "item has no price",
		}
	}

	li := core.LineItem{ID: it.ID}
	if it.Price.UnitAmount != 0 {
		li.UnitAmount = core.Int64(it.Price.UnitAmount)
	}
	if it.Quantity != 0 {
		li.Quantity = core.Int64(it.Quantity)
	}
	if r := it.Price.Recurring; r != nil {
		li.Interval = core.BillingInterval(r.Interval)
		li.UsageType = core.UsageType(r.UsageType)
	}
	return li, nil
}

// ListCharges returns up to limit charges created within [from, to].
func (c *StripeClient) ListCharges(ctx context.Context, from, to time.Time, limit int) ([]core.Charge, error) {
	params := &stripe.ChargeListParams{
		ListParams: stripe.ListParams{Context: ctx, Limit: stripe.Int64(int64(limit))},
		CreatedRange: &stripe.RangeQueryParams{
			GreaterThanOrEqual: from.Unix(),
			LesserThanOrEqual:  to.Unix(),
		},
	}

	iter := c.api.Charges.List(params)
	var out []core.Charge
	for len(out) < limit && iter.Next() {
		ch := iter.Charge()
		if ch == nil {
			continue
		}
		out = append(out, core.Charge{
			ID:      ch.ID,
			Amount:  core.Money{MinorUnits: ch.Amount},
			Paid:    ch.Paid,
			Created: time.Unix(ch.Created, 0).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list charges: %w", err)
	}
	return out, nil
}

// leveledLogger routes stripe-go's internal logging into slog.
type leveledLogger struct {
	logger *slog.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *leveledLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *leveledLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *leveledLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), "component", "stripe")
}
