package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	IntervalDay   BillingInterval = "day"
	IntervalWeek  BillingInterval = "week"
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"

	UsageLicensed UsageType = "licensed"
	UsageMetered  UsageType = "metered"

	StatusActive            SubscriptionStatus = "active"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusPaused            SubscriptionStatus = "paused"
)

// DateLayout is the calendar-day format used by the journal and the API.
const DateLayout = "2006-01-02"

type (
	BillingInterval    string
	UsageType          string
	SubscriptionStatus string

	Date struct {
		time.Time
	}

	// Money is an amount in the smallest currency unit (cents for USD).
	Money struct {
		MinorUnits int64
	}

	// LineItem is one billable price on a subscription. Nil pointers mean the
	// provider did not send the field.
	LineItem struct {
		ID         string
		UnitAmount *int64 // minor units
		Quantity   *int64
		Interval   BillingInterval
		UsageType  UsageType
	}

	Subscription struct {
		ID     string
		Status SubscriptionStatus
		Items  []LineItem
	}

	Charge struct {
		ID      string
		Amount  Money
		Paid    bool
		Created time.Time
	}
)

// MRRStatuses are the subscription statuses that count towards MRR.
var MRRStatuses = []SubscriptionStatus{StatusActive, StatusPastDue}

// Major converts minor units to major units with exact decimal arithmetic.
func (m Money) Major() decimal.Decimal {
	return decimal.New(m.MinorUnits, -2)
}

// IsRecurring reports whether the interval is one of day, week, month or year.
func (i BillingInterval) IsRecurring() bool {
	switch i {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return true
	default:
		return false
	}
}

// CountsTowardsMRR reports whether subscriptions in this status are eligible inputs.
func (s SubscriptionStatus) CountsTowardsMRR() bool {
	return s == StatusActive || s == StatusPastDue
}

// EffectiveQuantity returns the quantity, defaulting to 1 when absent.
func (li LineItem) EffectiveQuantity() int64 {
	if li.Quantity == nil {
		return 1
	}
	return *li.Quantity
}

// Validate rejects values no provider should ever send. A missing field is
// not an error: it simply makes the item contribute nothing.
func (li LineItem) Validate() error {
	if li.UnitAmount != nil && *li.UnitAmount < 0 {
		return &InvalidInputError{ItemID: li.ID, Field: "unit_amount", Reason: fmt.Sprintf("negative amount %d", *li.UnitAmount)}
	}
	if li.Quantity != nil && *li.Quantity < 1 {
		return &InvalidInputError{ItemID: li.ID, Field: "quantity", Reason: fmt.Sprintf("quantity %d must be at least 1", *li.Quantity)}
	}
	return nil
}

func (s Subscription) Validate() error {
	for _, item := range s.Items {
		if err := item.Validate(); err != nil {
			if iie, ok := err.(*InvalidInputError); ok {
				iie.SubscriptionID = s.ID
			}
			return err
		}
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// AddDays returns the date n days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.AddDate(0, 0, n)}
}

// Int64 returns a pointer to v. Handy for building line items.
func Int64(v int64) *int64 {
	return &v
}
