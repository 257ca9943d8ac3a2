// Package services provides business logic and orchestration services.
//
// This file holds the per-interval strategies that turn a periodic charge
// into its monthly-equivalent share. Each billing interval the provider
// supports has its own normalizer; unknown intervals have none.

package services

import (
	"fmt"

	"github.com/shopspring/decimal"

	"personalos/internal/core"
)

var (
	monthsPerYear = decimal.NewFromInt(12)
	weeksPerMonth = decimal.RequireFromString("4.33")  // 52 / 12
	daysPerMonth  = decimal.RequireFromString("30.42") // 365 / 12
)

// IntervalNormalizer is the strategy interface for converting one billing
// period's charge into a monthly amount.
type IntervalNormalizer interface {
	MonthlyEquivalent(charge decimal.Decimal) decimal.Decimal
}

// MonthlyNormalizer passes monthly charges through unchanged.
type MonthlyNormalizer struct{}

func (MonthlyNormalizer) MonthlyEquivalent(charge decimal.Decimal) decimal.Decimal {
	return charge
}

// YearlyNormalizer spreads an annual charge over 12 months.
type YearlyNormalizer struct{}

func (YearlyNormalizer) MonthlyEquivalent(charge decimal.Decimal) decimal.Decimal {
	return charge.Div(monthsPerYear)
}

// WeeklyNormalizer multiplies by 4.33 weeks per month.
type WeeklyNormalizer struct{}

func (WeeklyNormalizer) MonthlyEquivalent(charge decimal.Decimal) decimal.Decimal {
	return charge.Mul(weeksPerMonth)
}

// DailyNormalizer multiplies by 30.42 days per month.
type DailyNormalizer struct{}

func (DailyNormalizer) MonthlyEquivalent(charge decimal.Decimal) decimal.Decimal {
	return charge.Mul(daysPerMonth)
}

// intervalStrategies maps billing intervals to their normalizers.
var intervalStrategies = map[core.BillingInterval]IntervalNormalizer{
	core.IntervalDay:   DailyNormalizer{},
	core.IntervalWeek:  WeeklyNormalizer{},
	core.IntervalMonth: MonthlyNormalizer{},
	core.IntervalYear:  YearlyNormalizer{},
}

// GetIntervalNormalizer returns the normalizer for a billing interval.
// Returns an error if the interval is not supported.
func GetIntervalNormalizer(interval core.BillingInterval) (IntervalNormalizer, error) {
	n, ok := intervalStrategies[interval]
	if !ok {
		return nil, fmt.Errorf("unknown billing interval: %q", interval)
	}
	return n, nil
}

// RegisterIntervalNormalizer installs a normalizer for a new interval.
// Not safe for concurrent use; call it during program initialization.
func RegisterIntervalNormalizer(interval core.BillingInterval, n IntervalNormalizer) {
	intervalStrategies[interval] = n
}
