package services

import (
	"github.com/shopspring/decimal"

	"personalos/internal/core"
)

// NormalizeMRR reduces subscriptions to a single monthly-recurring-revenue
// figure. The caller must already have filtered to active and past_due
// subscriptions.
//
// Metered items, items without a unit amount and items without a known
// billing interval contribute nothing. A negative amount or a quantity
// below 1 fails the whole computation with *core.InvalidInputError.
//
// The rounded amount uses round-half-away-from-zero to whole major units.
func NormalizeMRR(subs []core.Subscription) (core.MRRResult, error) {
	for _, sub := range subs {
		if err := sub.Validate(); err != nil {
			return core.MRRResult{}, err
		}
	}

	total := decimal.Zero
	for _, sub := range subs {
		for _, item := range sub.Items {
			total = total.Add(MonthlyContribution(item))
		}
	}

	return core.MRRResult{
		Amount:            total.Round(0),
		Exact:             total,
		SubscriptionCount: len(subs),
	}, nil
}

// MonthlyContribution returns the monthly-equivalent amount of one line
// item in major units. The item is assumed valid.
func MonthlyContribution(item core.LineItem) decimal.Decimal {
	if item.UsageType == core.UsageMetered {
		return decimal.Zero
	}
	if item.UnitAmount == nil || *item.UnitAmount == 0 {
		return decimal.Zero
	}
	n, err := GetIntervalNormalizer(item.Interval)
	if err != nil {
		return decimal.Zero
	}

	unit := core.Money{MinorUnits: *item.UnitAmount}.Major()
	charge := unit.Mul(decimal.NewFromInt(item.EffectiveQuantity()))
	return n.MonthlyEquivalent(charge)
}

// SumPaidCharges adds up paid charges in major units, rounded like MRR.
// Unpaid charges are ignored.
func SumPaidCharges(charges []core.Charge) decimal.Decimal {
	total := decimal.Zero
	for _, c := range charges {
		if !c.Paid {
			continue
		}
		total = total.Add(c.Amount.Major())
	}
	return total.Round(0)
}
