// Package deals reduces an account's deal history to period totals.
package deals

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/fidus-platform/fidus/internal/domain"
)

// Summary is the reduction of a deduplicated deal set over a window.
type Summary struct {
	DealCount        int             `json:"dealCount"`
	TradeCount       int             `json:"tradeCount"`
	TotalVolume      decimal.Decimal `json:"totalVolume"`
	GrossDeposits    decimal.Decimal `json:"grossDeposits"`
	GrossWithdrawals decimal.Decimal `json:"grossWithdrawals"`
	RebateAmount     decimal.Decimal `json:"rebateAmount"`
}

// ZeroSummary returns a summary with explicit zero money fields.
func ZeroSummary() Summary {
	return Summary{
		TotalVolume:      decimal.Zero,
		GrossDeposits:    decimal.Zero,
		GrossWithdrawals: decimal.Zero,
		RebateAmount:     decimal.Zero,
	}
}

// Reducer filters, deduplicates and sums deal records.
// RebateRatePerLot is optional; when nil, Reduce reports a zero rebate.
type Reducer struct {
	RebateRatePerLot *decimal.Decimal
	Now              func() time.Time
}

// NewReducer creates a Reducer. A nil rate disables rebate estimation.
func NewReducer(rebateRatePerLot *decimal.Decimal) *Reducer {
	return &Reducer{RebateRatePerLot: rebateRatePerLot, Now: time.Now}
}

func (r *Reducer) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

// Resolve fills an open window end with the reducer's clock.
func (r *Reducer) Resolve(window domain.Window) domain.Window {
	return window.Resolve(r.now())
}

// Reduce deduplicates deals by (ticket, account), keeps those inside the half-open
// window and sums volume and cash movements. Balance operations with positive profit
// are deposits; negative profit is a withdrawal, reported as a positive magnitude.
func (r *Reducer) Reduce(records []domain.DealRecord, window domain.Window) (Summary, error) {
	window = r.Resolve(window)
	if window.Empty() {
		return ZeroSummary(), nil
	}

	inWindow := lo.Filter(Dedupe(records), func(d domain.DealRecord, _ int) bool {
		return window.Contains(d.Time)
	})

	summary := lo.Reduce(inWindow, func(acc Summary, d domain.DealRecord, _ int) Summary {
		acc.DealCount++
		switch {
		case d.Type.IsTrade():
			acc.TradeCount++
			acc.TotalVolume = acc.TotalVolume.Add(d.Volume)
		case d.Type == domain.EntryBalance && d.Profit.IsPositive():
			acc.GrossDeposits = acc.GrossDeposits.Add(d.Profit)
		case d.Type == domain.EntryBalance && d.Profit.IsNegative():
			acc.GrossWithdrawals = acc.GrossWithdrawals.Add(d.Profit.Abs())
		}
		return acc
	}, ZeroSummary())

	if r.RebateRatePerLot != nil {
		summary.RebateAmount = rebate(summary.TotalVolume, *r.RebateRatePerLot)
	}
	return summary, nil
}

// Rebate estimates the volume rebate and fails when no rate is configured.
func (r *Reducer) Rebate(volume decimal.Decimal) (decimal.Decimal, error) {
	if r.RebateRatePerLot == nil {
		return decimal.Zero, &domain.ConfigurationError{Key: "REBATE_RATE_PER_LOT", Reason: "rebate rate per lot is not configured"}
	}
	return rebate(volume, *r.RebateRatePerLot), nil
}

func rebate(volume, rate decimal.Decimal) decimal.Decimal {
	return domain.RoundMoney(volume.Mul(rate))
}

// Dedupe keeps the first occurrence of every (ticket, account) pair in input order.
// Stores return deals in insertion order, so the first write wins.
func Dedupe(records []domain.DealRecord) []domain.DealRecord {
	return lo.UniqBy(records, func(d domain.DealRecord) domain.DealKey {
		return d.Key()
	})
}
