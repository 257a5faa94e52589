// Package analytics derives trading statistics from an account's deal history.
package analytics

import (
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/fidus-platform/fidus/internal/deals"
	"github.com/fidus-platform/fidus/internal/domain"
)

// DailyPnL is the realized trading result of one UTC calendar day.
type DailyPnL struct {
	Date          string          `json:"date"`
	NetPnL        decimal.Decimal `json:"netPnl"`
	CumulativePnL decimal.Decimal `json:"cumulativePnl"`
	Trades        int             `json:"trades"`
}

// Report holds trade statistics over a window.
type Report struct {
	Summary      deals.Summary   `json:"summary"`
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
	WinRate      decimal.Decimal `json:"winRate"`
	GrossProfit  decimal.Decimal `json:"grossProfit"`
	GrossLoss    decimal.Decimal `json:"grossLoss"`
	NetProfit    decimal.Decimal `json:"netProfit"`
	ProfitFactor decimal.Decimal `json:"profitFactor"`
	AverageWin   decimal.Decimal `json:"averageWin"`
	AverageLoss  decimal.Decimal `json:"averageLoss"`
	LargestWin   decimal.Decimal `json:"largestWin"`
	LargestLoss  decimal.Decimal `json:"largestLoss"`
	MaxDrawdown  decimal.Decimal `json:"maxDrawdown"`
	DailyStdDev  float64         `json:"dailyStdDev"`
	Daily        []DailyPnL      `json:"daily"`
}

// Analyze computes trade statistics for the deduplicated trade deals in the window.
// Gross loss, average loss, largest loss and max drawdown are positive magnitudes.
// Profit factor is zero when there are no losing trades.
func Analyze(records []domain.DealRecord, window domain.Window, reducer *deals.Reducer) (Report, error) {
	summary, err := reducer.Reduce(records, window)
	if err != nil {
		return Report{}, err
	}
	report := Report{
		Summary:      summary,
		WinRate:      decimal.Zero,
		GrossProfit:  decimal.Zero,
		GrossLoss:    decimal.Zero,
		NetProfit:    decimal.Zero,
		ProfitFactor: decimal.Zero,
		AverageWin:   decimal.Zero,
		AverageLoss:  decimal.Zero,
		LargestWin:   decimal.Zero,
		LargestLoss:  decimal.Zero,
		MaxDrawdown:  decimal.Zero,
		Daily:        []DailyPnL{},
	}

	window = reducer.Resolve(window)
	if window.Empty() {
		return report, nil
	}
	trades := lo.Filter(deals.Dedupe(records), func(d domain.DealRecord, _ int) bool {
		return d.Type.IsTrade() && window.Contains(d.Time)
	})

	for _, t := range trades {
		switch {
		case t.Profit.IsPositive():
			report.Wins++
			report.GrossProfit = report.GrossProfit.Add(t.Profit)
			report.LargestWin = decimal.Max(report.LargestWin, t.Profit)
		case t.Profit.IsNegative():
			report.Losses++
			report.GrossLoss = report.GrossLoss.Add(t.Profit.Abs())
			report.LargestLoss = decimal.Max(report.LargestLoss, t.Profit.Abs())
		}
	}
	report.NetProfit = report.GrossProfit.Sub(report.GrossLoss)
	if closed := report.Wins + report.Losses; closed > 0 {
		report.WinRate = domain.Percentage(decimal.NewFromInt(int64(report.Wins)), decimal.NewFromInt(int64(closed)))
	}
	if report.Wins > 0 {
		report.AverageWin = domain.RoundMoney(report.GrossProfit.Div(decimal.NewFromInt(int64(report.Wins))))
	}
	if report.Losses > 0 {
		report.AverageLoss = domain.RoundMoney(report.GrossLoss.Div(decimal.NewFromInt(int64(report.Losses))))
		report.ProfitFactor = report.GrossProfit.Div(report.GrossLoss).Round(4)
	}

	report.Daily = daily(trades)
	report.MaxDrawdown = maxDrawdown(report.Daily)
	report.DailyStdDev = dailyStdDev(report.Daily)
	return report, nil
}

func daily(trades []domain.DealRecord) []DailyPnL {
	byDay := lo.GroupBy(trades, func(d domain.DealRecord) string {
		return d.Time.UTC().Format("2006-01-02")
	})
	days := lo.Keys(byDay)
	sort.Strings(days)

	cumulative := decimal.Zero
	out := make([]DailyPnL, 0, len(days))
	for _, day := range days {
		net := lo.Reduce(byDay[day], func(acc decimal.Decimal, d domain.DealRecord, _ int) decimal.Decimal {
			return acc.Add(d.Profit)
		}, decimal.Zero)
		cumulative = cumulative.Add(net)
		out = append(out, DailyPnL{Date: day, NetPnL: net, CumulativePnL: cumulative, Trades: len(byDay[day])})
	}
	return out
}

// maxDrawdown is the deepest fall of cumulative P&L from a running peak that starts at zero.
func maxDrawdown(days []DailyPnL) decimal.Decimal {
	peak := decimal.Zero
	worst := decimal.Zero
	for _, d := range days {
		peak = decimal.Max(peak, d.CumulativePnL)
		worst = decimal.Max(worst, peak.Sub(d.CumulativePnL))
	}
	return worst
}

func dailyStdDev(days []DailyPnL) float64 {
	if len(days) < 2 {
		return 0
	}
	values := lo.Map(days, func(d DailyPnL, _ int) float64 {
		return d.NetPnL.InexactFloat64()
	})
	return stat.StdDev(values, nil)
}

// DailyNet extracts the per-day net P&L series.
func (r Report) DailyNet() []decimal.Decimal {
	return lo.Map(r.Daily, func(d DailyPnL, _ int) decimal.Decimal { return d.NetPnL })
}
