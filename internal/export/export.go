// Package export renders P&L snapshots into spreadsheet sinks.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/fidus-platform/fidus/internal/domain"
	"github.com/fidus-platform/fidus/internal/fund"
	"github.com/fidus-platform/fidus/internal/snapshot"
)

// Line is one row of the P&L sheet with its change against earlier snapshots.
type Line struct {
	Section     string
	Label       string
	Initial     decimal.Decimal
	Equity      decimal.Decimal
	PnL         decimal.Decimal
	Return      decimal.Decimal
	Accounts    int
	WeekChange  *decimal.Decimal
	MonthChange *decimal.Decimal
}

// Sheet is everything a writer renders for one report.
type Sheet struct {
	Date  time.Time
	Lines []Line
	Gap   *fund.GapReport
}

// SheetWriter writes a rendered report to a spreadsheet destination.
type SheetWriter interface {
	Write(ctx context.Context, sheet Sheet) error
}

// HistorySource looks up earlier snapshots for period-over-period changes.
type HistorySource interface {
	GetNearestBefore(ctx context.Context, date time.Time) (*snapshot.Snapshot, error)
}

// Service builds sheet rows from a report and hands them to every writer.
type Service struct {
	history HistorySource
	writers []SheetWriter
}

// NewService creates a new export Service. history may be nil, in which case no
// changes are computed.
func NewService(history HistorySource, writers ...SheetWriter) *Service {
	return &Service{history: history, writers: writers}
}

// Export renders the report and writes it to all writers. Implements worker.AfterSnapshotHook.
// Every writer is attempted; their errors are joined.
func (s *Service) Export(ctx context.Context, report snapshot.Report) error {
	lines := buildLines(report)

	week := s.historical(ctx, report.Date, 7)
	month := s.historical(ctx, report.Date, 30)
	for i := range lines {
		lines[i].WeekChange = computeChange(lines[i], week)
		lines[i].MonthChange = computeChange(lines[i], month)
	}

	sheet := Sheet{Date: report.Date, Lines: lines, Gap: report.Gap}
	var errs []error
	for _, w := range s.writers {
		if err := w.Write(ctx, sheet); err != nil {
			errs = append(errs, fmt.Errorf("writing %T: %w", w, err))
		}
	}
	return errors.Join(errs...)
}

// historical returns the lines of the latest snapshot at least days before date, keyed by label.
func (s *Service) historical(ctx context.Context, date time.Time, days int) map[string]Line {
	if s.history == nil {
		return nil
	}
	snap, err := s.history.GetNearestBefore(ctx, date.AddDate(0, 0, -days))
	if err != nil {
		slog.Warn("export: historical snapshot unavailable", "days", days, "error", err)
		return nil
	}
	past, err := snapshot.Decode(snap)
	if err != nil {
		slog.Warn("export: failed to decode historical snapshot", "days", days, "error", err)
		return nil
	}
	return lo.KeyBy(buildLines(past), func(l Line) string { return l.Section + "/" + l.Label })
}

func buildLines(report snapshot.Report) []Line {
	v := report.Admin
	lines := []Line{
		tierLine("tier", "Client capital", v.Client),
		tierLine("tier", "FIDUS capital", v.Fidus),
		tierLine("tier", "Reinvested profit", v.Reinvested),
		tierLine("tier", "Total", v.Total),
	}
	for _, f := range v.Funds {
		lines = append(lines, tierLine("fund", string(f.Fund), f.TieredPnLResult))
	}
	lines = append(lines,
		heldOutLine("Separation", v.Separation),
		heldOutLine("Intermediary", v.Intermediary),
	)
	return lines
}

func tierLine(section, label string, r domain.TieredPnLResult) Line {
	return Line{
		Section:  section,
		Label:    label,
		Initial:  r.InitialAllocation,
		Equity:   r.CurrentEquity,
		PnL:      r.TruePnL,
		Return:   r.ReturnPercentage,
		Accounts: r.AccountCount,
	}
}

func heldOutLine(label string, h domain.HeldOutBalance) Line {
	return Line{
		Section:  "held_out",
		Label:    label,
		Initial:  decimal.Zero,
		Equity:   h.Equity,
		PnL:      decimal.Zero,
		Return:   decimal.Zero,
		Accounts: h.AccountCount,
	}
}

// computeChange returns the absolute P&L change against the historical line, or nil
// if unavailable. For held-out lines it tracks equity instead.
func computeChange(current Line, byKey map[string]Line) *decimal.Decimal {
	if byKey == nil {
		return nil
	}
	hist, ok := byKey[current.Section+"/"+current.Label]
	if !ok {
		return nil
	}
	change := current.PnL.Sub(hist.PnL)
	if current.Section == "held_out" {
		change = current.Equity.Sub(hist.Equity)
	}
	return &change
}

// money renders a decimal as a fixed two-place string so sinks never see binary floats.
func money(d decimal.Decimal) string {
	return domain.FormatMoney(d)
}

func ptrMoney(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return money(*d)
}
