package export

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/fidus-platform/fidus/internal/domain"
	"github.com/fidus-platform/fidus/internal/fund"
	"github.com/fidus-platform/fidus/internal/snapshot"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func tier(t domain.Tier, initial, equity string, count int) domain.TieredPnLResult {
	pnl := dec(equity).Sub(dec(initial))
	return domain.TieredPnLResult{
		Tier:              t,
		InitialAllocation: dec(initial),
		CurrentEquity:     dec(equity),
		TruePnL:           pnl,
		ReturnPercentage:  domain.Percentage(pnl, dec(initial)),
		AccountCount:      count,
	}
}

func testReport(date time.Time, clientEquity string) snapshot.Report {
	client := tier(domain.TierClient, "18151.41", clientEquity, 1)
	fidus := tier(domain.TierFidus, "5000", "4337.06", 1)
	reinv := tier(domain.TierReinvested, "1000", "1300", 1)
	total := tier("", "24151.41", dec(clientEquity).Add(dec("5637.06")).String(), 3)
	return snapshot.Report{
		ID:   "r-" + date.Format(time.DateOnly),
		Date: date,
		Admin: domain.AdminView{
			Client:       client,
			Fidus:        fidus,
			Reinvested:   reinv,
			Total:        total,
			Separation:   domain.HeldOutBalance{CapitalSource: domain.CapitalSeparation, Equity: dec("250"), AccountCount: 1},
			Intermediary: domain.HeldOutBalance{CapitalSource: domain.CapitalIntermediary},
			Funds: []domain.FundPnL{
				{Fund: domain.FundCore, TieredPnLResult: client},
				{Fund: domain.FundBalance, TieredPnLResult: fidus},
			},
		},
		Gap: &fund.GapReport{
			Core:    fund.FundObligation{Fund: domain.FundCore, Principal: dec("10000"), Obligation: dec("1800")},
			Balance: fund.FundObligation{Fund: domain.FundBalance},
			Gap: fund.Gap{
				TotalObligations: dec("1800"),
				SurplusOrDeficit: dec("200"),
				CoverageRatio:    dec("111.11"),
				Status:           fund.StatusSurplus,
			},
		},
	}
}

type mockHistory struct {
	reports []snapshot.Report
	err     error
}

func (m *mockHistory) GetNearestBefore(_ context.Context, date time.Time) (*snapshot.Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	var best *snapshot.Report
	for i := range m.reports {
		if !m.reports[i].Date.After(date) && (best == nil || m.reports[i].Date.After(best.Date)) {
			best = &m.reports[i]
		}
	}
	if best == nil {
		return nil, snapshot.ErrNotFound
	}
	data, err := json.Marshal(best)
	if err != nil {
		return nil, err
	}
	return &snapshot.Snapshot{ID: best.ID, SnapshotDate: best.Date, Data: data}, nil
}

type recordingWriter struct {
	sheets []Sheet
	err    error
}

func (w *recordingWriter) Write(_ context.Context, sheet Sheet) error {
	w.sheets = append(w.sheets, sheet)
	return w.err
}

func findLine(t *testing.T, lines []Line, section, label string) Line {
	t.Helper()
	for _, l := range lines {
		if l.Section == section && l.Label == label {
			return l
		}
	}
	t.Fatalf("line %s/%s not found", section, label)
	return Line{}
}

func TestBuildLines(t *testing.T) {
	lines := buildLines(testReport(time.Date(2025, 10, 14, 0, 0, 0, 0, time.UTC), "18523.68"))

	if len(lines) != 8 {
		t.Fatalf("lines = %d, want 8", len(lines))
	}
	client := findLine(t, lines, "tier", "Client capital")
	if !client.PnL.Equal(dec("372.27")) {
		t.Errorf("client pnl = %s, want 372.27", client.PnL)
	}
	core := findLine(t, lines, "fund", "CORE")
	if !core.PnL.Equal(client.PnL) {
		t.Errorf("CORE pnl = %s, want %s", core.PnL, client.PnL)
	}
	sep := findLine(t, lines, "held_out", "Separation")
	if !sep.Equity.Equal(dec("250")) || !sep.PnL.IsZero() {
		t.Errorf("separation = %+v", sep)
	}
}

func TestExport_Changes(t *testing.T) {
	today := time.Date(2025, 10, 14, 0, 0, 0, 0, time.UTC)
	history := &mockHistory{reports: []snapshot.Report{
		testReport(today.AddDate(0, 0, -30), "18251.41"),
		testReport(today.AddDate(0, 0, -7), "18451.41"),
	}}
	history.reports[0].Admin.Separation.Equity = dec("100")

	w := &recordingWriter{}
	svc := NewService(history, w)
	if err := svc.Export(context.Background(), testReport(today, "18523.68")); err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if len(w.sheets) != 1 {
		t.Fatalf("writes = %d, want 1", len(w.sheets))
	}

	client := findLine(t, w.sheets[0].Lines, "tier", "Client capital")
	if client.WeekChange == nil || !client.WeekChange.Equal(dec("72.27")) {
		t.Errorf("week change = %v, want 72.27", client.WeekChange)
	}
	if client.MonthChange == nil || !client.MonthChange.Equal(dec("272.27")) {
		t.Errorf("month change = %v, want 272.27", client.MonthChange)
	}

	sep := findLine(t, w.sheets[0].Lines, "held_out", "Separation")
	if sep.MonthChange == nil || !sep.MonthChange.Equal(dec("150")) {
		t.Errorf("separation month change = %v, want 150", sep.MonthChange)
	}
}

func TestExport_NoHistory(t *testing.T) {
	w := &recordingWriter{}
	svc := NewService(&mockHistory{err: errors.New("db down")}, w)
	if err := svc.Export(context.Background(), testReport(time.Now().UTC(), "18523.68")); err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	for _, l := range w.sheets[0].Lines {
		if l.WeekChange != nil || l.MonthChange != nil {
			t.Errorf("%s/%s has changes without history", l.Section, l.Label)
		}
	}
}

func TestExport_WriterErrorsJoined(t *testing.T) {
	failing := &recordingWriter{err: errors.New("quota exceeded")}
	ok := &recordingWriter{}
	svc := NewService(nil, failing, ok)

	err := svc.Export(context.Background(), testReport(time.Now().UTC(), "18523.68"))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(ok.sheets) != 1 {
		t.Error("second writer was skipped after the first failed")
	}
}

func TestBuildMonitoringRows(t *testing.T) {
	sheet := Sheet{
		Date:  time.Date(2025, 10, 14, 0, 0, 0, 0, time.UTC),
		Lines: buildLines(testReport(time.Time{}, "18523.68")),
		Gap:   testReport(time.Time{}, "18523.68").Gap,
	}
	header, data := buildMonitoringRows(sheet)

	if len(header) != len(data) || len(header) != 1+len(monitoringColumns) {
		t.Fatalf("header %d, data %d", len(header), len(data))
	}
	if data[0] != "14.10.2025" {
		t.Errorf("date = %v", data[0])
	}
	want := map[string]any{
		"Client P&L":        "372.27",
		"Separation equity": "250.00",
		"Surplus / deficit": "200.00",
		"Coverage %":        "111.11",
	}
	for i, h := range header {
		if w, ok := want[h.(string)]; ok && data[i] != w {
			t.Errorf("%s = %v, want %v", h, data[i], w)
		}
	}

	sheet.Gap = nil
	_, data = buildMonitoringRows(sheet)
	if data[len(data)-1] != nil {
		t.Errorf("coverage without gap = %v, want nil", data[len(data)-1])
	}
}

func TestXLSXWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	w := NewXLSXWriter(dir)
	sheet := Sheet{
		Date:  time.Date(2025, 10, 14, 0, 0, 0, 0, time.UTC),
		Lines: buildLines(testReport(time.Time{}, "18523.68")),
	}

	if err := w.Write(context.Background(), sheet); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	path := w.Path(sheet)
	if filepath.Base(path) != "fidus_pnl_2025-10-14.xlsx" {
		t.Errorf("path = %s", path)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error: %v", err)
	}
	defer f.Close()

	if got, _ := f.GetCellValue("PNL", "B2"); got != "Client capital" {
		t.Errorf("PNL!B2 = %q", got)
	}
	if got, _ := f.GetCellValue("PNL", "E2"); got != "372.27" {
		t.Errorf("PNL!E2 = %q, want 372.27", got)
	}
	if got, _ := f.GetCellValue("MONITORING", "A2"); got != "14.10.2025" {
		t.Errorf("MONITORING!A2 = %q", got)
	}
}
