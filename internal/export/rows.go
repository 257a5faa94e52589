package export

import (
	"time"
)

var pnlHeader = []any{
	"Section", "Name", "Initial allocation", "Equity", "True P&L", "Return %",
	"Accounts", "Week change", "Month change",
}

// buildPnLRows builds the PNL sheet: a header row, one row per line and the gap block.
func buildPnLRows(sheet Sheet) [][]any {
	data := make([][]any, 0, len(sheet.Lines)+8)
	data = append(data, pnlHeader)
	for _, l := range sheet.Lines {
		data = append(data, []any{
			l.Section, l.Label,
			money(l.Initial), money(l.Equity), money(l.PnL),
			l.Return.StringFixed(4), l.Accounts,
			ptrMoney(l.WeekChange), ptrMoney(l.MonthChange),
		})
	}

	if sheet.Gap != nil {
		g := sheet.Gap
		data = append(data,
			[]any{},
			[]any{"gap", "CORE obligation", money(g.Core.Principal), "", money(g.Core.Obligation)},
			[]any{"gap", "BALANCE obligation", money(g.Balance.Principal), "", money(g.Balance.Obligation)},
			[]any{"gap", "Total obligations", "", "", money(g.Gap.TotalObligations)},
			[]any{"gap", "Surplus / deficit", "", "", money(g.Gap.SurplusOrDeficit), g.Gap.CoverageRatio.StringFixed(2), string(g.Gap.Status)},
		)
	}
	return data
}

// monitoringCol describes one column of the MONITORING sheet.
type monitoringCol struct {
	header string
	value  func(Sheet) any
}

func lineValue(section, label string, pick func(Line) string) func(Sheet) any {
	return func(s Sheet) any {
		for _, l := range s.Lines {
			if l.Section == section && l.Label == label {
				return pick(l)
			}
		}
		return nil
	}
}

func pnlOf(l Line) string    { return money(l.PnL) }
func equityOf(l Line) string { return money(l.Equity) }

func gapValue(pick func(s Sheet) string) func(Sheet) any {
	return func(s Sheet) any {
		if s.Gap == nil {
			return nil
		}
		return pick(s)
	}
}

// monitoringColumns are the data columns after the date, in order.
var monitoringColumns = []monitoringCol{
	{header: "Client P&L", value: lineValue("tier", "Client capital", pnlOf)},
	{header: "FIDUS P&L", value: lineValue("tier", "FIDUS capital", pnlOf)},
	{header: "Reinvested P&L", value: lineValue("tier", "Reinvested profit", pnlOf)},
	{header: "Total P&L", value: lineValue("tier", "Total", pnlOf)},
	{header: "Total equity", value: lineValue("tier", "Total", equityOf)},
	{header: "CORE P&L", value: lineValue("fund", "CORE", pnlOf)},
	{header: "BALANCE P&L", value: lineValue("fund", "BALANCE", pnlOf)},
	{header: "Separation equity", value: lineValue("held_out", "Separation", equityOf)},
	{header: "Obligations", value: gapValue(func(s Sheet) string { return money(s.Gap.Gap.TotalObligations) })},
	{header: "Surplus / deficit", value: gapValue(func(s Sheet) string { return money(s.Gap.Gap.SurplusOrDeficit) })},
	{header: "Coverage %", value: gapValue(func(s Sheet) string { return s.Gap.Gap.CoverageRatio.StringFixed(2) })},
}

// buildMonitoringRows builds the header row and one data row for the MONITORING sheet.
func buildMonitoringRows(sheet Sheet) (header []any, data []any) {
	header = make([]any, 1+len(monitoringColumns))
	data = make([]any, 1+len(monitoringColumns))
	header[0] = "Date"
	data[0] = sheet.Date.UTC().Format("02.01.2006")
	for i, col := range monitoringColumns {
		header[i+1] = col.header
		data[i+1] = col.value(sheet)
	}
	return header, data
}

func reportDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
