package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// XLSXWriter implements SheetWriter by saving one workbook per report date.
type XLSXWriter struct {
	dir string
}

// NewXLSXWriter creates a writer saving workbooks under dir.
func NewXLSXWriter(dir string) *XLSXWriter {
	return &XLSXWriter{dir: dir}
}

// Path returns the workbook path for a sheet.
func (w *XLSXWriter) Path(sheet Sheet) string {
	return filepath.Join(w.dir, "fidus_pnl_"+reportDate(sheet.Date)+".xlsx")
}

// Write renders the PNL and MONITORING sheets and saves the workbook.
func (w *XLSXWriter) Write(_ context.Context, sheet Sheet) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "PNL"); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	if err := writeRows(f, "PNL", buildPnLRows(sheet)); err != nil {
		return err
	}

	if _, err := f.NewSheet("MONITORING"); err != nil {
		return fmt.Errorf("creating MONITORING sheet: %w", err)
	}
	header, data := buildMonitoringRows(sheet)
	if err := writeRows(f, "MONITORING", [][]any{header, data}); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9EAD3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	for _, name := range []string{"PNL", "MONITORING"} {
		if err := f.SetRowStyle(name, 1, 1, bold); err != nil {
			return fmt.Errorf("styling %s header: %w", name, err)
		}
	}

	if err := f.SaveAs(w.Path(sheet)); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

// writeRows writes rows starting at A1. Money strings are stored as numbers with
// two decimals so spreadsheet formulas keep working.
func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return fmt.Errorf("addressing %s cell: %w", sheet, err)
			}
			if err := setCell(f, sheet, cell, v, r > 0); err != nil {
				return fmt.Errorf("writing %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

func setCell(f *excelize.File, sheet, cell string, v any, numeric bool) error {
	s, ok := v.(string)
	if !ok || !numeric {
		return f.SetCellValue(sheet, cell, v)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return f.SetCellStr(sheet, cell, s)
	}
	return f.SetCellFloat(sheet, cell, d.InexactFloat64(), int(-d.Exponent()), 64)
}
