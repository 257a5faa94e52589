package export

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

// SheetsWriter implements SheetWriter using the Google Sheets API.
type SheetsWriter struct {
	spreadsheetID string
	svc           *sheets.Service
}

// NewSheetsWriter creates a SheetsWriter authenticated with a service account JSON.
func NewSheetsWriter(ctx context.Context, spreadsheetID, credentialsJSON string) (*SheetsWriter, error) {
	creds, err := google.CredentialsFromJSON(
		ctx,
		[]byte(credentialsJSON),
		sheets.SpreadsheetsScope,
	)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &SheetsWriter{spreadsheetID: spreadsheetID, svc: svc}, nil
}

// Write rewrites the PNL sheet and appends one MONITORING row.
func (w *SheetsWriter) Write(ctx context.Context, sheet Sheet) error {
	meta, err := w.ensureSheets(ctx, "PNL", "MONITORING")
	if err != nil {
		return err
	}

	_, err = w.svc.Spreadsheets.Values.Clear(
		w.spreadsheetID, "PNL!A:I", &sheets.ClearValuesRequest{},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clearing PNL sheet: %w", err)
	}

	_, err = w.svc.Spreadsheets.Values.Update(
		w.spreadsheetID,
		"PNL!A1",
		&sheets.ValueRange{Values: buildPnLRows(sheet)},
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("writing PNL sheet: %w", err)
	}

	return w.appendMonitoring(ctx, sheet, meta["MONITORING"])
}

// appendMonitoring writes the header if the sheet is empty, then appends the data row.
func (w *SheetsWriter) appendMonitoring(ctx context.Context, sheet Sheet, mon sheetMeta) error {
	header, dataRow := buildMonitoringRows(sheet)

	existing, err := w.svc.Spreadsheets.Values.Get(w.spreadsheetID, "MONITORING!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("reading MONITORING header: %w", err)
	}

	if len(existing.Values) == 0 {
		_, err = w.svc.Spreadsheets.Values.Update(
			w.spreadsheetID,
			"MONITORING!A1",
			&sheets.ValueRange{Values: [][]any{header}},
		).ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("writing MONITORING header: %w", err)
		}
		if err := w.formatMonitoringHeader(ctx, mon); err != nil {
			return fmt.Errorf("formatting MONITORING sheet: %w", err)
		}
	}

	_, err = w.svc.Spreadsheets.Values.Append(
		w.spreadsheetID,
		"MONITORING!A:L",
		&sheets.ValueRange{Values: [][]any{dataRow}},
	).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appending MONITORING row: %w", err)
	}
	return nil
}

// formatMonitoringHeader gives the header row a light-green background and freezes
// the date column and header row.
func (w *SheetsWriter) formatMonitoringHeader(ctx context.Context, mon sheetMeta) error {
	lightGreen := &sheets.Color{Red: 0.851, Green: 0.918, Blue: 0.827}
	totalCols := int64(1 + len(monitoringColumns))

	reqs := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{SheetId: mon.id, StartRowIndex: 0, EndRowIndex: 1, StartColumnIndex: 0, EndColumnIndex: totalCols},
				Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
					BackgroundColor:     lightGreen,
					TextFormat:          &sheets.TextFormat{Bold: true},
					HorizontalAlignment: "CENTER",
				}},
				Fields: "userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)",
			},
		},
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:        mon.id,
					GridProperties: &sheets.GridProperties{FrozenRowCount: 1, FrozenColumnCount: 1},
				},
				Fields: "gridProperties.frozenRowCount,gridProperties.frozenColumnCount",
			},
		},
	}

	_, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: reqs},
	).Context(ctx).Do()
	return err
}

type sheetMeta struct {
	id int64
}

// ensureSheets creates any of the named sheets that do not already exist and returns
// the metadata of all of them.
func (w *SheetsWriter) ensureSheets(ctx context.Context, names ...string) (map[string]sheetMeta, error) {
	spreadsheet, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting spreadsheet metadata: %w", err)
	}

	meta := make(map[string]sheetMeta, len(spreadsheet.Sheets))
	for _, s := range spreadsheet.Sheets {
		meta[s.Properties.Title] = sheetMeta{id: s.Properties.SheetId}
	}

	var requests []*sheets.Request
	for _, name := range names {
		if _, ok := meta[name]; !ok {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: name},
				},
			})
		}
	}

	if len(requests) == 0 {
		return meta, nil
	}

	resp, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: requests},
	).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("creating sheets: %w", err)
	}
	for _, r := range resp.Replies {
		if r.AddSheet != nil && r.AddSheet.Properties != nil {
			meta[r.AddSheet.Properties.Title] = sheetMeta{id: r.AddSheet.Properties.SheetId}
		}
	}

	return meta, nil
}
