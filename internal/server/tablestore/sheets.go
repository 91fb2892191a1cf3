package tablestore

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"google.golang.org/api/sheets/v4"

	"github.com/penter405/cubetimer-backend/internal/common"
)

// Sheets is the production Store backed by one Google spreadsheet.
// Each logical table (UserMap, Counts, Total, the score windows and the
// materialized views) is a sheet inside that spreadsheet.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
}

func NewSheets(svc *sheets.Service, spreadsheetID string) *Sheets {
	return &Sheets{svc: svc, spreadsheetID: spreadsheetID}
}

func (s *Sheets) ColumnCount(ctx context.Context, sheet string) (int, error) {
	meta, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties(title,gridProperties.columnCount)").
		Context(ctx).Do()
	if err != nil {
		return 0, storeErr("get spreadsheet metadata", err)
	}

	for _, sh := range meta.Sheets {
		if sh.Properties != nil && sh.Properties.Title == sheet {
			if sh.Properties.GridProperties == nil {
				break
			}
			return int(sh.Properties.GridProperties.ColumnCount), nil
		}
	}
	return 0, fmt.Errorf("sheet %q: %w", sheet, common.ErrNotFound)
}

func (s *Sheets) ReadColumns(ctx context.Context, span ColumnSpan) ([][]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, a1Columns(span)).
		Context(ctx).Do()
	if err != nil {
		return nil, storeErr("read "+a1Columns(span), err)
	}
	return padRows(resp.Values, span.Width()), nil
}

func (s *Sheets) BatchRead(ctx context.Context, spans []ColumnSpan) ([][][]string, error) {
	call := s.svc.Spreadsheets.Values.BatchGet(s.spreadsheetID)
	ranges := make([]string, 0, len(spans))
	for _, span := range spans {
		ranges = append(ranges, a1Columns(span))
	}

	resp, err := call.Ranges(ranges...).Context(ctx).Do()
	if err != nil {
		return nil, storeErr("batch read", err)
	}

	out := make([][][]string, len(spans))
	for i := range spans {
		if i < len(resp.ValueRanges) && resp.ValueRanges[i] != nil {
			out[i] = padRows(resp.ValueRanges[i].Values, spans[i].Width())
		}
	}
	return out, nil
}

// appendedRowRe extracts the first row number from an updated range such
// as "Total!A17:B17".
var appendedRowRe = regexp.MustCompile(`![A-Z]+(\d+)`)

func (s *Sheets) Append(ctx context.Context, span ColumnSpan, values []string) (int, error) {
	vr := &sheets.ValueRange{
		MajorDimension: "ROWS",
		Values:         [][]any{toCells(values)},
	}

	resp, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, a1Columns(span), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return 0, storeErr("append to "+a1Columns(span), err)
	}
	if resp.Updates == nil {
		return 0, fmt.Errorf("append to %s: no update info: %w", span.Sheet, common.ErrStoreUnavailable)
	}

	m := appendedRowRe.FindStringSubmatch(resp.Updates.UpdatedRange)
	if m == nil {
		return 0, fmt.Errorf("append to %s: unparseable range %q: %w",
			span.Sheet, resp.Updates.UpdatedRange, common.ErrCorruptRecord)
	}
	row, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("append to %s: row in %q: %w",
			span.Sheet, resp.Updates.UpdatedRange, common.ErrCorruptRecord)
	}
	return row, nil
}

func (s *Sheets) BatchWrite(ctx context.Context, updates []RowUpdate) error {
	data := make([]*sheets.ValueRange, 0, len(updates))
	for _, u := range updates {
		data = append(data, &sheets.ValueRange{
			Range:  a1Row(u.Span, u.Row),
			Values: [][]any{toCells(u.Values)},
		})
	}

	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: "RAW", Data: data}
	_, err := s.svc.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return storeErr("batch write", err)
	}
	return nil
}

func (s *Sheets) Overwrite(ctx context.Context, span ColumnSpan, rows [][]string) error {
	rangeA1 := a1Columns(span)

	_, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, rangeA1, &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return storeErr("clear "+rangeA1, err)
	}
	if len(rows) == 0 {
		return nil
	}

	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		values = append(values, toCells(r))
	}
	vr := &sheets.ValueRange{Values: values}

	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, a1Row(span, 1), vr).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return storeErr("rewrite "+rangeA1, err)
	}
	return nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, common.ErrStoreUnavailable)
}

// a1Columns renders a span as a whole-column A1 range, e.g. "UserMap!P:R".
func a1Columns(span ColumnSpan) string {
	return fmt.Sprintf("%s!%s:%s", span.Sheet, columnLetter(span.Start), columnLetter(span.End))
}

// a1Row renders the cells of one row inside a span, e.g. "UserMap!P4:R4".
func a1Row(span ColumnSpan, row int) string {
	return fmt.Sprintf("%s!%s%d:%s%d",
		span.Sheet, columnLetter(span.Start), row, columnLetter(span.End), row)
}

func columnLetter(col int) string {
	letter := ""
	for col >= 0 {
		letter = string(rune('A'+col%26)) + letter
		col = col/26 - 1
	}
	return letter
}

func toCells(values []string) []any {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func padRows(values [][]any, width int) [][]string {
	rows := make([][]string, 0, len(values))
	for _, raw := range values {
		row := make([]string, width)
		for i := 0; i < width && i < len(raw); i++ {
			row[i] = fmt.Sprint(raw[i])
		}
		rows = append(rows, row)
	}
	return rows
}
