package tablestore

import (
	"context"
	"fmt"
	"sync"

	"github.com/penter405/cubetimer-backend/internal/common"
)

// Memory is an in-process Store used by tests and local development.
// Sheets are created explicitly with a fixed column capacity, mirroring
// how the production spreadsheet is provisioned.
type Memory struct {
	mu     sync.RWMutex
	sheets map[string]*memSheet
}

type memSheet struct {
	cols int
	rows [][]string
}

func NewMemory() *Memory {
	return &Memory{sheets: make(map[string]*memSheet)}
}

// CreateSheet provisions a sheet with the given column capacity.
// Re-creating an existing sheet resets its contents.
func (m *Memory) CreateSheet(name string, cols int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[name] = &memSheet{cols: cols}
}

// Resize changes a sheet's column capacity in place, keeping its rows.
// Used by tests to simulate capacity drift.
func (m *Memory) Resize(name string, cols int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sheets[name]; ok {
		s.cols = cols
	}
}

func (m *Memory) ColumnCount(ctx context.Context, sheet string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sheets[sheet]
	if !ok {
		return 0, fmt.Errorf("sheet %q: %w", sheet, common.ErrNotFound)
	}
	return s.cols, nil
}

func (m *Memory) ReadColumns(ctx context.Context, span ColumnSpan) ([][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, err := m.sheet(span)
	if err != nil {
		return nil, err
	}
	return s.read(span), nil
}

func (m *Memory) BatchRead(ctx context.Context, spans []ColumnSpan) ([][][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([][][]string, 0, len(spans))
	for _, span := range spans {
		s, err := m.sheet(span)
		if err != nil {
			return nil, err
		}
		out = append(out, s.read(span))
	}
	return out, nil
}

func (m *Memory) Append(ctx context.Context, span ColumnSpan, values []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.sheet(span)
	if err != nil {
		return 0, err
	}
	if len(values) > span.Width() {
		return 0, fmt.Errorf("append: %d values exceed span width %d: %w",
			len(values), span.Width(), common.ErrInvalidInput)
	}

	row := s.lastRow(span) + 1
	s.write(span, row, values)
	return row, nil
}

func (m *Memory) BatchWrite(ctx context.Context, updates []RowUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range updates {
		s, err := m.sheet(u.Span)
		if err != nil {
			return err
		}
		if u.Row < 1 {
			return fmt.Errorf("batch write: row %d: %w", u.Row, common.ErrInvalidInput)
		}
		s.write(u.Span, u.Row, u.Values)
	}
	return nil
}

func (m *Memory) Overwrite(ctx context.Context, span ColumnSpan, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.sheet(span)
	if err != nil {
		return err
	}

	for r := range s.rows {
		for c := span.Start; c <= span.End && c < s.cols; c++ {
			s.rows[r][c] = ""
		}
	}
	for i, values := range rows {
		s.write(span, i+1, values)
	}
	return nil
}

func (m *Memory) sheet(span ColumnSpan) (*memSheet, error) {
	s, ok := m.sheets[span.Sheet]
	if !ok {
		return nil, fmt.Errorf("sheet %q: %w", span.Sheet, common.ErrNotFound)
	}
	if span.Start < 0 || span.End < span.Start || span.End >= s.cols {
		return nil, fmt.Errorf("span %s!%d..%d outside capacity %d: %w",
			span.Sheet, span.Start, span.End, s.cols, common.ErrInvalidInput)
	}
	return s, nil
}

// read returns rows padded to the span width, up to the last row with any
// non-empty cell inside the span.
func (s *memSheet) read(span ColumnSpan) [][]string {
	last := s.lastRow(span)
	out := make([][]string, 0, last)
	for r := 0; r < last; r++ {
		row := make([]string, span.Width())
		for c := span.Start; c <= span.End; c++ {
			row[c-span.Start] = s.rows[r][c]
		}
		out = append(out, row)
	}
	return out
}

// lastRow returns the 1-based index of the last row holding a non-empty
// cell within the span, or 0 if the span is empty.
func (s *memSheet) lastRow(span ColumnSpan) int {
	last := 0
	for r := range s.rows {
		for c := span.Start; c <= span.End; c++ {
			if s.rows[r][c] != "" {
				last = r + 1
				break
			}
		}
	}
	return last
}

// write places values at the 1-based row, growing the grid as needed.
func (s *memSheet) write(span ColumnSpan, row int, values []string) {
	for len(s.rows) < row {
		s.rows = append(s.rows, make([]string, s.cols))
	}
	for i, v := range values {
		col := span.Start + i
		if col > span.End || col >= s.cols {
			break
		}
		s.rows[row-1][col] = v
	}
}
