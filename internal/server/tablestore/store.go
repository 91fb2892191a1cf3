// Package tablestore defines the boundary to the row/column-oriented
// backing store and its implementations. The store exposes range reads,
// batched range writes and append-with-position semantics; everything the
// directory, migration and leaderboard layers need is expressed through
// the Store interface so tests can run against the in-memory backend.
package tablestore

import "context"

// ColumnSpan addresses a contiguous, whole-height column range inside a
// named sheet. Columns are 0-based and the span is inclusive on both ends.
type ColumnSpan struct {
	Sheet string
	Start int
	End   int
}

// Width returns the number of columns covered by the span.
func (s ColumnSpan) Width() int {
	return s.End - s.Start + 1
}

// RowUpdate overwrites the cells of one row inside a column span.
// Row is 1-based, matching the positions returned by Append.
type RowUpdate struct {
	Span   ColumnSpan
	Row    int
	Values []string
}

// Store is the minimal surface of the backing table store.
//
// ReadColumns and BatchRead return one slice per row, padded to the span
// width, up to the last row that has any non-empty cell inside the span.
// Append writes after that last row and returns the 1-based position it
// landed on; for append-log sheets that position doubles as an identifier
// and is never reused.
type Store interface {
	// ColumnCount reports the sheet's current column capacity.
	ColumnCount(ctx context.Context, sheet string) (int, error)

	ReadColumns(ctx context.Context, span ColumnSpan) ([][]string, error)
	BatchRead(ctx context.Context, spans []ColumnSpan) ([][][]string, error)

	Append(ctx context.Context, span ColumnSpan, values []string) (int, error)
	BatchWrite(ctx context.Context, updates []RowUpdate) error

	// Overwrite clears the span and rewrites it from row 1.
	Overwrite(ctx context.Context, span ColumnSpan, rows [][]string) error
}
