package tablestore

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penter405/cubetimer-backend/internal/common"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func TestPostgres_ColumnCount(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT column_count FROM sheets WHERE name = $1`)).
		WithArgs("UserMap").
		WillReturnRows(sqlmock.NewRows([]string{"column_count"}).AddRow(24))

	n, err := p.ColumnCount(context.Background(), "UserMap")
	require.NoError(t, err)
	assert.Equal(t, 24, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ColumnCount_Missing(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT column_count FROM sheets WHERE name = $1`)).
		WithArgs("Nope").
		WillReturnRows(sqlmock.NewRows([]string{"column_count"}))

	_, err := p.ColumnCount(context.Background(), "Nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Append(t *testing.T) {
	p, mock := newMockPostgres(t)
	span := ColumnSpan{Sheet: "Total", Start: 0, End: 1}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)).
		WithArgs("Total:0").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(row_index), 0) + 1`)).
		WithArgs("Total", 0, 1).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(17))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO cells`)).
		WithArgs("Total", 17, 0, "user@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	row, err := p.Append(context.Background(), span, []string{"user@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 17, row)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Append_TooWide(t *testing.T) {
	p, _ := newMockPostgres(t)
	span := ColumnSpan{Sheet: "Total", Start: 0, End: 0}

	_, err := p.Append(context.Background(), span, []string{"a", "b"})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestPostgres_ReadColumns_PadsSparseRows(t *testing.T) {
	p, mock := newMockPostgres(t)
	span := ColumnSpan{Sheet: "UserMap", Start: 3, End: 5}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT row_index, col_index, value FROM cells`)).
		WithArgs("UserMap", 3, 5).
		WillReturnRows(sqlmock.NewRows([]string{"row_index", "col_index", "value"}).
			AddRow(2, 3, "x@x.com").
			AddRow(2, 4, "7"))

	rows, err := p.ReadColumns(context.Background(), span)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"", "", ""}, rows[0])
	assert.Equal(t, []string{"x@x.com", "7", ""}, rows[1])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Overwrite(t *testing.T) {
	p, mock := newMockPostgres(t)
	span := ColumnSpan{Sheet: "FrontEndScoreBoard", Start: 0, End: 1}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cells WHERE sheet = $1 AND col_index BETWEEN $2 AND $3`)).
		WithArgs("FrontEndScoreBoard", 0, 1).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO cells`)).
		WithArgs("FrontEndScoreBoard", 1, 0, "Alice#1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO cells`)).
		WithArgs("FrontEndScoreBoard", 1, 1, "9.999").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := p.Overwrite(context.Background(), span, [][]string{{"Alice#1", "9.999"}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
