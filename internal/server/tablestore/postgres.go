package tablestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/penter405/cubetimer-backend/internal/common"
	"github.com/penter405/cubetimer-backend/internal/dbx"
	"github.com/penter405/cubetimer-backend/internal/server/tablestore/migrations"
)

// Postgres is a self-hosted Store backend storing each sheet as sparse
// cells keyed by (sheet, row, col). It exists for deployments that do not
// want to depend on the hosted spreadsheet; semantics match the Sheets
// backend, including per-span append positions.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, p.db, ".")
}

// CreateSheet provisions a sheet with the given column capacity.
func (p *Postgres) CreateSheet(ctx context.Context, name string, cols int) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO sheets (name, column_count) VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING`, name, cols)
	if err != nil {
		return storeErr("create sheet "+name, err)
	}
	return nil
}

func (p *Postgres) ColumnCount(ctx context.Context, sheet string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT column_count FROM sheets WHERE name = $1`, sheet).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("sheet %q: %w", sheet, common.ErrNotFound)
		}
		return 0, storeErr("column count of "+sheet, err)
	}
	return n, nil
}

func (p *Postgres) ReadColumns(ctx context.Context, span ColumnSpan) ([][]string, error) {
	return p.readColumns(ctx, p.db, span)
}

func (p *Postgres) BatchRead(ctx context.Context, spans []ColumnSpan) ([][][]string, error) {
	out := make([][][]string, 0, len(spans))
	for _, span := range spans {
		rows, err := p.readColumns(ctx, p.db, span)
		if err != nil {
			return nil, err
		}
		out = append(out, rows)
	}
	return out, nil
}

func (p *Postgres) Append(ctx context.Context, span ColumnSpan, values []string) (int, error) {
	if len(values) > span.Width() {
		return 0, fmt.Errorf("append: %d values exceed span width %d: %w",
			len(values), span.Width(), common.ErrInvalidInput)
	}

	var row int
	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// Serialize appends per (sheet, span start) so two writers
		// cannot claim the same position.
		if _, err := tx.ExecContext(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1))`,
			fmt.Sprintf("%s:%d", span.Sheet, span.Start)); err != nil {
			return err
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(row_index), 0) + 1 FROM cells
			 WHERE sheet = $1 AND col_index BETWEEN $2 AND $3 AND value <> ''`,
			span.Sheet, span.Start, span.End).Scan(&row); err != nil {
			return err
		}

		return writeRow(ctx, tx, span, row, values)
	})
	if err != nil {
		return 0, storeErr("append to "+span.Sheet, err)
	}
	return row, nil
}

func (p *Postgres) BatchWrite(ctx context.Context, updates []RowUpdate) error {
	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, u := range updates {
			if u.Row < 1 {
				return fmt.Errorf("row %d: %w", u.Row, common.ErrInvalidInput)
			}
			if err := writeRow(ctx, tx, u.Span, u.Row, u.Values); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidInput) {
			return err
		}
		return storeErr("batch write", err)
	}
	return nil
}

func (p *Postgres) Overwrite(ctx context.Context, span ColumnSpan, rows [][]string) error {
	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cells WHERE sheet = $1 AND col_index BETWEEN $2 AND $3`,
			span.Sheet, span.Start, span.End); err != nil {
			return err
		}
		for i, values := range rows {
			if err := writeRow(ctx, tx, span, i+1, values); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storeErr("overwrite "+span.Sheet, err)
	}
	return nil
}

func (p *Postgres) readColumns(ctx context.Context, db dbx.DBTX, span ColumnSpan) ([][]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT row_index, col_index, value FROM cells
		 WHERE sheet = $1 AND col_index BETWEEN $2 AND $3 AND value <> ''
		 ORDER BY row_index, col_index`,
		span.Sheet, span.Start, span.End)
	if err != nil {
		return nil, storeErr("read "+span.Sheet, err)
	}
	defer rows.Close()

	cells := map[int][]string{}
	last := 0
	for rows.Next() {
		var row, col int
		var value string
		if err := rows.Scan(&row, &col, &value); err != nil {
			return nil, storeErr("scan "+span.Sheet, err)
		}
		if _, ok := cells[row]; !ok {
			cells[row] = make([]string, span.Width())
		}
		cells[row][col-span.Start] = value
		if row > last {
			last = row
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read "+span.Sheet, err)
	}

	out := make([][]string, 0, last)
	for r := 1; r <= last; r++ {
		if row, ok := cells[r]; ok {
			out = append(out, row)
		} else {
			out = append(out, make([]string, span.Width()))
		}
	}
	return out, nil
}

func writeRow(ctx context.Context, tx dbx.DBTX, span ColumnSpan, row int, values []string) error {
	for i, v := range values {
		col := span.Start + i
		if col > span.End {
			break
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cells (sheet, row_index, col_index, value)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (sheet, row_index, col_index) DO UPDATE SET value = EXCLUDED.value`,
			span.Sheet, row, col, v); err != nil {
			return err
		}
	}
	return nil
}
