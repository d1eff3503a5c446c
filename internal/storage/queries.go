package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Setting struct {
	GlobalRate       float64
	DefaultCategory1 float64
	DefaultCategory2 float64
	UpdatedAt        time.Time
}

type OverrideRow struct {
	Date            string
	Category1Amount float64
	Category2Amount float64
	UpdatedAt       time.Time
}

const getSettings = `-- name: GetSettings :one
SELECT global_rate, default_category1, default_category2, updated_at
FROM settings
WHERE id = 1
`

func (q *Queries) GetSettings(ctx context.Context) (Setting, error) {
	row := q.db.QueryRowContext(ctx, getSettings)
	var i Setting
	err := row.Scan(&i.GlobalRate, &i.DefaultCategory1, &i.DefaultCategory2, &i.UpdatedAt)
	return i, err
}

const upsertSettings = `-- name: UpsertSettings :exec
INSERT INTO settings (id, global_rate, default_category1, default_category2, updated_at)
VALUES (1, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    global_rate = excluded.global_rate,
    default_category1 = excluded.default_category1,
    default_category2 = excluded.default_category2,
    updated_at = excluded.updated_at
`

type UpsertSettingsParams struct {
	GlobalRate       float64
	DefaultCategory1 float64
	DefaultCategory2 float64
	UpdatedAt        time.Time
}

func (q *Queries) UpsertSettings(ctx context.Context, arg UpsertSettingsParams) error {
	_, err := q.db.ExecContext(ctx, upsertSettings,
		arg.GlobalRate,
		arg.DefaultCategory1,
		arg.DefaultCategory2,
		arg.UpdatedAt,
	)
	return err
}

const listOverridesInRange = `-- name: ListOverridesInRange :many
SELECT date, category1_amount, category2_amount, updated_at
FROM overrides
WHERE date >= ? AND date <= ?
ORDER BY date
`

type ListOverridesInRangeParams struct {
	FromDate string
	ToDate   string
}

func (q *Queries) ListOverridesInRange(ctx context.Context, arg ListOverridesInRangeParams) ([]OverrideRow, error) {
	rows, err := q.db.QueryContext(ctx, listOverridesInRange, arg.FromDate, arg.ToDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OverrideRow{}
	for rows.Next() {
		var i OverrideRow
		if err := rows.Scan(&i.Date, &i.Category1Amount, &i.Category2Amount, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertOverride = `-- name: UpsertOverride :exec
INSERT INTO overrides (date, category1_amount, category2_amount, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(date) DO UPDATE SET
    category1_amount = excluded.category1_amount,
    category2_amount = excluded.category2_amount,
    updated_at = excluded.updated_at
`

type UpsertOverrideParams struct {
	Date            string
	Category1Amount float64
	Category2Amount float64
	UpdatedAt       time.Time
}

func (q *Queries) UpsertOverride(ctx context.Context, arg UpsertOverrideParams) error {
	_, err := q.db.ExecContext(ctx, upsertOverride,
		arg.Date,
		arg.Category1Amount,
		arg.Category2Amount,
		arg.UpdatedAt,
	)
	return err
}

const countOverrides = `-- name: CountOverrides :one
SELECT COUNT(*) FROM overrides
`

func (q *Queries) CountOverrides(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countOverrides)
	var count int64
	err := row.Scan(&count)
	return count, err
}
