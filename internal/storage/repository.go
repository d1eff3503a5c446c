package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"milkman/internal/core"
	"milkman/internal/store"

	_ "modernc.org/sqlite"
)

var _ store.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// GetSettings implements store.SettingsStore. found is false until the first
// PutSettings.
func (r *SQLiteRepository) GetSettings(ctx context.Context) (core.Settings, bool, error) {
	row, err := r.queries.GetSettings(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Settings{}, false, nil
	}
	if err != nil {
		return core.Settings{}, false, fmt.Errorf("get settings: %w", err)
	}
	return core.Settings{
		GlobalRate:       row.GlobalRate,
		DefaultCategory1: row.DefaultCategory1,
		DefaultCategory2: row.DefaultCategory2,
		UpdatedAt:        row.UpdatedAt,
	}, true, nil
}

func (r *SQLiteRepository) PutSettings(ctx context.Context, s core.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	err := r.queries.UpsertSettings(ctx, UpsertSettingsParams{
		GlobalRate:       s.GlobalRate,
		DefaultCategory1: s.DefaultCategory1,
		DefaultCategory2: s.DefaultCategory2,
		UpdatedAt:        r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	slog.DebugContext(ctx, "Settings saved to SQLite",
		"global_rate", s.GlobalRate,
		"default_category1", s.DefaultCategory1,
		"default_category2", s.DefaultCategory2)
	return nil
}

func (r *SQLiteRepository) ListOverrides(ctx context.Context, m core.Month) ([]core.Override, error) {
	rows, err := r.queries.ListOverridesInRange(ctx, ListOverridesInRangeParams{
		FromDate: m.First().String(),
		ToDate:   m.Last().String(),
	})
	if err != nil {
		return nil, fmt.Errorf("list overrides for %s: %w", m, err)
	}
	out := make([]core.Override, len(rows))
	for i, row := range rows {
		out[i] = core.Override{
			Date:            core.DateKey(row.Date),
			Category1Amount: row.Category1Amount,
			Category2Amount: row.Category2Amount,
			UpdatedAt:       row.UpdatedAt,
		}
	}
	return out, nil
}

func (r *SQLiteRepository) PutOverride(ctx context.Context, o core.Override) error {
	if err := o.Validate(); err != nil {
		return err
	}
	err := r.queries.UpsertOverride(ctx, UpsertOverrideParams{
		Date:            o.Date.String(),
		Category1Amount: o.Category1Amount,
		Category2Amount: o.Category2Amount,
		UpdatedAt:       r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("upsert override %s: %w", o.Date, err)
	}
	slog.DebugContext(ctx, "Override saved to SQLite",
		"date", o.Date,
		"category1_amount", o.Category1Amount,
		"category2_amount", o.Category2Amount)
	return nil
}

// CountOverrides returns the total number of stored overrides.
func (r *SQLiteRepository) CountOverrides(ctx context.Context) (int64, error) {
	return r.queries.CountOverrides(ctx)
}
