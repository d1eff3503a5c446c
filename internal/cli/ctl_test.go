package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkman/internal/core"
	"milkman/internal/services"
	"milkman/internal/store/memory"
)

func newTestApp(t *testing.T) (*App, *services.Ledger, *bytes.Buffer) {
	t.Helper()
	ledger := services.NewLedger(memory.New(), core.DefaultSettings(60, 2.0, 2.5))
	out := &bytes.Buffer{}
	app := &App{
		Out: out,
		Now: func() time.Time { return time.Date(2023, time.February, 14, 9, 0, 0, 0, time.UTC) },
		Open: func(context.Context) (Ledger, func(), error) {
			return ledger, nil, nil
		},
		Migrate: func(context.Context) (string, error) { return "Migrated test.db", nil },
	}
	return app, ledger, out
}

func run(t *testing.T, app *App, args ...string) error {
	t.Helper()
	cmd := NewRootCommand(app)
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	return cmd.Execute()
}

func TestBillCommand(t *testing.T) {
	app, ledger, out := newTestApp(t)
	ctx := context.Background()
	feb := core.Month{Year: 2023, Month: time.February}

	require.NoError(t, ledger.SaveOverride(ctx, core.Override{Date: feb.Day(5), Category1Amount: 3, Category2Amount: 2.5}))
	require.NoError(t, ledger.SaveOverride(ctx, core.NoDelivery(feb.Day(10))))

	require.NoError(t, run(t, app, "bill"))
	s := out.String()
	assert.Contains(t, s, "Bill for February 2023")
	assert.Contains(t, s, "55.0")
	assert.Contains(t, s, "3300.00")
	assert.Contains(t, s, "67.5")
	assert.Contains(t, s, "4050.00")
	assert.Contains(t, s, "7350.00")
}

func TestBillCommandMonthFlag(t *testing.T) {
	app, _, out := newTestApp(t)

	require.NoError(t, run(t, app, "bill", "--month", "2024-02"))
	s := out.String()
	assert.Contains(t, s, "Bill for February 2024")
	// 29 days at 2.0L and 2.5L, Rs60/L.
	assert.Contains(t, s, "58.0")
	assert.Contains(t, s, "72.5")
	assert.Contains(t, s, "7830.00")

	err := run(t, app, "bill", "--month", "Feb")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidMonth)
}

func TestSettingsCommands(t *testing.T) {
	app, ledger, out := newTestApp(t)

	require.NoError(t, run(t, app, "settings", "get"))
	assert.Contains(t, out.String(), "Rs60/L")

	out.Reset()
	require.NoError(t, run(t, app, "settings", "set", "--rate", "62.5"))
	assert.Contains(t, out.String(), "Rs62.5/L")

	got, err := ledger.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 62.5, got.GlobalRate)
	assert.Equal(t, 2.0, got.DefaultCategory1, "omitted flags keep their value")
	assert.Equal(t, 2.5, got.DefaultCategory2)

	assert.Error(t, run(t, app, "settings", "set"))
	assert.Error(t, run(t, app, "settings", "set", "--cat1=-1"))
}

func TestOverrideCommands(t *testing.T) {
	app, ledger, out := newTestApp(t)
	ctx := context.Background()
	feb := core.Month{Year: 2023, Month: time.February}

	require.NoError(t, run(t, app, "override", "list"))
	assert.Contains(t, out.String(), "No overrides in February 2023")

	out.Reset()
	require.NoError(t, run(t, app, "override", "set", "2023-02-10", "--cat1", "3"))
	assert.Contains(t, out.String(), "2023-02-10: 3L / 2.5L")

	require.NoError(t, run(t, app, "override", "set", "2023-02-10", "--cat2", "0"))
	list, err := ledger.ListOverrides(ctx, feb)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3.0, list[0].Category1Amount, "earlier override value is kept")
	assert.Equal(t, 0.0, list[0].Category2Amount)

	require.NoError(t, run(t, app, "override", "no-delivery", "2023-02-11"))

	out.Reset()
	require.NoError(t, run(t, app, "override", "list", "--month", "2023-02"))
	s := out.String()
	assert.Contains(t, s, "2023-02-10")
	assert.Contains(t, s, "modified")
	assert.Contains(t, s, "2023-02-11")
	assert.Contains(t, s, "no-delivery")

	assert.Error(t, run(t, app, "override", "set", "2023-02-30", "--cat1", "1"))
	assert.Error(t, run(t, app, "override", "set", "2023-02-12"))
	assert.Error(t, run(t, app, "override", "no-delivery"))
}

func TestOpenFailure(t *testing.T) {
	app, _, _ := newTestApp(t)
	app.Open = func(context.Context) (Ledger, func(), error) {
		return nil, nil, errors.New("backend down")
	}
	err := run(t, app, "bill")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
}

func TestMigrateCommand(t *testing.T) {
	app, _, out := newTestApp(t)
	require.NoError(t, run(t, app, "migrate"))
	assert.Contains(t, out.String(), "Migrated test.db")

	app.Migrate = func(context.Context) (string, error) { return "", errors.New("dirty database") }
	err := run(t, app, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate: dirty database")
}
