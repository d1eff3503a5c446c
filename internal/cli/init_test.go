package cli

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkman/internal/config"
	"milkman/internal/core"
	"milkman/internal/log"
)

func testLogger() *log.Logger {
	return log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
}

func TestBuildLedger_MemoryBackend(t *testing.T) {
	cfg := &config.Config{
		DataBackend:       "memory",
		MemoryDataDir:     t.TempDir(),
		CacheBackend:      "memory",
		CacheTTL:          time.Minute,
		DefaultGlobalRate: 60,
		DefaultCategory1:  2,
		DefaultCategory2:  2.5,
	}

	rt, err := BuildLedger(context.Background(), cfg, testLogger(), LedgerOptions{Publish: true})
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.Publisher, "no publisher without AMQP_URL")

	ctx := context.Background()
	got, err := rt.Ledger.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60.0, got.GlobalRate)

	feb := core.Month{Year: 2023, Month: time.February}
	require.NoError(t, rt.Ledger.SaveOverride(ctx, core.NoDelivery(feb.Day(5))))
	list, err := rt.Ledger.ListOverrides(ctx, feb)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBuildLedger_InvalidBackend(t *testing.T) {
	_, err := BuildLedger(context.Background(), &config.Config{DataBackend: "csv"}, testLogger(), LedgerOptions{})
	assert.Error(t, err)
}

func TestRuntimeCloseIsIdempotent(t *testing.T) {
	calls := 0
	rt := &Runtime{logger: testLogger()}
	rt.cleanups = append(rt.cleanups, func() error { calls++; return nil })
	rt.Close()
	rt.Close()
	assert.Equal(t, 1, calls)
}

// The server and milkmanctl open the same SQLite file; a write from one must
// be visible to the other on the next read.
func TestBuildLedger_SharedStoreSeesOtherProcessWrites(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "")
	cfg := config.Load()
	cfg.DataBackend = "sqlite"
	cfg.SQLiteDBPath = filepath.Join(t.TempDir(), "milkman.db")
	cfg.DefaultGlobalRate = 60
	cfg.DefaultCategory1 = 2
	cfg.DefaultCategory2 = 2.5
	cfg.AMQPURL = ""

	ctx := context.Background()
	server, err := BuildLedger(ctx, cfg, testLogger(), LedgerOptions{Publish: true})
	require.NoError(t, err)
	defer server.Close()
	ctl, err := BuildLedger(ctx, cfg, testLogger(), LedgerOptions{Publish: true, SharedCacheOnly: true})
	require.NoError(t, err)
	defer ctl.Close()

	feb := core.Month{Year: 2023, Month: time.February}
	before, err := server.Ledger.ListOverrides(ctx, feb)
	require.NoError(t, err)
	require.Empty(t, before)
	bill, err := server.Ledger.MonthBill(ctx, feb)
	require.NoError(t, err)
	require.Equal(t, "56.0", core.FormatLiters(bill.Category1.TotalLiters))

	require.NoError(t, ctl.Ledger.SaveOverride(ctx, core.NoDelivery(feb.Day(5))))

	after, err := server.Ledger.ListOverrides(ctx, feb)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.True(t, after[0].IsNoDelivery())

	bill, err = server.Ledger.MonthBill(ctx, feb)
	require.NoError(t, err)
	assert.Equal(t, "54.0", core.FormatLiters(bill.Category1.TotalLiters))
	assert.Equal(t, 27, bill.Category1.ActiveDays)
}
