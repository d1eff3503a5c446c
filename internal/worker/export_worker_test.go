package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkman/internal/amqp"
	"milkman/internal/core"
	"milkman/internal/services"
	"milkman/internal/store/memory"
)

type fakeWriter struct {
	mu    sync.Mutex
	bills []core.Bill
	err   error
}

func (f *fakeWriter) WriteBill(_ context.Context, b core.Bill) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.bills = append(f.bills, b)
	return "Bills!" + b.Month.String(), nil
}

func (f *fakeWriter) months() []core.Month {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.Month, len(f.bills))
	for i, b := range f.bills {
		out[i] = b.Month
	}
	return out
}

type failingBills struct{ err error }

func (f failingBills) MonthBill(context.Context, core.Month) (core.Bill, error) {
	return core.Bill{}, f.err
}

var (
	feb2023 = core.Month{Year: 2023, Month: time.February}
	mar2023 = core.Month{Year: 2023, Month: time.March}
)

func newWorker(t *testing.T, w *fakeWriter) (*ExportWorker, *memory.Store) {
	t.Helper()
	st := memory.New()
	ledger := services.NewLedger(st, core.Settings{GlobalRate: 60, DefaultCategory1: 2, DefaultCategory2: 2.5})
	ew := NewExportWorker(ledger, w)
	ew.now = func() time.Time { return time.Date(2023, time.March, 10, 12, 0, 0, 0, time.UTC) }
	return ew, st
}

func TestHandleLedgerChange_Override(t *testing.T) {
	w := &fakeWriter{}
	ew, st := newWorker(t, w)
	ctx := context.Background()

	require.NoError(t, st.PutOverride(ctx, core.NoDelivery(feb2023.Day(5))))
	require.NoError(t, st.PutOverride(ctx, core.Override{Date: feb2023.Day(10), Category1Amount: 3, Category2Amount: 2.5}))

	require.NoError(t, ew.HandleLedgerChange(ctx, amqp.NewOverrideChange(feb2023.Day(10))))

	require.Len(t, w.bills, 1)
	bill := w.bills[0]
	assert.Equal(t, feb2023, bill.Month)
	assert.Equal(t, "3300.00", core.FormatMoney(bill.Category1.TotalAmount))
	assert.Equal(t, "7350.00", core.FormatMoney(bill.Total()))

	_, ok := ew.LastExport(feb2023)
	assert.True(t, ok)
}

func TestHandleLedgerChange_SettingsAlsoRefreshesCurrentMonth(t *testing.T) {
	w := &fakeWriter{}
	ew, _ := newWorker(t, w)

	require.NoError(t, ew.HandleLedgerChange(context.Background(), amqp.NewSettingsChange(feb2023)))
	assert.Equal(t, []core.Month{feb2023, mar2023}, w.months())

	w2 := &fakeWriter{}
	ew2, _ := newWorker(t, w2)
	require.NoError(t, ew2.HandleLedgerChange(context.Background(), amqp.NewSettingsChange(mar2023)))
	assert.Equal(t, []core.Month{mar2023}, w2.months())
}

func TestHandleLedgerChange_Errors(t *testing.T) {
	boom := errors.New("sheets down")
	ew, _ := newWorker(t, &fakeWriter{err: boom})

	err := ew.HandleLedgerChange(context.Background(), amqp.NewOverrideChange(feb2023.Day(1)))
	require.ErrorIs(t, err, boom)
	_, ok := ew.LastExport(feb2023)
	assert.False(t, ok)

	bad := &amqp.LedgerChangeMessage{Kind: amqp.ChangeOverride, Year: 2023, Month: 13}
	assert.Error(t, ew.HandleLedgerChange(context.Background(), bad))

	storeDown := errors.New("store down")
	ew2 := NewExportWorker(failingBills{err: storeDown}, &fakeWriter{})
	assert.ErrorIs(t, ew2.ExportMonth(context.Background(), feb2023), storeDown)
}

func TestStartupExport(t *testing.T) {
	w := &fakeWriter{}
	ew, _ := newWorker(t, w)

	require.NoError(t, ew.StartupExport(context.Background()))
	assert.Equal(t, []core.Month{feb2023, mar2023}, w.months())

	boom := errors.New("sheets down")
	ew.writer = &fakeWriter{err: boom}
	err := ew.StartupExport(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRun_ExportsCurrentMonthUntilCancelled(t *testing.T) {
	w := &fakeWriter{}
	ew, _ := newWorker(t, w)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ew.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(w.months()) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	for _, m := range w.months() {
		assert.Equal(t, mar2023, m)
	}
}
