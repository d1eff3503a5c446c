package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"milkman/internal/amqp"
	"milkman/internal/core"
	"milkman/internal/sheets"
)

// BillSource computes the bill for a month from the ledger.
type BillSource interface {
	MonthBill(ctx context.Context, m core.Month) (core.Bill, error)
}

// ExportWorker keeps the bill spreadsheet in step with the ledger. Change
// events re-export the affected month; a periodic pass re-exports the
// current month in case events were lost.
type ExportWorker struct {
	bills  BillSource
	writer sheets.BillWriter
	now    func() time.Time

	mu       sync.Mutex
	exported map[core.Month]time.Time
}

func NewExportWorker(bills BillSource, writer sheets.BillWriter) *ExportWorker {
	return &ExportWorker{
		bills:    bills,
		writer:   writer,
		now:      time.Now,
		exported: make(map[core.Month]time.Time),
	}
}

// HandleLedgerChange processes a single change message from AMQP. A settings
// change also refreshes the current month, since defaults apply everywhere.
func (w *ExportWorker) HandleLedgerChange(ctx context.Context, msg *amqp.LedgerChangeMessage) error {
	slog.InfoContext(ctx, "Processing ledger change",
		"kind", msg.Kind,
		"date", msg.Date,
		"year", msg.Year,
		"month", msg.Month)

	m, err := msg.AffectedMonth()
	if err != nil {
		return fmt.Errorf("affected month: %w", err)
	}
	if err := w.ExportMonth(ctx, m); err != nil {
		return err
	}

	if msg.Kind == amqp.ChangeSettings {
		if current := core.MonthOf(w.now()); current != m {
			return w.ExportMonth(ctx, current)
		}
	}
	return nil
}

// ExportMonth recomputes and writes one month's bill.
func (w *ExportWorker) ExportMonth(ctx context.Context, m core.Month) error {
	bill, err := w.bills.MonthBill(ctx, m)
	if err != nil {
		return fmt.Errorf("compute bill for %s: %w", m, err)
	}
	ref, err := w.writer.WriteBill(ctx, bill)
	if err != nil {
		return fmt.Errorf("export bill for %s: %w", m, err)
	}

	w.mu.Lock()
	w.exported[m] = w.now()
	w.mu.Unlock()

	slog.InfoContext(ctx, "Exported bill",
		"month", m.String(),
		"sheets_ref", ref,
		"total", core.FormatMoney(bill.Total()))
	return nil
}

// StartupExport re-exports the previous and current months so a worker that
// was down catches up. Both are attempted even when one fails.
func (w *ExportWorker) StartupExport(ctx context.Context) error {
	current := core.MonthOf(w.now())
	var errs []error
	for _, m := range []core.Month{current.Prev(), current} {
		if err := w.ExportMonth(ctx, m); err != nil {
			slog.ErrorContext(ctx, "Startup export failed", "month", m.String(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run re-exports the current month every interval until ctx is done.
func (w *ExportWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := core.MonthOf(w.now())
			if err := w.ExportMonth(ctx, m); err != nil {
				slog.ErrorContext(ctx, "Periodic export failed", "month", m.String(), "error", err)
			}
		}
	}
}

// LastExport reports when m was last written by this worker.
func (w *ExportWorker) LastExport(m core.Month) (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.exported[m]
	return t, ok
}
