package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"milkman/internal/amqp"
	"milkman/internal/cache"
	"milkman/internal/core"
	"milkman/internal/log"
	"milkman/internal/store"
)

// ChangePublisher announces persisted writes to downstream consumers.
type ChangePublisher interface {
	PublishLedgerChange(ctx context.Context, msg *amqp.LedgerChangeMessage) error
}

// Ledger is the single entry point for reading and writing billing data. It
// fills in configured defaults, caches month overrides and publishes a change
// event after every successful write.
type Ledger struct {
	store     store.Store
	defaults  core.Settings
	cache     cache.Cache[[]core.Override]
	publisher ChangePublisher
	logger    *log.Logger
	events    *log.StructuredLogger
	now       func() time.Time
}

type LedgerOption func(*Ledger)

// WithOverrideCache caches ListOverrides results per month.
func WithOverrideCache(c cache.Cache[[]core.Override]) LedgerOption {
	return func(l *Ledger) { l.cache = c }
}

// WithPublisher enables change events.
func WithPublisher(p ChangePublisher) LedgerOption {
	return func(l *Ledger) { l.publisher = p }
}

// WithLogger sets the logger writes are reported to. Defaults to the
// process-wide logger.
func WithLogger(logger *log.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(s store.Store, defaults core.Settings, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:    s,
		defaults: defaults,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = log.Default(log.ComponentLedger)
	}
	l.logger = l.logger.WithComponent(log.ComponentLedger)
	l.events = log.NewStructuredLogger(l.logger)
	return l
}

// Defaults returns the settings served while nothing is persisted.
func (l *Ledger) Defaults() core.Settings {
	return l.defaults
}

// GetSettings returns the persisted settings or the configured defaults.
func (l *Ledger) GetSettings(ctx context.Context) (core.Settings, error) {
	s, found, err := l.store.GetSettings(ctx)
	if err != nil {
		return core.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if !found {
		return l.defaults, nil
	}
	return s, nil
}

// SaveSettings fully replaces the settings singleton.
func (l *Ledger) SaveSettings(ctx context.Context, s core.Settings) error {
	s.GlobalRate = core.Sanitize(s.GlobalRate)
	s.DefaultCategory1 = core.Sanitize(s.DefaultCategory1)
	s.DefaultCategory2 = core.Sanitize(s.DefaultCategory2)
	if err := s.Validate(); err != nil {
		return err
	}
	if err := l.store.PutSettings(ctx, s); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	l.events.LogSettingsSaved(ctx, s.GlobalRate, s.DefaultCategory1, s.DefaultCategory2)

	l.publish(ctx, amqp.NewSettingsChange(core.MonthOf(l.now())))
	return nil
}

// ListOverrides returns the overrides inside m ordered by date.
func (l *Ledger) ListOverrides(ctx context.Context, m core.Month) ([]core.Override, error) {
	if l.cache != nil {
		if cached, ok := l.cache.Get(ctx, m.String()); ok {
			return append([]core.Override(nil), cached...), nil
		}
	}

	overrides, err := l.store.ListOverrides(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}

	if l.cache != nil {
		l.cache.Set(ctx, m.String(), append([]core.Override(nil), overrides...))
	}
	return overrides, nil
}

// SaveOverride upserts the override for its date.
func (l *Ledger) SaveOverride(ctx context.Context, o core.Override) error {
	o.Category1Amount = core.Sanitize(o.Category1Amount)
	o.Category2Amount = core.Sanitize(o.Category2Amount)
	if err := o.Validate(); err != nil {
		return err
	}
	if err := l.store.PutOverride(ctx, o); err != nil {
		return fmt.Errorf("save override: %w", err)
	}
	if l.cache != nil {
		l.cache.Delete(ctx, o.Date.Month().String())
	}

	l.events.LogOverrideSaved(ctx, o.Date.String(), o.Category1Amount, o.Category2Amount)

	l.publish(ctx, amqp.NewOverrideChange(o.Date))
	return nil
}

// MonthBill loads settings and the month's overrides concurrently and
// computes the bill.
func (l *Ledger) MonthBill(ctx context.Context, m core.Month) (core.Bill, error) {
	var (
		settings  core.Settings
		overrides []core.Override
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		settings, err = l.GetSettings(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		overrides, err = l.ListOverrides(gctx, m)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Bill{}, fmt.Errorf("bill for %s: %w", m, err)
	}

	return core.ComputeBill(m, settings, overrides), nil
}

// Ping reports store health when the store supports it.
func (l *Ledger) Ping(ctx context.Context) error {
	if p, ok := l.store.(store.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// publish never fails the write; the data is already persisted.
func (l *Ledger) publish(ctx context.Context, msg *amqp.LedgerChangeMessage) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishLedgerChange(ctx, msg); err != nil {
		l.logger.ErrorContext(ctx, "Failed to publish ledger change",
			"kind", msg.Kind,
			log.FieldYear, msg.Year,
			log.FieldMonth, msg.Month,
			log.FieldError, err)
	}
}
