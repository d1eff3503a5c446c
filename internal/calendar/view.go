// Package calendar models one operator's calendar screen: the displayed
// month, its overrides, the selected day, the settings panel with its
// debounced autosave and the bill panel. Views are driven by the HTTP layer
// and rendered from Snapshot.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"milkman/internal/core"
)

// Ledger is the persistence surface a view needs.
type Ledger interface {
	GetSettings(ctx context.Context) (core.Settings, error)
	SaveSettings(ctx context.Context, s core.Settings) error
	ListOverrides(ctx context.Context, m core.Month) ([]core.Override, error)
	SaveOverride(ctx context.Context, o core.Override) error
}

type Phase string

const (
	PhaseLoading         Phase = "loading"
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseViewing         Phase = "viewing"
)

// SaveStatus tracks the settings autosave.
type SaveStatus string

const (
	SaveIdle    SaveStatus = "idle"
	SavePending SaveStatus = "pending"
	SaveSaving  SaveStatus = "saving"
	SaveSaved   SaveStatus = "saved"
	SaveFailed  SaveStatus = "failed"
)

// SettingField names one editable settings scalar.
type SettingField string

const (
	FieldGlobalRate SettingField = "globalRate"
	FieldCategory1  SettingField = "defaultCategory1"
	FieldCategory2  SettingField = "defaultCategory2"
)

var (
	ErrNotViewing   = errors.New("calendar is not loaded")
	ErrNoSelection  = errors.New("no day selected")
	ErrOutsideMonth = errors.New("day is not in the displayed month")
	ErrUnknownField = errors.New("unknown settings field")
	ErrClosed       = errors.New("calendar view is closed")
)

type Options struct {
	SaveDelay   time.Duration
	SaveTimeout time.Duration
	Now         func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SaveDelay <= 0 {
		o.SaveDelay = time.Second
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = 10 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type View struct {
	ledger    Ledger
	now       func() time.Time
	debouncer *Debouncer

	mu           sync.Mutex
	phase        Phase
	closed       bool
	month        core.Month
	fetchSeq     uint64
	overrides    map[core.DateKey]core.Override
	selected     core.DateKey
	settings     core.Settings
	draft        core.Settings
	draftGen     uint64
	saveStatus   SaveStatus
	saveErr      string
	settingsOpen bool
	billOpen     bool
}

func NewView(ledger Ledger, opts Options) *View {
	opts = opts.withDefaults()
	return &View{
		ledger:     ledger,
		now:        opts.Now,
		debouncer:  NewDebouncer(opts.SaveDelay, opts.SaveTimeout),
		phase:      PhaseLoading,
		month:      core.MonthOf(opts.Now()),
		overrides:  map[core.DateKey]core.Override{},
		saveStatus: SaveIdle,
	}
}

// Load fetches settings once and the current month's overrides. An
// unauthenticated view stays empty.
func (v *View) Load(ctx context.Context, authenticated bool) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if !authenticated {
		v.phase = PhaseUnauthenticated
		v.mu.Unlock()
		return nil
	}
	v.phase = PhaseLoading
	month := v.month
	v.mu.Unlock()

	settings, err := v.ledger.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	v.mu.Lock()
	v.settings = settings
	v.draft = settings
	v.phase = PhaseViewing
	v.mu.Unlock()

	return v.ShowMonth(ctx, month)
}

// ChangeMonth moves the displayed month by delta.
func (v *View) ChangeMonth(ctx context.Context, delta int) error {
	v.mu.Lock()
	target := v.month.Add(delta)
	v.mu.Unlock()
	return v.ShowMonth(ctx, target)
}

// ShowMonth displays m and fetches its overrides. The previous month's
// overrides and the selection are dropped immediately. A fetch that finishes
// after another month was requested is discarded.
func (v *View) ShowMonth(ctx context.Context, m core.Month) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.phase != PhaseViewing {
		v.mu.Unlock()
		return ErrNotViewing
	}
	v.fetchSeq++
	seq := v.fetchSeq
	v.month = m
	v.overrides = map[core.DateKey]core.Override{}
	v.selected = ""
	v.mu.Unlock()

	list, err := v.ledger.ListOverrides(ctx, m)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || seq != v.fetchSeq {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load overrides for %s: %w", m, err)
	}
	idx := make(map[core.DateKey]core.Override, len(list))
	for _, o := range list {
		if m.Contains(o.Date) {
			idx[o.Date] = o
		}
	}
	v.overrides = idx
	return nil
}

// SelectDay opens the edit panel for a day of the displayed month.
func (v *View) SelectDay(key core.DateKey) error {
	if _, err := core.ParseDateKey(key.String()); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.phase != PhaseViewing {
		return ErrNotViewing
	}
	if !v.month.Contains(key) {
		return ErrOutsideMonth
	}
	v.selected = key
	return nil
}

func (v *View) ClearSelection() {
	v.mu.Lock()
	v.selected = ""
	v.mu.Unlock()
}

// EditCategory persists the selected day with one category replaced by the
// parsed input and the other kept at its effective amount. Local state
// changes only after the write succeeds.
func (v *View) EditCategory(ctx context.Context, c core.Category, raw string) error {
	if !c.Valid() {
		return core.ErrInvalidCategory
	}
	amount := core.ParseQuantity(raw)

	v.mu.Lock()
	if v.selected == "" {
		v.mu.Unlock()
		return ErrNoSelection
	}
	o := v.effectiveLocked(v.selected).With(c, amount)
	v.mu.Unlock()

	return v.commitOverride(ctx, o)
}

// MarkNoDelivery persists {0,0} for the selected day.
func (v *View) MarkNoDelivery(ctx context.Context) error {
	v.mu.Lock()
	selected := v.selected
	v.mu.Unlock()
	if selected == "" {
		return ErrNoSelection
	}
	return v.commitOverride(ctx, core.NoDelivery(selected))
}

func (v *View) commitOverride(ctx context.Context, o core.Override) error {
	if err := v.ledger.SaveOverride(ctx, o); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed && v.month.Contains(o.Date) {
		v.overrides[o.Date] = o
	}
	return nil
}

// effectiveLocked returns the pair currently in effect for key.
func (v *View) effectiveLocked(key core.DateKey) core.Override {
	if o, ok := v.overrides[key]; ok {
		return o
	}
	return core.Override{
		Date:            key,
		Category1Amount: v.settings.DefaultCategory1,
		Category2Amount: v.settings.DefaultCategory2,
	}
}

// EditSetting updates the settings draft and restarts the autosave delay.
func (v *View) EditSetting(field SettingField, raw string) error {
	value := core.ParseQuantity(raw)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	if v.phase != PhaseViewing {
		return ErrNotViewing
	}
	switch field {
	case FieldGlobalRate:
		v.draft.GlobalRate = value
	case FieldCategory1:
		v.draft.DefaultCategory1 = value
	case FieldCategory2:
		v.draft.DefaultCategory2 = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	v.draftGen++
	v.saveStatus = SavePending
	v.saveErr = ""
	v.debouncer.Schedule(v.flushSettings)
	return nil
}

func (v *View) flushSettings(ctx context.Context) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	draft := v.draft
	gen := v.draftGen
	v.saveStatus = SaveSaving
	v.mu.Unlock()

	err := v.ledger.SaveSettings(ctx, draft)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if err != nil {
		if gen == v.draftGen {
			v.saveStatus = SaveFailed
			v.saveErr = err.Error()
		}
		return
	}
	v.settings = draft
	if gen == v.draftGen {
		v.saveStatus = SaveSaved
	}
}

func (v *View) ToggleSettings() {
	v.mu.Lock()
	v.settingsOpen = !v.settingsOpen
	v.mu.Unlock()
}

func (v *View) ToggleBill() {
	v.mu.Lock()
	v.billOpen = !v.billOpen
	v.mu.Unlock()
}

// Close cancels any pending autosave. No write happens afterwards.
func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	v.debouncer.Stop()
}

// Phase returns the current lifecycle phase.
func (v *View) Phase() Phase {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.phase
}

// Closed reports whether Close was called.
func (v *View) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}
