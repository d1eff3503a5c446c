package services

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkman/internal/amqp"
	"milkman/internal/cache"
	"milkman/internal/core"
	"milkman/internal/log"
	"milkman/internal/store/memory"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.LedgerChangeMessage
	err  error
}

func (p *fakePublisher) PublishLedgerChange(_ context.Context, msg *amqp.LedgerChangeMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *fakePublisher) sent() []*amqp.LedgerChangeMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*amqp.LedgerChangeMessage(nil), p.msgs...)
}

// countingStore wraps the memory store to count list calls and inject failures.
type countingStore struct {
	*memory.Store
	mu      sync.Mutex
	lists   int
	failPut error
	failGet error
}

func (s *countingStore) ListOverrides(ctx context.Context, m core.Month) ([]core.Override, error) {
	s.mu.Lock()
	s.lists++
	s.mu.Unlock()
	return s.Store.ListOverrides(ctx, m)
}

func (s *countingStore) PutOverride(ctx context.Context, o core.Override) error {
	if s.failPut != nil {
		return s.failPut
	}
	return s.Store.PutOverride(ctx, o)
}

func (s *countingStore) PutSettings(ctx context.Context, settings core.Settings) error {
	if s.failPut != nil {
		return s.failPut
	}
	return s.Store.PutSettings(ctx, settings)
}

func (s *countingStore) GetSettings(ctx context.Context) (core.Settings, bool, error) {
	if s.failGet != nil {
		return core.Settings{}, false, s.failGet
	}
	return s.Store.GetSettings(ctx)
}

var testDefaults = core.Settings{GlobalRate: 60, DefaultCategory1: 2, DefaultCategory2: 2.5}

func fixedClock() time.Time { return time.Date(2024, time.March, 15, 9, 0, 0, 0, time.UTC) }

func TestLedger_GetSettingsFallsBackToDefaults(t *testing.T) {
	l := NewLedger(memory.New(), testDefaults)
	ctx := context.Background()

	got, err := l.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, testDefaults, got)

	saved := core.Settings{GlobalRate: 70, DefaultCategory1: 1, DefaultCategory2: 1}
	require.NoError(t, l.SaveSettings(ctx, saved))

	got, err = l.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 70.0, got.GlobalRate)
	assert.Equal(t, testDefaults, l.Defaults())
}

func TestLedger_SaveSettingsRejectsNegative(t *testing.T) {
	pub := &fakePublisher{}
	l := NewLedger(memory.New(), testDefaults, WithPublisher(pub))

	err := l.SaveSettings(context.Background(), core.Settings{GlobalRate: -5})
	assert.True(t, errors.Is(err, core.ErrNegativeAmount))
	assert.Empty(t, pub.sent())
}

func TestLedger_SaveSettingsPublishesCurrentMonth(t *testing.T) {
	pub := &fakePublisher{}
	l := NewLedger(memory.New(), testDefaults, WithPublisher(pub), WithClock(fixedClock))

	require.NoError(t, l.SaveSettings(context.Background(), testDefaults))
	msgs := pub.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, amqp.ChangeSettings, msgs[0].Kind)
	assert.Equal(t, 2024, msgs[0].Year)
	assert.Equal(t, 3, msgs[0].Month)
}

func TestLedger_SaveOverrideInvalidatesCacheAndPublishes(t *testing.T) {
	st := &countingStore{Store: memory.New()}
	pub := &fakePublisher{}
	l := NewLedger(st, testDefaults,
		WithOverrideCache(cache.NewLRUCache[[]core.Override](8, time.Minute)),
		WithPublisher(pub))
	ctx := context.Background()
	feb := core.Month{Year: 2024, Month: time.February}

	first, err := l.ListOverrides(ctx, feb)
	require.NoError(t, err)
	assert.Empty(t, first)
	_, err = l.ListOverrides(ctx, feb)
	require.NoError(t, err)
	assert.Equal(t, 1, st.lists, "second read is served from cache")

	require.NoError(t, l.SaveOverride(ctx, core.NoDelivery(feb.Day(5))))

	got, err := l.ListOverrides(ctx, feb)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, st.lists, "write invalidated the month")

	msgs := pub.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, amqp.ChangeOverride, msgs[0].Kind)
	assert.Equal(t, "2024-02-05", msgs[0].Date)
}

func TestLedger_CachedSliceIsNotShared(t *testing.T) {
	l := NewLedger(memory.New(), testDefaults,
		WithOverrideCache(cache.NewLRUCache[[]core.Override](8, time.Minute)))
	ctx := context.Background()
	m := core.Month{Year: 2024, Month: time.May}
	require.NoError(t, l.SaveOverride(ctx, core.NoDelivery(m.Day(1))))

	a, err := l.ListOverrides(ctx, m)
	require.NoError(t, err)
	a[0].Category1Amount = 99

	b, err := l.ListOverrides(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 0.0, b[0].Category1Amount)
}

func TestLedger_SaveOverrideValidation(t *testing.T) {
	l := NewLedger(memory.New(), testDefaults)
	ctx := context.Background()

	err := l.SaveOverride(ctx, core.Override{Date: "2024-02-30"})
	assert.True(t, errors.Is(err, core.ErrInvalidDate))

	err = l.SaveOverride(ctx, core.Override{Date: "2024-02-10", Category1Amount: -1})
	assert.True(t, errors.Is(err, core.ErrNegativeAmount))
}

func TestLedger_StoreFailureIsWrappedAndNotPublished(t *testing.T) {
	boom := errors.New("disk full")
	st := &countingStore{Store: memory.New(), failPut: boom}
	pub := &fakePublisher{}
	l := NewLedger(st, testDefaults, WithPublisher(pub))

	err := l.SaveOverride(context.Background(), core.NoDelivery("2024-01-01"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Empty(t, pub.sent())
}

func TestLedger_PublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	l := NewLedger(memory.New(), testDefaults, WithPublisher(pub))

	assert.NoError(t, l.SaveOverride(context.Background(), core.NoDelivery("2024-01-01")))
	assert.Len(t, pub.sent(), 1)
}

func TestLedger_MonthBill(t *testing.T) {
	l := NewLedger(memory.New(), testDefaults)
	ctx := context.Background()
	feb := core.Month{Year: 2023, Month: time.February}

	require.NoError(t, l.SaveOverride(ctx, core.NoDelivery(feb.Day(5))))
	require.NoError(t, l.SaveOverride(ctx, core.Override{Date: feb.Day(10), Category1Amount: 3, Category2Amount: 2.5}))
	// Outside the month, must not leak in.
	require.NoError(t, l.SaveOverride(ctx, core.NoDelivery("2023-03-01")))

	bill, err := l.MonthBill(ctx, feb)
	require.NoError(t, err)
	assert.Equal(t, "55.0", core.FormatLiters(bill.Category1.TotalLiters))
	assert.Equal(t, "3300.00", core.FormatMoney(bill.Category1.TotalAmount))
	assert.Equal(t, 27, bill.Category1.ActiveDays)
	assert.Equal(t, "67.5", core.FormatLiters(bill.Category2.TotalLiters))
	assert.Equal(t, "4050.00", core.FormatMoney(bill.Category2.TotalAmount))
}

func TestLedger_MonthBillPropagatesErrors(t *testing.T) {
	boom := errors.New("settings unavailable")
	l := NewLedger(&countingStore{Store: memory.New(), failGet: boom}, testDefaults)

	_, err := l.MonthBill(context.Background(), core.Month{Year: 2024, Month: time.January})
	assert.True(t, errors.Is(err, boom))
}

func TestLedger_SanitizesNonFinite(t *testing.T) {
	l := NewLedger(memory.New(), testDefaults)
	ctx := context.Background()
	nan := math.NaN()

	require.NoError(t, l.SaveOverride(ctx, core.Override{Date: "2024-04-01", Category1Amount: nan, Category2Amount: 1}))
	got, err := l.ListOverrides(ctx, core.Month{Year: 2024, Month: time.April})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.0, got[0].Category1Amount)
}

func TestLedger_Ping(t *testing.T) {
	l := NewLedger(memory.New(), testDefaults)
	assert.NoError(t, l.Ping(context.Background()))
}

func TestLedger_WritesAreLoggedOnceUnderLedgerComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Output: &buf, Component: log.ComponentHTTP})
	l := NewLedger(memory.New(), testDefaults, WithLogger(logger), WithClock(fixedClock))
	ctx := context.Background()

	require.NoError(t, l.SaveOverride(ctx, core.Override{Date: "2024-03-10", Category1Amount: 3, Category2Amount: 2.5}))
	require.NoError(t, l.SaveSettings(ctx, core.Settings{GlobalRate: 62, DefaultCategory1: 2, DefaultCategory2: 2.5}))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "Override saved"))
	assert.Equal(t, 1, strings.Count(out, "Settings saved"))
	assert.Equal(t, 2, strings.Count(out, "component=ledger"))
	assert.Contains(t, out, "date=2024-03-10")
	assert.Contains(t, out, "global_rate=62")
}

func TestLedger_PublishFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	l := NewLedger(memory.New(), testDefaults,
		WithLogger(log.New(log.Config{Output: &buf})),
		WithPublisher(&fakePublisher{err: errors.New("broker down")}))

	require.NoError(t, l.SaveOverride(context.Background(), core.NoDelivery("2024-03-10")))
	assert.Contains(t, buf.String(), "Failed to publish ledger change")
	assert.Contains(t, buf.String(), "error=\"broker down\"")
}
