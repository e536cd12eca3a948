package desk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/tradedesk/broker"
	"github.com/rustyeddy/tradedesk/broker/sim"
	"github.com/rustyeddy/tradedesk/journal"
	"github.com/rustyeddy/tradedesk/ledger"
	"github.com/rustyeddy/tradedesk/notify"
	"github.com/rustyeddy/tradedesk/vault"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualScheduler queues callbacks until the test fires them.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTimer
}

type manualTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{delay: d, f: f}
	s.tasks = append(s.tasks, t)
	return t
}

// fireAll runs every task that has not been stopped or fired.
func (s *manualScheduler) fireAll() int {
	s.mu.Lock()
	tasks := append([]*manualTimer(nil), s.tasks...)
	s.mu.Unlock()

	n := 0
	for _, t := range tasks {
		if t.stopped || t.fired {
			continue
		}
		t.fired = true
		t.f()
		n++
	}
	return n
}

type fixedVenue struct {
	latency time.Duration
	status  broker.Status
}

func (v fixedVenue) Latency() time.Duration { return v.latency }
func (v fixedVenue) Settle(broker.Order) broker.Status { return v.status }

type harness struct {
	desk    *Desk
	store   *vault.MemoryStorage
	journal *journal.Log
	ledger  *ledger.Ledger
	sched   *manualScheduler
	notes   *notify.Recorder
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()

	logger, _ := test.NewNullLogger()
	h := &harness{
		store:   vault.NewMemoryStorage(),
		journal: journal.New(journal.Options{Logger: logger}),
		ledger:  ledger.New(0),
		sched:   &manualScheduler{},
		notes:   &notify.Recorder{},
	}
	venue, err := sim.NewVenue(0, 0)
	require.NoError(t, err)

	cfg := Config{
		Vault:     vault.New(h.store),
		Journal:   h.journal,
		Ledger:    h.ledger,
		Venue:     venue,
		Scheduler: h.sched,
		Notifier:  h.notes,
		Logger:    logger,
	}
	for _, o := range opts {
		o(&cfg)
	}

	h.desk, err = New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.desk.Close() })
	return h
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, h.desk.SetCredentials(context.Background(), "AAAAAAAAAA", "BBBBBBBBBB"))
}

func marketBuy() broker.OrderRequest {
	return broker.OrderRequest{
		Symbol:   "BTCUSDT",
		Type:     broker.Market,
		Side:     broker.Buy,
		Quantity: decimal.RequireFromString("0.001"),
	}
}

func countKind(entries []journal.Entry, kind journal.Kind, contains string) int {
	n := 0
	for _, e := range entries {
		if e.Kind == kind && strings.Contains(e.Message, contains) {
			n++
		}
	}
	return n
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.Error(t, err)
}

func TestPlaceOrderWhileDisconnected(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.desk.PlaceOrder(context.Background(), marketBuy())
	assert.ErrorIs(t, err, ErrNotConnected)

	assert.Empty(t, h.desk.Orders())
	logs := h.desk.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, journal.Error, logs[0].Kind)
	assert.Contains(t, logs[0].Message, "not connected")
	assert.Equal(t, 0, h.desk.Pending())

	notes := h.notes.All()
	require.Len(t, notes, 1)
	assert.Equal(t, "Order Failed", notes[0].Title)
	assert.Equal(t, notify.Destructive, notes[0].Severity)
}

func TestPlaceOrderRetryAfterConnect(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.desk.PlaceOrder(context.Background(), marketBuy())
	require.ErrorIs(t, err, ErrNotConnected)

	h.connect(t)
	_, err = h.desk.PlaceOrder(context.Background(), marketBuy())
	assert.NoError(t, err)
	assert.Len(t, h.desk.Orders(), 1)
}

func TestPlaceOrderLifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.connect(t)

	o, err := h.desk.PlaceOrder(context.Background(), marketBuy())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(o.ID, "ORD-"))
	assert.Equal(t, broker.StatusNew, o.Status)
	assert.False(t, o.Price.Valid)
	assert.False(t, o.CreatedAt.IsZero())

	orders := h.desk.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, o.ID, orders[0].ID)
	assert.Equal(t, broker.StatusNew, orders[0].Status)
	assert.Equal(t, 1, countKind(h.desk.Logs(), journal.Info, "Placing MARKET BUY order for 0.001 BTCUSDT..."))
	assert.Equal(t, 1, h.desk.Pending())

	require.Len(t, h.sched.tasks, 1)
	d := h.sched.tasks[0].delay
	assert.GreaterOrEqual(t, d, 1500*time.Millisecond)
	assert.Less(t, d, 2500*time.Millisecond)

	assert.Equal(t, 1, h.sched.fireAll())

	got, ok := h.desk.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, broker.StatusFilled, got.Status)
	assert.False(t, got.UpdatedAt.IsZero())
	assert.Equal(t, 1, countKind(h.desk.Logs(), journal.Success, o.ID))
	assert.Equal(t, 0, h.desk.Pending())

	notes := h.notes.All()
	last := notes[len(notes)-1]
	assert.Equal(t, "Order Placed", last.Title)
	assert.Equal(t, "BTCUSDT BUY order has been filled.", last.Description)
	assert.Equal(t, notify.Success, last.Severity)

	// A second firing must not produce another transition or log entry.
	h.desk.fulfill(o.ID)
	assert.Equal(t, 1, countKind(h.desk.Logs(), journal.Success, o.ID))
}

func TestManyOrdersInterleaved(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.connect(t)

	const n = 50
	placed := make([]string, 0, n)
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		o, err := h.desk.PlaceOrder(context.Background(), marketBuy())
		require.NoError(t, err)
		require.False(t, seen[o.ID], "duplicate id %s", o.ID)
		seen[o.ID] = true
		placed = append(placed, o.ID)
	}
	assert.Equal(t, n, h.desk.Pending())

	// Fill in reverse placement order; ledger order must stay by insertion.
	for i := len(h.sched.tasks) - 1; i >= 0; i-- {
		task := h.sched.tasks[i]
		task.fired = true
		task.f()
	}

	orders := h.desk.Orders()
	require.Len(t, orders, n)
	for i, o := range orders {
		assert.Equal(t, placed[n-1-i], o.ID)
		assert.Equal(t, broker.StatusFilled, o.Status)
		assert.Equal(t, 1, countKind(h.desk.Logs(), journal.Success, o.ID))
	}

	logs := h.desk.Logs()
	for i := 1; i < len(logs); i++ {
		assert.Greater(t, logs[i-1].ID, logs[i].ID)
	}
}

func TestLimitOrderKeepsPrice(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.connect(t)

	req := broker.OrderRequest{
		Symbol:   "ethusdt",
		Type:     broker.Limit,
		Side:     broker.Sell,
		Quantity: decimal.RequireFromString("2"),
		Price:    decimal.NewNullDecimal(decimal.RequireFromString("2500.5")),
	}
	o, err := h.desk.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", o.Symbol)
	require.True(t, o.Price.Valid)
	assert.True(t, o.Price.Decimal.Equal(decimal.RequireFromString("2500.5")))
	assert.Equal(t, 1, countKind(h.desk.Logs(), journal.Info, "Placing LIMIT SELL order for 2 ETHUSDT at 2500.5..."))
}

func TestPlaceOrderRejectsInvalidRequest(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.connect(t)

	req := marketBuy()
	req.Type = broker.Limit
	_, err := h.desk.PlaceOrder(context.Background(), req)
	assert.ErrorIs(t, err, broker.ErrInvalidOrder)
	assert.Empty(t, h.desk.Orders())
	assert.Equal(t, 1, countKind(h.desk.Logs(), journal.Error, "price is required"))

	req = marketBuy()
	req.Price = decimal.NewNullDecimal(decimal.NewFromInt(1))
	_, err = h.desk.PlaceOrder(context.Background(), req)
	assert.ErrorIs(t, err, broker.ErrInvalidOrder)
	assert.Empty(t, h.desk.Orders())
}

func TestLedgerPriceInvariant(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.connect(t)

	_, _ = h.desk.PlaceOrder(context.Background(), marketBuy())
	limit := marketBuy()
	limit.Type = broker.Limit
	limit.Price = decimal.NewNullDecimal(decimal.NewFromInt(30000))
	_, _ = h.desk.PlaceOrder(context.Background(), limit)
	noPrice := marketBuy()
	noPrice.Type = broker.Limit
	_, _ = h.desk.PlaceOrder(context.Background(), noPrice)

	for _, o := range h.desk.Orders() {
		assert.Equal(t, o.Type == broker.Limit, o.Price.Valid, o.ID)
	}
	assert.Len(t, h.desk.Orders(), 2)
}

func TestMaxInFlight(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(c *Config) { c.MaxInFlight = 2 })
	h.connect(t)

	for i := 0; i < 2; i++ {
		_, err := h.desk.PlaceOrder(context.Background(), marketBuy())
		require.NoError(t, err)
	}
	_, err := h.desk.PlaceOrder(context.Background(), marketBuy())
	assert.ErrorIs(t, err, ErrTooManyInFlight)
	assert.Len(t, h.desk.Orders(), 2)

	h.sched.fireAll()
	_, err = h.desk.PlaceOrder(context.Background(), marketBuy())
	assert.NoError(t, err)
}

func TestNonFillOutcomeIsJournaledAsError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(c *Config) {
		c.Venue = fixedVenue{latency: time.Second, status: broker.StatusFailed}
	})
	h.connect(t)

	o, err := h.desk.PlaceOrder(context.Background(), marketBuy())
	require.NoError(t, err)
	h.sched.fireAll()

	got, _ := h.desk.Order(o.ID)
	assert.Equal(t, broker.StatusFailed, got.Status)
	assert.Equal(t, 1, countKind(h.desk.Logs(), journal.Error, o.ID))
	assert.Equal(t, 0, countKind(h.desk.Logs(), journal.Success, o.ID))
}

func TestCloseDiscardsPendingFulfillment(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.connect(t)

	o, err := h.desk.PlaceOrder(context.Background(), marketBuy())
	require.NoError(t, err)
	before := len(h.desk.Logs())

	require.NoError(t, h.desk.Close())
	assert.True(t, h.sched.tasks[0].stopped)
	assert.Equal(t, 0, h.desk.Pending())

	// A callback that raced the stop must not touch the ledger.
	h.desk.fulfill(o.ID)
	got, _ := h.desk.Order(o.ID)
	assert.Equal(t, broker.StatusNew, got.Status)
	assert.Len(t, h.desk.Logs(), before)

	_, err = h.desk.PlaceOrder(context.Background(), marketBuy())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, h.desk.SetCredentials(context.Background(), "AAAAAAAAAA", "BBBBBBBBBB"), ErrClosed)
	assert.NoError(t, h.desk.Close())
}

func TestPlaceOrderHonoursContext(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.connect(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.desk.PlaceOrder(ctx, marketBuy())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.desk.Orders())
}

func TestSetCredentials(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.connect(t)

	assert.True(t, h.desk.Connected())
	assert.Equal(t, vault.Masked{Key: "AAAA...AAAA", Connected: true}, h.desk.Credentials())

	logs := h.desk.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, journal.Success, logs[0].Kind)
	assert.Equal(t, "API credentials saved and connected.", logs[0].Message)

	notes := h.notes.All()
	require.Len(t, notes, 1)
	assert.Equal(t, "API Connected", notes[0].Title)
}

func TestSetCredentialsStorageDenied(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.store.Fail = errors.New("access denied")

	require.NoError(t, h.desk.SetCredentials(context.Background(), "AAAAAAAAAA", "BBBBBBBBBB"))
	assert.True(t, h.desk.Connected())

	logs := h.desk.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, journal.Success, logs[0].Kind)
	assert.Equal(t, journal.Error, logs[1].Kind)
	assert.Equal(t, "Could not access local storage.", logs[1].Message)
}

func TestSetCredentialsEmpty(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	err := h.desk.SetCredentials(context.Background(), "", "")
	assert.ErrorIs(t, err, vault.ErrEmptyCredentials)
	assert.False(t, h.desk.Connected())
	assert.Equal(t, 1, countKind(h.desk.Logs(), journal.Error, "Failed to save API credentials"))
	assert.Empty(t, h.notes.All())
}

func TestRestore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("stored pair", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.store.Set(ctx, vault.KeyAPIKey, "AAAAAAAAAA"))
		require.NoError(t, h.store.Set(ctx, vault.KeyAPISecret, "BBBBBBBBBB"))

		assert.True(t, h.desk.Restore(ctx))
		assert.True(t, h.desk.Connected())
		logs := h.desk.Logs()
		require.Len(t, logs, 1)
		assert.Equal(t, journal.Info, logs[0].Kind)
		assert.Equal(t, "Restored API credentials from local storage.", logs[0].Message)

		assert.False(t, h.desk.Restore(ctx))
		assert.Len(t, h.desk.Logs(), 1)
	})

	t.Run("nothing stored", func(t *testing.T) {
		h := newHarness(t)
		assert.False(t, h.desk.Restore(ctx))
		assert.Empty(t, h.desk.Logs())
	})

	t.Run("storage denied", func(t *testing.T) {
		h := newHarness(t)
		h.store.Fail = errors.New("access denied")
		assert.False(t, h.desk.Restore(ctx))
		assert.False(t, h.desk.Connected())
		logs := h.desk.Logs()
		require.Len(t, logs, 1)
		assert.Equal(t, journal.Error, logs[0].Kind)
	})
}

func TestExportLogs(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, _ = h.desk.PlaceOrder(context.Background(), marketBuy())
	h.connect(t)

	var b strings.Builder
	require.NoError(t, h.desk.ExportLogs(&b))
	lines := strings.Split(strings.TrimSuffix(b.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[ERROR] Failed to place order: API not connected.")
	assert.Contains(t, lines[1], "[SUCCESS] API credentials saved and connected.")
}

func TestWaitIdle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.connect(t)
	_, err := h.desk.PlaceOrder(context.Background(), marketBuy())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.desk.WaitIdle(ctx), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- h.desk.WaitIdle(context.Background()) }()
	h.sched.fireAll()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitIdle did not return")
	}
}

// Scenario from the dashboard: connect, place a market buy, and after at
// least 2.5s of wall time the order is FILLED.
func TestScenarioWallClockFill(t *testing.T) {
	if testing.Short() {
		t.Skip("uses real timers")
	}
	t.Parallel()

	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.PanicLevel)
	venue, err := sim.NewVenue(0, 0)
	require.NoError(t, err)

	d, err := New(Config{
		Vault:   vault.New(vault.NewMemoryStorage()),
		Journal: journal.New(journal.Options{Logger: logger}),
		Ledger:  ledger.New(0),
		Venue:   venue,
		Logger:  logger,
	})
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.SetCredentials(context.Background(), "AAAAAAAAAA", "BBBBBBBBBB"))
	o, err := d.PlaceOrder(context.Background(), marketBuy())
	require.NoError(t, err)

	got, _ := d.Order(o.ID)
	assert.Equal(t, broker.StatusNew, got.Status)

	time.Sleep(2600 * time.Millisecond)
	got, _ = d.Order(o.ID)
	assert.Equal(t, broker.StatusFilled, got.Status)
}
