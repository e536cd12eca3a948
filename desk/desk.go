// Package desk is the order and credential controller behind the dashboard.
// It owns the vault, the order ledger and the activity journal, and drives
// every order from submission to a terminal status.
package desk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rustyeddy/tradedesk/broker"
	"github.com/rustyeddy/tradedesk/journal"
	"github.com/rustyeddy/tradedesk/ledger"
	"github.com/rustyeddy/tradedesk/notify"
	"github.com/rustyeddy/tradedesk/pkg/id"
	"github.com/rustyeddy/tradedesk/vault"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotConnected    = errors.New("api not connected")
	ErrTooManyInFlight = errors.New("too many orders in flight")
	ErrClosed          = errors.New("desk closed")
)

// Activity messages.
const (
	msgStorageFailed    = "Could not access local storage."
	msgRestored         = "Restored API credentials from local storage."
	msgConnected        = "API credentials saved and connected."
	msgNotConnected     = "Failed to place order: API not connected."
	msgPlaceFailed      = "Failed to place order: %v"
	msgPlacing          = "Placing %s %s order for %s %s..."
	msgPlacingLimit     = "Placing %s %s order for %s %s at %s..."
	msgFilled           = "Order %s successfully filled."
	msgSettledOther     = "Order %s %s."
	msgCredentialsEmpty = "Failed to save API credentials: %v"
)

type Config struct {
	Vault   *vault.Vault
	Journal *journal.Log
	Ledger  *ledger.Ledger
	Venue   broker.Venue

	// Optional.
	Scheduler Scheduler
	Notifier  notify.Sink
	Logger    logrus.FieldLogger
	Now       func() time.Time
	// MaxInFlight limits how many orders may wait for fulfillment at once.
	// Zero means no limit.
	MaxInFlight int
}

type Desk struct {
	mu sync.Mutex

	vault   *vault.Vault
	journal *journal.Log
	ledger  *ledger.Ledger
	venue   broker.Venue

	sched       Scheduler
	notifier    notify.Sink
	logger      logrus.FieldLogger
	now         func() time.Time
	maxInFlight int

	pending  map[string]Timer
	changed  chan struct{}
	restored bool
	closed   bool
}

func New(cfg Config) (*Desk, error) {
	if cfg.Vault == nil || cfg.Journal == nil || cfg.Ledger == nil || cfg.Venue == nil {
		return nil, fmt.Errorf("desk: vault, journal, ledger and venue are required")
	}
	if cfg.MaxInFlight < 0 {
		return nil, fmt.Errorf("desk: max in flight must not be negative")
	}

	d := &Desk{
		vault:       cfg.Vault,
		journal:     cfg.Journal,
		ledger:      cfg.Ledger,
		venue:       cfg.Venue,
		sched:       cfg.Scheduler,
		notifier:    cfg.Notifier,
		logger:      cfg.Logger,
		now:         cfg.Now,
		maxInFlight: cfg.MaxInFlight,
		pending:     make(map[string]Timer),
		changed:     make(chan struct{}),
	}
	if d.sched == nil {
		d.sched = WallClock{}
	}
	if d.notifier == nil {
		d.notifier = notify.Discard
	}
	if d.logger == nil {
		d.logger = logrus.StandardLogger()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d, nil
}

// Restore loads stored credentials. Only the first call does anything; a
// storage failure is journaled and leaves the desk disconnected.
func (d *Desk) Restore(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.restored || d.closed {
		return false
	}
	d.restored = true

	ok, err := d.vault.Restore(ctx)
	if err != nil {
		d.logger.WithError(err).Warn("restore credentials")
		d.journal.Append(journal.Error, msgStorageFailed)
		return false
	}
	if ok {
		d.journal.Append(journal.Info, msgRestored)
		d.logger.Info("credentials restored")
	}
	return ok
}

// SetCredentials accepts a key/secret pair and connects. Failing to persist
// the pair is journaled but does not fail the call.
func (d *Desk) SetCredentials(ctx context.Context, key, secret string) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}

	err := d.vault.SetCredentials(ctx, key, secret)
	var perr *vault.PersistenceError
	switch {
	case errors.As(err, &perr):
		d.logger.WithError(err).Warn("persist credentials")
		d.journal.Append(journal.Error, msgStorageFailed)
	case err != nil:
		d.journal.Append(journal.Error, fmt.Sprintf(msgCredentialsEmpty, err))
		d.mu.Unlock()
		return err
	}
	d.journal.Append(journal.Success, msgConnected)
	d.mu.Unlock()

	d.logger.WithField("api_key", vault.MaskKey(key)).Info("credentials connected")
	d.notifier.Notify(notify.New(
		"API Connected",
		"Your API credentials have been saved.",
		notify.Default,
	))
	return nil
}

// PlaceOrder records a NEW order and schedules its fulfillment. It returns
// without waiting for the fill.
func (d *Desk) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.Order, error) {
	if err := ctx.Err(); err != nil {
		return broker.Order{}, err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return broker.Order{}, ErrClosed
	}

	if !d.vault.Connected() {
		d.journal.Append(journal.Error, msgNotConnected)
		d.mu.Unlock()

		d.logger.Warn("order rejected: not connected")
		d.notifier.Notify(notify.New(
			"Order Failed",
			"Please connect to the API before placing an order.",
			notify.Destructive,
		))
		return broker.Order{}, ErrNotConnected
	}

	req = req.Normalize()
	if err := req.Validate(); err != nil {
		d.journal.Append(journal.Error, fmt.Sprintf(msgPlaceFailed, err))
		d.mu.Unlock()
		d.logger.WithError(err).Warn("order rejected")
		return broker.Order{}, err
	}

	if d.maxInFlight > 0 && len(d.pending) >= d.maxInFlight {
		err := fmt.Errorf("%w: limit is %d", ErrTooManyInFlight, d.maxInFlight)
		d.journal.Append(journal.Error, fmt.Sprintf(msgPlaceFailed, err))
		d.mu.Unlock()
		d.logger.WithError(err).Warn("order rejected")
		return broker.Order{}, err
	}

	o := broker.Order{
		ID:        id.NewOrder(),
		Symbol:    req.Symbol,
		Type:      req.Type,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Status:    broker.StatusNew,
		CreatedAt: d.now(),
	}
	d.ledger.Append(o)
	d.journal.Append(journal.Info, placingMessage(o))

	delay := d.venue.Latency()
	orderID := o.ID
	d.pending[orderID] = d.sched.AfterFunc(delay, func() { d.fulfill(orderID) })
	d.mu.Unlock()

	d.logger.WithFields(logrus.Fields{
		"order_id": o.ID,
		"symbol":   o.Symbol,
		"type":     o.Type,
		"side":     o.Side,
		"delay":    delay,
	}).Info("order placed")
	return o, nil
}

func placingMessage(o broker.Order) string {
	if o.Type == broker.Limit && o.Price.Valid {
		return fmt.Sprintf(msgPlacingLimit, o.Type, o.Side, o.Quantity, o.Symbol, o.Price.Decimal)
	}
	return fmt.Sprintf(msgPlacing, o.Type, o.Side, o.Quantity, o.Symbol)
}

// fulfill runs when an order's latency has elapsed.
func (d *Desk) fulfill(orderID string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if _, ok := d.pending[orderID]; !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, orderID)
	d.signalLocked()

	o, ok := d.ledger.Get(orderID)
	if !ok {
		d.mu.Unlock()
		d.logger.WithField("order_id", orderID).Warn("fulfilled order no longer in ledger")
		return
	}

	status := d.venue.Settle(o)
	if !d.ledger.UpdateStatus(orderID, status, d.now()) {
		d.mu.Unlock()
		d.logger.WithFields(logrus.Fields{
			"order_id": orderID,
			"from":     o.Status,
			"to":       status,
		}).Warn("order transition refused")
		return
	}

	var n notify.Notification
	if status == broker.StatusFilled {
		d.journal.Append(journal.Success, fmt.Sprintf(msgFilled, orderID))
		n = notify.New("Order Placed", fmt.Sprintf("%s %s order has been filled.", o.Symbol, o.Side), notify.Success)
	} else {
		d.journal.Append(journal.Error, fmt.Sprintf(msgSettledOther, orderID, status))
		n = notify.New("Order Failed", fmt.Sprintf("%s %s order was %s.", o.Symbol, o.Side, status), notify.Destructive)
	}
	d.mu.Unlock()

	d.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"status":   status,
	}).Info("order settled")
	d.notifier.Notify(n)
}

func (d *Desk) signalLocked() {
	close(d.changed)
	d.changed = make(chan struct{})
}

// WaitIdle blocks until no fulfillment is pending, the desk is closed or
// ctx is done.
func (d *Desk) WaitIdle(ctx context.Context) error {
	for {
		d.mu.Lock()
		if len(d.pending) == 0 || d.closed {
			d.mu.Unlock()
			return nil
		}
		ch := d.changed
		d.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pending is the number of orders awaiting fulfillment.
func (d *Desk) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Desk) Connected() bool { return d.vault.Connected() }

func (d *Desk) Credentials() vault.Masked { return d.vault.Masked() }

func (d *Desk) Orders() []broker.Order { return d.ledger.Snapshot() }

func (d *Desk) Order(id string) (broker.Order, bool) { return d.ledger.Get(id) }

func (d *Desk) Logs() []journal.Entry { return d.journal.Snapshot() }

// ExportLogs writes the activity log oldest-first.
func (d *Desk) ExportLogs(w io.Writer) error { return d.journal.Export(w) }

// Close cancels every pending fulfillment. Callbacks that already started
// see the closed flag and do nothing. Close does not close the vault or
// journal; their owner does.
func (d *Desk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	stopped := 0
	for orderID, t := range d.pending {
		if t.Stop() {
			stopped++
		}
		delete(d.pending, orderID)
	}
	d.signalLocked()

	if stopped > 0 {
		d.logger.WithField("orders", stopped).Info("pending fulfillments cancelled")
	}
	return nil
}
