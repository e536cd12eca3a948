// Package ledger keeps every order submitted during a session.
package ledger

import (
	"sync"
	"time"

	"github.com/rustyeddy/tradedesk/broker"
)

type Ledger struct {
	mu sync.RWMutex
	// orders is oldest-first; index maps id -> position.
	orders []broker.Order
	index  map[string]int
	max    int
}

// New returns an empty ledger. maxOrders caps how many orders are kept
// (zero keeps everything); only terminal orders are ever evicted.
func New(maxOrders int) *Ledger {
	return &Ledger{
		index: make(map[string]int),
		max:   maxOrders,
	}
}

// Append adds o as the most recent order.
func (l *Ledger) Append(o broker.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.index[o.ID] = len(l.orders)
	l.orders = append(l.orders, o)
	l.evictLocked()
}

// UpdateStatus moves order id to status and reports whether anything
// changed. Unknown ids and illegal transitions are ignored.
func (l *Ledger) UpdateStatus(id string, status broker.Status, at time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[id]
	if !ok {
		return false
	}
	o := &l.orders[i]
	if !o.Status.CanTransition(status) {
		return false
	}
	o.Status = status
	o.UpdatedAt = at
	l.evictLocked()
	return true
}

func (l *Ledger) Get(id string) (broker.Order, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.index[id]
	if !ok {
		return broker.Order{}, false
	}
	return l.orders[i], true
}

// Snapshot returns the orders newest-first by insertion.
func (l *Ledger) Snapshot() []broker.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]broker.Order, len(l.orders))
	for i, o := range l.orders {
		out[len(l.orders)-1-i] = o
	}
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.orders)
}

// InFlight counts orders still waiting for a terminal status.
func (l *Ledger) InFlight() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, o := range l.orders {
		if o.Status == broker.StatusNew {
			n++
		}
	}
	return n
}

func (l *Ledger) evictLocked() {
	if l.max <= 0 || len(l.orders) <= l.max {
		return
	}

	excess := len(l.orders) - l.max
	kept := l.orders[:0:0]
	for _, o := range l.orders {
		if excess > 0 && o.Status.Terminal() {
			excess--
			continue
		}
		kept = append(kept, o)
	}
	if len(kept) == len(l.orders) {
		return
	}

	l.orders = kept
	l.index = make(map[string]int, len(kept))
	for i, o := range kept {
		l.index[o.ID] = i
	}
}
