package sim

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rustyeddy/tradedesk/broker"
)

const (
	DefaultMinLatency = 1500 * time.Millisecond
	DefaultMaxLatency = 2500 * time.Millisecond
)

// Venue is a stand-in exchange: every order fills after a random delay drawn
// uniformly from [MinLatency, MaxLatency).
type Venue struct {
	mu  sync.Mutex
	rng *rand.Rand

	MinLatency time.Duration
	MaxLatency time.Duration
}

var _ broker.Venue = (*Venue)(nil)

// NewVenue returns a venue with the given latency window. A zero window
// selects the defaults.
func NewVenue(minLatency, maxLatency time.Duration) (*Venue, error) {
	if minLatency == 0 && maxLatency == 0 {
		minLatency, maxLatency = DefaultMinLatency, DefaultMaxLatency
	}
	if minLatency < 0 || maxLatency < minLatency {
		return nil, fmt.Errorf("sim: invalid latency window [%s, %s)", minLatency, maxLatency)
	}
	return &Venue{
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		MinLatency: minLatency,
		MaxLatency: maxLatency,
	}, nil
}

// Seed makes the latency sequence reproducible.
func (v *Venue) Seed(a, b uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rng = rand.New(rand.NewPCG(a, b))
}

func (v *Venue) Latency() time.Duration {
	span := v.MaxLatency - v.MinLatency
	if span <= 0 {
		return v.MinLatency
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.MinLatency + time.Duration(v.rng.Int64N(int64(span)))
}

// Settle always fills. Rejections, partial fills and rate limits belong to a
// real exchange client.
func (v *Venue) Settle(o broker.Order) broker.Status {
	return broker.StatusFilled
}
