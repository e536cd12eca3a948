package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// OrderPrefix marks identifiers handed out for orders.
const OrderPrefix = "ORD-"

var (
	mu   sync.Mutex
	mono io.Reader
	last ulid.ULID
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string. Successive calls within one process return
// strictly increasing values, so ids double as a creation-order key.
func New() string {
	return next(time.Now().UTC()).String()
}

// NewOrder returns a new order id of the form ORD-<ULID>.
func NewOrder() string {
	return OrderPrefix + New()
}

func next(now time.Time) ulid.ULID {
	mu.Lock()
	defer mu.Unlock()

	ms := ulid.Timestamp(now)
	// A clock step backwards would reset the monotonic reader; pin to the
	// last issued millisecond instead so ordering still holds.
	if ms < last.Time() {
		ms = last.Time()
	}

	id, err := ulid.New(ms, mono)
	if err != nil {
		// Only reachable when the monotonic entropy overflows inside one millisecond.
		panic(err)
	}
	last = id
	return id
}
