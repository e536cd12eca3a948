package broker

import (
	"time"

	"github.com/shopspring/decimal"
)

// Venue settles submitted orders. The simulator in broker/sim is the only
// implementation; a real exchange client would slot in here.
type Venue interface {
	// Latency is how long the venue takes to acknowledge an order.
	Latency() time.Duration
	// Settle returns the terminal status for an order once Latency has elapsed.
	Settle(o Order) Status
}

type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

func (t OrderType) Valid() bool { return t == Market || t == Limit }

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

// OrderRequest is what a caller submits. Price is only meaningful for LIMIT.
type OrderRequest struct {
	Symbol   string              `json:"symbol"`
	Type     OrderType           `json:"type"`
	Side     Side                `json:"side"`
	Quantity decimal.Decimal     `json:"quantity"`
	Price    decimal.NullDecimal `json:"price"`
}

type Order struct {
	ID        string              `json:"id"`
	Symbol    string              `json:"symbol"`
	Type      OrderType           `json:"type"`
	Side      Side                `json:"side"`
	Quantity  decimal.Decimal     `json:"quantity"`
	Price     decimal.NullDecimal `json:"price"`
	Status    Status              `json:"status"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt,omitzero"`
}
