package broker

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidOrder = errors.New("invalid order")

// Validate checks the structural invariants of an order request. Forms are
// expected to have done this already; the check is repeated so that nothing
// malformed ever reaches the ledger.
func (r OrderRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidOrder)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown order type %q", ErrInvalidOrder, r.Type)
	}
	if !r.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, r.Side)
	}
	if !r.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}

	switch r.Type {
	case Limit:
		if !r.Price.Valid {
			return fmt.Errorf("%w: price is required for LIMIT orders", ErrInvalidOrder)
		}
		if !r.Price.Decimal.IsPositive() {
			return fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
		}
	case Market:
		if r.Price.Valid {
			return fmt.Errorf("%w: price is not allowed for MARKET orders", ErrInvalidOrder)
		}
	}
	return nil
}

// Normalize returns a copy with the symbol trimmed and upper-cased.
func (r OrderRequest) Normalize() OrderRequest {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	return r
}
