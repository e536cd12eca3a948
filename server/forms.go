package server

import (
	"strings"

	"github.com/rustyeddy/tradedesk/broker"
	"github.com/shopspring/decimal"
)

const minCredentialLen = 10

// fieldErrors maps a form field to a user-facing message.
type fieldErrors map[string]string

type credentialsForm struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

func (f credentialsForm) validate() fieldErrors {
	errs := fieldErrors{}
	if len(f.APIKey) < minCredentialLen {
		errs["apiKey"] = "API Key must be at least 10 characters long."
	}
	if len(f.APISecret) < minCredentialLen {
		errs["apiSecret"] = "API Secret must be at least 10 characters long."
	}
	return errs
}

type orderForm struct {
	Symbol   string              `json:"symbol"`
	Type     string              `json:"type"`
	Side     string              `json:"side"`
	Quantity decimal.Decimal     `json:"quantity"`
	Price    decimal.NullDecimal `json:"price"`
}

// request validates the form and converts it into an order request. The
// price of a MARKET order is dropped, as the form hides that field.
func (f orderForm) request() (broker.OrderRequest, fieldErrors) {
	errs := fieldErrors{}

	symbol := strings.ToUpper(strings.TrimSpace(f.Symbol))
	if len(symbol) < 3 {
		errs["symbol"] = "Symbol is required"
	}
	typ := broker.OrderType(strings.ToUpper(f.Type))
	if !typ.Valid() {
		errs["type"] = "Type must be MARKET or LIMIT."
	}
	side := broker.Side(strings.ToUpper(f.Side))
	if !side.Valid() {
		errs["side"] = "Side must be BUY or SELL."
	}
	if !f.Quantity.IsPositive() {
		errs["quantity"] = "Quantity must be positive."
	}

	price := f.Price
	switch typ {
	case broker.Limit:
		if !price.Valid || !price.Decimal.IsPositive() {
			errs["price"] = "Price is required for Limit orders."
		}
	case broker.Market:
		price = decimal.NullDecimal{}
	}

	return broker.OrderRequest{
		Symbol:   symbol,
		Type:     typ,
		Side:     side,
		Quantity: f.Quantity,
		Price:    price,
	}, errs
}
