// Package pricing derives sale prices and subtotals from cost, markup and quantity.
// Amounts are whole currency units; there is no fractional denomination.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput is returned for negative cost or markup, or a quantity outside the allowed range
var ErrInvalidInput = errors.New("invalid pricing input")

var hundred = decimal.NewFromInt(100)

// Prices holds the values derived for a product or line
type Prices struct {
	UnitPrice     int64 `json:"unit_price"`
	SubtotalCost  int64 `json:"subtotal_cost"`
	SubtotalPrice int64 `json:"subtotal_price"`
}

// ComputePrices derives unit price and subtotals for a positive quantity
func ComputePrices(unitCost, markupPercent, quantity int64) (Prices, error) {
	if quantity <= 0 {
		return Prices{}, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidInput, quantity)
	}
	return ComputeHoldings(unitCost, markupPercent, quantity)
}

// ComputeHoldings is ComputePrices for stock valuation, where a quantity of zero is valid
func ComputeHoldings(unitCost, markupPercent, quantity int64) (Prices, error) {
	if quantity < 0 {
		return Prices{}, fmt.Errorf("%w: quantity must not be negative, got %d", ErrInvalidInput, quantity)
	}
	unitPrice, err := UnitPrice(unitCost, markupPercent)
	if err != nil {
		return Prices{}, err
	}
	return Prices{
		UnitPrice:     unitPrice,
		SubtotalCost:  quantity * unitCost,
		SubtotalPrice: quantity * unitPrice,
	}, nil
}

// UnitPrice returns unitCost marked up by markupPercent, rounded half up to a whole unit
func UnitPrice(unitCost, markupPercent int64) (int64, error) {
	if unitCost < 0 {
		return 0, fmt.Errorf("%w: unit cost must not be negative, got %d", ErrInvalidInput, unitCost)
	}
	if markupPercent < 0 {
		return 0, fmt.Errorf("%w: markup must not be negative, got %d", ErrInvalidInput, markupPercent)
	}

	// Operands are non-negative, so rounding away from zero is rounding half up.
	price := decimal.NewFromInt(unitCost).
		Mul(hundred.Add(decimal.NewFromInt(markupPercent))).
		Div(hundred).
		Round(0)

	return price.IntPart(), nil
}
