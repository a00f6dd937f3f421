package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
)

var (
	ErrNotFound        = errors.New("catalog: product not found")
	ErrInactive        = errors.New("catalog: product is not for sale")
	ErrInvalidPrice    = errors.New("catalog: price must be positive")
	ErrFractionalMinor = errors.New("catalog: price has more precision than the currency allows")
)

type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Currency string
	Active   bool
	// Inventory is a read snapshot; the ledger remains the authority.
	Inventory inventory.Stock
}

// UnitPriceMinor returns the product price in integer minor currency units.
func (p Product) UnitPriceMinor() (int64, error) {
	return MinorUnits(p.Price, p.Currency)
}

// Catalog is the read path into product metadata and prices.
type Catalog interface {
	FindByID(ctx context.Context, productID string) (Product, error)
}

// zero-decimal currencies per ISO 4217 commonly seen at card processors.
var zeroDecimal = map[string]struct{}{
	"JPY": {}, "KRW": {}, "VND": {}, "CLP": {}, "ISK": {}, "UGX": {},
}

// Exponent returns the number of minor-unit digits for currency.
func Exponent(currency string) int32 {
	if _, ok := zeroDecimal[strings.ToUpper(currency)]; ok {
		return 0
	}
	return 2
}

// MinorUnits converts price to integer minor units without rounding.
func MinorUnits(price decimal.Decimal, currency string) (int64, error) {
	if !price.IsPositive() {
		return 0, ErrInvalidPrice
	}
	shifted := price.Shift(Exponent(currency))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s %s", ErrFractionalMinor, price.String(), currency)
	}
	return shifted.IntPart(), nil
}

// FromMinorUnits is the inverse of MinorUnits.
func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -Exponent(currency))
}
