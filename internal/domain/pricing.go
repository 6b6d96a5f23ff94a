package domain

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// ErrAmountOutOfRange reports a currency amount whose minor units do not fit in an int64.
var ErrAmountOutOfRange = errors.New("domain: amount out of range")

// PriceBreakdown captures the derived monetary results of pricing a cart.
// All amounts are expressed in the smallest currency unit.
type PriceBreakdown struct {
	Currency string
	Subtotal int64
	Shipping int64
	Tax      int64
	Discount int64
	Total    int64
}

// Equal reports whether both breakdowns carry identical amounts.
func (b PriceBreakdown) Equal(other PriceBreakdown) bool {
	return b.Subtotal == other.Subtotal &&
		b.Shipping == other.Shipping &&
		b.Tax == other.Tax &&
		b.Discount == other.Discount &&
		b.Total == other.Total
}

const minorUnitExponent = 2

var (
	maxMinorUnits = decimal.NewFromInt(math.MaxInt64)
	minMinorUnits = decimal.NewFromInt(math.MinInt64)
)

// ToMinorUnits converts a decimal currency amount to integer cents, rounding
// half away from zero. Amounts beyond the int64 range wrap; use ParseMinorUnits
// for untrusted input.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(minorUnitExponent).Round(0).IntPart()
}

// ParseMinorUnits converts like ToMinorUnits but rejects amounts whose minor
// units fall outside the int64 range.
func ParseMinorUnits(amount decimal.Decimal) (int64, error) {
	minor := amount.Shift(minorUnitExponent).Round(0)
	if minor.GreaterThan(maxMinorUnits) || minor.LessThan(minMinorUnits) {
		return 0, ErrAmountOutOfRange
	}
	return minor.IntPart(), nil
}

// FromMinorUnits converts cents back into a decimal amount.
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -minorUnitExponent)
}
