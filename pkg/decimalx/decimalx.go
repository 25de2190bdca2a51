// Package decimalx converts between human-readable decimal prices/sizes and
// the scaled integers the exchange wire protocol carries, grounded on the
// same big.Int-scaling shape the exchange client uses for on-chain amounts.
package decimalx

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ToScaled converts x to an integer scaled by 10^decimals, rounding to the
// nearest integer. It fails if the result does not fit in a uint64 — the
// wire format requires every scaled amount to fit a 64-bit unsigned integer.
func ToScaled(x decimal.Decimal, decimals int32) (uint64, error) {
	scaled := x.Shift(decimals).Round(0)
	if scaled.IsNegative() {
		return 0, fmt.Errorf("decimalx: %s scales to a negative amount", x)
	}
	if scaled.GreaterThan(decimal.NewFromFloat(math.MaxUint64)) {
		return 0, fmt.Errorf("decimalx: %s overflows uint64 at %d decimals", x, decimals)
	}
	return uint64(scaled.IntPart()), nil
}

// FromScaled recovers a decimal value from a wire-scaled integer.
func FromScaled(v uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromInt(int64(v)).Shift(-decimals)
}

// FloorToStep rounds x down to the nearest multiple of step (step > 0).
func FloorToStep(x, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return x
	}
	units := x.Div(step).Floor()
	return units.Mul(step)
}

// CeilToStep rounds x up to the nearest multiple of step (step > 0).
func CeilToStep(x, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return x
	}
	units := x.Div(step).Ceil()
	return units.Mul(step)
}
