// Package money holds the fixed-point helpers shared by the ledger.
//
// Schedule math is carried at WorkingPlaces so that rounding error does not
// compound across installments; Round is only applied when an amount is
// billed or shown.
package money

import (
	"github.com/shopspring/decimal"
)

const (
	// CurrencyPlaces is the number of decimals in the smallest currency unit.
	CurrencyPlaces = 2
	// WorkingPlaces is the precision used for intermediate schedule values.
	WorkingPlaces = 10
)

var (
	// Cent is the smallest currency unit.
	Cent = decimal.New(1, -CurrencyPlaces)
	one  = decimal.NewFromInt(1)
)

// Round rounds to the currency unit, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// Exact trims d to the working precision.
func Exact(d decimal.Decimal) decimal.Decimal {
	return d.Round(WorkingPlaces)
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// NonNegative clamps d to zero from below.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	return Max(d, decimal.Zero)
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// WithinCent reports whether a and b differ by less than one currency unit.
func WithinCent(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(Cent)
}

// CeilInt returns ceil(n * fraction) as an int. Used for installment counts.
func CeilInt(n int, fraction decimal.Decimal) int {
	return int(decimal.NewFromInt(int64(n)).Mul(fraction).Ceil().IntPart())
}

// Compound returns (1+rate)^periods at working precision.
func Compound(rate decimal.Decimal, periods int) decimal.Decimal {
	factor := one
	base := one.Add(rate)
	for i := 0; i < periods; i++ {
		factor = Exact(factor.Mul(base))
	}
	return factor
}
