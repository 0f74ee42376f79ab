package exchange

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CentsFromFraction converts a [0,1] contract price to integer cents using
// round-to-nearest (half up), never truncation. The valid band is 1 through
// 99 cents. Sub-cent prices are refused on magnitude, before rounding: 0.005
// must not round up into validity.
func CentsFromFraction(price float64) (int, error) {
	if price < 0.01 {
		return 0, fmt.Errorf("price %.4f below 1¢ minimum", price)
	}
	cents := int(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(100)).Round(0).IntPart())
	if cents > 99 {
		return 0, fmt.Errorf("price %d¢ above 99¢ maximum", cents)
	}
	return cents, nil
}

// FractionFromCents converts integer cents back to a [0,1] fraction.
func FractionFromCents(cents int) float64 {
	f, _ := decimal.NewFromInt(int64(cents)).Div(decimal.NewFromInt(100)).Float64()
	return f
}
