package exchange

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// FloorToStep rounds a quantity down to the instrument's step size.
// Done in decimal space: float floor-division drifts at small steps
// (0.29999999... / 0.001 floors a tick too low).
func FloorToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	q := decimal.NewFromFloat(qty)
	s := decimal.NewFromFloat(step)
	v, _ := q.Div(s).Floor().Mul(s).Float64()
	return v
}

// FloorToTick rounds a price down to the instrument's tick size
func FloorToTick(price, tick float64) float64 {
	return FloorToStep(price, tick)
}

// formatAmount renders a quantity or price the way the exchange wants it:
// stepped value, no exponent, no superfluous trailing zeros
func formatAmount(v, step float64) string {
	if step > 0 {
		return decimal.NewFromFloat(FloorToStep(v, step)).String()
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
