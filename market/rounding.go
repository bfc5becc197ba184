package market

import "math"

// FloorToStep floors qty to the nearest multiple of step. A step of zero (or
// less) leaves qty untouched. Flooring, never rounding, keeps a sized order
// at or below its risk budget.
func FloorToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Floor(qty/step) * step
}

// RoundToTick rounds price to the venue's tick size, half up. A tick of zero
// (or less) leaves price untouched.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}

// Notional is the dollar exposure of an order: price times quantity.
func Notional(price, qty float64) float64 {
	return math.Abs(price * qty)
}
