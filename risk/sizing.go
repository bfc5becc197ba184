package risk

import (
	"math"

	"github.com/acid0ikario/trade-bot/market"
)

// Size computes the order quantity that risks equity*riskPct if the stop is
// hit, floored to the venue's lot step. Flooring never rounds up, so the
// realized risk can only come in at or under budget.
//
// Deterministic and side-effect free; safe to call concurrently for
// different symbols.
func Size(equity, entryPrice, stopPrice, riskPct, lotStep float64) (float64, error) {
	if equity <= 0 || riskPct <= 0 || riskPct > 1 {
		return 0, ErrInvalidRisk
	}
	perUnit := math.Abs(entryPrice - stopPrice)
	if perUnit <= 0 {
		return 0, ErrInvalidRisk
	}

	riskAmount := equity * riskPct
	qty := market.FloorToStep(riskAmount/perUnit, lotStep)
	if qty <= 0 {
		return 0, ErrZeroQuantity
	}
	return qty, nil
}
