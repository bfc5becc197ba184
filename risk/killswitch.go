package risk

// KillSwitchActive reports whether the daily-loss circuit breaker has
// tripped: cumulative realized PnL for the day at or below
// -(baseEquity * maxLossPct).
//
// The caller owns the reset policy; dailyPnl must already be scoped to the
// current trading day. A tripped switch blocks new entries only; open
// positions are still managed to closure.
func KillSwitchActive(dailyPnl []float64, baseEquity, maxLossPct float64) bool {
	if baseEquity <= 0 || maxLossPct <= 0 {
		return false
	}
	cumulative := 0.0
	for _, p := range dailyPnl {
		cumulative += p
	}
	return cumulative <= -(baseEquity * maxLossPct)
}
