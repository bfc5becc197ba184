package risk

import (
	"fmt"

	"github.com/acid0ikario/trade-bot/market"
)

// Violation is one failed admission check.
type Violation struct {
	Code string
	Msg  string
}

// Decision is the outcome of the admission pass for one candidate trade.
type Decision struct {
	Allowed    bool
	Violations []Violation
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Denied returns the first violation, which is the one reported to the
// notifier. Check ordering makes this deterministic.
func (d Decision) Denied() (Violation, bool) {
	if d.Allowed || len(d.Violations) == 0 {
		return Violation{}, false
	}
	return d.Violations[0], true
}

// Limits are the immutable account/portfolio admission caps, taken from the
// config snapshot at startup.
type Limits struct {
	BaseEquity           float64
	MaxDailyLossPct      float64
	MaxOpenTrades        int
	MaxNotionalPerTrade  float64
	MaxNotionalPerPair   float64
	MaxCorrelated        int
	CorrelationThreshold float64
}

// Candidate describes the trade under admission.
type Candidate struct {
	Symbol     string
	EntryPrice float64
	Quantity   float64
	Returns    []float64 // trailing log returns of the candidate symbol
}

// Snapshot is the open-exposure state the admission pass evaluates against.
// The engine takes it atomically before submitting any order for the tick.
type Snapshot struct {
	DailyPnl         []float64
	OpenTrades       int
	NotionalBySymbol map[string]float64
	ReturnsBySymbol  map[string][]float64
}

// Evaluate runs every admission gate for the candidate in a fixed order:
// kill switch, open-trade count, per-pair notional, per-trade notional,
// correlation. A tripped kill switch short-circuits; no correlation is
// computed for a halted account.
func Evaluate(lim Limits, c Candidate, snap Snapshot) Decision {
	d := Decision{Allowed: true}

	if KillSwitchActive(snap.DailyPnl, lim.BaseEquity, lim.MaxDailyLossPct) {
		d.add("KILL_SWITCH",
			fmt.Sprintf("daily loss limit reached (%.1f%% of %.2f)", 100*lim.MaxDailyLossPct, lim.BaseEquity))
		return d
	}

	if lim.MaxOpenTrades > 0 && snap.OpenTrades >= lim.MaxOpenTrades {
		d.add("TOO_MANY_OPEN_TRADES",
			fmt.Sprintf("open trades %d >= max %d", snap.OpenTrades, lim.MaxOpenTrades))
	}

	notional := market.Notional(c.EntryPrice, c.Quantity)
	if lim.MaxNotionalPerPair > 0 {
		total := snap.NotionalBySymbol[c.Symbol] + notional
		if total > lim.MaxNotionalPerPair {
			d.add("PAIR_NOTIONAL_CAP",
				fmt.Sprintf("%s notional %.2f exceeds per-pair cap %.2f", c.Symbol, total, lim.MaxNotionalPerPair))
		}
	}
	if lim.MaxNotionalPerTrade > 0 && notional > lim.MaxNotionalPerTrade {
		d.add("TRADE_NOTIONAL_CAP",
			fmt.Sprintf("trade notional %.2f exceeds per-trade cap %.2f", notional, lim.MaxNotionalPerTrade))
	}

	if lim.MaxCorrelated > 0 {
		n := CorrelatedCount(c.Returns, snap.ReturnsBySymbol, lim.CorrelationThreshold)
		if n >= lim.MaxCorrelated {
			d.add("CORRELATION_LIMIT",
				fmt.Sprintf("%d open symbols correlated with %s above %.2f (max %d)",
					n, c.Symbol, lim.CorrelationThreshold, lim.MaxCorrelated))
		}
	}

	return d
}
