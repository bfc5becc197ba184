// Package metrics computes summary statistics over completed trades and the
// equity curve. Everything here is a pure function; the report command feeds
// it from the ledger.
package metrics

import (
	"math"
	"time"
)

// Sharpe computes the annualized Sharpe ratio of a return series, assuming
// daily samples. Zero for empty or zero-variance input.
func Sharpe(returns []float64, riskFree float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std == 0 {
		return 0
	}
	return (mean - riskFree) / std * math.Sqrt(252)
}

// CAGR computes the compound annual growth rate between two equity values.
// Zero when the span is non-positive or either value is non-positive.
func CAGR(startEquity, endEquity float64, start, end time.Time) float64 {
	years := end.Sub(start).Hours() / (24 * 365.25)
	if years <= 0 || startEquity <= 0 || endEquity <= 0 {
		return 0
	}
	return math.Pow(endEquity/startEquity, 1/years) - 1
}

// MaxDrawdown returns the largest peak-to-trough decline of the equity
// curve as a fraction of the peak (0.2 means a 20% drawdown).
func MaxDrawdown(equity []float64) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			if dd := (peak - e) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// WinRate is the fraction of trades with positive PnL.
func WinRate(pnls []float64) float64 {
	if len(pnls) == 0 {
		return 0
	}
	wins := 0
	for _, p := range pnls {
		if p > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(pnls))
}

// ProfitFactor is gross profit over gross loss. Zero when there are no
// losses (the ratio is undefined, and reporting +Inf helps nobody).
func ProfitFactor(pnls []float64) float64 {
	var grossProfit, grossLoss float64
	for _, p := range pnls {
		if p > 0 {
			grossProfit += p
		} else {
			grossLoss -= p
		}
	}
	if grossLoss == 0 {
		return 0
	}
	return grossProfit / grossLoss
}
