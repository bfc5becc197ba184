package market

import "math"

// CandleSet is an ordered slice of candles for one symbol/timeframe, oldest
// first. The final candle may still be forming; signal logic must only look
// at closed bars.
type CandleSet []Candle

// LastClosed returns the most recent fully closed candle. The venue always
// reports the currently forming bar last, so this is the second-to-last
// element. ok is false when there aren't enough bars.
func (cs CandleSet) LastClosed() (Candle, bool) {
	if len(cs) < 2 {
		return Candle{}, false
	}
	return cs[len(cs)-2], true
}

// Closed returns the set without the final (potentially incomplete) bar.
func (cs CandleSet) Closed() CandleSet {
	if len(cs) == 0 {
		return cs
	}
	return cs[:len(cs)-1]
}

// Closes returns the close prices of every candle in the set.
func (cs CandleSet) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

// Returns computes log returns over the closed candles, trailing at most n
// bars. Bars with a non-positive close are skipped rather than producing
// NaN/Inf entries.
func (cs CandleSet) Returns(n int) []float64 {
	closed := cs.Closed()
	if len(closed) < 2 {
		return nil
	}
	start := 0
	if n > 0 && len(closed) > n+1 {
		start = len(closed) - n - 1
	}
	out := make([]float64, 0, len(closed)-start-1)
	for i := start + 1; i < len(closed); i++ {
		prev, cur := closed[i-1].Close, closed[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}
