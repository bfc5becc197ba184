package strategies

import (
	"math"

	"github.com/acid0ikario/trade-bot/indicators"
	"github.com/acid0ikario/trade-bot/market"
)

// Pullback is a long-only trend-following entry: price above a rising EMA
// pair, RSI in a neutral band, and a one-bar pullback to lean against.
type Pullback struct {
	EMAFast     int
	EMASlow     int
	RSIPeriod   int
	RSIBuyMin   float64
	RSIBuyMax   float64
	SlippageBps float64
}

// rsiMargin loosens the RSI band slightly so a signal isn't dropped over
// rounding at the band edges.
const rsiMargin = 3.0

func NewPullback() *Pullback {
	return &Pullback{
		EMAFast:     50,
		EMASlow:     200,
		RSIPeriod:   14,
		RSIBuyMin:   45,
		RSIBuyMax:   60,
		SlippageBps: 5,
	}
}

func init() {
	Register("pullback", func() SignalSource { return NewPullback() })
}

// GenerateSignal evaluates the entry conditions on the last closed candle.
func (p *Pullback) GenerateSignal(candles market.CandleSet) (Signal, error) {
	// Drop the forming bar; everything below sees closed candles only.
	view := candles.Closed()

	minLen := p.EMASlow
	if p.RSIPeriod > minLen {
		minLen = p.RSIPeriod
	}
	if len(view) < minLen+2 {
		return SignalNone, nil
	}

	closes := view.Closes()
	last := closes[len(closes)-1]
	prev := closes[len(closes)-2]

	emaFast, err := indicators.EMA(closes, p.EMAFast)
	if err != nil {
		return SignalNone, err
	}
	emaSlow, err := indicators.EMA(closes, p.EMASlow)
	if err != nil {
		return SignalNone, err
	}
	rsi, err := indicators.RSI(closes, p.RSIPeriod)
	if err != nil {
		return SignalNone, err
	}

	trendUp := emaFast > emaSlow
	pullback := prev > last
	momentum := rsi >= p.RSIBuyMin-rsiMargin && rsi <= p.RSIBuyMax+rsiMargin

	tol := p.SlippageBps / 10000 * math.Abs(last)
	closeAboveFast := last+tol >= emaFast

	if trendUp && pullback && momentum && closeAboveFast {
		return SignalBuy, nil
	}
	return SignalNone, nil
}
