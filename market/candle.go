package market

import "time"

// Candle represents OHLC (Open, High, Low, Close) candlestick data for one
// bar of the configured timeframe.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Time   time.Time // bar open time, UTC
	Volume float64
}

// Touches reports whether price falls inside the candle's high/low range.
func (c Candle) Touches(price float64) bool {
	return c.Low <= price && price <= c.High
}
