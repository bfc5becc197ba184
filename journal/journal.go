package journal

import "time"

// TradeRecord is one completed round trip. Records are immutable once
// appended; the ledger is append-only and ordered by completion time.
type TradeRecord struct {
	TradeID    string
	Symbol     string
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	EntryTime  time.Time
	ExitTime   time.Time
	PnL        float64 // realized, net of fees and slippage
	Reason     string  // "TakeProfit" or "StopLoss"
}

// EquitySnapshot is the account state after a ledger append.
type EquitySnapshot struct {
	Time     time.Time
	Equity   float64
	DailyPnL float64 // cumulative realized PnL for the trading day
}

// Journal is the append-only trade ledger.
type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}
