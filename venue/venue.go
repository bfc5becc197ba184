package venue

import (
	"context"
	"time"

	"github.com/acid0ikario/trade-bot/market"
)

// OrderStatus is the normalized state of an order at the venue.
type OrderStatus string

const (
	StatusWorking   OrderStatus = "working"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
	StatusFailed    OrderStatus = "failed"
)

// Fill is the confirmed execution of a market order.
type Fill struct {
	OrderID  string
	Symbol   string
	Price    float64
	Quantity float64
	Time     time.Time
}

// Bracket holds the order IDs of the two exit legs protecting a position.
type Bracket struct {
	TakeProfitID string
	StopLossID   string
}

// OrderState is a point-in-time observation of one order.
type OrderState struct {
	ID        string
	Status    OrderStatus
	FillPrice float64
	FillTime  time.Time
}

// SymbolMeta carries venue-side rounding rules for one symbol.
type SymbolMeta struct {
	TickSize float64 // price increment
	LotStep  float64 // quantity increment
}

// Venue is the abstract exchange capability the engine trades through. All
// implementations fail with *Error so the engine's control flow never
// depends on venue-specific error shapes; retryable sub-kinds matter only to
// the retry policy.
type Venue interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (market.CandleSet, error)
	GetBalance(ctx context.Context, asset string) (float64, error)
	GetSymbolMeta(ctx context.Context, symbol string) (SymbolMeta, error)

	// CreateMarketBuy submits a market buy under the caller-generated
	// clientOrderID. The ID survives a lost acceptance response: the caller
	// can re-query the order by it via GetOrderStatus instead of assuming
	// the submission failed.
	CreateMarketBuy(ctx context.Context, symbol string, qty float64, clientOrderID string) (Fill, error)
	PlaceBracket(ctx context.Context, symbol string, qty, takeProfit, stopLoss float64) (Bracket, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderStatus(ctx context.Context, orderID string) (OrderState, error)
}
