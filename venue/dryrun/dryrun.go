// Package dryrun decorates a live venue so that every read behaves normally
// while every order-changing call is logged and acknowledged synthetically.
// Guards, sizing and the full engine run exactly as in live mode; nothing
// reaches the venue's order endpoints.
package dryrun

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/acid0ikario/trade-bot/market"
	"github.com/acid0ikario/trade-bot/pkg/id"
	"github.com/acid0ikario/trade-bot/venue"
)

// Venue wraps an inner venue, intercepting submissions.
type Venue struct {
	inner venue.Venue
	log   *zap.Logger

	mu        sync.Mutex
	intents   int
	synthetic map[string]struct{}
}

// New wraps inner. log may not be nil; use zap.NewNop() when silence is
// wanted.
func New(inner venue.Venue, log *zap.Logger) *Venue {
	return &Venue{
		inner:     inner,
		log:       log.Named("dryrun"),
		synthetic: make(map[string]struct{}),
	}
}

// Intents reports how many order intents have been intercepted.
func (v *Venue) Intents() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.intents
}

func (v *Venue) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return v.inner.GetPrice(ctx, symbol)
}

func (v *Venue) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (market.CandleSet, error) {
	return v.inner.FetchOHLCV(ctx, symbol, timeframe, limit)
}

func (v *Venue) GetBalance(ctx context.Context, asset string) (float64, error) {
	return v.inner.GetBalance(ctx, asset)
}

func (v *Venue) GetSymbolMeta(ctx context.Context, symbol string) (venue.SymbolMeta, error) {
	return v.inner.GetSymbolMeta(ctx, symbol)
}

// CreateMarketBuy logs the intent and fabricates an accepted fill at the
// current price. No order is submitted; the caller's clientOrderID becomes
// the synthetic order ID so later status queries resolve locally.
func (v *Venue) CreateMarketBuy(ctx context.Context, symbol string, qty float64, clientOrderID string) (venue.Fill, error) {
	price, err := v.inner.GetPrice(ctx, symbol)
	if err != nil {
		return venue.Fill{}, err
	}

	fill := venue.Fill{
		OrderID:  v.record("market buy", symbol, clientOrderID, zap.Float64("qty", qty), zap.Float64("price", price)),
		Symbol:   symbol,
		Price:    price,
		Quantity: qty,
		Time:     time.Now().UTC(),
	}
	return fill, nil
}

// PlaceBracket logs the intended exit legs and returns synthetic order IDs.
func (v *Venue) PlaceBracket(ctx context.Context, symbol string, qty, takeProfit, stopLoss float64) (venue.Bracket, error) {
	return venue.Bracket{
		TakeProfitID: v.record("take-profit leg", symbol, "", zap.Float64("qty", qty), zap.Float64("price", takeProfit)),
		StopLossID:   v.record("stop-loss leg", symbol, "", zap.Float64("qty", qty), zap.Float64("price", stopLoss)),
	}, nil
}

// CancelOrder is a no-op for synthetic orders and passes real IDs through,
// so a dry run can still manage positions opened before the mode switch.
func (v *Venue) CancelOrder(ctx context.Context, orderID string) error {
	v.mu.Lock()
	_, ok := v.synthetic[orderID]
	v.mu.Unlock()
	if ok {
		v.log.Info("would cancel order", zap.String("order_id", orderID))
		return nil
	}
	return v.inner.CancelOrder(ctx, orderID)
}

// GetOrderStatus reports synthetic orders as perpetually working; they never
// fill, so dry-run positions are carried without ever touching equity.
func (v *Venue) GetOrderStatus(ctx context.Context, orderID string) (venue.OrderState, error) {
	v.mu.Lock()
	_, ok := v.synthetic[orderID]
	v.mu.Unlock()
	if ok {
		return venue.OrderState{ID: orderID, Status: venue.StatusWorking}, nil
	}
	return v.inner.GetOrderStatus(ctx, orderID)
}

func (v *Venue) record(what, symbol, orderID string, fields ...zap.Field) string {
	if orderID == "" {
		orderID = id.New()
	}

	v.mu.Lock()
	v.intents++
	v.synthetic[orderID] = struct{}{}
	v.mu.Unlock()

	fields = append(fields, zap.String("symbol", symbol), zap.String("order_id", orderID))
	v.log.Info("dry-run: would submit "+what, fields...)
	return orderID
}

var _ venue.Venue = (*Venue)(nil)
