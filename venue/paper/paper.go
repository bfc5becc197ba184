// Package paper implements a simulated venue: market data is delegated to a
// real data source while order submission, bracket legs and fills are
// resolved locally against candle high/low ranges. No order ever leaves the
// process.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/acid0ikario/trade-bot/market"
	"github.com/acid0ikario/trade-bot/pkg/id"
	"github.com/acid0ikario/trade-bot/venue"
)

// DataSource is the read side of a venue: prices, candles and symbol
// rounding rules. A live adapter satisfies it, as does a synthetic feed in
// tests.
type DataSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (market.CandleSet, error)
	GetSymbolMeta(ctx context.Context, symbol string) (venue.SymbolMeta, error)
}

type legKind int

const (
	legTakeProfit legKind = iota
	legStopLoss
)

// order is one simulated working/terminal order.
type order struct {
	id       string
	symbol   string
	qty      float64
	price    float64 // trigger/limit price for exit legs
	kind     legKind
	status   venue.OrderStatus
	fill     float64
	fillTime time.Time
	fee      float64
	sibling  string // other leg of the bracket, "" for entries
}

// Venue simulates fills on top of a real data source.
type Venue struct {
	source    DataSource
	timeframe string

	mu       sync.Mutex
	balances map[string]float64
	orders   map[string]*order
	marked   map[string]time.Time // symbol -> last candle applied to its legs

	slippageBps float64
	takerFee    float64
}

// Option tweaks simulation behavior.
type Option func(*Venue)

// WithSlippageBps applies a fixed adverse slippage to market fills.
func WithSlippageBps(bps float64) Option {
	return func(v *Venue) { v.slippageBps = bps }
}

// WithTakerFee sets the proportional fee charged on every fill's notional.
func WithTakerFee(rate float64) Option {
	return func(v *Venue) { v.takerFee = rate }
}

// New builds a paper venue over source. timeframe selects the candles exit
// legs are resolved against; balances seeds the simulated account (quote
// asset -> amount).
func New(source DataSource, timeframe string, balances map[string]float64, opts ...Option) *Venue {
	v := &Venue{
		source:    source,
		timeframe: timeframe,
		balances:  make(map[string]float64, len(balances)),
		orders:    make(map[string]*order),
		marked:    make(map[string]time.Time),
	}
	for asset, amount := range balances {
		v.balances[asset] = amount
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Venue) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return v.source.GetPrice(ctx, symbol)
}

func (v *Venue) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (market.CandleSet, error) {
	return v.source.FetchOHLCV(ctx, symbol, timeframe, limit)
}

func (v *Venue) GetSymbolMeta(ctx context.Context, symbol string) (venue.SymbolMeta, error) {
	return v.source.GetSymbolMeta(ctx, symbol)
}

func (v *Venue) GetBalance(ctx context.Context, asset string) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[asset], nil
}

// CreateMarketBuy fills immediately at the source price plus slippage and
// charges the taker fee against the quote balance. Resubmitting under a
// clientOrderID already on the books replays the original fill instead of
// executing twice, matching exchange duplicate-ID semantics.
func (v *Venue) CreateMarketBuy(ctx context.Context, symbol string, qty float64, clientOrderID string) (venue.Fill, error) {
	if qty <= 0 {
		return venue.Fill{}, &venue.Error{Op: "createMarketBuy", Symbol: symbol, Kind: venue.Fatal,
			Err: fmt.Errorf("quantity must be positive, got %v", qty)}
	}
	if clientOrderID != "" {
		v.mu.Lock()
		if o, ok := v.orders[clientOrderID]; ok {
			fill := venue.Fill{OrderID: o.id, Symbol: o.symbol, Price: o.fill, Quantity: o.qty, Time: o.fillTime}
			v.mu.Unlock()
			return fill, nil
		}
		v.mu.Unlock()
	}
	price, err := v.source.GetPrice(ctx, symbol)
	if err != nil {
		return venue.Fill{}, err
	}

	fillPrice := price * (1 + v.slippageBps/10000)
	notional := fillPrice * qty
	fee := notional * v.takerFee

	v.mu.Lock()
	defer v.mu.Unlock()

	o := &order{
		id:       clientOrderID,
		symbol:   symbol,
		qty:      qty,
		status:   venue.StatusFilled,
		fill:     fillPrice,
		fillTime: time.Now().UTC(),
		fee:      fee,
	}
	if o.id == "" {
		o.id = id.New()
	}
	v.orders[o.id] = o
	v.credit(symbol, qty, -(notional + fee))

	return venue.Fill{
		OrderID:  o.id,
		Symbol:   symbol,
		Price:    fillPrice,
		Quantity: qty,
		Time:     o.fillTime,
	}, nil
}

// PlaceBracket registers the two independent exit legs as working orders.
// Mutual exclusivity is emulated: a candle fills at most one leg of a pair,
// stop first when both are touched (conservative).
func (v *Venue) PlaceBracket(ctx context.Context, symbol string, qty, takeProfit, stopLoss float64) (venue.Bracket, error) {
	if takeProfit <= stopLoss {
		return venue.Bracket{}, &venue.Error{Op: "placeBracket", Symbol: symbol, Kind: venue.Fatal,
			Err: fmt.Errorf("take-profit %v must exceed stop %v", takeProfit, stopLoss)}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	tp := &order{id: id.New(), symbol: symbol, qty: qty, price: takeProfit, kind: legTakeProfit, status: venue.StatusWorking}
	sl := &order{id: id.New(), symbol: symbol, qty: qty, price: stopLoss, kind: legStopLoss, status: venue.StatusWorking}
	tp.sibling, sl.sibling = sl.id, tp.id
	v.orders[tp.id] = tp
	v.orders[sl.id] = sl

	return venue.Bracket{TakeProfitID: tp.id, StopLossID: sl.id}, nil
}

// CancelOrder cancels a working order. Cancelling a filled or already
// cancelled order reports ErrOrderNotOpen so racing callers can treat it as
// a no-op.
func (v *Venue) CancelOrder(ctx context.Context, orderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	o, ok := v.orders[orderID]
	if !ok {
		return &venue.Error{Op: "cancelOrder", Kind: venue.Fatal, Err: fmt.Errorf("unknown order %s", orderID)}
	}
	if o.status != venue.StatusWorking {
		return venue.ErrOrderNotOpen
	}
	o.status = venue.StatusCancelled
	return nil
}

// GetOrderStatus reports the order's state after resolving its symbol's
// working legs against the latest closed candle.
func (v *Venue) GetOrderStatus(ctx context.Context, orderID string) (venue.OrderState, error) {
	v.mu.Lock()
	o, ok := v.orders[orderID]
	var working bool
	if ok {
		working = o.status == venue.StatusWorking
	}
	v.mu.Unlock()
	if !ok {
		return venue.OrderState{}, &venue.Error{Op: "getOrderStatus", Kind: venue.Fatal,
			Err: fmt.Errorf("unknown order %s", orderID)}
	}

	if working {
		candles, err := v.source.FetchOHLCV(ctx, o.symbol, v.timeframe, 2)
		if err == nil {
			if c, ok := candles.LastClosed(); ok {
				v.Mark(o.symbol, c)
			}
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return venue.OrderState{ID: o.id, Status: o.status, FillPrice: o.fill, FillTime: o.fillTime}, nil
}

// Mark resolves all working exit legs for symbol against one candle. At most
// one leg of a bracket pair fills per candle; when the candle touches both,
// the stop wins (the worse assumption, matching a conservative backtest).
// Applying the same candle twice is a no-op.
func (v *Venue) Mark(symbol string, c market.Candle) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if last, ok := v.marked[symbol]; ok && !c.Time.After(last) {
		return
	}
	v.marked[symbol] = c.Time

	for _, o := range v.orders {
		if o.symbol != symbol || o.status != venue.StatusWorking || !c.Touches(o.price) {
			continue
		}
		if sib := v.orders[o.sibling]; o.sibling != "" && sib != nil {
			if sib.status == venue.StatusFilled {
				continue // the other leg already closed the position
			}
			if o.kind == legTakeProfit && sib.status == venue.StatusWorking && c.Touches(sib.price) {
				continue // stop leg takes priority inside the same candle
			}
		}
		v.fillLocked(o, c.Time)
	}
}

func (v *Venue) fillLocked(o *order, at time.Time) {
	proceeds := o.price * o.qty
	fee := proceeds * v.takerFee

	o.status = venue.StatusFilled
	o.fill = o.price
	o.fillTime = at
	o.fee = fee

	v.credit(o.symbol, -o.qty, proceeds-fee)
}

// credit adjusts simulated balances: base asset by qty, quote asset by cash.
// Symbols follow the BASE/QUOTE convention.
func (v *Venue) credit(symbol string, qty, cash float64) {
	base, quote := market.SplitSymbol(symbol)
	v.balances[base] += qty
	v.balances[quote] += cash
}

var _ venue.Venue = (*Venue)(nil)
