// Package binance adapts Binance spot trading to the venue interface. The
// exchange has no per-position brackets on spot, so the two exit legs are
// placed as independent orders (a limit sell and a stop-loss-limit sell);
// the engine's watcher enforces their mutual exclusivity.
package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"github.com/acid0ikario/trade-bot/market"
	"github.com/acid0ikario/trade-bot/venue"
)

// Venue is a live Binance spot adapter.
type Venue struct {
	client *binance.Client

	mu      sync.Mutex
	symbols map[string]string           // orderID -> venue symbol, needed by cancel/status calls
	meta    map[string]venue.SymbolMeta // cached exchange filters
}

// New builds a live adapter. Pass testnet=true to trade against the spot
// testnet.
func New(apiKey, apiSecret string, testnet bool) *Venue {
	binance.UseTestnet = testnet
	return &Venue{
		client:  binance.NewClient(apiKey, apiSecret),
		symbols: make(map[string]string),
		meta:    make(map[string]venue.SymbolMeta),
	}
}

// pair converts "BTC/USDT" to the exchange's "BTCUSDT" form.
func pair(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

func (v *Venue) GetPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := v.client.NewListPricesService().Symbol(pair(symbol)).Do(ctx)
	if err != nil {
		return 0, wrap("getPrice", symbol, err)
	}
	if len(prices) == 0 {
		return 0, &venue.Error{Op: "getPrice", Symbol: symbol, Kind: venue.Fatal,
			Err: fmt.Errorf("no ticker for %s", symbol)}
	}
	p, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, &venue.Error{Op: "getPrice", Symbol: symbol, Kind: venue.Fatal, Err: err}
	}
	return p, nil
}

func (v *Venue) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (market.CandleSet, error) {
	klines, err := v.client.NewKlinesService().
		Symbol(pair(symbol)).Interval(timeframe).Limit(limit).Do(ctx)
	if err != nil {
		return nil, wrap("fetchOHLCV", symbol, err)
	}

	out := make(market.CandleSet, 0, len(klines))
	for _, k := range klines {
		c := market.Candle{Time: time.UnixMilli(k.OpenTime).UTC()}
		if c.Open, err = strconv.ParseFloat(k.Open, 64); err != nil {
			return nil, &venue.Error{Op: "fetchOHLCV", Symbol: symbol, Kind: venue.Fatal, Err: err}
		}
		c.High, _ = strconv.ParseFloat(k.High, 64)
		c.Low, _ = strconv.ParseFloat(k.Low, 64)
		c.Close, _ = strconv.ParseFloat(k.Close, 64)
		c.Volume, _ = strconv.ParseFloat(k.Volume, 64)
		out = append(out, c)
	}
	return out, nil
}

func (v *Venue) GetBalance(ctx context.Context, asset string) (float64, error) {
	acct, err := v.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, wrap("getBalance", asset, err)
	}
	for _, b := range acct.Balances {
		if b.Asset == asset {
			free, err := strconv.ParseFloat(b.Free, 64)
			if err != nil {
				return 0, &venue.Error{Op: "getBalance", Symbol: asset, Kind: venue.Fatal, Err: err}
			}
			return free, nil
		}
	}
	return 0, nil
}

func (v *Venue) GetSymbolMeta(ctx context.Context, symbol string) (venue.SymbolMeta, error) {
	v.mu.Lock()
	if m, ok := v.meta[symbol]; ok {
		v.mu.Unlock()
		return m, nil
	}
	v.mu.Unlock()

	info, err := v.client.NewExchangeInfoService().Symbol(pair(symbol)).Do(ctx)
	if err != nil {
		return venue.SymbolMeta{}, wrap("getSymbolMeta", symbol, err)
	}

	var m venue.SymbolMeta
	for _, s := range info.Symbols {
		if s.Symbol != pair(symbol) {
			continue
		}
		if f := s.PriceFilter(); f != nil {
			m.TickSize, _ = strconv.ParseFloat(f.TickSize, 64)
		}
		if f := s.LotSizeFilter(); f != nil {
			m.LotStep, _ = strconv.ParseFloat(f.StepSize, 64)
		}
	}
	if m.TickSize == 0 && m.LotStep == 0 {
		return venue.SymbolMeta{}, &venue.Error{Op: "getSymbolMeta", Symbol: symbol, Kind: venue.Fatal,
			Err: fmt.Errorf("no exchange filters for %s", symbol)}
	}

	v.mu.Lock()
	v.meta[symbol] = m
	v.mu.Unlock()
	return m, nil
}

func (v *Venue) CreateMarketBuy(ctx context.Context, symbol string, qty float64, clientOrderID string) (venue.Fill, error) {
	svc := v.client.NewCreateOrderService().
		Symbol(pair(symbol)).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		Quantity(formatQty(qty))
	if clientOrderID != "" {
		// Remembered before the call: if the response is lost in transit the
		// order can still be re-queried by its client ID.
		v.remember(clientOrderID, symbol)
		svc = svc.NewClientOrderID(clientOrderID)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return venue.Fill{}, wrap("createMarketBuy", symbol, err)
	}

	executed, _ := strconv.ParseFloat(res.ExecutedQuantity, 64)
	quote, _ := strconv.ParseFloat(res.CummulativeQuoteQuantity, 64)
	fillPrice := 0.0
	if executed > 0 {
		fillPrice = quote / executed
	}

	orderID := strconv.FormatInt(res.OrderID, 10)
	v.remember(orderID, symbol)

	return venue.Fill{
		OrderID:  orderID,
		Symbol:   symbol,
		Price:    fillPrice,
		Quantity: executed,
		Time:     time.UnixMilli(res.TransactTime).UTC(),
	}, nil
}

func (v *Venue) PlaceBracket(ctx context.Context, symbol string, qty, takeProfit, stopLoss float64) (venue.Bracket, error) {
	tp, err := v.client.NewCreateOrderService().
		Symbol(pair(symbol)).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(formatQty(qty)).
		Price(formatPrice(takeProfit)).
		Do(ctx)
	if err != nil {
		return venue.Bracket{}, wrap("placeBracket", symbol, err)
	}

	sl, err := v.client.NewCreateOrderService().
		Symbol(pair(symbol)).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeStopLossLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(formatQty(qty)).
		StopPrice(formatPrice(stopLoss)).
		Price(formatPrice(stopLoss)).
		Do(ctx)
	if err != nil {
		// Don't leave a naked TP leg behind a failed stop.
		_, cancelErr := v.client.NewCancelOrderService().
			Symbol(pair(symbol)).OrderID(tp.OrderID).Do(ctx)
		if cancelErr != nil {
			err = fmt.Errorf("%w (tp leg %d left working: %v)", err, tp.OrderID, cancelErr)
		}
		return venue.Bracket{}, wrap("placeBracket", symbol, err)
	}

	tpID := strconv.FormatInt(tp.OrderID, 10)
	slID := strconv.FormatInt(sl.OrderID, 10)
	v.remember(tpID, symbol)
	v.remember(slID, symbol)

	return venue.Bracket{TakeProfitID: tpID, StopLossID: slID}, nil
}

func (v *Venue) CancelOrder(ctx context.Context, orderID string) error {
	symbol, err := v.lookup("cancelOrder", orderID)
	if err != nil {
		return err
	}

	svc := v.client.NewCancelOrderService().Symbol(pair(symbol))
	if numID, perr := strconv.ParseInt(orderID, 10, 64); perr == nil {
		svc = svc.OrderID(numID)
	} else {
		svc = svc.OrigClientOrderID(orderID)
	}

	_, err = svc.Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == -2011 {
			// "Unknown order sent": already filled or cancelled.
			return venue.ErrOrderNotOpen
		}
		return wrap("cancelOrder", symbol, err)
	}
	return nil
}

func (v *Venue) GetOrderStatus(ctx context.Context, orderID string) (venue.OrderState, error) {
	symbol, err := v.lookup("getOrderStatus", orderID)
	if err != nil {
		return venue.OrderState{}, err
	}

	svc := v.client.NewGetOrderService().Symbol(pair(symbol))
	if numID, perr := strconv.ParseInt(orderID, 10, 64); perr == nil {
		svc = svc.OrderID(numID)
	} else {
		svc = svc.OrigClientOrderID(orderID)
	}

	o, err := svc.Do(ctx)
	if err != nil {
		return venue.OrderState{}, wrap("getOrderStatus", symbol, err)
	}

	st := venue.OrderState{ID: orderID, FillTime: time.UnixMilli(o.UpdateTime).UTC()}
	switch o.Status {
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePartiallyFilled:
		st.Status = venue.StatusWorking
	case binance.OrderStatusTypeFilled:
		st.Status = venue.StatusFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		st.Status = venue.StatusCancelled
	default:
		st.Status = venue.StatusFailed
	}

	if st.Status == venue.StatusFilled {
		executed, _ := strconv.ParseFloat(o.ExecutedQuantity, 64)
		quote, _ := strconv.ParseFloat(o.CummulativeQuoteQuantity, 64)
		if executed > 0 {
			st.FillPrice = quote / executed
		} else {
			st.FillPrice, _ = strconv.ParseFloat(o.Price, 64)
		}
	}
	return st, nil
}

func (v *Venue) remember(orderID, symbol string) {
	v.mu.Lock()
	v.symbols[orderID] = symbol
	v.mu.Unlock()
}

// lookup resolves an order ID (exchange-numeric or client-generated) to its
// symbol, required by the cancel and status endpoints.
func (v *Venue) lookup(op, orderID string) (string, error) {
	v.mu.Lock()
	symbol, ok := v.symbols[orderID]
	v.mu.Unlock()
	if !ok {
		return "", &venue.Error{Op: op, Kind: venue.Fatal,
			Err: fmt.Errorf("unknown order %s (submitted by another process?)", orderID)}
	}
	return symbol, nil
}

// wrap normalizes SDK errors. Transport failures and throttling are
// retryable; everything the exchange rejects outright is fatal.
func wrap(op, symbol string, err error) error {
	kind := venue.Retryable
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1003, -1015: // TOO_MANY_REQUESTS, TOO_MANY_ORDERS
			kind = venue.Retryable
		case -1000, -1001, -1021: // UNKNOWN, DISCONNECTED, timestamp drift
			kind = venue.Retryable
		default:
			kind = venue.Fatal
		}
	}
	return &venue.Error{Op: op, Symbol: symbol, Kind: kind, Err: err}
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

var _ venue.Venue = (*Venue)(nil)
