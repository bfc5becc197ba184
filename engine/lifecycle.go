package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/acid0ikario/trade-bot/journal"
	"github.com/acid0ikario/trade-bot/market"
	"github.com/acid0ikario/trade-bot/pkg/id"
	"github.com/acid0ikario/trade-bot/venue"
)

// ErrAmbiguousState means an order's status could not be confirmed after
// retries while a position is open or pending. The position is kept and
// reconciled on the next tick; it is never silently dropped.
var ErrAmbiguousState = errors.New("order state unknown, reconcile next tick")

// TieBreak decides which exit leg wins when both report filled in the same
// observation, a real possibility under venue race conditions.
type TieBreak string

const (
	TieBreakTakeProfit TieBreak = "tp-first"
	TieBreakStopLoss   TieBreak = "sl-first"
)

// ParseTieBreak validates a configured tie-break policy.
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(s) {
	case TieBreakTakeProfit, TieBreakStopLoss:
		return TieBreak(s), nil
	case "":
		return TieBreakTakeProfit, nil
	}
	return "", fmt.Errorf("unknown tie-break policy %q", s)
}

const (
	reasonTakeProfit = "TakeProfit"
	reasonStopLoss   = "StopLoss"
)

// Lifecycle drives one bracketed position per symbol through
// entry, bracket placement, watching and closure. It talks to the venue
// through the retry policy and never touches GuardState; the engine applies
// the closure it returns.
type Lifecycle struct {
	venue    venue.Venue
	retry    venue.RetryPolicy
	feeRate  float64
	tieBreak TieBreak
	log      *zap.Logger
}

func NewLifecycle(v venue.Venue, retry venue.RetryPolicy, feeRate float64, tb TieBreak, log *zap.Logger) *Lifecycle {
	if tb == "" {
		tb = TieBreakTakeProfit
	}
	return &Lifecycle{venue: v, retry: retry, feeRate: feeRate, tieBreak: tb, log: log}
}

// Enter submits the market entry under a client-generated order ID and, once
// filled, the two exit legs. The submission is made exactly once: a market
// buy is not idempotent, so a transport failure is never retried blindly.
// Instead the position comes back in entry-pending state together with
// ErrAmbiguousState, and Watch re-queries the venue by client ID until the
// order is found filled or proven absent. A venue rejection returns a nil
// position: nothing was placed.
//
// If the entry filled but the bracket could not be placed, the position is
// returned without a bracket together with ErrAmbiguousState; Watch resubmits
// the legs until they are accepted.
func (l *Lifecycle) Enter(ctx context.Context, symbol string, qty, takeProfit, stop float64, meta venue.SymbolMeta) (*Position, error) {
	pos := &Position{
		TradeID:    id.New(),
		Symbol:     symbol,
		Quantity:   qty,
		StopPrice:  market.RoundToTick(stop, meta.TickSize),
		TakeProfit: market.RoundToTick(takeProfit, meta.TickSize),
		Status:     StatusEntryPending,
	}

	fill, err := l.venue.CreateMarketBuy(ctx, symbol, qty, pos.TradeID)
	if err != nil {
		if venue.IsFatal(err) {
			return nil, fmt.Errorf("entry %s: %w", symbol, err)
		}
		// The order may have been accepted even though the response was lost.
		l.log.Warn("entry acceptance unconfirmed, will reconcile",
			zap.String("symbol", symbol),
			zap.String("client_order_id", pos.TradeID),
			zap.Error(err),
		)
		return pos, fmt.Errorf("entry %s: %w", symbol, errors.Join(err, ErrAmbiguousState))
	}
	pos.applyEntry(fill.Price, fill.Time)
	if fill.Quantity > 0 {
		pos.Quantity = fill.Quantity
	}

	if err := l.placeBracket(ctx, pos); err != nil {
		l.log.Warn("bracket placement failed, position unprotected",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return pos, fmt.Errorf("bracket %s: %w", symbol, errors.Join(err, ErrAmbiguousState))
	}
	return pos, nil
}

func (p *Position) applyEntry(price float64, at time.Time) {
	p.EntryPrice = price
	p.EntryTime = at
	p.Status = StatusOpen
}

func (l *Lifecycle) placeBracket(ctx context.Context, pos *Position) error {
	return venue.WithRetry(ctx, l.retry, func(ctx context.Context) error {
		br, err := l.venue.PlaceBracket(ctx, pos.Symbol, pos.Quantity, pos.TakeProfit, pos.StopPrice)
		if err != nil {
			return err
		}
		pos.Bracket = br
		return nil
	})
}

// Watch is the per-tick polling step for one position. A pending entry is
// reconciled first; an open position has both legs queried in the configured
// tie-break order, closes on the first fill observed, and gets its bracket
// replaced if a leg died at the venue. Calling it on an already closed
// position is a no-op.
//
// A pending entry the venue has no record of is marked closed with a nil
// record; the engine drops it without touching equity.
func (l *Lifecycle) Watch(ctx context.Context, pos *Position) (*journal.TradeRecord, error) {
	if pos.Status == StatusClosed {
		return nil, nil
	}
	if pos.Status == StatusEntryPending {
		if err := l.reconcileEntry(ctx, pos); err != nil || pos.Status != StatusOpen {
			return nil, err
		}
	}
	if !pos.HasBracket() {
		if err := l.placeBracket(ctx, pos); err != nil {
			return nil, fmt.Errorf("rebracket %s: %w", pos.Symbol, errors.Join(err, ErrAmbiguousState))
		}
		l.log.Info("bracket placed on retry", zap.String("symbol", pos.Symbol))
	}

	first, second := pos.Bracket.TakeProfitID, pos.Bracket.StopLossID
	firstReason, secondReason := reasonTakeProfit, reasonStopLoss
	if l.tieBreak == TieBreakStopLoss {
		first, second = second, first
		firstReason, secondReason = secondReason, firstReason
	}

	stFirst, err := l.orderStatus(ctx, first)
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", pos.Symbol, errors.Join(err, ErrAmbiguousState))
	}
	if stFirst.Status == venue.StatusFilled {
		return l.close(ctx, pos, stFirst, firstReason, second)
	}

	stSecond, err := l.orderStatus(ctx, second)
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", pos.Symbol, errors.Join(err, ErrAmbiguousState))
	}
	if stSecond.Status == venue.StatusFilled {
		return l.close(ctx, pos, stSecond, secondReason, first)
	}

	// A leg cancelled or expired behind our back leaves the position
	// unprotected; replace the whole bracket.
	if legDead(stFirst) || legDead(stSecond) {
		survivor := ""
		switch {
		case !legDead(stFirst):
			survivor = first
		case !legDead(stSecond):
			survivor = second
		}
		return l.replaceBracket(ctx, pos, survivor)
	}

	return nil, nil
}

// reconcileEntry resolves an entry whose submission response was lost by
// querying the order under its client ID. Found filled: the position opens
// with the observed fill. Found dead or entirely unknown to the venue: the
// entry never took effect and the position is marked closed for removal.
func (l *Lifecycle) reconcileEntry(ctx context.Context, pos *Position) error {
	st, err := l.orderStatus(ctx, pos.TradeID)
	if err != nil {
		if venue.IsFatal(err) {
			l.log.Info("pending entry not found at venue, abandoning",
				zap.String("symbol", pos.Symbol),
				zap.String("client_order_id", pos.TradeID),
			)
			pos.Status = StatusClosed
			return nil
		}
		return fmt.Errorf("reconcile entry %s: %w", pos.Symbol, errors.Join(err, ErrAmbiguousState))
	}

	switch st.Status {
	case venue.StatusFilled:
		price := st.FillPrice
		if price <= 0 {
			price = pos.EntryPrice
		}
		pos.applyEntry(price, st.FillTime)
		l.log.Info("pending entry confirmed filled",
			zap.String("symbol", pos.Symbol),
			zap.Float64("price", price),
		)
	case venue.StatusCancelled, venue.StatusFailed:
		pos.Status = StatusClosed
	}
	// Still working: a market order about to fill; check again next tick.
	return nil
}

func legDead(st venue.OrderState) bool {
	return st.Status == venue.StatusCancelled || st.Status == venue.StatusFailed
}

func (p *Position) legReason(orderID string) string {
	if orderID == p.Bracket.StopLossID {
		return reasonStopLoss
	}
	return reasonTakeProfit
}

func (p *Position) siblingOf(orderID string) string {
	if orderID == p.Bracket.StopLossID {
		return p.Bracket.TakeProfitID
	}
	return p.Bracket.StopLossID
}

// replaceBracket restores protection after a leg died at the venue: the
// surviving leg is cancelled and a fresh bracket goes in. If the survivor
// turns out to have filled in the meantime, the position closes on that fill
// instead.
func (l *Lifecycle) replaceBracket(ctx context.Context, pos *Position, survivorID string) (*journal.TradeRecord, error) {
	if survivorID != "" {
		err := venue.WithRetry(ctx, l.retry, func(ctx context.Context) error {
			return l.venue.CancelOrder(ctx, survivorID)
		})
		if errors.Is(err, venue.ErrOrderNotOpen) {
			st, qerr := l.orderStatus(ctx, survivorID)
			if qerr == nil && st.Status == venue.StatusFilled {
				return l.close(ctx, pos, st, pos.legReason(survivorID), pos.siblingOf(survivorID))
			}
		} else if err != nil {
			return nil, fmt.Errorf("cancel surviving leg %s: %w", pos.Symbol, err)
		}
	}

	l.log.Warn("exit leg dead at venue, replacing bracket",
		zap.String("symbol", pos.Symbol),
		zap.String("tp_id", pos.Bracket.TakeProfitID),
		zap.String("sl_id", pos.Bracket.StopLossID),
	)
	pos.Bracket = venue.Bracket{}
	if err := l.placeBracket(ctx, pos); err != nil {
		return nil, fmt.Errorf("rebracket %s: %w", pos.Symbol, errors.Join(err, ErrAmbiguousState))
	}
	return nil, nil
}

func (l *Lifecycle) orderStatus(ctx context.Context, orderID string) (venue.OrderState, error) {
	var st venue.OrderState
	err := venue.WithRetry(ctx, l.retry, func(ctx context.Context) error {
		var err error
		st, err = l.venue.GetOrderStatus(ctx, orderID)
		return err
	})
	return st, err
}

// close finalizes the position on the filled leg. The sibling cancel is
// idempotent: a leg already filled or cancelled at the venue is fine. Any
// other cancel failure keeps the position open for another attempt next tick.
func (l *Lifecycle) close(ctx context.Context, pos *Position, fill venue.OrderState, reason, siblingID string) (*journal.TradeRecord, error) {
	err := venue.WithRetry(ctx, l.retry, func(ctx context.Context) error {
		return l.venue.CancelOrder(ctx, siblingID)
	})
	if err != nil && !errors.Is(err, venue.ErrOrderNotOpen) {
		l.log.Warn("sibling cancel failed, retrying next tick",
			zap.String("symbol", pos.Symbol),
			zap.String("order_id", siblingID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("cancel sibling %s: %w", pos.Symbol, err)
	}

	pos.Status = StatusClosed

	fees := l.feeRate * (market.Notional(pos.EntryPrice, pos.Quantity) + market.Notional(fill.FillPrice, pos.Quantity))
	rec := &journal.TradeRecord{
		TradeID:    pos.TradeID,
		Symbol:     pos.Symbol,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  fill.FillPrice,
		EntryTime:  pos.EntryTime,
		ExitTime:   fill.FillTime,
		PnL:        (fill.FillPrice-pos.EntryPrice)*pos.Quantity - fees,
		Reason:     reason,
	}

	l.log.Info("position closed",
		zap.String("symbol", pos.Symbol),
		zap.String("reason", reason),
		zap.Float64("pnl", rec.PnL),
	)
	return rec, nil
}
