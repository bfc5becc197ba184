package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/acid0ikario/trade-bot/indicators"
	"github.com/acid0ikario/trade-bot/journal"
	"github.com/acid0ikario/trade-bot/market"
	"github.com/acid0ikario/trade-bot/notify"
	"github.com/acid0ikario/trade-bot/risk"
	"github.com/acid0ikario/trade-bot/strategies"
	"github.com/acid0ikario/trade-bot/venue"
)

// Config is the engine's immutable per-run parameter set.
type Config struct {
	Symbols           []string
	Timeframe         string
	CandleLimit       int // bars fetched per symbol per tick
	CorrelationWindow int // trailing returns used by the correlation guard

	RiskPct       float64
	StopMode      risk.StopMode
	ATRPeriod     int
	ATRK          float64
	SwingLookback int
	RiskRR        float64

	Limits risk.Limits
}

// Engine is the per-tick orchestrator: fetch candles for every whitelisted
// symbol, advance open positions through their lifecycle, then evaluate new
// entries behind the admission gates. All GuardState reads and writes happen
// on the tick goroutine, so admission decisions are linearizable with the
// openPositions mutations they lead to.
type Engine struct {
	cfg    Config
	venue  venue.Venue
	signal strategies.SignalSource
	ledger journal.Journal
	notif  notify.Notifier
	state  *GuardState
	life   *Lifecycle
	log    *zap.Logger

	// last denial code per symbol, to notify on change instead of every tick
	lastDenial map[string]string
}

func New(cfg Config, v venue.Venue, sig strategies.SignalSource, ledger journal.Journal, n notify.Notifier, state *GuardState, life *Lifecycle, log *zap.Logger) *Engine {
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 300
	}
	if n == nil {
		n = notify.Nop{}
	}
	return &Engine{
		cfg:        cfg,
		venue:      v,
		signal:     sig,
		ledger:     ledger,
		notif:      n,
		state:      state,
		life:       life,
		log:        log,
		lastDenial: make(map[string]string),
	}
}

// Run ticks the engine until the context is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.Info("engine started",
		zap.Strings("symbols", e.cfg.Symbols),
		zap.String("timeframe", e.cfg.Timeframe),
		zap.Duration("interval", interval),
	)

	for {
		if err := e.Tick(ctx); err != nil {
			e.log.Error("tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			e.log.Info("engine stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one full iteration: parallel candle fetch, watcher pass for open
// positions, then the entry pass. A failure in one symbol never aborts the
// others; only a cancelled context stops the tick.
func (e *Engine) Tick(ctx context.Context) error {
	candles, fetchErrs := e.fetchCandles(ctx)

	for i, sym := range e.cfg.Symbols {
		if fetchErrs[i] != nil {
			e.log.Warn("candle fetch failed, skipping symbol",
				zap.String("symbol", sym),
				zap.Error(fetchErrs[i]),
			)
			continue
		}
		e.state.SetReturns(sym, candles[i].Returns(e.cfg.CorrelationWindow))
	}

	// Watcher runs before entries, and regardless of the kill switch: existing
	// risk is managed to closure even on a halted account.
	for _, pos := range e.state.OpenPositions() {
		if err := e.watchOne(ctx, pos); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.log.Warn("watch failed", zap.String("symbol", pos.Symbol), zap.Error(err))
		}
	}

	for i, sym := range e.cfg.Symbols {
		if fetchErrs[i] != nil {
			continue
		}
		if err := e.tryEnter(ctx, sym, candles[i]); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.log.Warn("entry failed", zap.String("symbol", sym), zap.Error(err))
		}
	}
	return nil
}

// fetchCandles pulls OHLCV for every symbol concurrently. Network fetches
// are the only parallel phase of a tick; results land in per-symbol slots so
// no locking is needed.
func (e *Engine) fetchCandles(ctx context.Context) ([]market.CandleSet, []error) {
	candles := make([]market.CandleSet, len(e.cfg.Symbols))
	errs := make([]error, len(e.cfg.Symbols))

	g, ctx := errgroup.WithContext(ctx)
	for i, sym := range e.cfg.Symbols {
		i, sym := i, sym
		g.Go(func() error {
			errs[i] = venue.WithRetry(ctx, e.life.retry, func(ctx context.Context) error {
				cs, err := e.venue.FetchOHLCV(ctx, sym, e.cfg.Timeframe, e.cfg.CandleLimit)
				if err != nil {
					return err
				}
				candles[i] = cs
				return nil
			})
			return nil
		})
	}
	_ = g.Wait()
	return candles, errs
}

// watchOne advances one open position and settles it if a leg filled. The
// ledger append and the equity update happen back to back on the tick
// goroutine, so equity moves exactly once per closed trade.
func (e *Engine) watchOne(ctx context.Context, pos *Position) error {
	wasPending := pos.Status == StatusEntryPending

	rec, err := e.life.Watch(ctx, pos)
	if err != nil {
		if errors.Is(err, ErrAmbiguousState) {
			// Keep the position; next tick re-queries the venue.
			e.log.Warn("order state ambiguous, will reconcile",
				zap.String("symbol", pos.Symbol),
				zap.Error(err),
			)
			return nil
		}
		return err
	}
	if rec == nil {
		if wasPending && pos.Status == StatusClosed {
			// The entry never reached the venue; no trade happened.
			e.state.RemovePosition(pos.Symbol)
			e.log.Info("pending entry abandoned", zap.String("symbol", pos.Symbol))
			return nil
		}
		if wasPending && pos.Status == StatusOpen {
			e.notif.Notify(ctx, notify.Opened(pos.Symbol, pos.Quantity, pos.EntryPrice, pos.TakeProfit, pos.StopPrice))
		}
		return nil
	}

	if err := e.ledger.RecordTrade(*rec); err != nil {
		e.log.Error("ledger append failed", zap.String("symbol", pos.Symbol), zap.Error(err))
	}
	equity := e.state.ApplyClose(pos.Symbol, rec.PnL)

	daily := 0.0
	for _, p := range e.state.DailyPnl() {
		daily += p
	}
	if err := e.ledger.RecordEquity(journal.EquitySnapshot{
		Time:     rec.ExitTime,
		Equity:   equity,
		DailyPnL: daily,
	}); err != nil {
		e.log.Error("equity append failed", zap.Error(err))
	}

	e.notif.Notify(ctx, notify.Closed(pos.Symbol, rec.Quantity, rec.ExitPrice, rec.PnL, rec.Reason))
	return nil
}

// tryEnter evaluates one symbol for a new entry: signal, stop/target, size,
// admission, then the order submission. Sizing and calculation errors reject
// the candidate without touching any state.
func (e *Engine) tryEnter(ctx context.Context, symbol string, candles market.CandleSet) error {
	if _, open := e.state.Position(symbol); open {
		return nil
	}

	sig, err := e.signal.GenerateSignal(candles)
	if err != nil {
		return fmt.Errorf("signal %s: %w", symbol, err)
	}
	if sig != strategies.SignalBuy {
		return nil
	}

	last, ok := candles.LastClosed()
	if !ok {
		return nil
	}
	entryPrice := last.Close

	st, err := e.stopTarget(entryPrice, candles)
	if err != nil {
		e.log.Debug("candidate rejected", zap.String("symbol", symbol), zap.Error(err))
		return nil
	}

	var meta venue.SymbolMeta
	err = venue.WithRetry(ctx, e.life.retry, func(ctx context.Context) error {
		var err error
		meta, err = e.venue.GetSymbolMeta(ctx, symbol)
		return err
	})
	if err != nil {
		return fmt.Errorf("symbol meta %s: %w", symbol, err)
	}

	qty, err := risk.Size(e.state.Equity(), entryPrice, st.Stop, e.cfg.RiskPct, meta.LotStep)
	if err != nil {
		e.log.Debug("candidate rejected", zap.String("symbol", symbol), zap.Error(err))
		return nil
	}

	decision := risk.Evaluate(e.cfg.Limits, risk.Candidate{
		Symbol:     symbol,
		EntryPrice: entryPrice,
		Quantity:   qty,
		Returns:    candles.Returns(e.cfg.CorrelationWindow),
	}, e.state.Snapshot())

	if v, denied := decision.Denied(); denied {
		if e.lastDenial[symbol] != v.Code {
			e.lastDenial[symbol] = v.Code
			e.notif.Notify(ctx, notify.GuardTriggered(symbol, v.Code, v.Msg))
		}
		e.log.Info("entry denied",
			zap.String("symbol", symbol),
			zap.String("code", v.Code),
			zap.String("reason", v.Msg),
		)
		return nil
	}
	delete(e.lastDenial, symbol)

	pos, err := e.life.Enter(ctx, symbol, qty, st.TakeProfit, st.Stop, meta)
	if pos != nil {
		// Unconfirmed entries and pending brackets are tracked too; the
		// watcher finishes the job either way.
		e.state.AddPosition(pos)
		if pos.Status == StatusOpen {
			e.notif.Notify(ctx, notify.Opened(symbol, pos.Quantity, pos.EntryPrice, pos.TakeProfit, pos.StopPrice))
			e.log.Info("position opened",
				zap.String("symbol", symbol),
				zap.Float64("qty", pos.Quantity),
				zap.Float64("entry", pos.EntryPrice),
				zap.Float64("tp", pos.TakeProfit),
				zap.Float64("sl", pos.StopPrice),
			)
		} else {
			e.log.Info("entry unconfirmed, reconciling next tick",
				zap.String("symbol", symbol),
				zap.String("client_order_id", pos.TradeID),
			)
		}
	}
	if err != nil && !errors.Is(err, ErrAmbiguousState) {
		return err
	}
	return nil
}

func (e *Engine) stopTarget(entryPrice float64, candles market.CandleSet) (risk.StopTarget, error) {
	in := risk.StopInputs{Mode: e.cfg.StopMode, RR: e.cfg.RiskRR}

	switch e.cfg.StopMode {
	case risk.StopATR:
		atr, err := indicators.ATR(candles.Closed(), e.cfg.ATRPeriod)
		if err != nil {
			return risk.StopTarget{}, err
		}
		in.ATR = atr
		in.K = e.cfg.ATRK
	case risk.StopSwingLow:
		closed := candles.Closed()
		start := len(closed) - e.cfg.SwingLookback
		if start < 0 {
			start = 0
		}
		for _, c := range closed[start:] {
			in.Lows = append(in.Lows, c.Low)
		}
	}
	return risk.ComputeStopTarget(entryPrice, in)
}
