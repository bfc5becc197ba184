package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/acid0ikario/trade-bot/market"
	"github.com/acid0ikario/trade-bot/risk"
	"github.com/acid0ikario/trade-bot/venue"
)

// PositionStatus tracks one bracketed position through its lifecycle.
type PositionStatus string

const (
	// StatusEntryPending means the entry was submitted but its acceptance is
	// unconfirmed (the response was lost); the watcher re-queries the venue
	// by client order ID until the order is found filled or proven absent.
	StatusEntryPending PositionStatus = "entry_pending"
	// StatusOpen means the entry filled; the watcher owns the position until
	// one exit leg resolves it.
	StatusOpen PositionStatus = "open"
	// StatusClosed means one leg filled and the sibling cancel was confirmed.
	StatusClosed PositionStatus = "closed"
)

// Position is one long bracketed position. At most one exists per symbol,
// and it is mutated only by the lifecycle watcher under the engine's lock.
type Position struct {
	TradeID    string
	Symbol     string
	Quantity   float64
	EntryPrice float64
	EntryTime  time.Time
	StopPrice  float64
	TakeProfit float64
	Bracket    venue.Bracket
	Status     PositionStatus
}

// HasBracket reports whether both exit legs were accepted by the venue. An
// open position without a bracket is unprotected and gets the legs resubmitted
// on the next watch pass.
func (p *Position) HasBracket() bool {
	return p.Bracket.TakeProfitID != "" && p.Bracket.StopLossID != ""
}

// GuardState is the account-level mutable state: equity, today's realized PnL
// series and the open positions. It is owned by the engine; every admission
// decision and every mutation happens under its lock so two symbols can never
// pass the caps against a stale snapshot.
type GuardState struct {
	mu sync.Mutex

	now        func() time.Time
	equity     float64
	baseEquity float64
	dailyPnl   []float64
	day        time.Time // UTC midnight of the day dailyPnl covers

	open    map[string]*Position
	returns map[string][]float64
}

// NewGuardState seeds the account state. The clock is injected so day
// rollover is testable; a nil clock means time.Now.
func NewGuardState(equity float64, now func() time.Time) *GuardState {
	if now == nil {
		now = time.Now
	}
	return &GuardState{
		now:        now,
		equity:     equity,
		baseEquity: equity,
		day:        dayOf(now()),
		open:       make(map[string]*Position),
		returns:    make(map[string][]float64),
	}
}

func dayOf(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// roll clears the daily PnL series when the UTC day has changed. Callers must
// hold the lock.
func (g *GuardState) roll() {
	today := dayOf(g.now())
	if !today.Equal(g.day) {
		g.day = today
		g.dailyPnl = g.dailyPnl[:0]
	}
}

// Equity returns the current account equity.
func (g *GuardState) Equity() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.equity
}

// BaseEquity is the equity at startup, the reference for the daily loss cap.
func (g *GuardState) BaseEquity() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.baseEquity
}

// DailyPnl returns a copy of today's realized PnL series.
func (g *GuardState) DailyPnl() []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roll()
	out := make([]float64, len(g.dailyPnl))
	copy(out, g.dailyPnl)
	return out
}

// SetReturns stores the trailing return series for a symbol, refreshed from
// the latest candles each tick.
func (g *GuardState) SetReturns(symbol string, returns []float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.returns[symbol] = returns
}

// Position returns the open position for symbol, if any.
func (g *GuardState) Position(symbol string) (*Position, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.open[symbol]
	return p, ok
}

// OpenPositions returns the open positions in a stable symbol order.
func (g *GuardState) OpenPositions() []*Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Position, 0, len(g.open))
	for _, sym := range sortedKeys(g.open) {
		out = append(out, g.open[sym])
	}
	return out
}

// Snapshot captures the admission inputs atomically: today's PnL, the open
// trade count, notional exposure and returns per open symbol.
func (g *GuardState) Snapshot() risk.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roll()

	snap := risk.Snapshot{
		DailyPnl:         append([]float64(nil), g.dailyPnl...),
		OpenTrades:       len(g.open),
		NotionalBySymbol: make(map[string]float64, len(g.open)),
		ReturnsBySymbol:  make(map[string][]float64, len(g.open)),
	}
	for sym, p := range g.open {
		snap.NotionalBySymbol[sym] = market.Notional(p.EntryPrice, p.Quantity)
		snap.ReturnsBySymbol[sym] = g.returns[sym]
	}
	return snap
}

// AddPosition registers a newly opened position. It fails quietly as a no-op
// if the symbol already has one; the engine checks membership before entry,
// so a collision here means a programming error upstream.
func (g *GuardState) AddPosition(p *Position) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.open[p.Symbol]; exists {
		return
	}
	g.open[p.Symbol] = p
}

// RemovePosition drops a position without touching equity. Used when a
// pending entry turns out never to have reached the venue; settled closes go
// through ApplyClose instead.
func (g *GuardState) RemovePosition(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.open, symbol)
}

// ApplyClose settles a closed position: the realized PnL moves equity and
// today's series exactly once, and the symbol becomes free for a new entry.
// Equity after the call is returned for the ledger snapshot.
func (g *GuardState) ApplyClose(symbol string, pnl float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roll()

	delete(g.open, symbol)
	g.equity += pnl
	g.dailyPnl = append(g.dailyPnl, pnl)
	return g.equity
}

func sortedKeys(m map[string]*Position) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
