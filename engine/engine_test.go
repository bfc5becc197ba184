package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acid0ikario/trade-bot/journal"
	"github.com/acid0ikario/trade-bot/market"
	"github.com/acid0ikario/trade-bot/notify"
	"github.com/acid0ikario/trade-bot/risk"
	"github.com/acid0ikario/trade-bot/strategies"
	"github.com/acid0ikario/trade-bot/venue"
	"github.com/acid0ikario/trade-bot/venue/dryrun"
)

// fakeVenue is a scripted venue: fills every market buy at fillPrice, hands
// out deterministic leg IDs, and lets tests flip leg statuses between ticks.
type fakeVenue struct {
	mu sync.Mutex

	candles     map[string]market.CandleSet
	meta        venue.SymbolMeta
	fillPrice   float64
	failFetch   map[string]bool
	failStatus  bool
	failBracket bool
	failBuy     bool // submission refused, nothing lands at the venue
	dropBuyAck  bool // order lands and fills, but the response is lost

	buys     []venue.Fill
	brackets []venue.Bracket
	cancels  []string
	statuses map[string]venue.OrderState
	nextID   int
}

func newFakeVenue(fillPrice float64) *fakeVenue {
	return &fakeVenue{
		candles:   make(map[string]market.CandleSet),
		meta:      venue.SymbolMeta{TickSize: 0.01, LotStep: 0.001},
		fillPrice: fillPrice,
		failFetch: make(map[string]bool),
		statuses:  make(map[string]venue.OrderState),
	}
}

func (f *fakeVenue) GetPrice(_ context.Context, _ string) (float64, error) {
	return f.fillPrice, nil
}

func (f *fakeVenue) FetchOHLCV(_ context.Context, symbol, _ string, _ int) (market.CandleSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFetch[symbol] {
		return nil, &venue.Error{Op: "fetch_ohlcv", Symbol: symbol, Kind: venue.Fatal, Err: fmt.Errorf("scripted failure")}
	}
	return f.candles[symbol], nil
}

func (f *fakeVenue) GetBalance(_ context.Context, _ string) (float64, error) {
	return 10000, nil
}

func (f *fakeVenue) GetSymbolMeta(_ context.Context, _ string) (venue.SymbolMeta, error) {
	return f.meta, nil
}

func (f *fakeVenue) CreateMarketBuy(_ context.Context, symbol string, qty float64, clientOrderID string) (venue.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBuy {
		return venue.Fill{}, &venue.Error{Op: "create_market_buy", Symbol: symbol, Kind: venue.Retryable, Err: fmt.Errorf("scripted timeout")}
	}
	orderID := clientOrderID
	if orderID == "" {
		f.nextID++
		orderID = fmt.Sprintf("entry-%d", f.nextID)
	}
	fill := venue.Fill{
		OrderID:  orderID,
		Symbol:   symbol,
		Price:    f.fillPrice,
		Quantity: qty,
		Time:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.buys = append(f.buys, fill)
	f.statuses[orderID] = venue.OrderState{
		ID:        orderID,
		Status:    venue.StatusFilled,
		FillPrice: fill.Price,
		FillTime:  fill.Time,
	}
	if f.dropBuyAck {
		return venue.Fill{}, &venue.Error{Op: "create_market_buy", Symbol: symbol, Kind: venue.Retryable, Err: fmt.Errorf("scripted dropped response")}
	}
	return fill, nil
}

func (f *fakeVenue) PlaceBracket(_ context.Context, symbol string, _, _, _ float64) (venue.Bracket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBracket {
		return venue.Bracket{}, &venue.Error{Op: "place_bracket", Symbol: symbol, Kind: venue.Retryable, Err: fmt.Errorf("scripted failure")}
	}
	f.nextID++
	br := venue.Bracket{
		TakeProfitID: fmt.Sprintf("tp-%d", f.nextID),
		StopLossID:   fmt.Sprintf("sl-%d", f.nextID),
	}
	f.statuses[br.TakeProfitID] = venue.OrderState{ID: br.TakeProfitID, Status: venue.StatusWorking}
	f.statuses[br.StopLossID] = venue.OrderState{ID: br.StopLossID, Status: venue.StatusWorking}
	f.brackets = append(f.brackets, br)
	return br, nil
}

func (f *fakeVenue) CancelOrder(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, orderID)
	st, ok := f.statuses[orderID]
	if !ok {
		return &venue.Error{Op: "cancel_order", Kind: venue.Fatal, Err: fmt.Errorf("unknown order %s", orderID)}
	}
	if st.Status != venue.StatusWorking {
		return &venue.Error{Op: "cancel_order", Kind: venue.Fatal, Err: venue.ErrOrderNotOpen}
	}
	st.Status = venue.StatusCancelled
	f.statuses[orderID] = st
	return nil
}

func (f *fakeVenue) GetOrderStatus(_ context.Context, orderID string) (venue.OrderState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStatus {
		return venue.OrderState{}, &venue.Error{Op: "get_order_status", Kind: venue.Retryable, Err: fmt.Errorf("scripted timeout")}
	}
	st, ok := f.statuses[orderID]
	if !ok {
		return venue.OrderState{}, &venue.Error{Op: "get_order_status", Kind: venue.Fatal, Err: fmt.Errorf("unknown order %s", orderID)}
	}
	return st, nil
}

// expire flips a working order to cancelled behind the engine's back, the way
// a venue-side expiry or manual cancel would.
func (f *fakeVenue) expire(orderID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.statuses[orderID]
	st.ID = orderID
	st.Status = venue.StatusCancelled
	f.statuses[orderID] = st
}

// fill marks a leg filled at price, as the venue would after a touch.
func (f *fakeVenue) fill(orderID string, price float64, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[orderID] = venue.OrderState{
		ID:        orderID,
		Status:    venue.StatusFilled,
		FillPrice: price,
		FillTime:  at,
	}
}

type memJournal struct {
	mu     sync.Mutex
	trades []journal.TradeRecord
	equity []journal.EquitySnapshot
}

func (m *memJournal) RecordTrade(t journal.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
	return nil
}

func (m *memJournal) RecordEquity(e journal.EquitySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = append(m.equity, e)
	return nil
}

func (m *memJournal) Close() error { return nil }

type memNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (m *memNotifier) Notify(_ context.Context, ev notify.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *memNotifier) kinds() []notify.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notify.Kind, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Kind)
	}
	return out
}

type stubSignal struct {
	sig strategies.Signal
}

func (s stubSignal) GenerateSignal(market.CandleSet) (strategies.Signal, error) {
	return s.sig, nil
}

// trendCandles builds a rising series with a constant true range so the ATR
// stop distance is predictable.
func trendCandles(n int, start float64) market.CandleSet {
	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	cs := make(market.CandleSet, 0, n)
	price := start
	for i := 0; i < n; i++ {
		cs = append(cs, market.Candle{
			Open:  price,
			High:  price + 1,
			Low:   price - 1,
			Close: price + 0.5,
			Time:  t0.Add(time.Duration(i) * time.Hour),
		})
		price += 0.5
	}
	return cs
}

func testRetry() venue.RetryPolicy {
	return venue.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

type fixture struct {
	fv     *fakeVenue
	ledger *memJournal
	notif  *memNotifier
	state  *GuardState
	eng    *Engine
}

func newFixture(t *testing.T, symbols []string, opts ...func(*Config, *Lifecycle)) *fixture {
	t.Helper()

	fv := newFakeVenue(100)
	for _, sym := range symbols {
		fv.candles[sym] = trendCandles(30, 90)
	}
	// Last closed candle of trendCandles(30, 90) closes at 104.5; fill there.
	fv.fillPrice = 104.5

	log := zap.NewNop()
	ledger := &memJournal{}
	notif := &memNotifier{}
	state := NewGuardState(10000, nil)
	life := NewLifecycle(fv, testRetry(), 0.001, TieBreakTakeProfit, log)

	cfg := Config{
		Symbols:           symbols,
		Timeframe:         "1h",
		CandleLimit:       30,
		CorrelationWindow: 20,
		RiskPct:           0.01,
		StopMode:          risk.StopATR,
		ATRPeriod:         5,
		ATRK:              1.5,
		RiskRR:            2.0,
		Limits: risk.Limits{
			BaseEquity:      10000,
			MaxDailyLossPct: 0.03,
			MaxOpenTrades:   3,
		},
	}
	for _, opt := range opts {
		opt(&cfg, life)
	}

	eng := New(cfg, fv, stubSignal{sig: strategies.SignalBuy}, ledger, notif, state, life, log)
	return &fixture{fv: fv, ledger: ledger, notif: notif, state: state, eng: eng}
}

func TestEntryOpensBracketedPosition(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"BTC/USDT"})
	require.NoError(t, f.eng.Tick(context.Background()))

	require.Len(t, f.fv.buys, 1)
	require.Len(t, f.fv.brackets, 1)

	pos, ok := f.state.Position("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, StatusOpen, pos.Status)
	assert.Equal(t, 104.5, pos.EntryPrice)
	assert.Greater(t, pos.Quantity, 0.0)
	assert.Less(t, pos.StopPrice, pos.EntryPrice)
	assert.Greater(t, pos.TakeProfit, pos.EntryPrice)
	assert.True(t, pos.HasBracket())

	assert.Equal(t, []notify.Kind{notify.KindOpened}, f.notif.kinds())
	assert.Empty(t, f.ledger.trades)
}

func TestTakeProfitCloseCancelsStopLeg(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"BTC/USDT"})
	ctx := context.Background()
	require.NoError(t, f.eng.Tick(ctx))

	pos, ok := f.state.Position("BTC/USDT")
	require.True(t, ok)
	exitAt := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	f.fv.fill(pos.Bracket.TakeProfitID, pos.TakeProfit, exitAt)

	require.NoError(t, f.eng.Tick(ctx))

	// Exactly one cancel, for the stop leg.
	require.Equal(t, []string{pos.Bracket.StopLossID}, f.fv.cancels)

	require.Len(t, f.ledger.trades, 1)
	rec := f.ledger.trades[0]
	assert.Equal(t, "TakeProfit", rec.Reason)
	fees := 0.001 * (pos.EntryPrice + pos.TakeProfit) * pos.Quantity
	assert.InDelta(t, (pos.TakeProfit-pos.EntryPrice)*pos.Quantity-fees, rec.PnL, 1e-9)

	// Equity moved exactly once, alongside the ledger append.
	assert.InDelta(t, 10000+rec.PnL, f.state.Equity(), 1e-9)
	require.Len(t, f.ledger.equity, 1)
	assert.InDelta(t, rec.PnL, f.ledger.equity[0].DailyPnL, 1e-9)
}

func TestStopLossCloseCancelsTakeProfitLeg(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"BTC/USDT"})
	ctx := context.Background()
	require.NoError(t, f.eng.Tick(ctx))

	pos, _ := f.state.Position("BTC/USDT")
	f.fv.fill(pos.Bracket.StopLossID, pos.StopPrice, time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC))

	require.NoError(t, f.eng.Tick(ctx))

	require.Equal(t, []string{pos.Bracket.TakeProfitID}, f.fv.cancels)
	require.Len(t, f.ledger.trades, 1)
	assert.Equal(t, "StopLoss", f.ledger.trades[0].Reason)
	assert.Negative(t, f.ledger.trades[0].PnL)
}

func TestWatcherIdempotentAfterClose(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"BTC/USDT"})
	ctx := context.Background()
	require.NoError(t, f.eng.Tick(ctx))

	pos, _ := f.state.Position("BTC/USDT")
	f.fv.fill(pos.Bracket.TakeProfitID, pos.TakeProfit, time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC))
	require.NoError(t, f.eng.Tick(ctx))

	cancels := len(f.fv.cancels)
	trades := len(f.ledger.trades)

	// The closed position is gone from state; further watch calls on the
	// stale pointer are no-ops too.
	require.NoError(t, f.eng.watchOne(ctx, pos))

	assert.Len(t, f.fv.cancels, cancels)
	assert.Len(t, f.ledger.trades, trades)
}

func TestBothLegsFilledTieBreak(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		tieBreak TieBreak
		reason   string
	}{
		{TieBreakTakeProfit, "TakeProfit"},
		{TieBreakStopLoss, "StopLoss"},
	} {
		tc := tc
		t.Run(string(tc.tieBreak), func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, []string{"BTC/USDT"}, func(_ *Config, l *Lifecycle) {
				l.tieBreak = tc.tieBreak
			})
			ctx := context.Background()
			require.NoError(t, f.eng.Tick(ctx))

			pos, _ := f.state.Position("BTC/USDT")
			at := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
			f.fv.fill(pos.Bracket.TakeProfitID, pos.TakeProfit, at)
			f.fv.fill(pos.Bracket.StopLossID, pos.StopPrice, at)

			require.NoError(t, f.eng.Tick(ctx))

			require.Len(t, f.ledger.trades, 1)
			assert.Equal(t, tc.reason, f.ledger.trades[0].Reason)
			// The losing leg still gets its cancel, and cancelling the
			// already-filled order is swallowed.
			require.Len(t, f.fv.cancels, 1)
		})
	}
}

func TestKillSwitchBlocksEntriesButWatcherRuns(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"BTC/USDT", "ETH/USDT"})
	ctx := context.Background()
	require.NoError(t, f.eng.Tick(ctx))
	require.Len(t, f.fv.buys, 2)

	// Breach the daily loss cap (3% of 10000 = 300) deep enough that the
	// winning close about to land can't lift the series back above it.
	f.state.ApplyClose("SOL/USDT", -1000)

	pos, _ := f.state.Position("BTC/USDT")
	f.fv.fill(pos.Bracket.TakeProfitID, pos.TakeProfit, time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC))

	require.NoError(t, f.eng.Tick(ctx))

	// The open position still closed, but the freed slot was not re-entered.
	require.Len(t, f.ledger.trades, 1)
	assert.Len(t, f.fv.buys, 2)

	var denied []notify.Event
	for _, ev := range f.notif.events {
		if ev.Kind == notify.KindGuardTriggered {
			denied = append(denied, ev)
		}
	}
	require.NotEmpty(t, denied)
	assert.Contains(t, denied[0].Text, "KILL_SWITCH")
}

func TestGuardDenialNotifiedOncePerCode(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"BTC/USDT"})
	ctx := context.Background()
	f.state.ApplyClose("SOL/USDT", -350)

	require.NoError(t, f.eng.Tick(ctx))
	require.NoError(t, f.eng.Tick(ctx))
	require.NoError(t, f.eng.Tick(ctx))

	triggered := 0
	for _, k := range f.notif.kinds() {
		if k == notify.KindGuardTriggered {
			triggered++
		}
	}
	assert.Equal(t, 1, triggered)
}

func TestDayRolloverResetsKillSwitch(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	fv := newFakeVenue(104.5)
	fv.candles["BTC/USDT"] = trendCandles(30, 90)
	log := zap.NewNop()
	state := NewGuardState(10000, clock)
	life := NewLifecycle(fv, testRetry(), 0.001, TieBreakTakeProfit, log)
	eng := New(Config{
		Symbols:           []string{"BTC/USDT"},
		Timeframe:         "1h",
		CandleLimit:       30,
		CorrelationWindow: 20,
		RiskPct:           0.01,
		StopMode:          risk.StopATR,
		ATRPeriod:         5,
		ATRK:              1.5,
		RiskRR:            2.0,
		Limits:            risk.Limits{BaseEquity: 10000, MaxDailyLossPct: 0.03, MaxOpenTrades: 3},
	}, fv, stubSignal{sig: strategies.SignalBuy}, &memJournal{}, &memNotifier{}, state, life, log)

	ctx := context.Background()
	state.ApplyClose("SOL/USDT", -350)
	require.NoError(t, eng.Tick(ctx))
	assert.Empty(t, fv.buys)

	// Past UTC midnight the series resets and entries resume.
	now = now.Add(2 * time.Hour)
	require.NoError(t, eng.Tick(ctx))
	assert.Len(t, fv.buys, 1)
	assert.Empty(t, state.DailyPnl())
}

func TestDryRunSubmitsNothingLive(t *testing.T) {
	t.Parallel()

	fv := newFakeVenue(104.5)
	fv.candles["BTC/USDT"] = trendCandles(30, 90)
	log := zap.NewNop()
	dr := dryrun.New(fv, log)
	state := NewGuardState(10000, nil)
	life := NewLifecycle(dr, testRetry(), 0.001, TieBreakTakeProfit, log)
	eng := New(Config{
		Symbols:           []string{"BTC/USDT"},
		Timeframe:         "1h",
		CandleLimit:       30,
		CorrelationWindow: 20,
		RiskPct:           0.01,
		StopMode:          risk.StopATR,
		ATRPeriod:         5,
		ATRK:              1.5,
		RiskRR:            2.0,
		Limits:            risk.Limits{BaseEquity: 10000, MaxDailyLossPct: 0.03, MaxOpenTrades: 3},
	}, dr, stubSignal{sig: strategies.SignalBuy}, &memJournal{}, &memNotifier{}, state, life, log)

	ctx := context.Background()
	require.NoError(t, eng.Tick(ctx))
	require.NoError(t, eng.Tick(ctx))

	// All intents were logged locally; the live venue saw no orders.
	assert.Empty(t, fv.buys)
	assert.Empty(t, fv.brackets)
	assert.Equal(t, 3, dr.Intents())
	assert.Equal(t, 10000.0, state.Equity())

	// The synthetic position stays open and watched.
	_, open := state.Position("BTC/USDT")
	assert.True(t, open)
}

func TestFetchFailureIsolatedPerSymbol(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"BTC/USDT", "ETH/USDT"})
	f.fv.failFetch["BTC/USDT"] = true

	require.NoError(t, f.eng.Tick(context.Background()))

	require.Len(t, f.fv.buys, 1)
	assert.Equal(t, "ETH/USDT", f.fv.buys[0].Symbol)
	_, open := f.state.Position("ETH/USDT")
	assert.True(t, open)
}

func TestAmbiguousPollKeepsPositionForReconciliation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"BTC/USDT"})
	ctx := context.Background()
	require.NoError(t, f.eng.Tick(ctx))

	pos, _ := f.state.Position("BTC/USDT")
	f.fv.fill(pos.Bracket.TakeProfitID, pos.TakeProfit, time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC))

	// Status polling fails for a tick; the position must survive untouched.
	f.fv.failStatus = true
	require.NoError(t, f.eng.Tick(ctx))
	_, open := f.state.Position("BTC/USDT")
	assert.True(t, open)
	assert.Empty(t, f.ledger.trades)

	// Next tick the venue answers again and the close completes.
	f.fv.failStatus = false
	require.NoError(t, f.eng.Tick(ctx))
	require.Len(t, f.ledger.trades, 1)
	_, open = f.state.Position("BTC/USDT")
	assert.False(t, open)
}

func TestLostEntryAckReconciledWithoutDuplicateBuy(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"BTC/USDT"})
	ctx := context.Background()

	// The order lands and fills at the venue but the response never arrives.
	f.fv.dropBuyAck = true
	require.NoError(t, f.eng.Tick(ctx))

	require.Len(t, f.fv.buys, 1)
	assert.Empty(t, f.fv.brackets)
	pos, ok := f.state.Position("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, StatusEntryPending, pos.Status)
	assert.Empty(t, f.notif.kinds())

	// Next tick the watcher finds the order filled under its client ID; no
	// second submission happens.
	f.fv.dropBuyAck = false
	require.NoError(t, f.eng.Tick(ctx))

	require.Len(t, f.fv.buys, 1)
	require.Len(t, f.fv.brackets, 1)
	pos, ok = f.state.Position("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, StatusOpen, pos.Status)
	assert.Equal(t, 104.5, pos.EntryPrice)
	assert.True(t, pos.HasBracket())
	assert.Equal(t, []notify.Kind{notify.KindOpened}, f.notif.kinds())
}

func TestUnplacedEntryAbandonedWithoutTradeRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"BTC/USDT"})
	ctx := context.Background()

	// Submission times out and the venue has no record of the order.
	f.fv.failBuy = true
	require.NoError(t, f.eng.Tick(ctx))

	assert.Empty(t, f.fv.buys)
	pos, ok := f.state.Position("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, StatusEntryPending, pos.Status)

	// The watcher proves the order absent and drops the marker; nothing hits
	// the ledger or equity.
	f.fv.failBuy = false
	f.eng.signal = stubSignal{sig: strategies.SignalNone}
	require.NoError(t, f.eng.Tick(ctx))

	_, ok = f.state.Position("BTC/USDT")
	assert.False(t, ok)
	assert.Empty(t, f.ledger.trades)
	assert.Equal(t, 10000.0, f.state.Equity())

	// With the marker gone the symbol is free to enter again.
	f.eng.signal = stubSignal{sig: strategies.SignalBuy}
	require.NoError(t, f.eng.Tick(ctx))
	require.Len(t, f.fv.buys, 1)
}

func TestDeadStopLegGetsBracketReplaced(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"BTC/USDT"})
	ctx := context.Background()
	require.NoError(t, f.eng.Tick(ctx))

	pos, _ := f.state.Position("BTC/USDT")
	oldBracket := pos.Bracket

	// The stop leg dies at the venue while the take profit keeps working.
	f.fv.expire(oldBracket.StopLossID)
	require.NoError(t, f.eng.Tick(ctx))

	// The survivor was cancelled and a fresh pair protects the position.
	assert.Contains(t, f.fv.cancels, oldBracket.TakeProfitID)
	require.Len(t, f.fv.brackets, 2)
	pos, ok := f.state.Position("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, StatusOpen, pos.Status)
	assert.NotEqual(t, oldBracket, pos.Bracket)
	assert.Empty(t, f.ledger.trades)

	// The replacement bracket closes the position normally.
	f.fv.fill(pos.Bracket.TakeProfitID, pos.TakeProfit, time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC))
	require.NoError(t, f.eng.Tick(ctx))
	require.Len(t, f.ledger.trades, 1)
	assert.Equal(t, "TakeProfit", f.ledger.trades[0].Reason)
}

func TestDeadLegSurvivorFilledDuringReplacement(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"BTC/USDT"})
	ctx := context.Background()
	require.NoError(t, f.eng.Tick(ctx))

	pos, _ := f.state.Position("BTC/USDT")
	at := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)

	// The take profit dies while the stop fills in the same observation
	// window; the close lands on the stop, not on a replacement.
	f.fv.expire(pos.Bracket.TakeProfitID)
	f.fv.fill(pos.Bracket.StopLossID, pos.StopPrice, at)
	require.NoError(t, f.eng.Tick(ctx))

	require.Len(t, f.ledger.trades, 1)
	assert.Equal(t, "StopLoss", f.ledger.trades[0].Reason)
	require.Len(t, f.fv.brackets, 1)
}

func TestMaxOpenTradesCap(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"A/USDT", "B/USDT", "C/USDT"}, func(cfg *Config, _ *Lifecycle) {
		cfg.Limits.MaxOpenTrades = 2
	})

	require.NoError(t, f.eng.Tick(context.Background()))

	// Symbols are processed in order; the third hits the cap.
	assert.Len(t, f.fv.buys, 2)
}
