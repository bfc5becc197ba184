package paper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acid0ikario/trade-bot/market"
	"github.com/acid0ikario/trade-bot/venue"
)

// fakeSource is a synthetic data feed.
type fakeSource struct {
	price   float64
	candles market.CandleSet
}

func (f *fakeSource) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return f.price, nil
}

func (f *fakeSource) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (market.CandleSet, error) {
	return f.candles, nil
}

func (f *fakeSource) GetSymbolMeta(ctx context.Context, symbol string) (venue.SymbolMeta, error) {
	return venue.SymbolMeta{TickSize: 0.01, LotStep: 0.001}, nil
}

func candleAt(t time.Time, high, low float64) market.Candle {
	return market.Candle{Open: (high + low) / 2, High: high, Low: low, Close: (high + low) / 2, Time: t}
}

func newVenue(t *testing.T, src *fakeSource) *Venue {
	t.Helper()
	return New(src, "1h", map[string]float64{"USDT": 2000}, WithSlippageBps(5), WithTakerFee(0.001))
}

func TestMarketBuyAppliesSlippageAndFees(t *testing.T) {
	t.Parallel()

	src := &fakeSource{price: 100}
	v := newVenue(t, src)

	fill, err := v.CreateMarketBuy(context.Background(), "BTC/USDT", 4, "")
	require.NoError(t, err)
	assert.InDelta(t, 100.05, fill.Price, 1e-9) // 5 bps adverse

	notional := fill.Price * 4
	usdt, _ := v.GetBalance(context.Background(), "USDT")
	btc, _ := v.GetBalance(context.Background(), "BTC")
	assert.InDelta(t, 2000-notional-notional*0.001, usdt, 1e-9)
	assert.InDelta(t, 4.0, btc, 1e-9)
}

func TestMarketBuyRejectsNonPositiveQty(t *testing.T) {
	t.Parallel()

	v := newVenue(t, &fakeSource{price: 100})
	_, err := v.CreateMarketBuy(context.Background(), "BTC/USDT", 0, "")
	assert.True(t, venue.IsFatal(err))
}

func TestMarketBuyIdempotentByClientOrderID(t *testing.T) {
	t.Parallel()

	src := &fakeSource{price: 100}
	v := newVenue(t, src)

	first, err := v.CreateMarketBuy(context.Background(), "BTC/USDT", 4, "client-1")
	require.NoError(t, err)

	// A resubmission under the same client ID replays the stored fill
	// instead of buying again.
	src.price = 200
	second, err := v.CreateMarketBuy(context.Background(), "BTC/USDT", 4, "client-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	btc, _ := v.GetBalance(context.Background(), "BTC")
	assert.InDelta(t, 4.0, btc, 1e-9)

	// The fill is queryable under the client ID.
	st, err := v.GetOrderStatus(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, venue.StatusFilled, st.Status)
	assert.InDelta(t, first.Price, st.FillPrice, 1e-9)
}

func TestBracketStopTakesPriorityInOneCandle(t *testing.T) {
	t.Parallel()

	src := &fakeSource{price: 100}
	v := newVenue(t, src)

	br, err := v.PlaceBracket(context.Background(), "BTC/USDT", 4, 106, 97)
	require.NoError(t, err)

	// Candle sweeps both levels: the stop fills, the TP stays working.
	v.Mark("BTC/USDT", candleAt(time.Now(), 107, 96))

	sl, err := v.GetOrderStatus(context.Background(), br.StopLossID)
	require.NoError(t, err)
	assert.Equal(t, venue.StatusFilled, sl.Status)
	assert.InDelta(t, 97.0, sl.FillPrice, 1e-9)

	tp, err := v.GetOrderStatus(context.Background(), br.TakeProfitID)
	require.NoError(t, err)
	assert.Equal(t, venue.StatusWorking, tp.Status)
}

func TestBracketTakeProfitFillsWhenOnlyHighTouched(t *testing.T) {
	t.Parallel()

	v := newVenue(t, &fakeSource{price: 100})
	br, err := v.PlaceBracket(context.Background(), "BTC/USDT", 4, 106, 97)
	require.NoError(t, err)

	v.Mark("BTC/USDT", candleAt(time.Now(), 106.5, 99))

	tp, _ := v.GetOrderStatus(context.Background(), br.TakeProfitID)
	assert.Equal(t, venue.StatusFilled, tp.Status)
	sl, _ := v.GetOrderStatus(context.Background(), br.StopLossID)
	assert.Equal(t, venue.StatusWorking, sl.Status)
}

func TestMarkSameCandleTwiceIsNoop(t *testing.T) {
	t.Parallel()

	v := newVenue(t, &fakeSource{price: 100})
	_, err := v.PlaceBracket(context.Background(), "BTC/USDT", 4, 106, 97)
	require.NoError(t, err)

	usdtBefore, _ := v.GetBalance(context.Background(), "USDT")
	at := time.Now()
	v.Mark("BTC/USDT", candleAt(at, 106.5, 99))
	v.Mark("BTC/USDT", candleAt(at, 106.5, 99))

	usdtAfter, _ := v.GetBalance(context.Background(), "USDT")
	assert.InDelta(t, usdtBefore+106*4*(1-0.001), usdtAfter, 1e-9)
}

func TestCancelFilledOrderIsNotOpen(t *testing.T) {
	t.Parallel()

	v := newVenue(t, &fakeSource{price: 100})
	br, err := v.PlaceBracket(context.Background(), "BTC/USDT", 4, 106, 97)
	require.NoError(t, err)
	v.Mark("BTC/USDT", candleAt(time.Now(), 107, 100))

	err = v.CancelOrder(context.Background(), br.TakeProfitID)
	assert.ErrorIs(t, err, venue.ErrOrderNotOpen)

	// The working stop leg cancels normally.
	assert.NoError(t, v.CancelOrder(context.Background(), br.StopLossID))
	sl, _ := v.GetOrderStatus(context.Background(), br.StopLossID)
	assert.Equal(t, venue.StatusCancelled, sl.Status)
}

func TestConcurrentStatusAndMark(t *testing.T) {
	t.Parallel()

	v := newVenue(t, &fakeSource{price: 100})
	br, err := v.PlaceBracket(context.Background(), "BTC/USDT", 4, 106, 97)
	require.NoError(t, err)

	// Status polls racing candle marks must always see a consistent order.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			v.Mark("BTC/USDT", candleAt(time.Now().Add(time.Duration(i)*time.Minute), 105, 99))
		}
	}()
	for i := 0; i < 200; i++ {
		st, err := v.GetOrderStatus(context.Background(), br.TakeProfitID)
		require.NoError(t, err)
		assert.Equal(t, venue.StatusWorking, st.Status)
	}
	<-done
}

func TestGetOrderStatusResolvesFromSource(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	src := &fakeSource{price: 100, candles: market.CandleSet{
		candleAt(t0, 106.5, 99),          // closed: touches TP
		candleAt(t0.Add(time.Hour), 101, 100), // still forming
	}}
	v := newVenue(t, src)
	br, err := v.PlaceBracket(context.Background(), "BTC/USDT", 4, 106, 97)
	require.NoError(t, err)

	tp, err := v.GetOrderStatus(context.Background(), br.TakeProfitID)
	require.NoError(t, err)
	assert.Equal(t, venue.StatusFilled, tp.Status)
	assert.Equal(t, t0, tp.FillTime)
}
