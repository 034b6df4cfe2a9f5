package executor

import (
	"context"
	"fmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xyths/qbracket/exchange"
	"sync"
	"testing"
)

func TestMarketTrade(t *testing.T) {
	ctx := context.Background()
	ex := newVenue()
	e, rec := newExecutor(t, ex, Config{})

	res, err := e.PlaceManagedTrade(ctx, longSignal("2024-05-01T10:00:00Z"))
	require.NoError(t, err)
	require.True(t, res.Accepted)
	assert.True(t, res.Qty.Equal(d("1")))

	orders := ex.Orders(btc)
	require.Len(t, orders, 3)
	entry, tp, sl := orders[0], orders[1], orders[2]
	assert.Equal(t, exchange.TypeMarket, entry.Type)
	assert.Equal(t, exchange.Buy, entry.Side)
	assert.True(t, entry.OrigQty.Equal(d("1")))
	assert.Equal(t, exchange.StatusFilled, entry.Status)

	assert.Equal(t, exchange.TypeTakeProfitMarket, tp.Type)
	assert.Equal(t, exchange.Sell, tp.Side)
	assert.True(t, tp.ClosePosition)
	assert.True(t, tp.StopPrice.Equal(d("110.0")))

	assert.Equal(t, exchange.TypeStopMarket, sl.Type)
	assert.True(t, sl.ClosePosition)
	assert.True(t, sl.StopPrice.Equal(d("95")))

	assert.Equal(t, entry.OrderId, res.EntryOrderId)
	assert.Equal(t, tp.OrderId, res.TakeProfitOrderId)
	assert.Equal(t, sl.OrderId, res.StopLossOrderId)

	brackets := e.Brackets()
	require.Len(t, brackets, 1)
	assert.Equal(t, res.SignalId, brackets[0].SignalId)
	assert.Equal(t, tp.OrderId, brackets[0].TakeProfit.OrderId)
	assert.Equal(t, sl.OrderId, brackets[0].StopLoss.OrderId)

	journal := rec.of(EventJournal)
	require.Len(t, journal, 1)
	assert.Equal(t, JournalOpen, journal[0].Journal.Event)
	assert.True(t, journal[0].Journal.Vwap.Equal(d("100")))
	assert.True(t, journal[0].Journal.Fee.Equal(d("0.04")))
	assert.Equal(t, brackets[0].TradeId, journal[0].Journal.TradeId)
	assert.Len(t, rec.of(EventBracketCreated), 1)
}

func TestVirtualStopPlacesNoOrder(t *testing.T) {
	ex := newVenue()
	e, _ := newExecutor(t, ex, Config{StopMode: "virtual", VirtualInterval: "5m"})

	res, err := e.PlaceManagedTrade(context.Background(), longSignal("t1"))
	require.NoError(t, err)
	require.True(t, res.Accepted)
	assert.Zero(t, res.StopLossOrderId)
	assert.Len(t, ex.Orders(btc), 2)

	sl := res.Bracket.StopLoss
	require.NotNil(t, sl)
	assert.True(t, sl.Virtual)
	assert.True(t, sl.Trigger.Equal(d("95")))
	assert.Equal(t, "5m", sl.Interval)
}

func TestDuplicateSignal(t *testing.T) {
	ctx := context.Background()
	ex := newVenue()
	e, rec := newExecutor(t, ex, Config{})

	first, err := e.PlaceManagedTrade(ctx, longSignal("t1"))
	require.NoError(t, err)
	require.True(t, first.Accepted)

	second, err := e.PlaceManagedTrade(ctx, longSignal("t1"))
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, ReasonDuplicate, second.Reason)
	assert.Len(t, ex.Orders(btc), 3)
	assert.Len(t, rec.of(EventSignalSkipped), 1)
}

func TestInPositionIgnored(t *testing.T) {
	ctx := context.Background()
	ex := newVenue()
	e, _ := newExecutor(t, ex, Config{})

	_, err := e.PlaceManagedTrade(ctx, longSignal("t1"))
	require.NoError(t, err)
	res, err := e.PlaceManagedTrade(ctx, longSignal("t2"))
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, ReasonInPosition, res.Reason)
	assert.True(t, position(t, ex, btc).Equal(d("1")))
}

func TestInPositionReplaced(t *testing.T) {
	ctx := context.Background()
	ex := newVenue()
	e, rec := newExecutor(t, ex, Config{InPositionPolicy: "replace"})

	first, err := e.PlaceManagedTrade(ctx, longSignal("t1"))
	require.NoError(t, err)
	second, err := e.PlaceManagedTrade(ctx, longSignal("t2"))
	require.NoError(t, err)
	require.True(t, second.Accepted)

	assert.True(t, position(t, ex, btc).Equal(d("1")))
	open := openOrders(t, ex, btc)
	require.Len(t, open, 2)
	assert.Equal(t, second.TakeProfitOrderId, open[0].OrderId)
	assert.Equal(t, second.StopLossOrderId, open[1].OrderId)

	got, err := ex.GetOrder(ctx, btc, first.TakeProfitOrderId)
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusCanceled, got.Status)

	brackets := e.Brackets()
	require.Len(t, brackets, 1)
	assert.Equal(t, second.SignalId, brackets[0].SignalId)

	closed := rec.of(EventPositionClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, "replace", closed[0].Reason)
}

func TestBusySymbol(t *testing.T) {
	ctx := context.Background()
	ex := newVenue()
	e, _ := newExecutor(t, ex, Config{})

	require.True(t, e.ledger.Reserve(btc))
	res, err := e.PlaceManagedTrade(ctx, longSignal("t1"))
	require.NoError(t, err)
	assert.Equal(t, ReasonBusy, res.Reason)
	assert.Empty(t, ex.Orders(btc))

	e.ledger.Release(btc)
	res, err = e.PlaceManagedTrade(ctx, longSignal("t1"))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestSinglePositionUnderConcurrency(t *testing.T) {
	ex := newVenue()
	e, _ := newExecutor(t, ex, Config{})

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.PlaceManagedTrade(context.Background(), longSignal(fmt.Sprintf("t%d", i)))
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, r := range results {
		if r.Accepted {
			accepted++
		} else {
			assert.Contains(t, []string{ReasonBusy, ReasonInPosition}, r.Reason)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, len(e.Brackets()))
	assert.True(t, position(t, ex, btc).Equal(d("1")))
}

func TestSignalRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("pattern", func(t *testing.T) {
		ex := newVenue()
		e, _ := newExecutor(t, ex, Config{AllowPatterns: []string{"breakout"}})
		res, err := e.PlaceManagedTrade(ctx, longSignal("t1"))
		require.NoError(t, err)
		assert.Equal(t, ReasonPattern, res.Reason)
		assert.Empty(t, ex.Orders(btc))
	})
	t.Run("invalid size", func(t *testing.T) {
		ex := newVenue()
		ex.SetBalance("USDT", d("0"))
		e, rec := newExecutor(t, ex, Config{})
		res, err := e.PlaceManagedTrade(ctx, longSignal("t1"))
		require.NoError(t, err)
		assert.Equal(t, ReasonInvalidSize, res.Reason)
		assert.Empty(t, ex.Orders(btc))
		skipped := rec.of(EventSignalSkipped)
		require.Len(t, skipped, 1)
		assert.True(t, IsKind(skipped[0].Err, KindSizing))
	})
	t.Run("validation", func(t *testing.T) {
		ex := newVenue()
		e, _ := newExecutor(t, ex, Config{})
		s := longSignal("t1")
		s.TakeProfit = d("90")
		_, err := e.PlaceManagedTrade(ctx, s)
		assert.True(t, IsKind(err, KindValidation))
		assert.Zero(t, ex.Calls("PositionAmount"))
	})
}

func TestEntryRejectedCanRetry(t *testing.T) {
	ctx := context.Background()
	ex := newVenue()
	e, _ := newExecutor(t, ex, Config{})

	ex.FailNext("PlaceOrder", &exchange.APIError{Code: -2019, Message: "Margin is insufficient."})
	_, err := e.PlaceManagedTrade(ctx, longSignal("t1"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRejection))
	assert.Empty(t, e.Brackets())

	res, err := e.PlaceManagedTrade(ctx, longSignal("t1"))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestExitFailureKeepsEntry(t *testing.T) {
	ex := newVenue()
	e, rec := newExecutor(t, ex, Config{})

	s := longSignal("t1")
	s.TakeProfit = d("100") // mark is already there, the venue refuses it
	res, err := e.PlaceManagedTrade(context.Background(), s)
	require.NoError(t, err)
	require.True(t, res.Accepted)
	assert.Zero(t, res.TakeProfitOrderId)
	assert.NotZero(t, res.StopLossOrderId)
	assert.True(t, position(t, ex, btc).Equal(d("1")))

	failed := rec.of(EventExitFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "take_profit", failed[0].Reason)
	assert.True(t, IsKind(failed[0].Err, KindRejection))
}

func TestSymbolMapping(t *testing.T) {
	ex := newVenue()
	e, _ := newExecutor(t, ex, Config{})
	s := longSignal("t1")
	s.Symbol = "btcusdt.P"
	res, err := e.PlaceManagedTrade(context.Background(), s)
	require.NoError(t, err)
	require.True(t, res.Accepted)
	assert.Equal(t, btc, res.Bracket.Symbol)
}

func TestStaleBracketPurged(t *testing.T) {
	ctx := context.Background()
	ex := newVenue()
	e, rec := newExecutor(t, ex, Config{})
	e.ledger.Put(Bracket{Symbol: btc, SignalId: "old", Side: Long})

	res, err := e.PlaceManagedTrade(ctx, longSignal("t1"))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	removed := rec.of(EventBracketRemoved)
	require.Len(t, removed, 1)
	assert.Equal(t, "stale", removed[0].Reason)
}

func TestLimitEntryReportsFill(t *testing.T) {
	ex := newVenue()
	e, rec := newExecutor(t, ex, Config{EntryMode: "limit"})

	res, err := e.PlaceManagedTrade(context.Background(), longSignal("t1"))
	require.NoError(t, err)
	require.True(t, res.Accepted)
	// the entry rests below the bid, nothing filled yet
	assert.True(t, res.Qty.IsZero(), res.Qty.String())
	assert.True(t, res.Ordered.Equal(d("1")))
	require.NotNil(t, res.Bracket)
	assert.True(t, res.Bracket.Qty.Equal(d("1")))

	created := rec.of(EventBracketCreated)
	require.Len(t, created, 1)
	assert.True(t, created[0].Qty.IsZero())
}
