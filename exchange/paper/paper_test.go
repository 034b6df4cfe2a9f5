package paper

import (
	"context"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xyths/qbracket/exchange"
	"testing"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newVenue() *Exchange {
	ex := New()
	ex.SetFilters(exchange.SymbolFilters{
		Symbol:      "BTCUSDT",
		TickSize:    d("0.1"),
		StepSize:    d("0.001"),
		MinQty:      d("0.001"),
		MinNotional: d("5"),
	})
	ex.SetBook("BTCUSDT", d("100"), d("100.1"))
	ex.SetMark("BTCUSDT", d("100"))
	return ex
}

func TestMarketOrderMovesPosition(t *testing.T) {
	ctx := context.Background()
	ex := newVenue()
	o, err := ex.PlaceOrder(ctx, exchange.OrderRequest{Symbol: "BTCUSDT", Side: exchange.Buy, Type: exchange.TypeMarket, Quantity: d("1")})
	require.NoError(t, err)
	require.Equal(t, exchange.StatusFilled, o.Status)
	require.True(t, o.AvgPrice.Equal(d("100.1")))

	amt, err := ex.PositionAmount(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.True(t, amt.Equal(d("1")))

	trades, err := ex.Trades(ctx, "BTCUSDT", o.OrderId)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.True(t, trades[0].Qty.Equal(d("1")))
}

func TestPrecisionRejected(t *testing.T) {
	ex := newVenue()
	_, err := ex.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.Buy, Type: exchange.TypeLimit, TimeInForce: exchange.GTC,
		Quantity: d("0.0015"), Price: d("99"),
	})
	var apiErr *exchange.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, int64(codePrecision), apiErr.Code)
}

func TestPostOnlyCrossingRejected(t *testing.T) {
	ex := newVenue()
	_, err := ex.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.Buy, Type: exchange.TypeLimit, TimeInForce: exchange.GTX,
		Quantity: d("1"), Price: d("100.1"),
	})
	var apiErr *exchange.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, int64(codePostOnly), apiErr.Code)
}

func TestRestingLimitFillsWhenBookCrosses(t *testing.T) {
	ctx := context.Background()
	ex := newVenue()
	o, err := ex.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.Buy, Type: exchange.TypeLimit, TimeInForce: exchange.GTX,
		Quantity: d("2"), Price: d("99.9"),
	})
	require.NoError(t, err)
	require.Equal(t, exchange.StatusNew, o.Status)

	require.NoError(t, ex.Fill(o.OrderId, d("0.5")))
	got, err := ex.GetOrder(ctx, "BTCUSDT", o.OrderId)
	require.NoError(t, err)
	require.Equal(t, exchange.StatusPartiallyFilled, got.Status)

	ex.SetBook("BTCUSDT", d("99.8"), d("99.9"))
	got, err = ex.GetOrder(ctx, "BTCUSDT", o.OrderId)
	require.NoError(t, err)
	require.Equal(t, exchange.StatusFilled, got.Status)
	require.True(t, got.ExecutedQty.Equal(d("2")))
}

func TestClosePositionStopTriggersOnMark(t *testing.T) {
	ctx := context.Background()
	ex := newVenue()
	_, err := ex.PlaceOrder(ctx, exchange.OrderRequest{Symbol: "BTCUSDT", Side: exchange.Buy, Type: exchange.TypeMarket, Quantity: d("1")})
	require.NoError(t, err)
	tp, err := ex.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.Sell, Type: exchange.TypeTakeProfitMarket, StopPrice: d("110"), ClosePosition: true,
	})
	require.NoError(t, err)
	sl, err := ex.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.Sell, Type: exchange.TypeStopMarket, StopPrice: d("95"), ClosePosition: true,
	})
	require.NoError(t, err)

	ex.SetMark("BTCUSDT", d("110.5"))
	got, err := ex.GetOrder(ctx, "BTCUSDT", tp.OrderId)
	require.NoError(t, err)
	require.Equal(t, exchange.StatusFilled, got.Status)
	amt, _ := ex.PositionAmount(ctx, "BTCUSDT")
	require.True(t, amt.IsZero())

	trades, _ := ex.Trades(ctx, "BTCUSDT", tp.OrderId)
	require.Len(t, trades, 1)
	require.True(t, trades[0].RealizedPnl.Equal(d("10.4")))

	open, err := ex.OpenOrders(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, sl.OrderId, open[0].OrderId)
}

func TestCancelAndFailNext(t *testing.T) {
	ctx := context.Background()
	ex := newVenue()
	o, err := ex.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.Sell, Type: exchange.TypeLimit, TimeInForce: exchange.GTC,
		Quantity: d("1"), Price: d("101"),
	})
	require.NoError(t, err)

	boom := errors.New("connection reset")
	ex.FailNext("CancelOrder", boom)
	require.Equal(t, boom, ex.CancelOrder(ctx, "BTCUSDT", o.OrderId))
	require.NoError(t, ex.CancelOrder(ctx, "BTCUSDT", o.OrderId))
	require.True(t, errors.Is(ex.CancelOrder(ctx, "BTCUSDT", o.OrderId), exchange.ErrOrderNotFound))
	require.Equal(t, 3, ex.Calls("CancelOrder"))
}

func TestReplaceKeepsOrderId(t *testing.T) {
	ctx := context.Background()
	ex := newVenue()
	o, err := ex.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.Buy, Type: exchange.TypeLimit, TimeInForce: exchange.GTX,
		Quantity: d("1"), Price: d("99"),
	})
	require.NoError(t, err)
	require.NoError(t, ex.Fill(o.OrderId, d("0.4")))

	r, err := ex.ReplaceOrder(ctx, "BTCUSDT", o.OrderId, exchange.Buy, d("1"), d("99.5"))
	require.NoError(t, err)
	require.Equal(t, o.OrderId, r.OrderId)
	require.True(t, r.Price.Equal(d("99.5")))
	require.True(t, r.OrigQty.Equal(d("1")))

	_, err = ex.ReplaceOrder(ctx, "BTCUSDT", o.OrderId, exchange.Buy, d("0.4"), d("99.5"))
	require.Error(t, err)
}
