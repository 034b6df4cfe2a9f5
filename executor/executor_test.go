package executor

import (
	"context"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xyths/qbracket/exchange"
	"github.com/xyths/qbracket/exchange/paper"
	"go.uber.org/zap/zaptest"
	"sync"
	"testing"
	"time"
)

const btc = "BTCUSDT"

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recorder struct {
	lock   sync.Mutex
	events []Event
}

func (r *recorder) Observe(e Event) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) of(kind EventKind) []Event {
	r.lock.Lock()
	defer r.lock.Unlock()
	var es []Event
	for _, e := range r.events {
		if e.Kind == kind {
			es = append(es, e)
		}
	}
	return es
}

// newVenue lists BTCUSDT with tick 0.1 and a book of 99.9/100.
func newVenue() *paper.Exchange {
	ex := paper.New()
	ex.SetFilters(exchange.SymbolFilters{
		Symbol:      btc,
		TickSize:    d("0.1"),
		StepSize:    d("0.001"),
		MinQty:      d("0.001"),
		MinNotional: d("5"),
	})
	ex.SetBook(btc, d("99.9"), d("100"))
	ex.SetMark(btc, d("100"))
	ex.SetBalance("USDT", d("1000"))
	return ex
}

// newExecutor sizes 1% of 1000 USDT at 10x, which is qty 1 at mark 100.
func newExecutor(t *testing.T, ex exchange.Client, c Config) (*Executor, *recorder) {
	if c.Chase.Interval == "" {
		c.Chase.Interval = "50ms"
	}
	if c.SettleDelay == "" {
		c.SettleDelay = "1ms"
	}
	if c.CancelBackoff == "" {
		c.CancelBackoff = "1ms"
	}
	opts, err := c.Parse()
	require.NoError(t, err)
	rec := &recorder{}
	return NewExecutor(ex, opts, zaptest.NewLogger(t).Sugar(), rec), rec
}

func longSignal(t string) Signal {
	return Signal{
		Symbol:     btc,
		Side:       Long,
		Pattern:    "engulfing",
		Time:       t,
		Entry:      d("100"),
		TakeProfit: d("110"),
		StopLoss:   d("95"),
	}
}

func openOrders(t *testing.T, ex exchange.Client, symbol string) []exchange.Order {
	orders, err := ex.OpenOrders(context.Background(), symbol)
	require.NoError(t, err)
	return orders
}

func position(t *testing.T, ex exchange.Client, symbol string) decimal.Decimal {
	amt, err := ex.PositionAmount(context.Background(), symbol)
	require.NoError(t, err)
	return amt
}

func candlesAround(now time.Time, closed, current string) []exchange.Candle {
	ms := func(t time.Time) int64 { return t.UnixNano() / int64(time.Millisecond) }
	return []exchange.Candle{
		{OpenTime: ms(now.Add(-2 * time.Minute)), CloseTime: ms(now.Add(-time.Minute)) - 1, Close: d(closed)},
		{OpenTime: ms(now.Add(-time.Minute)), CloseTime: ms(now.Add(time.Minute)), Close: d(current)},
	}
}
