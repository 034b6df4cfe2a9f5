package executor

import (
	"context"
	"github.com/shopspring/decimal"
	"github.com/xyths/qbracket/exchange"
)

// placeExits attaches the take-profit and the stop-loss to b. A failed exit is reported and left
// to reconciliation, the entry stays.
func (e *Executor) placeExits(ctx context.Context, b *Bracket, tp, sl decimal.Decimal, tick decimal.Decimal) {
	tpPrice := FloorToStep(tp, tick)
	if o, err := e.placeClose(ctx, b, exchange.TypeTakeProfitMarket, prefixTakeProfit, tpPrice); err != nil {
		e.emit(Event{Kind: EventExitFailed, Symbol: b.Symbol, SignalId: b.SignalId, Side: b.Side, Price: tpPrice, Reason: "take_profit", Err: err})
	} else {
		b.TakeProfit = &ExitRef{OrderId: o.OrderId, Price: tpPrice}
	}

	slPrice := FloorToStep(sl, tick)
	if e.opts.StopMode == StopVirtual {
		b.StopLoss = &ExitRef{Price: slPrice, Trigger: sl, Interval: e.opts.VirtualInterval, Virtual: true}
		return
	}
	if o, err := e.placeClose(ctx, b, exchange.TypeStopMarket, prefixStopLoss, slPrice); err != nil {
		e.emit(Event{Kind: EventExitFailed, Symbol: b.Symbol, SignalId: b.SignalId, Side: b.Side, Price: slPrice, Reason: "stop_loss", Err: err})
	} else {
		b.StopLoss = &ExitRef{OrderId: o.OrderId, Price: slPrice}
	}
}

// placeClose submits a conditional order that closes the whole position when mark price reaches stop.
func (e *Executor) placeClose(ctx context.Context, b *Bracket, typ exchange.OrderType, prefix string, stop decimal.Decimal) (exchange.Order, error) {
	o, err := e.ex.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:        b.Symbol,
		Side:          b.Side.CloseSide(),
		Type:          typ,
		StopPrice:     stop,
		ClosePosition: true,
		ClientOrderId: e.clientId(ctx, prefix, b.TradeId),
	})
	if err != nil {
		return o, Classify(string(typ), err)
	}
	e.emit(Event{Kind: EventOrderPlaced, Symbol: b.Symbol, SignalId: b.SignalId, OrderId: o.OrderId, Side: b.Side, Price: stop, Reason: string(typ)})
	return o, nil
}

// closeMarket flattens amount with a reduce-only market order.
func (e *Executor) closeMarket(ctx context.Context, symbol, signalId, tradeId string, amount decimal.Decimal) (exchange.Order, error) {
	side := SideOf(amount)
	o, err := e.ex.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:        symbol,
		Side:          side.CloseSide(),
		Type:          exchange.TypeMarket,
		Quantity:      amount.Abs(),
		ReduceOnly:    true,
		ClientOrderId: e.clientId(ctx, prefixClose, tradeId),
	})
	if err != nil {
		return o, Classify("market close", err)
	}
	e.emit(Event{Kind: EventOrderPlaced, Symbol: symbol, SignalId: signalId, OrderId: o.OrderId, Side: side, Price: o.AvgPrice, Qty: amount.Abs(), Reason: "close"})
	return o, nil
}

// virtualStopHit compares the close of the last fully closed candle to the raw stop price.
func (e *Executor) virtualStopHit(ctx context.Context, b Bracket) (bool, decimal.Decimal, error) {
	candles, err := e.ex.Candles(ctx, b.Symbol, b.StopLoss.Interval, 3)
	if err != nil {
		return false, decimal.Zero, Classify("candles", err)
	}
	nowMs := e.now().UnixNano() / 1e6
	for i := len(candles) - 1; i >= 0; i-- {
		c := candles[i]
		if c.CloseTime >= nowMs {
			continue
		}
		if b.Side == Long {
			return c.Close.LessThanOrEqual(b.StopLoss.Trigger), c.Close, nil
		}
		return c.Close.GreaterThanOrEqual(b.StopLoss.Trigger), c.Close, nil
	}
	return false, decimal.Zero, nil
}
