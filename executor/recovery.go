package executor

import (
	"context"
	"fmt"
	"github.com/xyths/qbracket/exchange"
)

// Recover rebuilds the ledger after a restart. Every watched symbol and every symbol with an open
// order is inspected: flat ones get their orphan exits swept, live positions get a bracket
// rebuilt from their open exits.
func (e *Executor) Recover(ctx context.Context, watchlist []string) ([]Bracket, error) {
	e.SetWatchlist(watchlist)
	candidates := make(map[string][]exchange.Order)
	for _, s := range e.getWatchlist() {
		candidates[s] = nil
	}
	listed := true
	open, err := e.ex.OpenOrders(ctx, "")
	if err != nil {
		e.Sugar.Warnf("recover open orders error: %s", err)
		listed = false
	}
	for _, o := range open {
		candidates[o.Symbol] = append(candidates[o.Symbol], o)
	}
	if len(candidates) == 0 && !listed {
		return nil, Classify("recover", err)
	}

	var recovered []Bracket
	for _, symbol := range sortedKeys(candidates) {
		if ctx.Err() != nil {
			return recovered, ctx.Err()
		}
		orders := candidates[symbol]
		if !listed {
			if orders, err = e.ex.OpenOrders(ctx, symbol); err != nil {
				e.Sugar.Warnf("recover %s open orders error: %s", symbol, err)
				continue
			}
		}
		amount, err := e.ex.PositionAmount(ctx, symbol)
		if err != nil {
			e.Sugar.Warnf("recover %s position error: %s", symbol, err)
			continue
		}
		if amount.IsZero() {
			entries, exits := exchange.SplitOrders(orders)
			if e.opts.KeepOrphans || len(entries) > 0 || len(exits) == 0 {
				continue
			}
			n := e.cancelExits(ctx, symbol, "", exits)
			e.emit(Event{Kind: EventOrphansCleaned, Symbol: symbol, Qty: decimalInt(n), Reason: "recover"})
			continue
		}

		b := Bracket{
			Symbol:    symbol,
			TradeId:   newTradeId(),
			SignalId:  fmt.Sprintf(recoverIdTemplate, symbol, e.now().Unix()),
			Side:      SideOf(amount),
			Qty:       amount.Abs(),
			CreatedAt: e.now(),
		}
		for _, o := range orders {
			ref := &ExitRef{OrderId: o.OrderId, Price: o.StopPrice}
			if !ref.Price.IsPositive() {
				ref.Price = o.Price
			}
			if o.IsTakeProfit() {
				b.TakeProfit = ref
			}
			if o.IsStopLoss() {
				b.StopLoss = ref
			}
		}
		if !e.ledger.Put(b) {
			continue
		}
		recovered = append(recovered, b)
		ev := Event{Kind: EventRecovered, Symbol: symbol, SignalId: b.SignalId, Side: b.Side, Qty: b.Qty}
		if b.TakeProfit != nil {
			ev.OrderId = b.TakeProfit.OrderId
		}
		e.emit(ev)
	}
	return recovered, nil
}
