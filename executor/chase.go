package executor

import (
	"context"
	"github.com/shopspring/decimal"
	"github.com/xyths/qbracket/exchange"
)

type ChaseState string

const (
	ChaseSeeded          ChaseState = "SEEDED"
	ChaseWaiting         ChaseState = "WAITING"
	ChaseRepriced        ChaseState = "REPRICED"
	ChaseFilled          ChaseState = "FILLED"
	ChaseExhausted       ChaseState = "EXHAUSTED"
	ChaseFallbackApplied ChaseState = "FALLBACK_APPLIED"
)

// ChaseResult records how a chase ended. Path lists every state visited.
type ChaseResult struct {
	OrderId int64
	Orders  []int64
	Filled  decimal.Decimal
	State   ChaseState
	Steps   int
	Reason  string
	Path    []ChaseState
}

func (r *ChaseResult) to(s ChaseState) {
	r.State = s
	r.Path = append(r.Path, s)
}

// chase keeps a post-only order near the touch until it fills or the budget runs out,
// then applies the configured fallback to whatever is left.
func (e *Executor) chase(ctx context.Context, p entryParams) (entryResult, error) {
	step := p.Filters.StepSize
	tick := p.Filters.TickSize
	res := &ChaseResult{}
	res.to(ChaseSeeded)

	book, err := e.ex.BookTicker(ctx, p.Symbol)
	if err != nil {
		return entryResult{}, Classify("book ticker", err)
	}
	price, err := e.offsetPrice(p.Side, book, tick)
	if err != nil {
		return entryResult{}, err
	}
	o, err := e.placeLimit(ctx, p, prefixEntry, p.Qty, price, e.opts.TimeInForce)
	if err != nil {
		return entryResult{}, err
	}
	res.OrderId = o.OrderId
	res.Orders = append(res.Orders, o.OrderId)

	start := e.now()
	working := true
	done := decimal.Zero // filled on orders already replaced
	current := o
	filled := func() decimal.Decimal { return done.Add(current.ExecutedQty) }
	_, replacer := e.ex.(exchange.Replacer)
	atomic := e.opts.Atomic && replacer

	for {
		res.to(ChaseWaiting)
		if err := sleep(ctx, e.opts.ChaseInterval); err != nil {
			// the caller is gone, leave nothing working behind
			bg := context.WithoutCancel(ctx)
			e.cancel(bg, p.Symbol, p.SignalId, current.OrderId)
			if got, err := e.ex.GetOrder(bg, p.Symbol, current.OrderId); err == nil {
				current = got
			}
			res.Filled = filled()
			res.Reason = "context done"
			return e.chaseResult(res), err
		}
		res.Steps++
		if got, err := e.ex.GetOrder(ctx, p.Symbol, current.OrderId); err != nil {
			e.Sugar.Warnf("chase %s query order %d error: %s", p.Symbol, current.OrderId, err)
		} else {
			current = got
			if !current.Working() && !current.Filled() {
				working = false
			}
		}
		if current.Filled() || filled().GreaterThanOrEqual(p.Qty) {
			res.Filled = filled()
			res.to(ChaseFilled)
			e.emit(Event{Kind: EventOrderFilled, Symbol: p.Symbol, SignalId: p.SignalId, OrderId: current.OrderId, Side: p.Side, Price: current.Price, Qty: res.Filled})
			return e.chaseResult(res), nil
		}
		if !working {
			res.Reason = "order gone"
			break
		}
		if res.Steps >= e.opts.ChaseSteps {
			res.Reason = "steps"
			break
		}
		if e.now().Sub(start) >= e.opts.ChaseMaxWait {
			res.Reason = "max wait"
			break
		}
		book, err = e.ex.BookTicker(ctx, p.Symbol)
		if err != nil {
			e.Sugar.Warnf("chase %s book ticker error: %s", p.Symbol, err)
			continue
		}
		if dev := deviationBps(p.Side, book, p.Ref); dev.GreaterThan(e.opts.MaxDeviationBps) {
			res.Reason = "deviation " + dev.StringFixed(2) + "bps"
			break
		}
		price, err = e.offsetPrice(p.Side, book, tick)
		if err != nil || price.Equal(current.Price) {
			continue
		}

		if atomic {
			r, err := e.ex.(exchange.Replacer).ReplaceOrder(ctx, p.Symbol, current.OrderId, p.Side.OpenSide(), current.OrigQty, price)
			if err != nil {
				e.Sugar.Warnf("chase %s replace order %d error: %s", p.Symbol, current.OrderId, err)
				continue
			}
			current = r
		} else {
			if !e.cancel(ctx, p.Symbol, p.SignalId, current.OrderId) {
				continue
			}
			if got, err := e.ex.GetOrder(ctx, p.Symbol, current.OrderId); err == nil {
				current = got
			}
			done = filled()
			current = exchange.Order{OrderId: current.OrderId}
			if done.GreaterThanOrEqual(p.Qty) {
				res.Filled = done
				res.to(ChaseFilled)
				return e.chaseResult(res), nil
			}
			remain := FloorToStep(p.Qty.Sub(done), step)
			if !remain.IsPositive() || remain.LessThan(p.Filters.MinQty) {
				res.Reason = "remainder below min qty"
				working = false
				break
			}
			n, err := e.placeLimit(ctx, p, prefixReprice, remain, price, e.opts.TimeInForce)
			if err != nil {
				e.Sugar.Warnf("chase %s reprice at %s error: %s", p.Symbol, price, err)
				res.Reason = "reprice rejected"
				working = false
				break
			}
			current = n
			res.OrderId = n.OrderId
			res.Orders = append(res.Orders, n.OrderId)
		}
		res.to(ChaseRepriced)
		e.emit(Event{Kind: EventOrderRepriced, Symbol: p.Symbol, SignalId: p.SignalId, OrderId: current.OrderId, Side: p.Side, Price: price, Qty: p.Qty.Sub(filled())})
	}

	res.to(ChaseExhausted)
	if working {
		if e.cancel(ctx, p.Symbol, p.SignalId, current.OrderId) {
			if got, err := e.ex.GetOrder(ctx, p.Symbol, current.OrderId); err == nil {
				current = got
			}
		}
	}
	res.Filled = filled()
	e.emit(Event{Kind: EventChaseExhausted, Symbol: p.Symbol, SignalId: p.SignalId, OrderId: current.OrderId, Side: p.Side, Qty: res.Filled, Reason: res.Reason})

	e.fallback(ctx, p, res)
	res.to(ChaseFallbackApplied)
	return e.chaseResult(res), nil
}

func (e *Executor) fallback(ctx context.Context, p entryParams, res *ChaseResult) {
	remain := FloorToStep(p.Qty.Sub(res.Filled), p.Filters.StepSize)
	if e.opts.Fallback == FallbackNone || !remain.IsPositive() {
		return
	}
	switch e.opts.Fallback {
	case FallbackMarket:
		o, err := e.ex.PlaceOrder(ctx, exchange.OrderRequest{
			Symbol:        p.Symbol,
			Side:          p.Side.OpenSide(),
			Type:          exchange.TypeMarket,
			Quantity:      remain,
			ClientOrderId: e.clientId(ctx, prefixFallback, p.TradeId),
		})
		if err != nil {
			e.Sugar.Warnf("%s market fallback of %s error: %s", p.Symbol, remain, err)
			return
		}
		res.Filled = res.Filled.Add(remain)
		res.OrderId = o.OrderId
		res.Orders = append(res.Orders, o.OrderId)
		e.emit(Event{Kind: EventFallbackApplied, Symbol: p.Symbol, SignalId: p.SignalId, OrderId: o.OrderId, Side: p.Side, Price: o.AvgPrice, Qty: remain, Reason: string(FallbackMarket)})
	case FallbackLimitIOC:
		book, err := e.ex.BookTicker(ctx, p.Symbol)
		if err != nil {
			e.Sugar.Warnf("%s ioc fallback book ticker error: %s", p.Symbol, err)
			return
		}
		price := crossPrice(p.Side, book)
		o, err := e.placeLimit(ctx, p, prefixFallback, remain, price, exchange.IOC)
		if err != nil {
			e.Sugar.Warnf("%s ioc fallback of %s at %s error: %s", p.Symbol, remain, price, err)
			return
		}
		res.OrderId = o.OrderId
		res.Orders = append(res.Orders, o.OrderId)
		executed := o.ExecutedQty
		if sleep(ctx, e.opts.SettleDelay) == nil {
			if got, err := e.ex.GetOrder(ctx, p.Symbol, o.OrderId); err == nil {
				executed = got.ExecutedQty
			}
		}
		res.Filled = res.Filled.Add(executed)
		e.emit(Event{Kind: EventFallbackApplied, Symbol: p.Symbol, SignalId: p.SignalId, OrderId: o.OrderId, Side: p.Side, Price: price, Qty: executed, Reason: string(FallbackLimitIOC)})
	}
}

func (e *Executor) chaseResult(res *ChaseResult) entryResult {
	return entryResult{OrderId: res.OrderId, Orders: res.Orders, Filled: res.Filled, Chase: res}
}
