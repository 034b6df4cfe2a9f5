package executor

import (
	"context"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xyths/qbracket/exchange"
)

var tenThousand = decimal.NewFromInt(10000)

// entryResult is what an entry strategy hands back to the trade flow.
type entryResult struct {
	OrderId int64
	Orders  []int64 // every order that may carry fills, for the journal
	Filled  decimal.Decimal
	Price   decimal.Decimal
	Chase   *ChaseResult
}

type entryParams struct {
	Symbol   string
	SignalId string
	TradeId  string
	Side     Side
	Qty      decimal.Decimal
	Ref      decimal.Decimal // mark price when the signal arrived
	Filters  exchange.SymbolFilters
}

func (e *Executor) enter(ctx context.Context, p entryParams) (entryResult, error) {
	switch e.opts.EntryMode {
	case EntryLimit:
		return e.enterLimit(ctx, p)
	case EntryChase:
		return e.chase(ctx, p)
	default:
		return e.enterMarket(ctx, p)
	}
}

func (e *Executor) enterMarket(ctx context.Context, p entryParams) (entryResult, error) {
	o, err := e.ex.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:        p.Symbol,
		Side:          p.Side.OpenSide(),
		Type:          exchange.TypeMarket,
		Quantity:      p.Qty,
		ClientOrderId: e.clientId(ctx, prefixEntry, p.TradeId),
	})
	if err != nil {
		return entryResult{}, Classify("market entry", err)
	}
	e.emit(Event{Kind: EventOrderPlaced, Symbol: p.Symbol, SignalId: p.SignalId, OrderId: o.OrderId, Side: p.Side, Price: o.AvgPrice, Qty: p.Qty, Reason: string(exchange.TypeMarket)})
	return entryResult{OrderId: o.OrderId, Orders: []int64{o.OrderId}, Filled: p.Qty, Price: o.AvgPrice}, nil
}

// enterLimit rests one order at the offset price and leaves it to reconciliation.
func (e *Executor) enterLimit(ctx context.Context, p entryParams) (entryResult, error) {
	book, err := e.ex.BookTicker(ctx, p.Symbol)
	if err != nil {
		return entryResult{}, Classify("book ticker", err)
	}
	price, err := e.offsetPrice(p.Side, book, p.Filters.TickSize)
	if err != nil {
		return entryResult{}, err
	}
	o, err := e.placeLimit(ctx, p, prefixEntry, p.Qty, price, e.opts.TimeInForce)
	if err != nil {
		return entryResult{}, err
	}
	return entryResult{OrderId: o.OrderId, Orders: []int64{o.OrderId}, Filled: o.ExecutedQty, Price: price}, nil
}

func (e *Executor) placeLimit(ctx context.Context, p entryParams, prefix string, qty, price decimal.Decimal, tif exchange.TimeInForce) (exchange.Order, error) {
	o, err := e.ex.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:        p.Symbol,
		Side:          p.Side.OpenSide(),
		Type:          exchange.TypeLimit,
		TimeInForce:   tif,
		Quantity:      qty,
		Price:         price,
		ClientOrderId: e.clientId(ctx, prefix, p.TradeId),
	})
	if err != nil {
		return o, Classify("limit entry", err)
	}
	e.emit(Event{Kind: EventOrderPlaced, Symbol: p.Symbol, SignalId: p.SignalId, OrderId: o.OrderId, Side: p.Side, Price: price, Qty: qty, Reason: string(tif)})
	return o, nil
}

// offsetPrice places a long below the bid and a short above the ask, by bps when set, by ticks otherwise.
func (e *Executor) offsetPrice(side Side, book exchange.BookTicker, tick decimal.Decimal) (decimal.Decimal, error) {
	return offsetPrice(side, book, tick, e.opts.OffsetTicks, e.opts.OffsetBps)
}

func offsetPrice(side Side, book exchange.BookTicker, tick decimal.Decimal, ticks int, bps decimal.Decimal) (decimal.Decimal, error) {
	if ticks < 1 {
		ticks = 1
	}
	var price decimal.Decimal
	if side == Long {
		if bps.IsPositive() {
			price = book.Bid.Mul(decimal.NewFromInt(1).Sub(bps.Div(tenThousand)))
		} else {
			price = book.Bid.Sub(tick.Mul(decimal.NewFromInt(int64(ticks))))
		}
	} else {
		if bps.IsPositive() {
			price = book.Ask.Mul(decimal.NewFromInt(1).Add(bps.Div(tenThousand)))
		} else {
			price = book.Ask.Add(tick.Mul(decimal.NewFromInt(int64(ticks))))
		}
	}
	price = FloorToStep(price, tick)
	if !price.IsPositive() {
		return price, newError(KindValidation, "offset price", errors.Errorf("no positive price from bid %s ask %s", book.Bid, book.Ask))
	}
	return price, nil
}

// crossPrice is the marketable side of the book.
func crossPrice(side Side, book exchange.BookTicker) decimal.Decimal {
	if side == Long {
		return book.Ask
	}
	return book.Bid
}

// deviationBps measures how far the touch a chase order would join has moved from ref.
func deviationBps(side Side, book exchange.BookTicker, ref decimal.Decimal) decimal.Decimal {
	if !ref.IsPositive() {
		return decimal.Zero
	}
	px := book.Bid
	if side == Short {
		px = book.Ask
	}
	return px.Sub(ref).Abs().Div(ref).Mul(tenThousand)
}
