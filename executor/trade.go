package executor

import (
	"context"
	"github.com/shopspring/decimal"
)

// Result is the outcome of one signal.
type Result struct {
	Accepted bool
	Skipped  bool
	Reason   string
	SignalId string

	Qty               decimal.Decimal // filled quantity, zero for a limit entry still resting
	Ordered           decimal.Decimal // sized entry quantity
	ReferencePrice    decimal.Decimal
	EntryOrderId      int64
	TakeProfitOrderId int64
	StopLossOrderId   int64
	Bracket           *Bracket
	Chase             *ChaseResult
}

// PlaceManagedTrade sizes and enters the signal, then brackets the position with its exits.
// A signal for a symbol that already has a position is skipped or replaces it, depending on the policy.
// An entry cut short after a partial fill still brackets that fill and returns an accepted result with the error.
func (e *Executor) PlaceManagedTrade(ctx context.Context, s Signal) (Result, error) {
	s.Symbol = NormalizeSymbol(s.Symbol)
	if err := s.Validate(); err != nil {
		return Result{}, err
	}
	id := s.Identity()
	res := Result{SignalId: id}
	if !e.patternAllowed(s.Pattern) {
		return e.skip(res, s, ReasonPattern, nil), nil
	}
	if e.dedup.Seen(id) {
		return e.skip(res, s, ReasonDuplicate, nil), nil
	}
	if !e.ledger.Reserve(s.Symbol) {
		e.dedup.Forget(id)
		return e.skip(res, s, ReasonBusy, nil), nil
	}
	defer e.ledger.Release(s.Symbol)

	// nothing reached the venue yet, a redelivery may retry
	retry := func(err error) (Result, error) {
		e.dedup.Forget(id)
		return res, err
	}

	e.ensureAccount(ctx, s.Symbol)
	e.purgeStale(ctx, s.Symbol)

	amount, err := e.ex.PositionAmount(ctx, s.Symbol)
	if err != nil {
		return retry(Classify("position", err))
	}
	if _, ok := e.ledger.Get(s.Symbol); ok || !amount.IsZero() {
		if e.opts.InPositionPolicy != PolicyReplace {
			return e.skip(res, s, ReasonInPosition, nil), nil
		}
		if err := e.replacePosition(ctx, s.Symbol, amount); err != nil {
			return res, err
		}
	}

	f, err := e.filtersOf(ctx, s.Symbol)
	if err != nil {
		return retry(err)
	}
	ref, err := e.ex.MarkPrice(ctx, s.Symbol)
	if err != nil {
		return retry(Classify("mark price", err))
	}
	res.ReferencePrice = ref
	balance, err := e.ex.AvailableBalance(ctx, e.opts.MarginAsset)
	if err != nil {
		return retry(Classify("balance", err))
	}
	qty, err := e.sizer.Size(balance, ref, f)
	if err != nil {
		return e.skip(res, s, ReasonInvalidSize, err), nil
	}

	res.Ordered = qty

	p := entryParams{Symbol: s.Symbol, SignalId: id, TradeId: newTradeId(), Side: s.Side, Qty: qty, Ref: ref, Filters: f}
	entry, err := e.enter(ctx, p)
	res.Chase = entry.Chase
	entryErr := err
	if err != nil {
		if entry.OrderId == 0 {
			return retry(err)
		}
		if !entry.Filled.IsPositive() {
			return res, err
		}
		// a partial fill is already on the venue and gets its exits even when the caller is gone
		ctx = context.WithoutCancel(ctx)
	}
	filled := entry.Filled
	if e.opts.EntryMode == EntryChase {
		if !filled.IsPositive() {
			return e.skip(res, s, ReasonNoFill, nil), nil
		}
		if sleep(ctx, e.opts.SettleDelay) == nil {
			if amt, err := e.ex.PositionAmount(ctx, s.Symbol); err == nil && !amt.IsZero() {
				filled = amt.Abs()
			}
		}
	}
	// a resting limit entry is bracketed at its full size, the exits close whatever fills
	sized := filled
	if e.opts.EntryMode == EntryLimit {
		sized = qty
	}

	b := Bracket{
		Symbol:       s.Symbol,
		TradeId:      p.TradeId,
		SignalId:     id,
		Side:         s.Side,
		EntryOrderId: entry.OrderId,
		Qty:          sized,
		CreatedAt:    e.now(),
	}
	e.ledger.Put(b)
	e.emit(Event{Kind: EventBracketCreated, Symbol: s.Symbol, SignalId: id, OrderId: entry.OrderId, Side: s.Side, Price: ref, Qty: filled})
	if e.opts.EntryMode != EntryLimit {
		e.journal(ctx, b, JournalOpen, entry.Orders...)
	}

	e.placeExits(ctx, &b, s.TakeProfit, s.StopLoss, f.TickSize)
	e.ledger.Update(s.Symbol, id, func(l *Bracket) {
		l.TakeProfit = b.TakeProfit
		l.StopLoss = b.StopLoss
	})

	res.Accepted = true
	res.Qty = filled
	res.EntryOrderId = entry.OrderId
	if b.TakeProfit != nil {
		res.TakeProfitOrderId = b.TakeProfit.OrderId
	}
	if b.StopLoss != nil {
		res.StopLossOrderId = b.StopLoss.OrderId
	}
	res.Bracket = &b
	return res, entryErr
}

func (e *Executor) skip(res Result, s Signal, reason string, err error) Result {
	res.Skipped = true
	res.Reason = reason
	e.emit(Event{Kind: EventSignalSkipped, Symbol: s.Symbol, SignalId: res.SignalId, Side: s.Side, Price: s.Entry, Reason: reason, Err: err})
	return res
}

// purgeStale drops a bracket whose position is flat and whose orders are all gone.
func (e *Executor) purgeStale(ctx context.Context, symbol string) {
	b, ok := e.ledger.Get(symbol)
	if !ok {
		return
	}
	amount, err := e.ex.PositionAmount(ctx, symbol)
	if err != nil || !amount.IsZero() {
		return
	}
	open, err := e.ex.OpenOrders(ctx, symbol)
	if err != nil || len(open) > 0 {
		return
	}
	if e.ledger.DeleteIf(symbol, b.SignalId) {
		e.emit(Event{Kind: EventBracketRemoved, Symbol: symbol, SignalId: b.SignalId, Side: b.Side, Reason: "stale"})
	}
}

// replacePosition flattens the symbol and drops its bracket so a new trade can take over.
func (e *Executor) replacePosition(ctx context.Context, symbol string, amount decimal.Decimal) error {
	b, hasBracket := e.ledger.Get(symbol)
	if !amount.IsZero() {
		o, err := e.closeMarket(ctx, symbol, b.SignalId, b.TradeId, amount)
		if err != nil {
			return err
		}
		e.emit(Event{Kind: EventPositionClosed, Symbol: symbol, SignalId: b.SignalId, OrderId: o.OrderId, Side: SideOf(amount), Qty: amount.Abs(), Reason: "replace"})
		if hasBracket {
			e.journal(ctx, b, JournalClose, o.OrderId)
		}
	}
	open, err := e.ex.OpenOrders(ctx, symbol)
	if err != nil {
		e.Sugar.Warnf("replace %s open orders error: %s", symbol, err)
	}
	for _, o := range open {
		e.cancel(ctx, symbol, b.SignalId, o.OrderId)
	}
	if hasBracket && e.ledger.DeleteIf(symbol, b.SignalId) {
		e.emit(Event{Kind: EventBracketRemoved, Symbol: symbol, SignalId: b.SignalId, Side: b.Side, Reason: "replace"})
	}
	return nil
}
