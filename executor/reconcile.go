package executor

import (
	"context"
	"github.com/pkg/errors"
	"github.com/xyths/qbracket/exchange"
	"time"
)

// RunReconciler reconciles the ledger every ReconcileInterval until ctx is done.
func (e *Executor) RunReconciler(ctx context.Context) {
	e.Sugar.Infof("reconciler started, interval %s", e.opts.ReconcileInterval)
	for {
		select {
		case <-ctx.Done():
			e.Sugar.Info("reconciler stopped")
			return
		case <-time.After(e.opts.ReconcileInterval):
			e.Reconcile(ctx)
		}
	}
}

// Reconcile walks a snapshot of the ledger and settles every bracket against the venue.
// Symbols with a signal in flight are left for the next pass.
func (e *Executor) Reconcile(ctx context.Context) {
	for _, b := range e.ledger.Snapshot() {
		if ctx.Err() != nil {
			return
		}
		if e.ledger.Reserved(b.Symbol) {
			continue
		}
		if err := e.reconcile(ctx, b); err != nil {
			e.Sugar.Warnf("reconcile %s (%s) error: %s", b.Symbol, b.SignalId, err)
		}
	}
}

func (e *Executor) reconcile(ctx context.Context, b Bracket) error {
	// orders before position: an entry filled in between shows up as a live position
	open, err := e.ex.OpenOrders(ctx, b.Symbol)
	if err != nil {
		return Classify("open orders", err)
	}
	amount, err := e.ex.PositionAmount(ctx, b.Symbol)
	if err != nil {
		return Classify("position", err)
	}
	// flat checks come first, order handles may be stale after an external close
	if amount.IsZero() {
		entries, exits := exchange.SplitOrders(open)
		if len(entries) > 0 {
			return nil
		}
		e.closeFlat(ctx, b, exits, "flat")
		return nil
	}

	if b.TakeProfit.Active() && !b.TakeProfit.Virtual {
		filled, err := e.exitFilled(ctx, b, b.TakeProfit.OrderId)
		if err != nil {
			e.Sugar.Warnf("check %s take profit %d error: %s", b.Symbol, b.TakeProfit.OrderId, err)
		} else if filled {
			e.settle(ctx, b, b.TakeProfit.OrderId, b.StopLoss, "take_profit")
			return nil
		}
	}
	if !b.StopLoss.Active() {
		return nil
	}
	if !b.StopLoss.Virtual {
		filled, err := e.exitFilled(ctx, b, b.StopLoss.OrderId)
		if err != nil {
			return err
		}
		if filled {
			e.settle(ctx, b, b.StopLoss.OrderId, b.TakeProfit, "stop_loss")
		}
		return nil
	}

	hit, last, err := e.virtualStopHit(ctx, b)
	if err != nil || !hit {
		return err
	}
	e.Sugar.Infof("%s virtual stop hit, close %s, trigger %s", b.Symbol, last, b.StopLoss.Trigger)
	o, err := e.closeMarket(ctx, b.Symbol, b.SignalId, b.TradeId, amount)
	if err != nil {
		return err
	}
	e.settle(ctx, b, o.OrderId, b.TakeProfit, "virtual_stop")
	return nil
}

// exitFilled reports whether the exit order has filled. An order the venue does not know is state drift.
func (e *Executor) exitFilled(ctx context.Context, b Bracket, orderId int64) (bool, error) {
	o, err := e.ex.GetOrder(ctx, b.Symbol, orderId)
	if err != nil {
		if errors.Is(err, exchange.ErrOrderNotFound) {
			return false, newError(KindStateDrift, "exit order", err)
		}
		return false, Classify("exit order", err)
	}
	return o.Filled(), nil
}

// settle journals the closing order, cancels the sibling exit and drops the bracket.
func (e *Executor) settle(ctx context.Context, b Bracket, closeId int64, sibling *ExitRef, reason string) {
	e.journal(ctx, b, JournalClose, closeId)
	e.emit(Event{Kind: EventPositionClosed, Symbol: b.Symbol, SignalId: b.SignalId, OrderId: closeId, Side: b.Side, Qty: b.Qty, Reason: reason})
	if sibling.Active() && !sibling.Virtual {
		e.cancel(ctx, b.Symbol, b.SignalId, sibling.OrderId)
	}
	if e.ledger.DeleteIf(b.Symbol, b.SignalId) {
		e.emit(Event{Kind: EventBracketRemoved, Symbol: b.Symbol, SignalId: b.SignalId, Side: b.Side, Reason: reason})
	}
}

// owns reports whether b is still the ledger's bracket and no signal is in flight for its symbol.
func (e *Executor) owns(b Bracket) bool {
	if e.ledger.Reserved(b.Symbol) {
		return false
	}
	cur, ok := e.ledger.Get(b.Symbol)
	return ok && cur.SignalId == b.SignalId
}

// closeFlat handles a bracket whose position is gone: exits that filled are journaled,
// the ones still open are orphans and get cancelled. It returns how many were cancelled.
// Nothing is touched once a newer signal owns the symbol.
func (e *Executor) closeFlat(ctx context.Context, b Bracket, exits []exchange.Order, reason string) int {
	if !e.owns(b) {
		return 0
	}
	for _, ref := range []*ExitRef{b.TakeProfit, b.StopLoss} {
		if !ref.Active() || ref.Virtual {
			continue
		}
		if filled, err := e.exitFilled(ctx, b, ref.OrderId); err == nil && filled {
			e.journal(ctx, b, JournalClose, ref.OrderId)
			e.emit(Event{Kind: EventPositionClosed, Symbol: b.Symbol, SignalId: b.SignalId, OrderId: ref.OrderId, Side: b.Side, Qty: b.Qty, Reason: reason})
		}
	}
	if !e.owns(b) {
		return 0
	}
	n := 0
	if len(exits) > 0 {
		n = e.cancelExits(ctx, b.Symbol, b.SignalId, exits)
		e.emit(Event{Kind: EventOrphansCleaned, Symbol: b.Symbol, SignalId: b.SignalId, Side: b.Side, Qty: decimalInt(n), Reason: reason})
	}
	if e.ledger.DeleteIf(b.Symbol, b.SignalId) {
		e.emit(Event{Kind: EventBracketRemoved, Symbol: b.Symbol, SignalId: b.SignalId, Side: b.Side, Reason: reason})
	}
	return n
}
