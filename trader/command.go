package trader

import (
	"context"
	"github.com/shopspring/decimal"
	"github.com/xyths/qbracket/exchange"
	"github.com/xyths/qbracket/executor"
)

const printRecords = 20

// Print logs the venue state of the watched symbols, the orphans and the latest journaled trades.
func (t *Trader) Print(ctx context.Context) error {
	for _, s := range t.config.Exchange.Symbols {
		symbol := executor.NormalizeSymbol(s)
		amount, err := t.ex.PositionAmount(ctx, symbol)
		if err != nil {
			return err
		}
		orders, err := t.ex.OpenOrders(ctx, symbol)
		if err != nil {
			return err
		}
		entries, exits := exchange.SplitOrders(orders)
		t.Sugar.Infof("%s position %s, %d entry order(s), %d exit order(s)", symbol, amount, len(entries), len(exits))
		for _, o := range orders {
			t.Sugar.Infof("  %d %s %s %s qty %s price %s stop %s", o.OrderId, o.Side, o.Type, o.Status, o.OrigQty, o.Price, o.StopPrice)
		}
	}
	orphans, err := t.executor.FindOrphans(ctx)
	if err != nil {
		return err
	}
	for _, o := range orphans {
		t.Sugar.Infof("orphan %s, %d exit order(s)", o.Symbol, len(o.Exits))
	}
	if t.journal == nil {
		return nil
	}
	records, err := t.journal.List(ctx, printRecords)
	if err != nil {
		return err
	}
	for _, r := range records {
		t.Sugar.Infof("%s %s %s %s qty %s vwap %s fee %s %s pnl %s", r.Time.In(beijing).Format(timeLayout), r.Symbol, r.Side, r.Event, r.Qty, r.Vwap, r.Fee, r.FeeAsset, r.RealizedPnl)
	}
	trades, err := t.journal.Trades(ctx, "")
	if err != nil {
		return err
	}
	for _, tr := range trades {
		if tr.CloseTime.IsZero() {
			t.Sugar.Infof("trade %s %s %s open %s @ %s, still open", tr.Id, tr.Symbol, tr.Side, tr.OpenQty, tr.OpenVwap)
			continue
		}
		t.Sugar.Infof("trade %s %s %s open %s @ %s, close %s @ %s, fee %s, pnl %s", tr.Id, tr.Symbol, tr.Side, tr.OpenQty, tr.OpenVwap, tr.CloseQty, tr.CloseVwap, feeOf(tr.OpenFee, tr.CloseFee), tr.Pnl)
	}
	return nil
}

// feeOf adds up the fees of both legs, fees are stored as decimal strings.
func feeOf(fees ...string) decimal.Decimal {
	total := decimal.Zero
	for _, f := range fees {
		if d, err := decimal.NewFromString(f); err == nil {
			total = total.Add(d)
		}
	}
	return total
}

// Sweep cancels orphan exits once.
func (t *Trader) Sweep(ctx context.Context) error {
	n, err := t.executor.Sweep(ctx)
	if err != nil {
		return err
	}
	t.Sugar.Infof("%d orphan order(s) cancelled", n)
	if n > 0 {
		t.Broadcast("", "%d orphan order(s) cancelled", n)
	}
	return nil
}

// Clear cancels the exits left on flat symbols and resets the persisted client id counter.
// With dryRun it only lists what would be cancelled. With dropJournal the execution journal goes too.
func (t *Trader) Clear(ctx context.Context, dryRun, dropJournal bool) error {
	orphans, err := t.executor.FindOrphans(ctx)
	if err != nil {
		return err
	}
	for _, o := range orphans {
		for _, x := range o.Exits {
			t.Sugar.Infof("%s exit %d %s %s stop %s", o.Symbol, x.OrderId, x.Side, x.Type, x.StopPrice)
		}
	}
	if dryRun {
		t.Sugar.Infof("dry run, %d orphan symbol(s) left untouched", len(orphans))
		return nil
	}
	if err := t.Sweep(ctx); err != nil {
		return err
	}
	if err := t.ids.Reset(ctx); err != nil {
		return err
	}
	if dropJournal && t.journal != nil {
		if err := t.journal.Clear(ctx); err != nil {
			return err
		}
		t.Sugar.Info("journal dropped")
	}
	t.Sugar.Info("state cleared")
	return nil
}
