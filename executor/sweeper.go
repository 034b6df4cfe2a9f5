package executor

import (
	"context"
	"github.com/xyths/qbracket/exchange"
	"sort"
	"time"
)

// Orphan is a flat symbol whose only open orders are exits.
type Orphan struct {
	Symbol string
	Exits  []exchange.Order
}

// SetWatchlist sets the symbols swept when the venue cannot list all open orders.
func (e *Executor) SetWatchlist(symbols []string) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.watchlist = nil
	for _, s := range symbols {
		e.watchlist = append(e.watchlist, NormalizeSymbol(s))
	}
}

func (e *Executor) getWatchlist() []string {
	e.lock.Lock()
	defer e.lock.Unlock()
	return append([]string(nil), e.watchlist...)
}

// RunSweeper sweeps orphans every SweepInterval until ctx is done. It does nothing when orphans are kept.
func (e *Executor) RunSweeper(ctx context.Context) {
	if e.opts.KeepOrphans {
		e.Sugar.Info("sweeper disabled, orphans are kept")
		return
	}
	e.Sugar.Infof("sweeper started, interval %s", e.opts.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			e.Sugar.Info("sweeper stopped")
			return
		case <-time.After(e.opts.SweepInterval):
			if n, err := e.Sweep(ctx); err != nil {
				e.Sugar.Warnf("sweep error: %s", err)
			} else if n > 0 {
				e.Sugar.Infof("sweep cancelled %d order(s)", n)
			}
		}
	}
}

// Sweep cancels the orphan exits of every symbol with an open order, ledger or not.
// It returns how many orders were cancelled.
func (e *Executor) Sweep(ctx context.Context) (int, error) {
	if e.opts.KeepOrphans {
		return 0, nil
	}
	orphans, err := e.FindOrphans(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, o := range orphans {
		b, ok := e.ledger.Get(o.Symbol)
		if ok {
			total += e.closeFlat(ctx, b, o.Exits, "sweep")
			continue
		}
		if e.ledger.Reserved(o.Symbol) {
			continue
		}
		n := e.cancelExits(ctx, o.Symbol, "", o.Exits)
		total += n
		e.emit(Event{Kind: EventOrphansCleaned, Symbol: o.Symbol, Qty: decimalInt(n), Reason: "sweep"})
	}
	return total, nil
}

// FindOrphans lists the flat symbols that hold exits and no entry. Symbols with a signal in flight are skipped.
func (e *Executor) FindOrphans(ctx context.Context) ([]Orphan, error) {
	bySymbol := make(map[string][]exchange.Order)
	open, err := e.ex.OpenOrders(ctx, "")
	if err != nil {
		e.Sugar.Warnf("list all open orders error: %s, falling back to watchlist", err)
		for _, s := range e.getWatchlist() {
			orders, err := e.ex.OpenOrders(ctx, s)
			if err != nil {
				return nil, Classify("open orders", err)
			}
			bySymbol[s] = orders
		}
	} else {
		for _, o := range open {
			bySymbol[o.Symbol] = append(bySymbol[o.Symbol], o)
		}
	}

	var orphans []Orphan
	for _, symbol := range sortedKeys(bySymbol) {
		if e.ledger.Reserved(symbol) {
			continue
		}
		entries, exits := exchange.SplitOrders(bySymbol[symbol])
		if len(entries) > 0 || len(exits) == 0 {
			continue
		}
		amount, err := e.ex.PositionAmount(ctx, symbol)
		if err != nil {
			e.Sugar.Warnf("sweep %s position error: %s", symbol, err)
			continue
		}
		if !amount.IsZero() {
			continue
		}
		orphans = append(orphans, Orphan{Symbol: symbol, Exits: exits})
	}
	return orphans, nil
}

func sortedKeys(m map[string][]exchange.Order) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
