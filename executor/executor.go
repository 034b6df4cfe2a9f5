package executor

import (
	"context"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xyths/qbracket/exchange"
	"go.uber.org/zap"
	"strings"
	"sync"
	"time"
)

// Executor turns signals into managed positions and keeps the ledger in line with the venue.
type Executor struct {
	Sugar *zap.SugaredLogger

	ex       exchange.Client
	opts     Options
	observer Observer
	ledger   *Ledger
	dedup    *Dedup
	sizer    Sizer
	ids      *ClientIdManager

	lock      sync.Mutex
	oneWay    bool
	leverage  map[string]bool
	filters   map[string]exchange.SymbolFilters
	watchlist []string

	now func() time.Time
}

func NewExecutor(ex exchange.Client, opts Options, sugar *zap.SugaredLogger, observer Observer) *Executor {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}
	ids := &ClientIdManager{}
	ids.Init(sep, nil)
	return &Executor{
		Sugar:    sugar,
		ex:       ex,
		opts:     opts,
		observer: observer,
		ledger:   NewLedger(),
		dedup:    NewDedup(opts.DedupSize),
		sizer:    NewSizer(opts),
		ids:      ids,
		leverage: make(map[string]bool),
		filters:  make(map[string]exchange.SymbolFilters),
		now:      time.Now,
	}
}

// SetClientIdManager replaces the in-memory client id counter, typically with a persistent one.
func (e *Executor) SetClientIdManager(m *ClientIdManager) {
	e.ids = m
}

// Brackets returns a snapshot of the ledger.
func (e *Executor) Brackets() []Bracket {
	return e.ledger.Snapshot()
}

func (e *Executor) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = e.now()
	}
	if e.observer != nil {
		e.observer.Observe(ev)
	}
}

func (e *Executor) patternAllowed(pattern string) bool {
	if len(e.opts.AllowPatterns) == 0 {
		return true
	}
	for _, p := range e.opts.AllowPatterns {
		if strings.EqualFold(p, pattern) {
			return true
		}
	}
	return false
}

// filtersOf memoizes the venue filters, filling missing tick and step with the configured defaults.
func (e *Executor) filtersOf(ctx context.Context, symbol string) (exchange.SymbolFilters, error) {
	e.lock.Lock()
	f, ok := e.filters[symbol]
	e.lock.Unlock()
	if ok {
		return f, nil
	}
	f, err := e.ex.Filters(ctx, symbol)
	if err != nil {
		return f, Classify("filters", err)
	}
	if !f.TickSize.IsPositive() {
		f.TickSize = e.opts.DefaultTickSize
	}
	if !f.StepSize.IsPositive() {
		f.StepSize = e.opts.DefaultStepSize
	}
	e.lock.Lock()
	e.filters[symbol] = f
	e.lock.Unlock()
	return f, nil
}

// ensureAccount switches to one-way mode once per process and sets leverage once per symbol.
// Failures are logged and retried on the next signal.
func (e *Executor) ensureAccount(ctx context.Context, symbol string) {
	e.lock.Lock()
	oneWay, lev := e.oneWay, e.leverage[symbol]
	e.lock.Unlock()
	if !oneWay {
		if err := e.ex.SetOneWayMode(ctx); err != nil {
			e.Sugar.Warnf("set one-way mode error: %s", err)
		} else {
			e.lock.Lock()
			e.oneWay = true
			e.lock.Unlock()
		}
	}
	if !lev {
		if err := e.ex.SetLeverage(ctx, symbol, e.opts.Leverage); err != nil {
			e.Sugar.Warnf("set %s leverage %d error: %s", symbol, e.opts.Leverage, err)
		} else {
			e.lock.Lock()
			e.leverage[symbol] = true
			e.lock.Unlock()
		}
	}
}

func (e *Executor) clientId(ctx context.Context, prefix, tradeId string) string {
	id, err := e.ids.GetClientOrderId(ctx, prefix, tradeId)
	if err != nil {
		e.Sugar.Warnf("client order id error: %s", err)
		return ""
	}
	return id
}

// cancel retries a few times with a fixed backoff. An order the venue no longer knows counts as cancelled.
func (e *Executor) cancel(ctx context.Context, symbol, signalId string, orderId int64) bool {
	var err error
	for i := 0; i < e.opts.CancelRetries; i++ {
		if i > 0 {
			if sleep(ctx, e.opts.CancelBackoff) != nil {
				break
			}
		}
		err = e.ex.CancelOrder(ctx, symbol, orderId)
		if err == nil || errors.Is(err, exchange.ErrOrderNotFound) {
			e.emit(Event{Kind: EventOrderCancelled, Symbol: symbol, SignalId: signalId, OrderId: orderId})
			return true
		}
	}
	e.emit(Event{Kind: EventCancelFailed, Symbol: symbol, SignalId: signalId, OrderId: orderId, Err: err})
	return false
}

func (e *Executor) cancelExits(ctx context.Context, symbol, signalId string, exits []exchange.Order) int {
	n := 0
	for _, o := range exits {
		if e.cancel(ctx, symbol, signalId, o.OrderId) {
			n++
		}
	}
	return n
}

// journal aggregates the fills of the given orders and emits them as one journal event.
func (e *Executor) journal(ctx context.Context, b Bracket, event string, orderIds ...int64) {
	var trades []exchange.Trade
	var last int64
	for _, id := range orderIds {
		if id == 0 {
			continue
		}
		ts, err := e.ex.Trades(ctx, b.Symbol, id)
		if err != nil {
			e.Sugar.Warnf("journal %s trades of order %d error: %s", b.Symbol, id, err)
			continue
		}
		trades = append(trades, ts...)
		last = id
	}
	if len(trades) == 0 {
		return
	}
	r := aggregate(trades)
	r.TradeId = b.TradeId
	r.SignalId = b.SignalId
	r.Symbol = b.Symbol
	r.Side = b.Side
	r.Event = event
	r.OrderId = last
	r.Time = e.now()
	e.emit(Event{Kind: EventJournal, Symbol: b.Symbol, SignalId: b.SignalId, OrderId: last, Side: b.Side,
		Price: r.Vwap, Qty: r.Qty, Journal: &r})
}

func aggregate(trades []exchange.Trade) JournalRecord {
	var r JournalRecord
	notional := decimal.Zero
	for _, t := range trades {
		r.Qty = r.Qty.Add(t.Qty)
		notional = notional.Add(t.Qty.Mul(t.Price))
		r.Fee = r.Fee.Add(t.Commission)
		r.RealizedPnl = r.RealizedPnl.Add(t.RealizedPnl)
		if r.FeeAsset == "" {
			r.FeeAsset = t.CommissionAsset
		}
	}
	if r.Qty.IsPositive() {
		r.Vwap = notional.Div(r.Qty)
	}
	return r
}

func newTradeId() string {
	return uuid.New().String()
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func decimalInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}
