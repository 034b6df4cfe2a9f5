package executor

import (
	"github.com/shopspring/decimal"
	"sort"
	"sync"
	"time"
)

// ExitRef points at one protective exit, either a venue order or a monitored trigger.
type ExitRef struct {
	OrderId  int64           `json:"orderId,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Trigger  decimal.Decimal `json:"trigger,omitempty"` // raw stop price of a virtual stop
	Interval string          `json:"interval,omitempty"`
	Virtual  bool            `json:"virtual,omitempty"`
}

// Active reports whether the exit is armed.
func (r *ExitRef) Active() bool {
	return r != nil && (r.OrderId != 0 || r.Virtual)
}

// Bracket is the managed trade of one symbol.
type Bracket struct {
	Symbol       string          `json:"symbol"`
	TradeId      string          `json:"tradeId"`
	SignalId     string          `json:"signalId"`
	Side         Side            `json:"side"`
	EntryOrderId int64           `json:"entryOrderId,omitempty"`
	Qty          decimal.Decimal `json:"qty"`
	TakeProfit   *ExitRef        `json:"tp,omitempty"`
	StopLoss     *ExitRef        `json:"sl,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func (b Bracket) clone() Bracket {
	if b.TakeProfit != nil {
		tp := *b.TakeProfit
		b.TakeProfit = &tp
	}
	if b.StopLoss != nil {
		sl := *b.StopLoss
		b.StopLoss = &sl
	}
	return b
}

// Ledger holds at most one bracket per symbol. Every method is safe for concurrent use
// and callers only ever see copies.
type Ledger struct {
	lock     sync.Mutex
	brackets map[string]Bracket
	reserved map[string]bool
}

func NewLedger() *Ledger {
	return &Ledger{brackets: make(map[string]Bracket), reserved: make(map[string]bool)}
}

// Reserve marks symbol as owned by a signal in flight. It fails if another signal holds it.
func (l *Ledger) Reserve(symbol string) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.reserved[symbol] {
		return false
	}
	l.reserved[symbol] = true
	return true
}

func (l *Ledger) Release(symbol string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	delete(l.reserved, symbol)
}

func (l *Ledger) Reserved(symbol string) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.reserved[symbol]
}

func (l *Ledger) Get(symbol string) (Bracket, bool) {
	l.lock.Lock()
	defer l.lock.Unlock()
	b, ok := l.brackets[symbol]
	return b.clone(), ok
}

// Put stores b, failing if the symbol already has a bracket.
func (l *Ledger) Put(b Bracket) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	if _, ok := l.brackets[b.Symbol]; ok {
		return false
	}
	l.brackets[b.Symbol] = b.clone()
	return true
}

// Update applies fn to the bracket of symbol if it still belongs to signalId.
func (l *Ledger) Update(symbol, signalId string, fn func(b *Bracket)) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	b, ok := l.brackets[symbol]
	if !ok || b.SignalId != signalId {
		return false
	}
	fn(&b)
	l.brackets[symbol] = b.clone()
	return true
}

// DeleteIf removes the bracket only if it still belongs to signalId,
// so a pass working on an old snapshot never drops a newer trade.
func (l *Ledger) DeleteIf(symbol, signalId string) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	b, ok := l.brackets[symbol]
	if !ok || b.SignalId != signalId {
		return false
	}
	delete(l.brackets, symbol)
	return true
}

// Snapshot returns copies of all brackets ordered by symbol.
func (l *Ledger) Snapshot() []Bracket {
	l.lock.Lock()
	bs := make([]Bracket, 0, len(l.brackets))
	for _, b := range l.brackets {
		bs = append(bs, b.clone())
	}
	l.lock.Unlock()
	sort.Slice(bs, func(i, j int) bool { return bs[i].Symbol < bs[j].Symbol })
	return bs
}

func (l *Ledger) Len() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.brackets)
}
