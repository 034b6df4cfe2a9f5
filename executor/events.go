package executor

import (
	"fmt"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"strings"
	"time"
)

type EventKind string

const (
	EventOrderPlaced     EventKind = "order_placed"
	EventOrderRepriced   EventKind = "order_repriced"
	EventOrderFilled     EventKind = "order_filled"
	EventOrderCancelled  EventKind = "order_cancelled"
	EventCancelFailed    EventKind = "cancel_failed"
	EventBracketCreated  EventKind = "bracket_created"
	EventBracketRemoved  EventKind = "bracket_removed"
	EventExitFailed      EventKind = "exit_failed"
	EventChaseExhausted  EventKind = "chase_exhausted"
	EventFallbackApplied EventKind = "fallback_applied"
	EventRecovered       EventKind = "recovered"
	EventOrphansCleaned  EventKind = "orphans_cleaned"
	EventSignalSkipped   EventKind = "signal_skipped"
	EventPositionClosed  EventKind = "position_closed"
	EventJournal         EventKind = "journal"
)

// JournalRecord aggregates the fills of one order of a managed trade.
type JournalRecord struct {
	TradeId     string          `json:"tradeId"`
	SignalId    string          `json:"signalId"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Event       string          `json:"event"` // OPEN or CLOSE
	OrderId     int64           `json:"orderId"`
	Vwap        decimal.Decimal `json:"vwap"`
	Qty         decimal.Decimal `json:"qty"`
	Fee         decimal.Decimal `json:"fee"`
	FeeAsset    string          `json:"feeAsset"`
	RealizedPnl decimal.Decimal `json:"realizedPnl"`
	Time        time.Time       `json:"time"`
}

// Event reports one state transition of the executor.
type Event struct {
	Kind     EventKind
	Symbol   string
	SignalId string
	OrderId  int64
	Side     Side
	Price    decimal.Decimal
	Qty      decimal.Decimal
	Reason   string
	Err      error
	Time     time.Time
	Journal  *JournalRecord
}

type Observer interface {
	Observe(e Event)
}

// Observers fans every event out to each observer in order.
type Observers []Observer

func (os Observers) Observe(e Event) {
	for _, o := range os {
		if o != nil {
			o.Observe(e)
		}
	}
}

type logObserver struct {
	Sugar *zap.SugaredLogger
}

// NewLogObserver writes every event to the logger, failures at warn level.
func NewLogObserver(sugar *zap.SugaredLogger) Observer {
	return logObserver{Sugar: sugar}
}

func (o logObserver) Observe(e Event) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Kind, e.Symbol)
	if e.SignalId != "" {
		fmt.Fprintf(&b, " signal %s", e.SignalId)
	}
	if e.OrderId != 0 {
		fmt.Fprintf(&b, " order %d", e.OrderId)
	}
	if e.Side != "" {
		fmt.Fprintf(&b, " %s", e.Side)
	}
	if !e.Qty.IsZero() {
		fmt.Fprintf(&b, " qty %s", e.Qty)
	}
	if !e.Price.IsZero() {
		fmt.Fprintf(&b, " @ %s", e.Price)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	if e.Journal != nil {
		fmt.Fprintf(&b, " %s vwap %s fee %s pnl %s", e.Journal.Event, e.Journal.Vwap, e.Journal.Fee, e.Journal.RealizedPnl)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ", error: %s", e.Err)
	}
	switch e.Kind {
	case EventCancelFailed, EventExitFailed:
		o.Sugar.Warn(b.String())
	default:
		o.Sugar.Info(b.String())
	}
}
