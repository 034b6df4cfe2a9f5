package trader

import (
	"fmt"
	"github.com/xyths/qbracket/executor"
	"strings"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

var beijing = time.FixedZone("Beijing Time", int((8 * time.Hour).Seconds()))

// Broadcast sends one line to every robot, prefixed with the time and the exchange labels.
func (t *Trader) Broadcast(symbol, format string, a ...interface{}) {
	if len(t.robots) == 0 {
		return
	}
	msg := t.formatMessage(time.Now(), symbol, fmt.Sprintf(format, a...))
	for _, robot := range t.robots {
		if err := robot.SendText(msg); err != nil {
			t.Sugar.Infof("broadcast error: %s", err)
		}
	}
}

func (t *Trader) formatMessage(now time.Time, symbol, message string) string {
	labels := []string{t.config.Exchange.Name, t.config.Exchange.Label}
	timeStr := now.In(beijing).Format(timeLayout)
	if symbol == "" {
		return fmt.Sprintf("%s [%s] %s", timeStr, strings.Join(labels, "] ["), message)
	}
	return fmt.Sprintf("%s [%s] [%s] %s", timeStr, strings.Join(labels, "] ["), symbol, message)
}

// robotObserver tells the robots about the events a human wants to hear of.
type robotObserver struct {
	t *Trader
}

func (o robotObserver) Observe(e executor.Event) {
	if text := robotText(e); text != "" {
		o.t.Broadcast(e.Symbol, "%s", text)
	}
}

func robotText(e executor.Event) string {
	switch e.Kind {
	case executor.EventBracketCreated:
		if e.Qty.IsZero() {
			return fmt.Sprintf("%s entry resting at %s", e.Side, e.Price)
		}
		return fmt.Sprintf("%s opened, qty %s", e.Side, e.Qty)
	case executor.EventPositionClosed:
		return fmt.Sprintf("position closed by %s", e.Reason)
	case executor.EventRecovered:
		return fmt.Sprintf("%s position recovered, qty %s", e.Side, e.Qty)
	case executor.EventExitFailed:
		return fmt.Sprintf("%s order failed, position unprotected: %s", e.Reason, e.Err)
	case executor.EventJournal:
		if e.Journal != nil && e.Journal.Event == executor.JournalClose {
			return fmt.Sprintf("closed at %s, pnl %s %s", e.Journal.Vwap.StringFixed(4), e.Journal.RealizedPnl.StringFixed(4), e.Journal.FeeAsset)
		}
	}
	return ""
}
