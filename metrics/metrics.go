// Package metrics exposes executor events to Prometheus:
//   - qbracket_events_total{kind}         every executor event
//   - qbracket_signals_skipped_total{reason}
//   - qbracket_brackets_open              managed brackets right now
//   - qbracket_realized_pnl               realized pnl of closed trades, in the margin asset
//
// They are registered in init() and served by the trader at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xyths/qbracket/executor"
)

var (
	mtxEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qbracket_events_total",
			Help: "Executor events by kind",
		},
		[]string{"kind"},
	)

	mtxSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qbracket_signals_skipped_total",
			Help: "Signals skipped by reason",
		},
		[]string{"reason"},
	)

	mtxBrackets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qbracket_brackets_open",
			Help: "Brackets currently managed",
		},
	)

	mtxPnl = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qbracket_realized_pnl",
			Help: "Realized pnl of journaled closes",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxEvents, mtxSkipped)
	prometheus.MustRegister(mtxBrackets, mtxPnl)
}

// Observer feeds executor events into the collectors.
type Observer struct{}

func (Observer) Observe(e executor.Event) {
	mtxEvents.WithLabelValues(string(e.Kind)).Inc()
	switch e.Kind {
	case executor.EventSignalSkipped:
		mtxSkipped.WithLabelValues(e.Reason).Inc()
	case executor.EventBracketCreated, executor.EventRecovered:
		mtxBrackets.Inc()
	case executor.EventBracketRemoved:
		mtxBrackets.Dec()
	case executor.EventJournal:
		if e.Journal != nil && e.Journal.Event == executor.JournalClose {
			pnl, _ := e.Journal.RealizedPnl.Float64()
			mtxPnl.Add(pnl)
		}
	}
}

// SetBrackets resets the open bracket gauge, after recovery for example.
func SetBrackets(n int) {
	mtxBrackets.Set(float64(n))
}
