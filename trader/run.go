package trader

import (
	"bufio"
	"context"
	"encoding/json"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/xyths/qbracket/exchange"
	"github.com/xyths/qbracket/executor"
	"github.com/xyths/qbracket/metrics"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const shutdownTimeout = 5 * time.Second

// Start recovers the ledger from the venue and starts the background workers.
func (t *Trader) Start(ctx context.Context) error {
	brackets, err := t.executor.Recover(ctx, t.config.Exchange.Symbols)
	if err != nil {
		t.Sugar.Errorf("recover error: %s", err)
	}
	metrics.SetBrackets(len(brackets))
	if len(brackets) > 0 {
		t.Broadcast("", "recovered %d bracket(s)", len(brackets))
	}

	ctx, t.cancel = context.WithCancel(ctx)
	t.goWorker(func() { t.executor.RunReconciler(ctx) })
	t.goWorker(func() { t.executor.RunSweeper(ctx) })
	t.goWorker(func() { t.heartbeat(ctx) })
	t.startMetrics()

	t.Sugar.Info("trader started")
	return nil
}

func (t *Trader) Stop(ctx context.Context) {
	if t.cancel != nil {
		t.cancel()
	}
	if t.server != nil {
		sctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		_ = t.server.Shutdown(sctx)
	}
	t.wg.Wait()
	t.Sugar.Info("trader stopped")
}

func (t *Trader) goWorker(f func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		f()
	}()
}

func (t *Trader) startMetrics() {
	if t.config.Metrics.Listen == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	t.server = &http.Server{Addr: t.config.Metrics.Listen, Handler: mux}
	go func() {
		t.Sugar.Infof("serving metrics on %s/metrics", t.config.Metrics.Listen)
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Sugar.Errorf("metrics server error: %s", err)
		}
	}()
}

func (t *Trader) heartbeat(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.opts.Heartbeat):
			n := len(t.executor.Brackets())
			metrics.SetBrackets(n)
			t.Sugar.Infof("alive, %d bracket(s)", n)
		}
	}
}

// Trade runs one signal through the executor.
func (t *Trader) Trade(ctx context.Context, s executor.Signal) (executor.Result, error) {
	if t.paper != nil {
		t.quote(s)
	}
	res, err := t.executor.PlaceManagedTrade(ctx, s)
	if err != nil {
		t.Sugar.Errorf("trade %s %s error: %s", s.Symbol, s.Side, err)
		return res, err
	}
	if res.Skipped {
		t.Sugar.Infof("signal %s skipped: %s", res.SignalId, res.Reason)
	}
	return res, nil
}

// quote lists an unknown symbol on the simulated venue at the signal's entry price.
func (t *Trader) quote(s executor.Signal) {
	symbol := executor.NormalizeSymbol(s.Symbol)
	if _, err := t.paper.Filters(context.Background(), symbol); err == nil {
		return
	}
	tick := t.opts.DefaultTickSize
	t.paper.SetFilters(exchange.SymbolFilters{
		Symbol:   symbol,
		TickSize: tick,
		StepSize: t.opts.DefaultStepSize,
		MinQty:   t.opts.DefaultStepSize,
	})
	price := executor.FloorToStep(s.Entry, tick)
	t.paper.SetBook(symbol, price.Sub(tick), price)
	t.paper.SetMark(symbol, price)
}

// Feed reads newline delimited json signals until r is exhausted or ctx is done.
// Every signal is traded in its own goroutine, and Feed waits for them before returning.
// Lines that do not parse are logged and skipped.
func (t *Trader) Feed(ctx context.Context, r io.Reader) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errCh:
					return errors.Wrap(err, "read signals")
				default:
					return nil
				}
			}
			s, err := ParseSignal(line)
			if err != nil {
				if err != errEmptyLine {
					t.Sugar.Warnf("bad signal %q: %s", line, err)
				}
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = t.Trade(ctx, s)
			}()
		}
	}
}

var errEmptyLine = errors.New("empty line")

// ParseSignal decodes one json signal. Sides buy and sell are accepted for long and short.
func ParseSignal(line string) (s executor.Signal, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return s, errEmptyLine
	}
	if err = json.Unmarshal([]byte(line), &s); err != nil {
		return s, err
	}
	side, err := executor.ParseSide(string(s.Side))
	if err != nil {
		return s, err
	}
	s.Side = side
	return s, nil
}

// NewSignal builds a signal from plain strings, as the trade command gets them.
func NewSignal(symbol, side, pattern, tm, entry, tp, sl string) (s executor.Signal, err error) {
	s.Symbol, s.Pattern, s.Time = symbol, pattern, tm
	if s.Side, err = executor.ParseSide(side); err != nil {
		return
	}
	if s.Entry, err = decimal.NewFromString(entry); err != nil {
		return s, errors.Wrap(err, "entry")
	}
	if s.TakeProfit, err = decimal.NewFromString(tp); err != nil {
		return s, errors.Wrap(err, "tp")
	}
	if s.StopLoss, err = decimal.NewFromString(sl); err != nil {
		return s, errors.Wrap(err, "sl")
	}
	return s, nil
}
