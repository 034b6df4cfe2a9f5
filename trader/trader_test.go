package trader

import (
	"context"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xyths/hs"
	"github.com/xyths/qbracket/executor"
	"go.uber.org/zap/zaptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTrader(t *testing.T) *Trader {
	cfg := Config{
		Exchange: hs.ExchangeConf{Name: "paper", Label: "test", Symbols: []string{"BTCUSDT"}},
		Strategy: executor.Config{
			Heartbeat:         "20ms",
			ReconcileInterval: "500ms",
			SettleDelay:       "1ms",
			CancelBackoff:     "1ms",
		},
	}
	tr, err := New(cfg, true)
	require.NoError(t, err)
	tr.Sugar = zaptest.NewLogger(t).Sugar()
	require.NoError(t, tr.Init(context.Background()))
	return tr
}

func TestNewRejectsBadStrategy(t *testing.T) {
	_, err := New(Config{Strategy: executor.Config{Leverage: 200}}, true)
	require.Error(t, err)
}

func TestParseSignal(t *testing.T) {
	tests := []struct {
		line string
		side executor.Side
		err  bool
	}{
		{`{"symbol":"BTCUSDT.P","side":"buy","pattern":"engulfing","time":"t1","entry":"100","tp":"110","sl":"95"}`, executor.Long, false},
		{`{"symbol":"ETHUSDT","side":"SHORT","pattern":"pin","time":"t2","entry":2000,"tp":1900,"sl":2100}`, executor.Short, false},
		{`{"symbol":"ETHUSDT","side":"flat"}`, "", true},
		{`{"symbol":`, "", true},
		{"   ", "", true},
	}
	for i, tt := range tests {
		s, err := ParseSignal(tt.line)
		if tt.err {
			assert.Error(t, err, "case %d", i)
			continue
		}
		require.NoError(t, err, "case %d", i)
		assert.Equal(t, tt.side, s.Side, "case %d", i)
		assert.True(t, s.Entry.IsPositive(), "case %d", i)
	}
	_, err := ParseSignal("")
	assert.Equal(t, errEmptyLine, err)
}

func TestNewSignal(t *testing.T) {
	s, err := NewSignal("btcusdt", "sell", "manual", "2021-07-01 08:00", "100", "90", "105")
	require.NoError(t, err)
	assert.Equal(t, executor.Short, s.Side)
	assert.True(t, s.StopLoss.Equal(decimal.NewFromInt(105)))

	_, err = NewSignal("btcusdt", "sell", "manual", "t", "100", "x", "105")
	assert.Error(t, err)
}

func TestFormatMessage(t *testing.T) {
	tr := &Trader{config: Config{Exchange: hs.ExchangeConf{Name: "binance", Label: "main"}}}
	now := time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2021-07-01 08:00:00 [binance] [main] [BTCUSDT] hello", tr.formatMessage(now, "BTCUSDT", "hello"))
	assert.Equal(t, "2021-07-01 08:00:00 [binance] [main] hello", tr.formatMessage(now, "", "hello"))
}

func TestRobotText(t *testing.T) {
	tests := []struct {
		event executor.Event
		want  string
	}{
		{executor.Event{Kind: executor.EventBracketCreated, Side: executor.Long, Qty: decimal.NewFromInt(2)}, "long opened, qty 2"},
		{executor.Event{Kind: executor.EventBracketCreated, Side: executor.Short, Price: decimal.NewFromInt(100)}, "short entry resting at 100"},
		{executor.Event{Kind: executor.EventPositionClosed, Reason: "take_profit"}, "position closed by take_profit"},
		{executor.Event{Kind: executor.EventOrderPlaced}, ""},
		{executor.Event{Kind: executor.EventJournal, Journal: &executor.JournalRecord{Event: executor.JournalOpen}}, ""},
		{executor.Event{Kind: executor.EventJournal, Journal: &executor.JournalRecord{
			Event: executor.JournalClose, Vwap: decimal.NewFromInt(110), RealizedPnl: decimal.NewFromInt(10), FeeAsset: "USDT",
		}}, "closed at 110.0000, pnl 10.0000 USDT"},
	}
	for i, tt := range tests {
		assert.Equal(t, tt.want, robotText(tt.event), "case %d", i)
	}
}

func TestLoadConfig(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.json")
	content := `{
  "exchange": {"name": "binance", "label": "main", "host": "testnet", "symbols": ["BTCUSDT"]},
  "metrics": {"listen": "127.0.0.1:9100"},
  "strategy": {"leverage": 5, "entryMode": "maker_chase", "chase": {"steps": 4}}
}`
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	t.Setenv(envApiKey, "env-key")
	t.Setenv(envApiSecret, "env-secret")

	cfg, err := LoadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, "binance", cfg.Exchange.Name)
	assert.Equal(t, "env-key", cfg.Exchange.Key)
	assert.Equal(t, "env-secret", cfg.Exchange.Secret)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Listen)
	assert.Equal(t, 5, cfg.Strategy.Leverage)
	assert.Equal(t, 4, cfg.Strategy.Chase.Steps)
}

func TestApplyEnvKeepsConfigured(t *testing.T) {
	t.Setenv(envApiKey, "env-key")
	cfg := Config{Exchange: hs.ExchangeConf{Key: "file-key"}}
	applyEnv(&cfg)
	assert.Equal(t, "file-key", cfg.Exchange.Key)
}

func TestTradeDryRun(t *testing.T) {
	ctx := context.Background()
	tr := newTrader(t)
	s, err := NewSignal("BTCUSDT.P", "long", "engulfing", "2021-07-01 08:00", "100", "110", "95")
	require.NoError(t, err)

	res, err := tr.Trade(ctx, s)
	require.NoError(t, err)
	require.True(t, res.Accepted, res.Reason)
	// 1% of 10000 at 10x leverage, filled at 100
	assert.True(t, res.Qty.Equal(decimal.NewFromInt(10)), res.Qty.String())
	assert.NotZero(t, res.TakeProfitOrderId)
	assert.NotZero(t, res.StopLossOrderId)

	amount, err := tr.paper.PositionAmount(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(10)))

	res, err = tr.Trade(ctx, s)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, executor.ReasonDuplicate, res.Reason)
}

func TestFeed(t *testing.T) {
	tr := newTrader(t)
	line := `{"symbol":"ETHUSDT","side":"short","pattern":"pin","time":"t1","entry":"2000","tp":"1900","sl":"2100"}`
	input := strings.Join([]string{line, "not json", "", line}, "\n")

	require.NoError(t, tr.Feed(context.Background(), strings.NewReader(input)))
	brackets := tr.Executor().Brackets()
	require.Len(t, brackets, 1)
	assert.Equal(t, "ETHUSDT", brackets[0].Symbol)
	assert.Equal(t, executor.Short, brackets[0].Side)
}

func TestFeedStopsOnCancel(t *testing.T) {
	tr := newTrader(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer func() {
		_ = w.Close()
		_ = r.Close()
	}()
	require.NoError(t, tr.Feed(ctx, r))
}

func TestStartStop(t *testing.T) {
	ctx := context.Background()
	tr := newTrader(t)
	require.NoError(t, tr.Start(ctx))
	time.Sleep(50 * time.Millisecond)
	tr.Stop(ctx)
	require.NoError(t, tr.Sweep(ctx))
	require.NoError(t, tr.Print(ctx))
	require.NoError(t, tr.Clear(ctx, true, true))
	require.NoError(t, tr.Clear(ctx, false, false))
	require.NoError(t, tr.Clear(ctx, false, true)) // no journal configured
}

func TestFeeOf(t *testing.T) {
	tests := []struct {
		fees []string
		want string
	}{
		{[]string{"0.02", "0.0441"}, "0.0641"},
		{[]string{"0.02", ""}, "0.02"},
		{nil, "0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, feeOf(tt.fees...).String())
	}
}
