package executor

import (
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xyths/qbracket/exchange"
	"math/rand"
	"testing"
)

func TestSizerSize(t *testing.T) {
	filters := exchange.SymbolFilters{StepSize: d("0.001"), MinQty: d("0.001"), MinNotional: d("5")}
	tests := []struct {
		name    string
		mode    RiskMode
		balance string
		price   string
		want    string
	}{
		{"margin", RiskMargin, "1000", "100", "1"},
		{"notional", RiskNotional, "1000", "100", "0.1"},
		{"floored", RiskMargin, "1000", "30000", "0.003"},
		{"raised to min notional", RiskMargin, "10", "100", "0.05"},
		{"raised to min qty", RiskNotional, "1", "30000", "0.001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Sizer{Mode: tt.mode, RiskPct: d("1"), Leverage: 10, DefaultStep: d("0.001")}
			qty, err := s.Size(d(tt.balance), d(tt.price), filters)
			require.NoError(t, err)
			assert.True(t, qty.Equal(d(tt.want)), "qty %s, want %s", qty, tt.want)
		})
	}
}

func TestSizerInvalid(t *testing.T) {
	s := Sizer{Mode: RiskMargin, RiskPct: d("1"), Leverage: 10, DefaultStep: d("0.001")}
	_, err := s.Size(decimal.Zero, d("100"), exchange.SymbolFilters{})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindSizing))
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = s.Size(d("100"), decimal.Zero, exchange.SymbolFilters{})
	assert.True(t, IsKind(err, KindSizing))

	// 0.001 floors to zero on a step of 1 with no minimums to raise it
	s.DefaultStep = d("1")
	_, err = s.Size(d("1"), d("100"), exchange.SymbolFilters{})
	assert.True(t, IsKind(err, KindSizing))
}

func TestSizerFloor(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	steps := []string{"0.001", "0.01", "1", "0.1"}
	for i := 0; i < 2000; i++ {
		s := Sizer{
			Mode:        []RiskMode{RiskMargin, RiskNotional}[r.Intn(2)],
			RiskPct:     decimal.New(r.Int63n(10000)+1, -2), // 0.01 .. 100
			Leverage:    r.Intn(125) + 1,
			DefaultStep: d("0.001"),
		}
		step := d(steps[r.Intn(len(steps))])
		f := exchange.SymbolFilters{
			StepSize:    step,
			MinQty:      step.Mul(decimal.NewFromInt(r.Int63n(5) + 1)),
			MinNotional: decimal.NewFromInt(r.Int63n(100) + 1),
		}
		balance := decimal.New(r.Int63n(1e8)+1, -2)
		price := decimal.New(r.Int63n(1e9)+1, -3)
		qty, err := s.Size(balance, price, f)
		require.NoError(t, err)
		require.True(t, qty.IsPositive())
		assert.True(t, qty.Mul(price).GreaterThanOrEqual(f.MinNotional), "qty %s price %s min notional %s", qty, price, f.MinNotional)
		assert.True(t, qty.GreaterThanOrEqual(f.MinQty), "qty %s min qty %s", qty, f.MinQty)
		assert.True(t, qty.Mod(step).IsZero(), "qty %s step %s", qty, step)
	}
}
