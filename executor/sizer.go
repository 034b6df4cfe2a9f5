package executor

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xyths/qbracket/exchange"
)

var hundred = decimal.NewFromInt(100)

type Sizer struct {
	Mode        RiskMode
	RiskPct     decimal.Decimal
	Leverage    int
	DefaultStep decimal.Decimal
}

func NewSizer(o Options) Sizer {
	return Sizer{Mode: o.RiskMode, RiskPct: o.RiskPct, Leverage: o.Leverage, DefaultStep: o.DefaultStepSize}
}

// Notional is the order value the balance allows.
func (s Sizer) Notional(balance decimal.Decimal) decimal.Decimal {
	n := balance.Mul(s.RiskPct).Div(hundred)
	if s.Mode == RiskMargin {
		n = n.Mul(decimal.NewFromInt(int64(s.Leverage)))
	}
	return n
}

// Size converts the balance into an order quantity at price.
// A quantity raised to the minimum notional is rounded up to the step so that qty*price stays above it.
func (s Sizer) Size(balance, price decimal.Decimal, f exchange.SymbolFilters) (decimal.Decimal, error) {
	if !balance.IsPositive() {
		return decimal.Zero, newError(KindSizing, "size", errors.Wrapf(ErrInvalidSize, "balance %s", balance))
	}
	if !price.IsPositive() {
		return decimal.Zero, newError(KindSizing, "size", errors.Wrapf(ErrInvalidSize, "price %s", price))
	}
	step := f.StepSize
	if !step.IsPositive() {
		step = s.DefaultStep
	}
	qty := FloorToStep(s.Notional(balance).Div(price), step)
	if f.MinQty.IsPositive() && qty.LessThan(f.MinQty) {
		qty = CeilToStep(f.MinQty, step)
	}
	if f.MinNotional.IsPositive() && qty.Mul(price).LessThan(f.MinNotional) {
		qty = CeilToStep(f.MinNotional.Div(price), step)
		// Div rounds to DivisionPrecision, one more step absorbs it
		if qty.Mul(price).LessThan(f.MinNotional) {
			qty = qty.Add(step)
		}
	}
	if !qty.IsPositive() {
		return decimal.Zero, newError(KindSizing, "size", errors.Wrapf(ErrInvalidSize, "qty %s", qty))
	}
	return qty, nil
}
