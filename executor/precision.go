package executor

import "github.com/shopspring/decimal"

// FloorToStep returns the largest multiple of step not greater than v.
// A zero or negative step leaves v unchanged.
func FloorToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	q, r := v.QuoRem(step, 0)
	if r.IsNegative() {
		q = q.Sub(decimal.NewFromInt(1))
	}
	return q.Mul(step)
}

// CeilToStep returns the smallest multiple of step not less than v.
func CeilToStep(v, step decimal.Decimal) decimal.Decimal {
	f := FloorToStep(v, step)
	if f.LessThan(v) {
		return f.Add(step)
	}
	return f
}
