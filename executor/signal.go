package executor

import (
	"fmt"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xyths/qbracket/exchange"
	"strings"
)

type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return Long, nil
	case "short", "sell":
		return Short, nil
	}
	return "", errors.Errorf("unknown side %q", s)
}

// OpenSide is the order side that opens a position.
func (s Side) OpenSide() exchange.OrderSide {
	if s == Short {
		return exchange.Sell
	}
	return exchange.Buy
}

// CloseSide is the order side that closes a position.
func (s Side) CloseSide() exchange.OrderSide {
	if s == Short {
		return exchange.Buy
	}
	return exchange.Sell
}

// SideOf infers the side of a signed position amount.
func SideOf(amount decimal.Decimal) Side {
	if amount.IsNegative() {
		return Short
	}
	return Long
}

// Signal is one trade request from the ingestion side.
type Signal struct {
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Pattern    string          `json:"pattern"`
	Time       string          `json:"time"`
	Entry      decimal.Decimal `json:"entry"`
	TakeProfit decimal.Decimal `json:"tp"`
	StopLoss   decimal.Decimal `json:"sl"`
	Id         string          `json:"signalId,omitempty"`
}

// BuildId derives the signal identity from pattern, side, time and entry price.
func BuildId(pattern string, side Side, t string, entry decimal.Decimal) string {
	return fmt.Sprintf("%s|%s|%s|%s", pattern, side, strings.ToLower(strings.TrimSpace(t)), entry.StringFixed(10))
}

// Identity returns the explicit id if there is one, the derived one otherwise.
func (s Signal) Identity() string {
	if s.Id != "" {
		return s.Id
	}
	return BuildId(s.Pattern, s.Side, s.Time, s.Entry)
}

// NormalizeSymbol maps a chart symbol like "btcusdt.P" to the venue symbol "BTCUSDT".
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.TrimSuffix(s, ".P")
}

// Validate checks the signal before anything reaches the venue.
func (s Signal) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return newError(KindValidation, "validate", errors.Errorf(format, args...))
	}
	if s.Symbol == "" {
		return fail("empty symbol")
	}
	if s.Side != Long && s.Side != Short {
		return fail("bad side %q", s.Side)
	}
	if !s.Entry.IsPositive() || !s.TakeProfit.IsPositive() || !s.StopLoss.IsPositive() {
		return fail("entry %s, tp %s and sl %s must be positive", s.Entry, s.TakeProfit, s.StopLoss)
	}
	if s.Side == Long && !s.TakeProfit.GreaterThan(s.StopLoss) {
		return fail("long needs tp %s above sl %s", s.TakeProfit, s.StopLoss)
	}
	if s.Side == Short && !s.TakeProfit.LessThan(s.StopLoss) {
		return fail("short needs tp %s below sl %s", s.TakeProfit, s.StopLoss)
	}
	return nil
}
