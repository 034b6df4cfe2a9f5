package executor

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xyths/qbracket/exchange"
	"strings"
	"time"
)

type RiskMode string

const (
	RiskMargin   RiskMode = "margin"   // riskPct * leverage of the balance is the notional
	RiskNotional RiskMode = "notional" // riskPct of the balance is the notional
)

type EntryMode string

const (
	EntryMarket EntryMode = "market"
	EntryLimit  EntryMode = "limit"
	EntryChase  EntryMode = "chase"
)

type Fallback string

const (
	FallbackNone     Fallback = "none"
	FallbackMarket   Fallback = "market"
	FallbackLimitIOC Fallback = "limit_ioc"
)

type StopMode string

const (
	StopNative  StopMode = "native"
	StopVirtual StopMode = "virtual"
)

// Policy decides what a signal does when the symbol already has a position.
type Policy string

const (
	PolicyIgnore  Policy = "ignore"
	PolicyReplace Policy = "replace"
)

type ChaseConf struct {
	Interval        string  `json:"interval"`
	Steps           int     `json:"steps"`
	MaxWait         string  `json:"maxWait"`
	MaxDeviationBps float64 `json:"maxDeviationBps"`
	Fallback        string  `json:"fallback"`
	Atomic          bool    `json:"atomic"`
}

// Config is the strategy section of the config file.
type Config struct {
	Leverage    int     `json:"leverage"`
	RiskMode    string  `json:"riskMode"`
	RiskPct     float64 `json:"riskPct"`
	MarginAsset string  `json:"marginAsset"`

	EntryMode   string    `json:"entryMode"`
	TimeInForce string    `json:"timeInForce"`
	OffsetTicks int       `json:"offsetTicks"`
	OffsetBps   float64   `json:"offsetBps"`
	Chase       ChaseConf `json:"chase"`

	StopMode         string   `json:"stopMode"`
	VirtualInterval  string   `json:"virtualInterval"`
	InPositionPolicy string   `json:"inPositionPolicy"`
	AllowPatterns    []string `json:"allowPatterns"`

	ReconcileInterval string `json:"reconcileInterval"`
	SweepInterval     string `json:"sweepInterval"`
	KeepOrphans       bool   `json:"keepOrphans"`
	CancelRetries     int    `json:"cancelRetries"`
	CancelBackoff     string `json:"cancelBackoff"`
	SettleDelay       string `json:"settleDelay"`
	Heartbeat         string `json:"heartbeat"`
	DedupSize         int    `json:"dedupSize"`

	DefaultStepSize string `json:"defaultStepSize"`
	DefaultTickSize string `json:"defaultTickSize"`
}

// Options is the validated form of Config.
type Options struct {
	Leverage    int
	RiskMode    RiskMode
	RiskPct     decimal.Decimal
	MarginAsset string

	EntryMode   EntryMode
	TimeInForce exchange.TimeInForce
	OffsetTicks int
	OffsetBps   decimal.Decimal

	ChaseInterval   time.Duration
	ChaseSteps      int
	ChaseMaxWait    time.Duration
	MaxDeviationBps decimal.Decimal
	Fallback        Fallback
	Atomic          bool

	StopMode         StopMode
	VirtualInterval  string
	InPositionPolicy Policy
	AllowPatterns    []string

	ReconcileInterval time.Duration
	SweepInterval     time.Duration
	KeepOrphans       bool
	CancelRetries     int
	CancelBackoff     time.Duration
	SettleDelay       time.Duration
	Heartbeat         time.Duration
	DedupSize         int

	DefaultStepSize decimal.Decimal
	DefaultTickSize decimal.Decimal
}

const (
	minChaseInterval     = 50 * time.Millisecond
	minReconcileInterval = 500 * time.Millisecond
	minSweepInterval     = 3 * time.Second
	maxLeverage          = 125
)

// DefaultOptions returns the options of an empty Config.
func DefaultOptions() Options {
	o, _ := Config{}.Parse()
	return o
}

// Parse applies defaults and validates the config.
func (c Config) Parse() (o Options, err error) {
	o.Leverage = c.Leverage
	if o.Leverage == 0 {
		o.Leverage = 10
	}
	if o.Leverage < 1 || o.Leverage > maxLeverage {
		return o, errors.Errorf("leverage %d out of range 1..%d", o.Leverage, maxLeverage)
	}

	switch RiskMode(strings.ToLower(c.RiskMode)) {
	case "", RiskMargin:
		o.RiskMode = RiskMargin
	case RiskNotional:
		o.RiskMode = RiskNotional
	default:
		return o, errors.Errorf("unknown riskMode %q", c.RiskMode)
	}
	o.RiskPct = decimal.NewFromFloat(c.RiskPct)
	if c.RiskPct == 0 {
		o.RiskPct = decimal.NewFromInt(1)
	}
	if !o.RiskPct.IsPositive() || o.RiskPct.GreaterThan(decimal.NewFromInt(100)) {
		return o, errors.Errorf("riskPct %s out of range (0,100]", o.RiskPct)
	}
	o.MarginAsset = strings.ToUpper(c.MarginAsset)
	if o.MarginAsset == "" {
		o.MarginAsset = "USDT"
	}

	switch EntryMode(strings.ToLower(c.EntryMode)) {
	case "", EntryMarket:
		o.EntryMode = EntryMarket
	case EntryLimit:
		o.EntryMode = EntryLimit
	case EntryChase, "maker_chase":
		o.EntryMode = EntryChase
	default:
		return o, errors.Errorf("unknown entryMode %q", c.EntryMode)
	}
	switch exchange.TimeInForce(strings.ToUpper(c.TimeInForce)) {
	case "", exchange.GTX:
		o.TimeInForce = exchange.GTX
	case exchange.GTC:
		o.TimeInForce = exchange.GTC
	default:
		return o, errors.Errorf("timeInForce %q is not a resting time in force", c.TimeInForce)
	}
	if c.OffsetTicks < 0 || c.OffsetBps < 0 {
		return o, errors.New("negative entry offset")
	}
	o.OffsetTicks = c.OffsetTicks
	o.OffsetBps = decimal.NewFromFloat(c.OffsetBps)

	if o.ChaseInterval, err = duration(c.Chase.Interval, 400*time.Millisecond); err != nil {
		return
	}
	if o.ChaseInterval < minChaseInterval {
		o.ChaseInterval = minChaseInterval
	}
	o.ChaseSteps = c.Chase.Steps
	if o.ChaseSteps <= 0 {
		o.ChaseSteps = 10
	}
	if o.ChaseMaxWait, err = duration(c.Chase.MaxWait, 3*time.Second); err != nil {
		return
	}
	o.MaxDeviationBps = decimal.NewFromFloat(c.Chase.MaxDeviationBps)
	if c.Chase.MaxDeviationBps <= 0 {
		o.MaxDeviationBps = decimal.NewFromInt(10)
	}
	switch Fallback(strings.ToLower(c.Chase.Fallback)) {
	case "", FallbackMarket:
		o.Fallback = FallbackMarket
	case FallbackNone:
		o.Fallback = FallbackNone
	case FallbackLimitIOC:
		o.Fallback = FallbackLimitIOC
	default:
		return o, errors.Errorf("unknown chase fallback %q", c.Chase.Fallback)
	}
	o.Atomic = c.Chase.Atomic

	switch StopMode(strings.ToLower(c.StopMode)) {
	case "", StopNative:
		o.StopMode = StopNative
	case StopVirtual:
		o.StopMode = StopVirtual
	default:
		return o, errors.Errorf("unknown stopMode %q", c.StopMode)
	}
	o.VirtualInterval = c.VirtualInterval
	if o.VirtualInterval == "" {
		o.VirtualInterval = "1m"
	}
	switch Policy(strings.ToLower(c.InPositionPolicy)) {
	case "", PolicyIgnore:
		o.InPositionPolicy = PolicyIgnore
	case PolicyReplace:
		o.InPositionPolicy = PolicyReplace
	default:
		return o, errors.Errorf("unknown inPositionPolicy %q", c.InPositionPolicy)
	}
	o.AllowPatterns = c.AllowPatterns

	if o.ReconcileInterval, err = duration(c.ReconcileInterval, 2*time.Second); err != nil {
		return
	}
	if o.ReconcileInterval < minReconcileInterval {
		o.ReconcileInterval = minReconcileInterval
	}
	if o.SweepInterval, err = duration(c.SweepInterval, 10*time.Second); err != nil {
		return
	}
	if o.SweepInterval < minSweepInterval {
		o.SweepInterval = minSweepInterval
	}
	o.KeepOrphans = c.KeepOrphans
	o.CancelRetries = c.CancelRetries
	if o.CancelRetries <= 0 {
		o.CancelRetries = 3
	}
	if o.CancelBackoff, err = duration(c.CancelBackoff, 300*time.Millisecond); err != nil {
		return
	}
	if o.SettleDelay, err = duration(c.SettleDelay, 200*time.Millisecond); err != nil {
		return
	}
	if o.Heartbeat, err = duration(c.Heartbeat, time.Minute); err != nil {
		return
	}
	o.DedupSize = c.DedupSize
	if o.DedupSize <= 0 {
		o.DedupSize = 2000
	}

	if o.DefaultStepSize, err = decimalOr(c.DefaultStepSize, "0.001"); err != nil {
		return
	}
	if o.DefaultTickSize, err = decimalOr(c.DefaultTickSize, "0.0001"); err != nil {
		return
	}
	return o, nil
}

func duration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse duration %q", s)
	}
	if d < 0 {
		return 0, errors.Errorf("negative duration %q", s)
	}
	return d, nil
}

func decimalOr(s, def string) (decimal.Decimal, error) {
	if s == "" {
		s = def
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return d, errors.Wrapf(err, "parse decimal %q", s)
	}
	return d, nil
}
