package utils

import "github.com/urfave/cli/v2"

var (
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "config.json",
		Usage:   "load configuration from `file`",
	}
	DryRunFlag = &cli.BoolFlag{
		Name:  "dry-run",
		Value: false,
		Usage: "trade on the in-memory venue, or only list what clear would cancel",
	}
	JournalFlag = &cli.BoolFlag{
		Name:  "journal",
		Value: false,
		Usage: "also drop the execution journal",
	}
	SignalsFlag = &cli.StringFlag{
		Name:    "signals",
		Aliases: []string{"s"},
		Value:   "-",
		Usage:   "read newline delimited json signals from `file`, - for stdin",
	}

	SymbolFlag = &cli.StringFlag{
		Name:     "symbol",
		Required: true,
		Usage:    "instrument, like BTCUSDT or BTCUSDT.P",
	}
	SideFlag = &cli.StringFlag{
		Name:     "side",
		Required: true,
		Usage:    "long (buy) or short (sell)",
	}
	PatternFlag = &cli.StringFlag{
		Name:  "pattern",
		Value: "manual",
		Usage: "pattern name of the signal",
	}
	TimeFlag = &cli.StringFlag{
		Name:  "time",
		Usage: "signal `time` in Beijing time (2006-01-02 15:04:05), now by default",
	}
	EntryFlag = &cli.StringFlag{
		Name:     "entry",
		Required: true,
		Usage:    "reference entry `price`",
	}
	TakeProfitFlag = &cli.StringFlag{
		Name:     "tp",
		Required: true,
		Usage:    "take profit `price`",
	}
	StopLossFlag = &cli.StringFlag{
		Name:     "sl",
		Required: true,
		Usage:    "stop loss `price`",
	}
)
