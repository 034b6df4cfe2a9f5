package main

import (
	"context"
	"fmt"
	"github.com/urfave/cli/v2"
	"github.com/xyths/qbracket/cmd/utils"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

var app *cli.App

func init() {
	app = &cli.App{
		Name:    filepath.Base(os.Args[0]),
		Action:  run,
		Usage:   "managed futures trade execution, entries bracketed by take profit and stop loss",
		Version: "0.1.0",
	}

	app.Commands = []*cli.Command{
		{
			Action: run,
			Name:   "run",
			Usage:  "Recover brackets, start the background workers and trade the signal feed",
			Flags: []cli.Flag{
				utils.SignalsFlag,
				utils.DryRunFlag,
			},
		},
		{
			Action: trade,
			Name:   "trade",
			Usage:  "Place one managed trade",
			Flags: []cli.Flag{
				utils.SymbolFlag,
				utils.SideFlag,
				utils.PatternFlag,
				utils.TimeFlag,
				utils.EntryFlag,
				utils.TakeProfitFlag,
				utils.StopLossFlag,
				utils.DryRunFlag,
			},
		},
		{
			Action: print,
			Name:   "print",
			Usage:  "Print positions, open orders, orphans and the latest journal records",
		},
		{
			Action: sweep,
			Name:   "sweep",
			Usage:  "Cancel the exit orders left on flat symbols",
		},
		{
			Action: clear,
			Name:   "clear",
			Usage:  "Cancel orphan exits and clear the state in database",
			Flags: []cli.Flag{
				utils.DryRunFlag,
				utils.JournalFlag,
			},
		},
	}
	app.Flags = []cli.Flag{
		utils.ConfigFlag,
		utils.SignalsFlag,
		utils.DryRunFlag,
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	if err := app.RunContext(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
