package main

import (
	"github.com/urfave/cli/v2"
	"github.com/xyths/qbracket/cmd/utils"
	"github.com/xyths/qbracket/trader"
	"io"
	"os"
	"time"
)

func newTrader(ctx *cli.Context, dry bool) (*trader.Trader, error) {
	cfg, err := trader.LoadConfig(ctx.String(utils.ConfigFlag.Name))
	if err != nil {
		return nil, err
	}
	t, err := trader.New(cfg, dry)
	if err != nil {
		return nil, err
	}
	if err := t.Init(ctx.Context); err != nil {
		return nil, err
	}
	return t, nil
}

func run(ctx *cli.Context) error {
	t, err := newTrader(ctx, ctx.Bool(utils.DryRunFlag.Name))
	if err != nil {
		return err
	}
	defer t.Close(ctx.Context)
	if err := t.Start(ctx.Context); err != nil {
		return err
	}
	defer t.Stop(ctx.Context)

	var r io.Reader = os.Stdin
	if name := ctx.String(utils.SignalsFlag.Name); name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if err := t.Feed(ctx.Context, r); err != nil {
		return err
	}
	t.Sugar.Info("signal feed drained, managing open brackets until interrupted")

	<-ctx.Done()

	return nil
}

func trade(ctx *cli.Context) error {
	tm, err := utils.SignalTime(ctx.String(utils.TimeFlag.Name), time.Now())
	if err != nil {
		return err
	}
	s, err := trader.NewSignal(
		ctx.String(utils.SymbolFlag.Name),
		ctx.String(utils.SideFlag.Name),
		ctx.String(utils.PatternFlag.Name),
		tm,
		ctx.String(utils.EntryFlag.Name),
		ctx.String(utils.TakeProfitFlag.Name),
		ctx.String(utils.StopLossFlag.Name),
	)
	if err != nil {
		return err
	}
	t, err := newTrader(ctx, ctx.Bool(utils.DryRunFlag.Name))
	if err != nil {
		return err
	}
	defer t.Close(ctx.Context)
	res, err := t.Trade(ctx.Context, s)
	if err != nil {
		return err
	}
	if res.Accepted {
		t.Sugar.Infof("trade %s accepted, filled %s of %s, entry %d, tp %d, sl %d", res.SignalId, res.Qty, res.Ordered, res.EntryOrderId, res.TakeProfitOrderId, res.StopLossOrderId)
	}
	return nil
}

func print(ctx *cli.Context) error {
	t, err := newTrader(ctx, false)
	if err != nil {
		return err
	}
	defer t.Close(ctx.Context)
	return t.Print(ctx.Context)
}

func sweep(ctx *cli.Context) error {
	t, err := newTrader(ctx, false)
	if err != nil {
		return err
	}
	defer t.Close(ctx.Context)
	return t.Sweep(ctx.Context)
}

func clear(ctx *cli.Context) error {
	t, err := newTrader(ctx, false)
	if err != nil {
		return err
	}
	defer t.Close(ctx.Context)
	return t.Clear(ctx.Context, ctx.Bool(utils.DryRunFlag.Name), ctx.Bool(utils.JournalFlag.Name))
}
