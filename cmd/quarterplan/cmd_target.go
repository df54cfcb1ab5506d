package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"quarterplan/internal/quarter"
)

type TargetCmd struct {
	app *App
}

func NewTargetCmd(app *App) *TargetCmd {
	return &TargetCmd{app: app}
}

func (cmd *TargetCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "target",
		Usage: "Manage quarterly targets",
		Commands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Set a target value for a quarter",
				UsageText: "quarterplan target set <key> <Q1-Q4> <value>",
				Description: `Percentage metrics with a linked absolute metric (gross_margin and gross_profit,
net_margin and net_profit) update their partner from the quarter's revenue when it is set.`,
				Action: cmd.runSet,
			},
			{
				Name:   "show",
				Usage:  "Show all quarterly targets",
				Action: cmd.runShow,
			},
		},
	})
	return app
}

func (cmd *TargetCmd) runSet(ctx context.Context, c *cli.Command) error {
	key := c.Args().Get(0)
	if key == "" {
		return fmt.Errorf("target key is required")
	}
	q, err := quarter.ParseID(c.Args().Get(1))
	if err != nil {
		return err
	}
	value, err := strconv.ParseFloat(c.Args().Get(2), 64)
	if err != nil {
		return fmt.Errorf("invalid target value %q: %w", c.Args().Get(2), err)
	}

	sess, err := cmd.app.Session(ctx)
	if err != nil {
		return err
	}
	changes, err := sess.SetTarget(ctx, key, q, value)
	if err != nil {
		return err
	}

	out := c.Root().Writer
	for _, change := range changes {
		suffix := ""
		if change.Derived {
			suffix = " (derived)"
		}
		_, _ = fmt.Fprintf(out, "%s %s = %s%s\n", change.Key, change.Quarter, strconv.FormatFloat(change.Value, 'f', -1, 64), suffix)
	}
	return nil
}

func (cmd *TargetCmd) runShow(ctx context.Context, c *cli.Command) error {
	sess, err := cmd.app.Session(ctx)
	if err != nil {
		return err
	}
	printTargets(c.Root().Writer, sess.Targets())
	return nil
}
