package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

const appName = "quarterplan"

var version = "dev"

func main() {
	flags := &Flags{}
	app := &App{flags: flags}

	root := &cli.Command{
		Name:      appName,
		Usage:     "Quarter-constrained initiative planning",
		UsageText: appName + " [global options] command [command options]",
		Description: `quarterplan spreads a year's initiatives over four quarters under capacity
limits, tracks who owns what, and keeps per-item execution detail in step with the plan.

Run 'quarterplan init' inside a directory to create a workspace.`,
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "workspace",
				Aliases:     []string{"w"},
				Usage:       "path to workspace root",
				Sources:     cli.EnvVars("QUARTERPLAN_WORKSPACE"),
				Value:       ".",
				Destination: &flags.Workspace,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error); overrides the config file",
				Sources:     cli.EnvVars("QUARTERPLAN_LOG_LEVEL"),
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to <workspace>/.quarterplan/quarterplan.log)",
				Sources:     cli.EnvVars("QUARTERPLAN_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "now",
				Usage:       "evaluate quarter locks at this date (YYYY-MM-DD or RFC 3339)",
				Sources:     cli.EnvVars("QUARTERPLAN_NOW"),
				Hidden:      true,
				Destination: &flags.Now,
			},
		},
		After: func(ctx context.Context, c *cli.Command) error {
			return app.Close(ctx)
		},
	}

	commands := []interface {
		Register(*cli.Command) *cli.Command
	}{
		NewInitCmd(app),
		NewQuartersCmd(app),
		NewBoardCmd(app),
		NewItemCmd(app),
		NewPlaceCmd(app),
		NewMoveCmd(app),
		NewRemoveCmd(app),
		NewAssignCmd(app),
		NewDistributeCmd(app),
		NewTargetCmd(app),
		NewExecCmd(app),
		NewImportCmd(app),
		NewExportCmd(app),
		NewHistoryCmd(app),
	}
	for _, cmd := range commands {
		root = cmd.Register(root)
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
