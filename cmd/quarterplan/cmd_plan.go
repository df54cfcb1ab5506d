package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"quarterplan/internal/audit"
	"quarterplan/internal/config"
	"quarterplan/internal/plan"
	"quarterplan/internal/quarter"
	"quarterplan/internal/workspace"
)

type InitCmd struct {
	app *App

	business string
	yearType string
}

func NewInitCmd(app *App) *InitCmd {
	return &InitCmd{app: app}
}

func (cmd *InitCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "init",
		Usage:     "Create a planning workspace",
		UsageText: "quarterplan init [--business id] [--year-type fiscal|calendar]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "business",
				Usage:       "business id (defaults to the workspace directory name)",
				Destination: &cmd.business,
			},
			&cli.StringFlag{
				Name:        "year-type",
				Usage:       "fiscal (ends June 30) or calendar",
				Value:       string(quarter.Calendar),
				Destination: &cmd.yearType,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *InitCmd) run(ctx context.Context, c *cli.Command) error {
	yt, err := quarter.ParseYearType(cmd.yearType)
	if err != nil {
		return err
	}
	root, err := workspace.ResolveRoot(cmd.app.flags.Workspace)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	ws, err := workspace.Resolve(root)
	if err != nil {
		return err
	}
	if err := ws.EnsureDirs(); err != nil {
		return err
	}

	business := cmd.business
	if business == "" {
		business = filepath.Base(ws.Root)
	}
	wrote, err := config.WriteDefault(ws.ConfigPath, business, yt)
	if err != nil {
		return err
	}

	if wrote {
		payload := map[string]any{"business_id": business, "year_type": yt.String(), "root": ws.Root}
		if err := audit.NewLogger(ws.AuditDBPath).LogEvent(actorName(), audit.EventWorkspaceInitialized, payload); err != nil {
			return err
		}
	}

	out := c.Root().Writer
	if wrote {
		_, _ = fmt.Fprintf(out, "Initialized workspace for %s at %s\n", business, ws.Root)
	} else {
		_, _ = fmt.Fprintf(out, "Workspace already initialized at %s\n", ws.Root)
	}
	return nil
}

type QuartersCmd struct {
	app *App
}

func NewQuartersCmd(app *App) *QuartersCmd {
	return &QuartersCmd{app: app}
}

func (cmd *QuartersCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "quarters",
		Usage: "Show the plan year's quarters and their lock state",
		Action: func(ctx context.Context, c *cli.Command) error {
			sess, err := cmd.app.Session(ctx)
			if err != nil {
				return err
			}
			_, cfg, _ := cmd.app.Workspace()
			clock, _ := cmd.app.Clock()

			out := c.Root().Writer
			_, _ = fmt.Fprintf(out, "%s plan year %d (%s)\n", sess.BusinessID(), sess.PlanYear(), cfg.Year())
			printQuarters(out, sess.Quarters())

			horizon, year := quarter.PlanningHorizon(cfg.Year(), clock.Now())
			_, _ = fmt.Fprintf(out, "\nNext open quarter: %s %d (%s)\n", horizon.ID, year, horizon.Months)
			return nil
		},
	})
	return app
}

type BoardCmd struct {
	app *App
}

func NewBoardCmd(app *App) *BoardCmd {
	return &BoardCmd{app: app}
}

func (cmd *BoardCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "board",
		Usage: "Show every quarter's items, capacity and the unplaced pool",
		Action: func(ctx context.Context, c *cli.Command) error {
			sess, err := cmd.app.Session(ctx)
			if err != nil {
				return err
			}
			printBoard(c.Root().Writer, sess.Board(), sess.Available())
			return nil
		},
	})
	return app
}

type ItemCmd struct {
	app *App

	id          string
	title       string
	description string
	category    string
	priority    string
}

func NewItemCmd(app *App) *ItemCmd {
	return &ItemCmd{app: app}
}

func (cmd *ItemCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "add",
		Usage:     "Add an item to the selection pool",
		UsageText: "quarterplan add --title <title> [--priority high|medium|low] [--category c] [--id id]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "title",
				Aliases:     []string{"t"},
				Usage:       "item title",
				Required:    true,
				Destination: &cmd.title,
			},
			&cli.StringFlag{
				Name:        "priority",
				Aliases:     []string{"p"},
				Usage:       "high, medium or low",
				Value:       string(plan.PriorityMedium),
				Destination: &cmd.priority,
			},
			&cli.StringFlag{
				Name:        "category",
				Usage:       "free-form category",
				Destination: &cmd.category,
			},
			&cli.StringFlag{
				Name:        "description",
				Usage:       "longer description",
				Destination: &cmd.description,
			},
			&cli.StringFlag{
				Name:        "id",
				Usage:       "item id (generated when empty)",
				Destination: &cmd.id,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *ItemCmd) run(ctx context.Context, c *cli.Command) error {
	sess, err := cmd.app.Session(ctx)
	if err != nil {
		return err
	}
	item, err := sess.AddItem(ctx, plan.WorkItem{
		ID:          cmd.id,
		Title:       cmd.title,
		Description: cmd.description,
		Category:    cmd.category,
		Priority:    plan.Priority(cmd.priority),
		Origin:      plan.OriginOperator,
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.Root().Writer, item.ID)
	return nil
}

type PlaceCmd struct {
	app *App
}

func NewPlaceCmd(app *App) *PlaceCmd {
	return &PlaceCmd{app: app}
}

func (cmd *PlaceCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "place",
		Usage:     "Place a pool item at the end of a quarter",
		UsageText: "quarterplan place <item-id> <Q1-Q4>",
		Action: func(ctx context.Context, c *cli.Command) error {
			id, q, err := itemAndQuarter(c)
			if err != nil {
				return err
			}
			sess, err := cmd.app.Session(ctx)
			if err != nil {
				return err
			}
			if err := sess.Place(ctx, id, q); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.Root().Writer, "Placed %s in %s\n", id, q)
			return nil
		},
	})
	return app
}

type MoveCmd struct {
	app *App

	index int64
}

func NewMoveCmd(app *App) *MoveCmd {
	return &MoveCmd{app: app}
}

func (cmd *MoveCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "move",
		Usage:     "Move a placed item to another quarter or position",
		UsageText: "quarterplan move <item-id> <Q1-Q4> [--index n]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "index",
				Aliases:     []string{"i"},
				Usage:       "destination position; negative appends",
				Value:       -1,
				Destination: &cmd.index,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			id, q, err := itemAndQuarter(c)
			if err != nil {
				return err
			}
			sess, err := cmd.app.Session(ctx)
			if err != nil {
				return err
			}
			if err := sess.Move(ctx, id, q, int(cmd.index)); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.Root().Writer, "Moved %s to %s\n", id, q)
			return nil
		},
	})
	return app
}

type RemoveCmd struct {
	app *App
}

func NewRemoveCmd(app *App) *RemoveCmd {
	return &RemoveCmd{app: app}
}

func (cmd *RemoveCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "remove",
		Aliases:   []string{"rm"},
		Usage:     "Return a placed item to the pool",
		UsageText: "quarterplan remove <item-id>",
		Action: func(ctx context.Context, c *cli.Command) error {
			id := c.Args().Get(0)
			if id == "" {
				return fmt.Errorf("item id is required")
			}
			sess, err := cmd.app.Session(ctx)
			if err != nil {
				return err
			}
			if err := sess.Remove(ctx, id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.Root().Writer, "Removed %s\n", id)
			return nil
		},
	})
	return app
}

type AssignCmd struct {
	app *App
}

func NewAssignCmd(app *App) *AssignCmd {
	return &AssignCmd{app: app}
}

func (cmd *AssignCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "assign",
		Usage:     "Set or clear the assignee of a placed item",
		UsageText: "quarterplan assign <item-id> [assignee]",
		Description: `Assigns a placed item to someone, subject to the per-assignee limit of its quarter.
Omit the assignee to clear it.`,
		Action: func(ctx context.Context, c *cli.Command) error {
			id := c.Args().Get(0)
			if id == "" {
				return fmt.Errorf("item id is required")
			}
			assignee := c.Args().Get(1)
			sess, err := cmd.app.Session(ctx)
			if err != nil {
				return err
			}
			if err := sess.Assign(ctx, id, assignee); err != nil {
				return err
			}
			out := c.Root().Writer
			if assignee == "" {
				_, _ = fmt.Fprintf(out, "Unassigned %s\n", id)
			} else {
				_, _ = fmt.Fprintf(out, "Assigned %s to %s\n", id, assignee)
			}
			return nil
		},
	})
	return app
}

type DistributeCmd struct {
	app *App
}

func NewDistributeCmd(app *App) *DistributeCmd {
	return &DistributeCmd{app: app}
}

func (cmd *DistributeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "distribute",
		Usage: "Spread the pool over the open quarters by priority",
		Description: `High priority items start in Q1, medium in Q2 and low in Q3, overflowing into later
quarters and wrapping to earlier ones. Locked quarters keep their items and receive none.`,
		Action: func(ctx context.Context, c *cli.Command) error {
			sess, err := cmd.app.Session(ctx)
			if err != nil {
				return err
			}
			result, err := sess.Distribute(ctx)
			if err != nil {
				return err
			}

			out := c.Root().Writer
			_, _ = fmt.Fprintf(out, "Placed %d items\n", result.Plan.Count())
			for _, item := range result.Unplaced {
				_, _ = fmt.Fprintf(out, "  unplaced %s (%s)\n", item.ID, item.Priority)
			}
			for _, id := range result.Unassigned {
				_, _ = fmt.Fprintf(out, "  unassigned %s (assignee over limit)\n", id)
			}
			return nil
		},
	})
	return app
}

func itemAndQuarter(c *cli.Command) (string, quarter.ID, error) {
	id := c.Args().Get(0)
	if id == "" {
		return "", 0, fmt.Errorf("item id is required")
	}
	q, err := quarter.ParseID(c.Args().Get(1))
	if err != nil {
		return "", 0, err
	}
	return id, q, nil
}
