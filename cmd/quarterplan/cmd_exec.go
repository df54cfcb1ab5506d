package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"quarterplan/internal/plan"
	"quarterplan/internal/quarter"
)

type ExecCmd struct {
	app *App

	// edit flags
	rationale  string
	outcome    string
	start      string
	end        string
	milestones []string
	tasks      []string
	clear      bool
}

func NewExecCmd(app *App) *ExecCmd {
	return &ExecCmd{app: app}
}

func (cmd *ExecCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "exec",
		Usage: "Plan execution detail for a quarter's items",
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show the execution detail of a quarter",
				UsageText: "quarterplan exec show <Q1-Q4>",
				Action:    cmd.runShow,
			},
			{
				Name:      "edit",
				Usage:     "Edit the execution detail of one item",
				UsageText: "quarterplan exec edit <Q1-Q4> <item-id> [options]",
				Description: `Edits are written back to the plan when the command finishes.

Examples:
  quarterplan exec edit Q3 crm --rationale "Replace spreadsheets" --start 2027-01-04
  quarterplan exec edit Q3 crm --task "Vendor shortlist:6:pat" --task "Migration:12"
  quarterplan exec edit Q3 crm --milestone "Pilot@2027-02-15"`,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "rationale",
						Usage:       "why the item is in this quarter",
						Destination: &cmd.rationale,
					},
					&cli.StringFlag{
						Name:        "outcome",
						Usage:       "expected outcome",
						Destination: &cmd.outcome,
					},
					&cli.StringFlag{
						Name:        "start",
						Usage:       "start date (YYYY-MM-DD)",
						Destination: &cmd.start,
					},
					&cli.StringFlag{
						Name:        "end",
						Usage:       "end date (YYYY-MM-DD)",
						Destination: &cmd.end,
					},
					&cli.StringSliceFlag{
						Name:        "milestone",
						Aliases:     []string{"m"},
						Usage:       "append a milestone as title[@YYYY-MM-DD] (repeatable)",
						Destination: &cmd.milestones,
					},
					&cli.StringSliceFlag{
						Name:        "task",
						Usage:       "append a task as title[:hours[:assignee]] (repeatable)",
						Destination: &cmd.tasks,
					},
					&cli.BoolFlag{
						Name:        "clear",
						Usage:       "drop existing milestones and tasks before appending",
						Destination: &cmd.clear,
					},
				},
				Action: cmd.runEdit,
			},
		},
	})
	return app
}

func (cmd *ExecCmd) runShow(ctx context.Context, c *cli.Command) error {
	q, err := quarter.ParseID(c.Args().Get(0))
	if err != nil {
		return err
	}
	sess, err := cmd.app.Session(ctx)
	if err != nil {
		return err
	}
	items, err := sess.Execution(q)
	if err != nil {
		return err
	}
	printExecution(c.Root().Writer, q, items)
	return nil
}

func (cmd *ExecCmd) runEdit(ctx context.Context, c *cli.Command) error {
	q, err := quarter.ParseID(c.Args().Get(0))
	if err != nil {
		return err
	}
	id := c.Args().Get(1)
	if id == "" {
		return fmt.Errorf("item id is required")
	}
	for _, date := range []string{cmd.start, cmd.end} {
		if date == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, date); err != nil {
			return fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", date)
		}
	}
	milestones, err := parseMilestones(cmd.milestones)
	if err != nil {
		return err
	}
	tasks, err := parseTasks(cmd.tasks)
	if err != nil {
		return err
	}

	sess, err := cmd.app.Session(ctx)
	if err != nil {
		return err
	}
	err = sess.EditExecution(q, id, func(e *plan.Execution) {
		if c.IsSet("rationale") {
			e.Rationale = cmd.rationale
		}
		if c.IsSet("outcome") {
			e.Outcome = cmd.outcome
		}
		if c.IsSet("start") {
			e.StartDate = cmd.start
		}
		if c.IsSet("end") {
			e.EndDate = cmd.end
		}
		if cmd.clear {
			e.Milestones, e.Tasks = nil, nil
		}
		e.Milestones = append(e.Milestones, milestones...)
		e.Tasks = append(e.Tasks, tasks...)
	})
	if err != nil {
		return err
	}
	// Write back now so the summary reflects stored state.
	flushErr := sess.Flush(ctx)

	items, err := sess.Execution(q)
	if err != nil {
		return err
	}
	out := c.Root().Writer
	for _, enriched := range items {
		if enriched.Item.ID == id {
			printExecution(out, q, []plan.EnrichedItem{enriched})
		}
	}
	if status, ok := sess.SyncStatus(q); ok {
		printSyncStatus(out, status)
	}
	return flushErr
}

func parseMilestones(values []string) ([]plan.Milestone, error) {
	out := make([]plan.Milestone, 0, len(values))
	for _, value := range values {
		title, due, _ := strings.Cut(value, "@")
		title = strings.TrimSpace(title)
		if title == "" {
			return nil, fmt.Errorf("milestone %q has no title", value)
		}
		due = strings.TrimSpace(due)
		if due != "" {
			if _, err := time.Parse(dateLayout, due); err != nil {
				return nil, fmt.Errorf("milestone %q: invalid date %q", value, due)
			}
		}
		out = append(out, plan.Milestone{ID: uuid.NewString(), Title: title, DueDate: due})
	}
	return out, nil
}

func parseTasks(values []string) ([]plan.Task, error) {
	out := make([]plan.Task, 0, len(values))
	for _, value := range values {
		parts := strings.SplitN(value, ":", 3)
		task := plan.Task{ID: uuid.NewString(), Title: strings.TrimSpace(parts[0])}
		if task.Title == "" {
			return nil, fmt.Errorf("task %q has no title", value)
		}
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			hours, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if err != nil || hours < 0 {
				return nil, fmt.Errorf("task %q: invalid effort %q", value, parts[1])
			}
			task.Effort = hours
		}
		if len(parts) > 2 {
			task.AssigneeID = strings.TrimSpace(parts[2])
		}
		out = append(out, task)
	}
	return out, nil
}
