package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"quarterplan/internal/planfile"
)

func lastImportKey(businessID string) string {
	return "last_import:" + businessID
}

type ImportCmd struct {
	app *App
}

func NewImportCmd(app *App) *ImportCmd {
	return &ImportCmd{app: app}
}

func (cmd *ImportCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "import",
		Usage:     "Replace the plan with a YAML plan document",
		UsageText: "quarterplan import <file>",
		Description: `Validates the document against the workspace capacity limits and replaces the
selection pool, quarter placements and targets. Every problem is reported at once.`,
		Action: cmd.run,
	})
	return app
}

func (cmd *ImportCmd) run(ctx context.Context, c *cli.Command) error {
	path := c.Args().Get(0)
	if path == "" {
		return fmt.Errorf("plan file is required")
	}
	ws, cfg, err := cmd.app.Workspace()
	if err != nil {
		return err
	}
	resolved, err := ws.ResolvePath(path)
	if err != nil {
		return err
	}
	snap, err := planfile.LoadFile(resolved, planfile.Options{Capacity: cfg.Capacity})
	if err != nil {
		return err
	}
	if snap.BusinessID != "" && snap.BusinessID != cfg.BusinessID {
		return fmt.Errorf("%s plans business %q, workspace is %q", path, snap.BusinessID, cfg.BusinessID)
	}

	sess, err := cmd.app.Session(ctx)
	if err != nil {
		return err
	}
	if err := sess.Replace(ctx, snap, resolved); err != nil {
		return err
	}
	st, err := cmd.app.Store(ctx)
	if err != nil {
		return err
	}
	if err := st.SetKV(ctx, lastImportKey(cfg.BusinessID), resolved); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(c.Root().Writer, "Imported %d items (%d placed) from %s\n", len(snap.Items), snap.Plan.Count(), path)
	return nil
}

type ExportCmd struct {
	app *App

	out string
}

func NewExportCmd(app *App) *ExportCmd {
	return &ExportCmd{app: app}
}

func (cmd *ExportCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "export",
		Usage:     "Write the plan as a YAML plan document",
		UsageText: "quarterplan export [--out file|-]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output path, or - for stdout (defaults to exports/<business>-<year>.yml)",
				Destination: &cmd.out,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *ExportCmd) run(ctx context.Context, c *cli.Command) error {
	sess, err := cmd.app.Session(ctx)
	if err != nil {
		return err
	}
	ws, _, err := cmd.app.Workspace()
	if err != nil {
		return err
	}
	data, err := planfile.Render(sess.Snapshot())
	if err != nil {
		return err
	}

	if cmd.out == "-" {
		_, err := c.Root().Writer.Write(data)
		return err
	}
	path := filepath.Join(ws.ExportsDir, fmt.Sprintf("%s-%d.yml", sess.BusinessID(), sess.PlanYear()))
	if cmd.out != "" {
		if path, err = ws.ResolvePath(cmd.out); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure export dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "Exported plan to %s\n", path)
	return nil
}

type HistoryCmd struct {
	app *App

	limit int64
	diff  bool
}

func NewHistoryCmd(app *App) *HistoryCmd {
	return &HistoryCmd{app: app}
}

func (cmd *HistoryCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "history",
		Usage: "List saved plan revisions",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "number of revisions to show",
				Value:       10,
				Destination: &cmd.limit,
			},
			&cli.BoolFlag{
				Name:        "diff",
				Usage:       "include each revision's diff",
				Destination: &cmd.diff,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *HistoryCmd) run(ctx context.Context, c *cli.Command) error {
	sess, err := cmd.app.Session(ctx)
	if err != nil {
		return err
	}
	st, err := cmd.app.Store(ctx)
	if err != nil {
		return err
	}
	revs, err := st.History(ctx, sess.BusinessID(), int(cmd.limit))
	if err != nil {
		return err
	}

	lastImport, err := st.GetKV(ctx, lastImportKey(sess.BusinessID()))
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if lastImport != "" {
		_, _ = fmt.Fprintf(out, "Last import: %s\n\n", lastImport)
	}
	if len(revs) == 0 {
		_, _ = fmt.Fprintln(out, "No revisions saved")
		return nil
	}
	if cmd.diff {
		for _, rev := range revs {
			_, _ = fmt.Fprintf(out, "revision %d  %s\n%s\n", rev.Revision, rev.SavedAt.Local().Format(time.RFC3339), rev.Diff)
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REVISION\tSAVED\tCHANGES")
	for _, rev := range revs {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", rev.Revision, rev.SavedAt.Local().Format(time.RFC3339), diffSummary(rev.Diff))
	}
	_ = w.Flush()
	return nil
}

// diffSummary counts added and removed lines, skipping the file headers.
func diffSummary(diff string) string {
	var added, removed int
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return fmt.Sprintf("+%d -%d", added, removed)
}
