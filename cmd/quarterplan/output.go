package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"quarterplan/internal/plan"
	"quarterplan/internal/quarter"
	"quarterplan/internal/session"
	"quarterplan/internal/targets"
)

const dateLayout = "2006-01-02"

func quarterStatus(info quarter.Info) string {
	var parts []string
	switch {
	case info.IsPast:
		parts = append(parts, "past")
	case info.IsCurrent:
		parts = append(parts, "current")
	case info.IsNext:
		parts = append(parts, "next")
	default:
		parts = append(parts, "open")
	}
	if info.IsLocked {
		parts = append(parts, "locked")
	}
	return strings.Join(parts, ",")
}

func printQuarters(out io.Writer, quarters []quarter.Info) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "QUARTER\tMONTHS\tSTART\tEND\tSTATUS")
	for _, info := range quarters {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			info.ID, info.Months, info.Start.Format(dateLayout), info.End.Format(dateLayout), quarterStatus(info))
	}
	_ = w.Flush()
}

func printBoard(out io.Writer, views []session.QuarterView, available []plan.WorkItem) {
	for i, view := range views {
		if i > 0 {
			_, _ = fmt.Fprintln(out)
		}
		flags := quarterStatus(view.Info)
		if view.Full {
			flags += ",full"
		}
		_, _ = fmt.Fprintf(out, "%s  %s  %d/%d  [%s]\n", view.Info.ID, view.Info.Months, len(view.Items), view.Capacity, flags)
		if len(view.Items) == 0 {
			_, _ = fmt.Fprintln(out, "  (empty)")
			continue
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, item := range view.Items {
			_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", item.ID, item.Title, item.Priority, assigneeLabel(item.AssigneeID, view.Load))
		}
		_ = w.Flush()
	}

	_, _ = fmt.Fprintf(out, "\nAvailable (%d)\n", len(available))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, item := range available {
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", item.ID, item.Title, item.Priority, item.Category)
	}
	_ = w.Flush()
}

func assigneeLabel(assignee string, load map[string]int) string {
	if assignee == "" {
		return "-"
	}
	return fmt.Sprintf("%s (%d)", assignee, load[assignee])
}

func printTargets(out io.Writer, t targets.Targets) {
	keys := t.Keys()
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No targets set")
		return
	}
	sort.Strings(keys)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tQ1\tQ2\tQ3\tQ4")
	for _, key := range keys {
		cells := make([]string, 0, len(quarter.All))
		for _, q := range quarter.All {
			if v, ok := t.Get(key, q); ok {
				cells = append(cells, strconv.FormatFloat(v, 'f', -1, 64))
			} else {
				cells = append(cells, "-")
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", key, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
}

func printExecution(out io.Writer, q quarter.ID, items []plan.EnrichedItem) {
	if len(items) == 0 {
		_, _ = fmt.Fprintf(out, "%s has no items\n", q)
		return
	}
	for i, enriched := range items {
		if i > 0 {
			_, _ = fmt.Fprintln(out)
		}
		exec := enriched.Execution
		_, _ = fmt.Fprintf(out, "%s  %s\n", enriched.Item.ID, enriched.Item.Title)
		writeField(out, "rationale", exec.Rationale)
		writeField(out, "outcome", exec.Outcome)
		if exec.StartDate != "" || exec.EndDate != "" {
			writeField(out, "window", exec.StartDate+" .. "+exec.EndDate)
		}
		for _, m := range exec.Milestones {
			done := " "
			if m.Done {
				done = "x"
			}
			_, _ = fmt.Fprintf(out, "  milestone [%s] %s %s\n", done, m.Title, m.DueDate)
		}
		for _, task := range exec.Tasks {
			_, _ = fmt.Fprintf(out, "  task %s %gh %s\n", task.Title, task.Effort, task.AssigneeID)
		}
		if exec.EffortTotal > 0 {
			_, _ = fmt.Fprintf(out, "  effort %gh\n", exec.EffortTotal)
		}
	}
}

func writeField(out io.Writer, name, value string) {
	if value == "" {
		return
	}
	_, _ = fmt.Fprintf(out, "  %s: %s\n", name, value)
}

func printSyncStatus(out io.Writer, status session.SyncStatus) {
	switch {
	case status.LastError != nil:
		_, _ = fmt.Fprintf(out, "write-back failed, changes kept locally: %v\n", status.LastError)
	case status.Pending:
		_, _ = fmt.Fprintln(out, "write-back pending")
	default:
		_, _ = fmt.Fprintf(out, "written back (%d this run)\n", status.Writes)
	}
}
