package plan

import (
	"fmt"
	"strings"

	"quarterplan/internal/quarter"
	"quarterplan/internal/targets"
)

// Priority ranks a work item for bulk distribution.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Tier returns the distribution order of the priority: high 0, medium 1, low 2.
// Unknown priorities sort with low.
func (p Priority) Tier() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// ParsePriority normalizes a priority string.
func ParsePriority(value string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(value))) {
	case PriorityHigh:
		return PriorityHigh, nil
	case PriorityMedium, "":
		return PriorityMedium, nil
	case PriorityLow:
		return PriorityLow, nil
	default:
		return Priority(value), fmt.Errorf("invalid priority %q (expected high, medium, or low)", value)
	}
}

// Origin distinguishes operator-authored items from externally sourced ones.
type Origin string

const (
	OriginOperator Origin = "operator"
	OriginImported Origin = "imported"
)

// ParseOrigin normalizes an origin string.
func ParseOrigin(value string) (Origin, error) {
	switch Origin(strings.ToLower(strings.TrimSpace(value))) {
	case OriginOperator, "":
		return OriginOperator, nil
	case OriginImported:
		return OriginImported, nil
	default:
		return Origin(value), fmt.Errorf("invalid origin %q (expected operator or imported)", value)
	}
}

// WorkItem is an initiative selected for the plan year.
type WorkItem struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string   `json:"category,omitempty" yaml:"category,omitempty"`
	Priority    Priority `json:"priority" yaml:"priority"`
	Origin      Origin   `json:"origin" yaml:"origin"`
	AssigneeID  string   `json:"assignee_id,omitempty" yaml:"assignee,omitempty"`

	// Execution holds the last execution detail written back from the enriched copy.
	Execution *Execution `json:"execution,omitempty" yaml:"execution,omitempty"`
}

// Clone returns a deep copy of the item.
func (w WorkItem) Clone() WorkItem {
	if w.Execution != nil {
		exec := w.Execution.Clone()
		w.Execution = &exec
	}
	return w
}

// Milestone is a checkpoint within an item's execution window.
type Milestone struct {
	ID      string `json:"id" yaml:"id"`
	Title   string `json:"title" yaml:"title"`
	DueDate string `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	Done    bool   `json:"done,omitempty" yaml:"done,omitempty"`
}

// Task is a unit of execution work with an effort estimate in hours.
type Task struct {
	ID         string  `json:"id" yaml:"id"`
	Title      string  `json:"title" yaml:"title"`
	AssigneeID string  `json:"assignee_id,omitempty" yaml:"assignee,omitempty"`
	Effort     float64 `json:"effort,omitempty" yaml:"effort,omitempty"`
	Done       bool    `json:"done,omitempty" yaml:"done,omitempty"`
}

// Execution carries the execution-only fields of an enriched item.
type Execution struct {
	Rationale   string      `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Outcome     string      `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	StartDate   string      `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate     string      `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	Milestones  []Milestone `json:"milestones,omitempty" yaml:"milestones,omitempty"`
	Tasks       []Task      `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	EffortTotal float64     `json:"effort_total,omitempty" yaml:"effort_total,omitempty"`
}

// Clone returns a deep copy of the execution detail.
func (e Execution) Clone() Execution {
	if e.Milestones != nil {
		e.Milestones = append([]Milestone(nil), e.Milestones...)
	}
	if e.Tasks != nil {
		e.Tasks = append([]Task(nil), e.Tasks...)
	}
	return e
}

// IsZero reports whether no execution field is populated.
func (e Execution) IsZero() bool {
	return e.Rationale == "" && e.Outcome == "" && e.StartDate == "" && e.EndDate == "" &&
		len(e.Milestones) == 0 && len(e.Tasks) == 0 && e.EffortTotal == 0
}

// RecalculateEffort rolls task effort into EffortTotal when tasks carry estimates.
func (e *Execution) RecalculateEffort() {
	if len(e.Tasks) == 0 {
		return
	}
	var total float64
	for _, task := range e.Tasks {
		total += task.Effort
	}
	e.EffortTotal = total
}

// EnrichedItem is the execution-planning working copy of a WorkItem.
type EnrichedItem struct {
	Item      WorkItem
	Execution Execution
}

// Clone returns a deep copy of the enriched item.
func (e EnrichedItem) Clone() EnrichedItem {
	return EnrichedItem{Item: e.Item.Clone(), Execution: e.Execution.Clone()}
}

// Snapshot is the persisted state of a business plan.
type Snapshot struct {
	BusinessID string           `json:"business_id"`
	YearType   quarter.YearType `json:"year_type,omitempty"`
	PlanYear   int              `json:"plan_year,omitempty"`
	Revision   int              `json:"revision"`
	Items      []WorkItem       `json:"items"`
	Plan       Plan             `json:"plan"`
	Targets    targets.Targets  `json:"targets,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Items = make([]WorkItem, 0, len(s.Items))
	for _, item := range s.Items {
		out.Items = append(out.Items, item.Clone())
	}
	out.Plan = s.Plan.Clone()
	out.Targets = s.Targets.Clone()
	return out
}
