package allocation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"quarterplan/internal/plan"
	"quarterplan/internal/quarter"
)

const (
	DefaultPerQuarter  = 5
	DefaultPerAssignee = 3
)

var (
	ErrCapacityExceeded           = errors.New("quarter capacity exceeded")
	ErrAssignmentCapacityExceeded = errors.New("assignee capacity exceeded")
	ErrItemNotFound               = errors.New("item not found in plan")
	ErrUnknownQuarter             = errors.New("unknown quarter")
)

// Config holds the capacity limits. Non-positive values fall back to the defaults.
type Config struct {
	PerQuarter  int `yaml:"per_quarter"`
	PerAssignee int `yaml:"per_assignee"`
}

// DefaultConfig returns the default capacity limits.
func DefaultConfig() Config {
	return Config{PerQuarter: DefaultPerQuarter, PerAssignee: DefaultPerAssignee}
}

func (c Config) normalized() Config {
	if c.PerQuarter <= 0 {
		c.PerQuarter = DefaultPerQuarter
	}
	if c.PerAssignee <= 0 {
		c.PerAssignee = DefaultPerAssignee
	}
	return c
}

// Engine applies capacity-checked mutations to a plan. Every operation returns a new
// plan and leaves its input untouched, so a failed call never partially mutates state.
type Engine struct {
	cfg Config
}

// New returns an engine enforcing cfg.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.normalized()}
}

// Config returns the effective limits.
func (e *Engine) Config() Config {
	return e.cfg
}

// PlaceInQuarter appends item to quarter q, removing it from any other quarter.
func (e *Engine) PlaceInQuarter(p plan.Plan, item plan.WorkItem, q quarter.ID) (plan.Plan, error) {
	if !q.Valid() {
		return p, fmt.Errorf("%w: %d", ErrUnknownQuarter, int(q))
	}
	if from, _, ok := p.Locate(item.ID); ok && from == q {
		return p, nil
	}
	if n := len(p[q]); n >= e.cfg.PerQuarter {
		return p, fmt.Errorf("%w: %s holds %d of %d items", ErrCapacityExceeded, q, n, e.cfg.PerQuarter)
	}

	out := p.Clone()
	removeItem(out, item.ID)
	out[q] = append(out[q], item.Clone())
	return out, nil
}

// MoveBetweenQuarters moves itemID from one quarter to another and inserts it at index.
// A negative or past-the-end index appends. Moving within one quarter is a reorder and
// is not capacity checked.
func (e *Engine) MoveBetweenQuarters(p plan.Plan, itemID string, from, to quarter.ID, index int) (plan.Plan, error) {
	if !from.Valid() || !to.Valid() {
		return p, fmt.Errorf("%w: %d -> %d", ErrUnknownQuarter, int(from), int(to))
	}
	src, pos, ok := p.Locate(itemID)
	if !ok || src != from {
		return p, fmt.Errorf("%w: %s in %s", ErrItemNotFound, itemID, from)
	}
	if from != to {
		if n := len(p[to]); n >= e.cfg.PerQuarter {
			return p, fmt.Errorf("%w: %s holds %d of %d items", ErrCapacityExceeded, to, n, e.cfg.PerQuarter)
		}
	}

	out := p.Clone()
	item := out[from][pos]
	out[from] = append(out[from][:pos:pos], out[from][pos+1:]...)
	out[to] = insertAt(out[to], index, item)
	return out, nil
}

// RemoveFromQuarter takes itemID out of whichever quarter holds it.
func (e *Engine) RemoveFromQuarter(p plan.Plan, itemID string) (plan.Plan, quarter.ID, error) {
	from, _, ok := p.Locate(itemID)
	if !ok {
		return p, 0, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	out := p.Clone()
	removeItem(out, itemID)
	return out, from, nil
}

// AssignPerson sets the assignee of itemID in quarter q. An empty assigneeID unassigns.
// Re-confirming the item's current assignee is always allowed, even at capacity.
func (e *Engine) AssignPerson(p plan.Plan, itemID string, q quarter.ID, assigneeID string) (plan.Plan, error) {
	if !q.Valid() {
		return p, fmt.Errorf("%w: %d", ErrUnknownQuarter, int(q))
	}
	src, pos, ok := p.Locate(itemID)
	if !ok || src != q {
		return p, fmt.Errorf("%w: %s in %s", ErrItemNotFound, itemID, q)
	}
	assigneeID = strings.TrimSpace(assigneeID)
	current := p[q][pos].AssigneeID

	if assigneeID != "" && assigneeID != current {
		if n := AssignmentLoad(p, q)[assigneeID]; n >= e.cfg.PerAssignee {
			return p, fmt.Errorf("%w: %s already has %d of %d items in %s",
				ErrAssignmentCapacityExceeded, assigneeID, n, e.cfg.PerAssignee, q)
		}
	}

	out := p.Clone()
	out[q][pos].AssigneeID = assigneeID
	return out, nil
}

// AssignmentLoad counts the items of quarter q per assignee.
func AssignmentLoad(p plan.Plan, q quarter.ID) map[string]int {
	load := make(map[string]int)
	for _, item := range p[q] {
		if item.AssigneeID == "" {
			continue
		}
		load[item.AssigneeID]++
	}
	return load
}

// Distribution is the outcome of a bulk placement.
type Distribution struct {
	Plan     plan.Plan
	Unplaced []plan.WorkItem
}

// DistributeByPriority spreads items over an empty plan. Items are ordered by priority
// tier (high, medium, low) with ties kept in input order. High items start at Q1, medium
// at Q2, low at Q3; a full quarter falls through to later quarters and then wraps back to
// earlier ones. Items that fit nowhere are reported in Unplaced.
func (e *Engine) DistributeByPriority(items []plan.WorkItem, capacityPerQuarter int) Distribution {
	return e.Distribute(items, capacityPerQuarter, nil)
}

// Distribute is DistributeByPriority with some quarters treated as already full.
func (e *Engine) Distribute(items []plan.WorkItem, capacityPerQuarter int, blocked map[quarter.ID]bool) Distribution {
	if capacityPerQuarter <= 0 {
		capacityPerQuarter = e.cfg.PerQuarter
	}

	ordered := make([]plan.WorkItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority.Tier() < ordered[j].Priority.Tier()
	})

	result := Distribution{Plan: plan.New()}
	for _, item := range ordered {
		target, ok := pickQuarter(result.Plan, item.Priority, capacityPerQuarter, blocked)
		if !ok {
			result.Unplaced = append(result.Unplaced, item.Clone())
			continue
		}
		result.Plan[target] = append(result.Plan[target], item.Clone())
	}
	return result
}

func pickQuarter(p plan.Plan, priority plan.Priority, capacity int, blocked map[quarter.ID]bool) (quarter.ID, bool) {
	start := priority.Tier()
	n := len(quarter.All)
	for step := 0; step < n; step++ {
		q := quarter.All[(start+step)%n]
		if blocked[q] {
			continue
		}
		if len(p[q]) < capacity {
			return q, true
		}
	}
	return 0, false
}

func removeItem(p plan.Plan, itemID string) {
	for q, items := range p {
		kept := items[:0:0]
		for _, item := range items {
			if item.ID != itemID {
				kept = append(kept, item)
			}
		}
		p[q] = kept
	}
}

func insertAt(items []plan.WorkItem, index int, item plan.WorkItem) []plan.WorkItem {
	if index < 0 || index >= len(items) {
		return append(items, item)
	}
	out := make([]plan.WorkItem, 0, len(items)+1)
	out = append(out, items[:index]...)
	out = append(out, item)
	return append(out, items[index:]...)
}
