package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"quarterplan/internal/allocation"
	"quarterplan/internal/audit"
	"quarterplan/internal/plan"
	"quarterplan/internal/quarter"
	"quarterplan/internal/targets"
)

// AddItem appends an item to the selection pool. Missing ids are generated; priority
// and origin default to medium and operator.
func (s *Session) AddItem(ctx context.Context, item plan.WorkItem) (plan.WorkItem, error) {
	item.Title = strings.TrimSpace(item.Title)
	if item.Title == "" {
		return plan.WorkItem{}, fmt.Errorf("add item: title is required")
	}
	priority, err := plan.ParsePriority(string(item.Priority))
	if err != nil {
		return plan.WorkItem{}, fmt.Errorf("add item: %w", err)
	}
	origin, err := plan.ParseOrigin(string(item.Origin))
	if err != nil {
		return plan.WorkItem{}, fmt.Errorf("add item: %w", err)
	}
	item.Priority, item.Origin = priority, origin
	item.AssigneeID = ""
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.poolIndexLocked(item.ID); ok {
		return plan.WorkItem{}, fmt.Errorf("add item: duplicate id %q", item.ID)
	}
	s.snap.Items = append(s.snap.Items, item.Clone())
	return item, s.persistLocked(ctx)
}

// Place puts a pool item at the end of quarter q. An item already placed elsewhere is
// moved, carrying its assignee and execution detail.
func (s *Session) Place(ctx context.Context, itemID string, q quarter.ID) error {
	s.settle(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.poolIndexLocked(itemID)
	if !ok {
		return fmt.Errorf("place %s: %w", itemID, ErrUnknownItem)
	}
	if from, _, placed := s.snap.Plan.Locate(itemID); placed {
		if from == q {
			return nil
		}
		return s.moveLocked(ctx, itemID, from, q, -1)
	}
	if err := s.checkUnlockedLocked(q); err != nil {
		return fmt.Errorf("place %s: %w", itemID, err)
	}

	next, err := s.engine.PlaceInQuarter(s.snap.Plan, s.snap.Items[idx], q)
	if err != nil {
		s.log.Debug().Err(err).Str("item_id", itemID).Str("quarter", q.String()).Msg("placement rejected")
		return fmt.Errorf("place %s: %w", itemID, err)
	}
	s.snap.Plan = next
	s.observeLocked()
	s.record(audit.EventItemPlaced, map[string]any{"item_id": itemID, "quarter": q.String()})
	return s.persistLocked(ctx)
}

// Move relocates a placed item to quarter to at index. A negative index appends. Moving
// within one quarter reorders it and is allowed even when that quarter is locked.
func (s *Session) Move(ctx context.Context, itemID string, to quarter.ID, index int) error {
	s.settle(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	from, _, ok := s.snap.Plan.Locate(itemID)
	if !ok {
		if _, pooled := s.poolIndexLocked(itemID); !pooled {
			return fmt.Errorf("move %s: %w", itemID, ErrUnknownItem)
		}
		return fmt.Errorf("move %s: %w", itemID, allocation.ErrItemNotFound)
	}
	return s.moveLocked(ctx, itemID, from, to, index)
}

func (s *Session) moveLocked(ctx context.Context, itemID string, from, to quarter.ID, index int) error {
	if from != to {
		if err := s.checkUnlockedLocked(from); err != nil {
			return fmt.Errorf("move %s out of %s: %w", itemID, from, err)
		}
		if err := s.checkUnlockedLocked(to); err != nil {
			return fmt.Errorf("move %s into %s: %w", itemID, to, err)
		}
	}
	next, err := s.engine.MoveBetweenQuarters(s.snap.Plan, itemID, from, to, index)
	if err != nil {
		s.log.Debug().Err(err).Str("item_id", itemID).Str("from", from.String()).Str("to", to.String()).Msg("move rejected")
		return fmt.Errorf("move %s: %w", itemID, err)
	}
	s.snap.Plan = next
	s.observeLocked()
	s.record(audit.EventItemMoved, map[string]any{"item_id": itemID, "from": from.String(), "to": to.String(), "index": index})
	return s.persistLocked(ctx)
}

// Remove returns a placed item to the pool.
func (s *Session) Remove(ctx context.Context, itemID string) error {
	s.settle(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	from, _, ok := s.snap.Plan.Locate(itemID)
	if !ok {
		return fmt.Errorf("remove %s: %w", itemID, allocation.ErrItemNotFound)
	}
	if err := s.checkUnlockedLocked(from); err != nil {
		return fmt.Errorf("remove %s from %s: %w", itemID, from, err)
	}
	next, _, err := s.engine.RemoveFromQuarter(s.snap.Plan, itemID)
	if err != nil {
		return fmt.Errorf("remove %s: %w", itemID, err)
	}
	s.snap.Plan = next
	s.observeLocked()
	s.record(audit.EventItemRemoved, map[string]any{"item_id": itemID, "quarter": from.String()})
	return s.persistLocked(ctx)
}

// Assign sets the assignee of a placed item. An empty assignee unassigns.
func (s *Session) Assign(ctx context.Context, itemID, assigneeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, _, ok := s.snap.Plan.Locate(itemID)
	if !ok {
		return fmt.Errorf("assign %s: %w", itemID, allocation.ErrItemNotFound)
	}
	next, err := s.engine.AssignPerson(s.snap.Plan, itemID, q, assigneeID)
	if err != nil {
		s.log.Debug().Err(err).Str("item_id", itemID).Str("assignee", assigneeID).Msg("assignment rejected")
		return fmt.Errorf("assign %s: %w", itemID, err)
	}
	s.snap.Plan = next
	// The id set is unchanged, so the enriched copy needs an explicit refresh.
	if sy, open := s.syncers[q]; open {
		sy.Derive(s.snap.Plan[q])
	}
	s.record(audit.EventItemAssigned, map[string]any{"item_id": itemID, "quarter": q.String(), "assignee": assigneeID})
	return s.persistLocked(ctx)
}

// DistributeResult reports a bulk placement.
type DistributeResult struct {
	Plan     plan.Plan
	Unplaced []plan.WorkItem
	// Unassigned lists items whose assignee was cleared because the new quarter would
	// exceed the per-assignee limit.
	Unassigned []string
}

// Distribute spreads every item outside the locked quarters by priority. Locked quarters
// keep their contents and receive nothing. Items that fit nowhere stay in the pool.
func (s *Session) Distribute(ctx context.Context) (DistributeResult, error) {
	s.settle(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	blocked := make(map[quarter.ID]bool)
	for _, info := range s.quartersLocked() {
		if info.IsLocked {
			blocked[info.ID] = true
		}
	}

	placed := make(map[string]plan.WorkItem)
	for _, q := range quarter.All {
		for _, item := range s.snap.Plan[q] {
			placed[item.ID] = item
		}
	}
	var items []plan.WorkItem
	for _, item := range s.snap.Items {
		current, ok := placed[item.ID]
		if !ok {
			items = append(items, item)
			continue
		}
		if q, _, _ := s.snap.Plan.Locate(item.ID); blocked[q] {
			continue
		}
		items = append(items, current)
	}

	dist := s.engine.Distribute(items, s.engine.Config().PerQuarter, blocked)
	next := dist.Plan
	kept := s.snap.Plan.Clone()
	for q := range blocked {
		next[q] = kept[q]
	}

	var unassigned []string
	perAssignee := s.engine.Config().PerAssignee
	for _, q := range quarter.All {
		if blocked[q] {
			continue
		}
		load := make(map[string]int)
		for i := range next[q] {
			who := next[q][i].AssigneeID
			if who == "" {
				continue
			}
			if load[who] >= perAssignee {
				next[q][i].AssigneeID = ""
				unassigned = append(unassigned, next[q][i].ID)
				continue
			}
			load[who]++
		}
	}

	s.snap.Plan = next
	for q, sy := range s.syncers {
		sy.Derive(s.snap.Plan[q])
	}

	unplacedIDs := make([]string, 0, len(dist.Unplaced))
	for _, item := range dist.Unplaced {
		unplacedIDs = append(unplacedIDs, item.ID)
	}
	if len(dist.Unplaced) > 0 {
		s.log.Info().Strs("unplaced", unplacedIDs).Msg("distribution left items in the pool")
	}
	s.record(audit.EventPlanDistributed, map[string]any{
		"placed":     next.Count(),
		"unplaced":   unplacedIDs,
		"unassigned": unassigned,
	})

	result := DistributeResult{Plan: next.Clone(), Unplaced: dist.Unplaced, Unassigned: unassigned}
	return result, s.persistLocked(ctx)
}

// SetTarget writes a quarterly target and derives its linked field when the quarter's
// revenue is known. It returns every field written.
func (s *Session) SetTarget(ctx context.Context, key string, q quarter.ID, value float64) ([]targets.Change, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("set target: key is required")
	}
	if !q.Valid() {
		return nil, fmt.Errorf("set target %s: %w: %d", key, allocation.ErrUnknownQuarter, int(q))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, changes := targets.Set(s.snap.Targets, s.links, key, q, value)
	s.snap.Targets = next
	s.record(audit.EventTargetSet, map[string]any{"key": key, "quarter": q.String(), "value": value, "changes": changes})
	return changes, s.persistLocked(ctx)
}

// Replace swaps in an imported snapshot, keeping the session's business, plan year and
// revision.
func (s *Session) Replace(ctx context.Context, snap plan.Snapshot, source string) error {
	s.settle(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := snap.Clone()
	next.BusinessID = s.snap.BusinessID
	next.Revision = s.snap.Revision
	next.YearType, next.PlanYear = s.snap.YearType, s.snap.PlanYear
	next.Plan = next.Plan.Clone()
	if next.Targets == nil {
		next.Targets = make(targets.Targets)
	}
	s.snap = next
	// Open enriched copies would keep pre-import execution fields for ids the document
	// reuses; drop them so the next view seeds from the imported items.
	for q, sy := range s.syncers {
		sy.Close()
		delete(s.syncers, q)
	}
	s.record(audit.EventPlanImported, map[string]any{"source": source, "items": len(next.Items), "placed": next.Plan.Count()})
	return s.persistLocked(ctx)
}

func (s *Session) poolIndexLocked(itemID string) (int, bool) {
	for i, item := range s.snap.Items {
		if item.ID == itemID {
			return i, true
		}
	}
	return -1, false
}

func (s *Session) checkUnlockedLocked(q quarter.ID) error {
	if !q.Valid() {
		return fmt.Errorf("%w: %d", allocation.ErrUnknownQuarter, int(q))
	}
	info, ok := quarter.Find(s.quartersLocked(), q)
	if ok && info.IsLocked {
		return fmt.Errorf("%w: %s ended or is in progress", ErrInvalidQuarterTransition, q)
	}
	return nil
}
