package session

import (
	"context"
	"errors"
	"fmt"

	"quarterplan/internal/allocation"
	"quarterplan/internal/audit"
	"quarterplan/internal/plan"
	"quarterplan/internal/quarter"
	"quarterplan/internal/reconcile"
)

// Execution returns the enriched copy of quarter q, synthesizing it on first view.
func (s *Session) Execution(q quarter.ID) ([]plan.EnrichedItem, error) {
	s.mu.Lock()
	sy, err := s.syncerLocked(q)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return sy.Items(), nil
}

// EditExecution applies a local edit to one item of quarter q's enriched copy. The
// write-back to the canonical plan happens after the debounce delay, or on Flush.
func (s *Session) EditExecution(q quarter.ID, itemID string, edit func(*plan.Execution)) error {
	s.mu.Lock()
	sy, err := s.syncerLocked(q)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if err := sy.Update(itemID, edit); err != nil {
		if errors.Is(err, reconcile.ErrUnknownItem) {
			return fmt.Errorf("edit execution: %w: %s not in %s", ErrUnknownItem, itemID, q)
		}
		return fmt.Errorf("edit execution: %w", err)
	}
	return nil
}

func (s *Session) syncerLocked(q quarter.ID) (*reconcile.Syncer, error) {
	if err := s.checkQuarter(q); err != nil {
		return nil, err
	}
	if sy, ok := s.syncers[q]; ok {
		return sy, nil
	}
	sy := reconcile.New(q, s.snap.Plan[q], s, s.syncOpts)
	s.syncers[q] = sy
	return sy, nil
}

func (s *Session) checkQuarter(q quarter.ID) error {
	if !q.Valid() {
		return fmt.Errorf("%w: %d", allocation.ErrUnknownQuarter, int(q))
	}
	return nil
}

// WriteBack applies enriched execution fields onto the canonical items with the same
// ids, wherever they are placed now, and saves. The quarters' id sets do not change, so
// open enriched copies are not re-derived.
func (s *Session) WriteBack(ctx context.Context, q quarter.ID, items []plan.EnrichedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	written := make([]string, 0, len(items))
	for _, enriched := range items {
		exec := enriched.Execution.Clone()
		var ptr *plan.Execution
		if !exec.IsZero() {
			ptr = &exec
		}
		found := false
		if at, pos, ok := s.snap.Plan.Locate(enriched.Item.ID); ok {
			s.snap.Plan[at][pos].Execution = cloneExecution(ptr)
			found = true
		}
		if idx, ok := s.poolIndexLocked(enriched.Item.ID); ok {
			s.snap.Items[idx].Execution = cloneExecution(ptr)
			found = true
		}
		if found {
			written = append(written, enriched.Item.ID)
		}
	}

	s.observeLocked()
	s.record(audit.EventExecutionWritten, map[string]any{"quarter": q.String(), "items": written})
	return s.persistLocked(ctx)
}

func cloneExecution(e *plan.Execution) *plan.Execution {
	if e == nil {
		return nil
	}
	out := e.Clone()
	return &out
}

// settle writes back pending execution edits before a structural change, so they travel
// with their items. Failures stay queued in the syncer.
func (s *Session) settle(ctx context.Context) {
	if err := s.flushSyncers(ctx); err != nil {
		s.log.Warn().Err(err).Msg("execution write-back failed before plan change")
	}
}

func (s *Session) flushSyncers(ctx context.Context) error {
	s.mu.Lock()
	syncers := s.syncerList()
	s.mu.Unlock()

	var errs []error
	for _, sy := range syncers {
		if _, err := sy.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SyncStatus is the write-back state of one opened enriched copy.
type SyncStatus struct {
	Quarter   quarter.ID
	Pending   bool
	Writes    int
	LastError error
}

// SyncStatus reports quarter q's write-back state. It returns false when the quarter's
// enriched copy has not been opened.
func (s *Session) SyncStatus(q quarter.ID) (SyncStatus, bool) {
	s.mu.Lock()
	sy, ok := s.syncers[q]
	s.mu.Unlock()
	if !ok {
		return SyncStatus{}, false
	}
	return SyncStatus{
		Quarter:   q,
		Pending:   sy.Pending(),
		Writes:    sy.Writes(),
		LastError: sy.LastError(),
	}, true
}
