package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarterplan/internal/plan"
	"quarterplan/internal/quarter"
)

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{delay: d, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeTimers) active() []*fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeTimer
	for _, t := range f.timers {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

func (f *fakeTimers) fire() int {
	fired := 0
	for _, t := range f.active() {
		t.stopped = true
		t.fn()
		fired++
	}
	return fired
}

type recordingWriter struct {
	calls   int
	batches [][]plan.EnrichedItem
	err     error
	after   func(items []plan.EnrichedItem)
}

func (w *recordingWriter) WriteBack(_ context.Context, _ quarter.ID, items []plan.EnrichedItem) error {
	w.calls++
	w.batches = append(w.batches, items)
	if w.err != nil {
		return w.err
	}
	if w.after != nil {
		w.after(items)
	}
	return nil
}

func canonicalItems(ids ...string) []plan.WorkItem {
	items := make([]plan.WorkItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, plan.WorkItem{ID: id, Title: "Item " + id, Priority: plan.PriorityHigh})
	}
	return items
}

func newSyncer(t *testing.T, w Writer, canonical []plan.WorkItem) (*Syncer, *fakeTimers) {
	t.Helper()
	timers := &fakeTimers{}
	s := New(quarter.Q2, canonical, w, Options{Delay: 250 * time.Millisecond, AfterFunc: timers.AfterFunc})
	t.Cleanup(s.Close)
	return s, timers
}

func editAll(e *plan.Execution) {
	e.Rationale = "Unlock enterprise deals"
	e.Outcome = "3 signed pilots"
	e.StartDate = "2026-01-05"
	e.EndDate = "2026-03-27"
	e.Milestones = []plan.Milestone{{ID: "m1", Title: "Pilot scoped"}}
	e.Tasks = []plan.Task{{ID: "t1", Title: "Draft SOW", Effort: 6}, {ID: "t2", Title: "Legal review", Effort: 4}}
}

func TestNewSynthesizesEmptyExecution(t *testing.T) {
	s, _ := newSyncer(t, &recordingWriter{}, canonicalItems("a", "b"))

	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Item.ID)
	assert.True(t, items[0].Execution.IsZero())
	assert.False(t, s.Pending())
}

func TestNewSeedsFromCanonicalExecution(t *testing.T) {
	canonical := canonicalItems("a")
	canonical[0].Execution = &plan.Execution{Rationale: "kept from last session"}

	s, _ := newSyncer(t, &recordingWriter{}, canonical)

	assert.Equal(t, "kept from last session", s.Items()[0].Execution.Rationale)
	assert.Nil(t, s.Items()[0].Item.Execution)
	assert.False(t, s.Pending())
}

func TestUpdateRecalculatesEffort(t *testing.T) {
	s, _ := newSyncer(t, &recordingWriter{}, canonicalItems("a"))

	require.NoError(t, s.Update("a", editAll))

	assert.Equal(t, 10.0, s.Items()[0].Execution.EffortTotal)
	assert.True(t, s.Pending())
}

func TestUpdateUnknownItem(t *testing.T) {
	s, _ := newSyncer(t, &recordingWriter{}, canonicalItems("a"))
	assert.ErrorIs(t, s.Update("zzz", editAll), ErrUnknownItem)
}

func TestDerivePreservesEnrichedFields(t *testing.T) {
	s, _ := newSyncer(t, &recordingWriter{}, canonicalItems("a", "b"))
	require.NoError(t, s.Update("a", editAll))
	before := s.Items()[0].Execution

	updated := canonicalItems("a", "b")
	updated[0].AssigneeID = "pat"
	s.Derive(updated)

	after := s.Items()[0]
	assert.Equal(t, "pat", after.Item.AssigneeID)
	assert.Equal(t, before, after.Execution)
}

func TestFlushIsIdempotent(t *testing.T) {
	w := &recordingWriter{}
	s, _ := newSyncer(t, w, canonicalItems("a"))
	require.NoError(t, s.Update("a", editAll))

	wrote, err := s.Flush(context.Background())
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = s.Flush(context.Background())
	require.NoError(t, err)
	assert.False(t, wrote)

	assert.Equal(t, 1, w.calls)
	assert.Equal(t, 1, s.Writes())
}

func TestUpdateWithoutContentChangeDoesNotSchedule(t *testing.T) {
	w := &recordingWriter{}
	s, timers := newSyncer(t, w, canonicalItems("a"))

	require.NoError(t, s.Update("a", func(*plan.Execution) {}))

	assert.Empty(t, timers.active())
	assert.Equal(t, 0, w.calls)
}

func TestEmptySlicesCountAsUnchanged(t *testing.T) {
	w := &recordingWriter{}
	s, timers := newSyncer(t, w, canonicalItems("a"))

	require.NoError(t, s.Update("a", func(e *plan.Execution) {
		e.Milestones = []plan.Milestone{}
		e.Tasks = []plan.Task{}
	}))

	assert.False(t, s.Pending())
	assert.Empty(t, timers.active())
	assert.Equal(t, Fingerprint([]plan.EnrichedItem{{Item: plan.WorkItem{ID: "a"}}}),
		Fingerprint([]plan.EnrichedItem{{Item: plan.WorkItem{ID: "a"}, Execution: plan.Execution{Tasks: []plan.Task{}}}}))
}

func TestDebounceResetsOnEachChange(t *testing.T) {
	w := &recordingWriter{}
	s, timers := newSyncer(t, w, canonicalItems("a"))

	require.NoError(t, s.Update("a", func(e *plan.Execution) { e.Rationale = "r1" }))
	require.NoError(t, s.Update("a", func(e *plan.Execution) { e.Rationale = "r2" }))
	require.NoError(t, s.Update("a", func(e *plan.Execution) { e.Rationale = "r3" }))

	active := timers.active()
	require.Len(t, active, 1, "earlier timers must be cancelled")
	assert.Equal(t, 250*time.Millisecond, active[0].delay)
	assert.Len(t, timers.timers, 3)

	assert.Equal(t, 1, timers.fire())
	require.Equal(t, 1, w.calls)
	assert.Equal(t, "r3", w.batches[0][0].Execution.Rationale)
}

func TestObserveTriggersOnlyOnIDSetChange(t *testing.T) {
	s, _ := newSyncer(t, &recordingWriter{}, canonicalItems("a", "b"))

	reordered := canonicalItems("b", "a")
	reordered[0].AssigneeID = "sam"
	assert.False(t, s.Observe(reordered))
	assert.Equal(t, "a", s.Items()[0].Item.ID, "no derive on reorder")

	assert.True(t, s.Observe(canonicalItems("a", "b", "c")))
	items := s.Items()
	require.Len(t, items, 3)
	assert.True(t, items[2].Execution.IsZero())
	assert.False(t, s.Pending())
}

func TestWriteBackDoesNotLoop(t *testing.T) {
	canonical := canonicalItems("a", "b")
	w := &recordingWriter{}
	s, timers := newSyncer(t, w, canonical)

	observed := 0
	w.after = func(items []plan.EnrichedItem) {
		for i := range canonical {
			for _, e := range items {
				if e.Item.ID == canonical[i].ID {
					exec := e.Execution.Clone()
					canonical[i].Execution = &exec
				}
			}
		}
		if s.Observe(canonical) {
			observed++
		}
	}

	require.NoError(t, s.Update("b", editAll))
	timers.fire()

	assert.Equal(t, 1, w.calls)
	assert.Equal(t, 0, observed, "write-back must not re-trigger derive")
	assert.Empty(t, timers.active(), "write-back must not schedule another write")
	assert.False(t, s.Pending())
}

func TestFailedWriteKeepsChangesAndRetries(t *testing.T) {
	w := &recordingWriter{err: errors.New("backend unavailable")}
	s, timers := newSyncer(t, w, canonicalItems("a"))
	require.NoError(t, s.Update("a", editAll))

	wrote, err := s.Flush(context.Background())
	require.Error(t, err)
	assert.False(t, wrote)
	assert.True(t, s.Pending())
	assert.Error(t, s.LastError())
	assert.Equal(t, "Unlock enterprise deals", s.Items()[0].Execution.Rationale)

	w.err = nil
	require.NoError(t, s.Update("a", func(e *plan.Execution) { e.Outcome = "4 signed pilots" }))
	timers.fire()

	assert.Equal(t, 2, w.calls)
	assert.False(t, s.Pending())
	assert.NoError(t, s.LastError())
	assert.Equal(t, "4 signed pilots", w.batches[1][0].Execution.Outcome)
}

func TestItemLeavingQuarterKeepsUnwrittenEdits(t *testing.T) {
	w := &recordingWriter{}
	s, _ := newSyncer(t, w, canonicalItems("a", "b"))
	require.NoError(t, s.Update("a", editAll))

	require.True(t, s.Observe(canonicalItems("b")))
	require.True(t, s.Pending())

	_, err := s.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, w.batches, 1)
	batch := w.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "a", batch[1].Item.ID)
	assert.Equal(t, "Unlock enterprise deals", batch[1].Execution.Rationale)
	assert.False(t, s.Pending())
}

func TestClosedSyncerRejectsEdits(t *testing.T) {
	s, timers := newSyncer(t, &recordingWriter{}, canonicalItems("a"))
	require.NoError(t, s.Update("a", editAll))
	s.Close()

	assert.Empty(t, timers.active())
	assert.ErrorIs(t, s.Update("a", editAll), ErrClosed)
}

func TestFingerprintStable(t *testing.T) {
	items := []plan.EnrichedItem{{Item: plan.WorkItem{ID: "a"}, Execution: plan.Execution{Rationale: "x"}}}
	assert.Equal(t, Fingerprint(items), Fingerprint([]plan.EnrichedItem{items[0].Clone()}))

	changed := []plan.EnrichedItem{items[0].Clone()}
	changed[0].Execution.Tasks = []plan.Task{{ID: "t"}}
	assert.NotEqual(t, Fingerprint(items), Fingerprint(changed))
}
