package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quarterplan/internal/plan"
	"quarterplan/internal/quarter"
)

// DefaultDelay is the debounce window between the last local edit and the write-back.
const DefaultDelay = 500 * time.Millisecond

var ErrClosed = errors.New("syncer closed")

// ErrUnknownItem is returned when editing an id absent from the enriched copy.
var ErrUnknownItem = errors.New("item not in enriched copy")

// Writer applies enriched execution fields onto the canonical plan.
type Writer interface {
	WriteBack(ctx context.Context, q quarter.ID, items []plan.EnrichedItem) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, q quarter.ID, items []plan.EnrichedItem) error

func (f WriterFunc) WriteBack(ctx context.Context, q quarter.ID, items []plan.EnrichedItem) error {
	return f(ctx, q, items)
}

// Timer is the pending debounce timer.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through SystemAfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

// SystemAfterFunc schedules on the runtime timer.
func SystemAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options configures a Syncer.
type Options struct {
	Delay     time.Duration
	AfterFunc AfterFunc
	Logger    zerolog.Logger
}

// Syncer keeps the enriched copy of one quarter and reconciles it with the canonical
// plan. The canonical-to-enriched direction runs only when the quarter's id set changes;
// the enriched-to-canonical direction runs only when the content fingerprint differs
// from the last one handed to the writer.
type Syncer struct {
	quarter   quarter.ID
	writer    Writer
	delay     time.Duration
	afterFunc AfterFunc
	log       zerolog.Logger

	mu            sync.Mutex
	items         []plan.EnrichedItem
	idSet         string
	orphans       map[string]plan.EnrichedItem
	lastPersisted string
	timer         Timer
	lastErr       error
	writes        int
	closed        bool
}

// New builds the enriched copy of q from its canonical items. The fresh copy matches
// canonical state, so nothing is pending.
func New(q quarter.ID, canonical []plan.WorkItem, writer Writer, opts Options) *Syncer {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = SystemAfterFunc
	}
	s := &Syncer{
		quarter:   q,
		writer:    writer,
		delay:     opts.Delay,
		afterFunc: opts.AfterFunc,
		log:       opts.Logger.With().Str("component", "reconcile").Str("quarter", q.String()).Logger(),
	}
	s.derive(canonical)
	s.lastPersisted = Fingerprint(s.items)
	return s
}

// Quarter returns the quarter this syncer reconciles.
func (s *Syncer) Quarter() quarter.ID {
	return s.quarter
}

// Items returns a copy of the enriched items in canonical order.
func (s *Syncer) Items() []plan.EnrichedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]plan.EnrichedItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item.Clone())
	}
	return out
}

// Observe is called after every canonical update of the quarter. It re-derives only when
// the set of item ids differs from the enriched copy and reports whether it did.
func (s *Syncer) Observe(canonical []plan.WorkItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idSetKey(canonical) == s.idSet {
		return false
	}
	s.deriveLocked(canonical)
	return true
}

// Derive merges canonical items into the enriched copy unconditionally. Enriched-only
// fields of known ids are preserved; canonical fields are refreshed.
func (s *Syncer) Derive(canonical []plan.WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deriveLocked(canonical)
}

func (s *Syncer) deriveLocked(canonical []plan.WorkItem) {
	inSync := s.lastPersisted == Fingerprint(s.items) && len(s.orphans) == 0
	s.derive(canonical)
	if inSync {
		s.lastPersisted = Fingerprint(s.items)
	}
}

func (s *Syncer) derive(canonical []plan.WorkItem) {
	existing := make(map[string]plan.EnrichedItem, len(s.items))
	for _, item := range s.items {
		existing[item.Item.ID] = item
	}
	inSync := s.lastPersisted == Fingerprint(s.items)

	next := make([]plan.EnrichedItem, 0, len(canonical))
	for _, src := range canonical {
		item := src.Clone()
		item.Execution = nil

		if prev, ok := existing[src.ID]; ok {
			next = append(next, plan.EnrichedItem{Item: item, Execution: prev.Execution})
			delete(existing, src.ID)
			continue
		}
		if orphan, ok := s.orphans[src.ID]; ok {
			next = append(next, plan.EnrichedItem{Item: item, Execution: orphan.Execution})
			delete(s.orphans, src.ID)
			continue
		}
		var exec plan.Execution
		if src.Execution != nil {
			exec = src.Execution.Clone()
		}
		next = append(next, plan.EnrichedItem{Item: item, Execution: exec})
	}

	// Items leaving the quarter keep unwritten edits until the next write-back.
	if !inSync {
		for id, item := range existing {
			if item.Execution.IsZero() {
				continue
			}
			if s.orphans == nil {
				s.orphans = make(map[string]plan.EnrichedItem)
			}
			s.orphans[id] = item
		}
	}

	s.items = next
	s.idSet = idSetKey(canonical)
}

// Update applies a local edit to one item's execution fields and schedules a write-back.
func (s *Syncer) Update(itemID string, edit func(*plan.Execution)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	idx := -1
	for i := range s.items {
		if s.items[i].Item.ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s in %s", ErrUnknownItem, itemID, s.quarter)
	}
	exec := s.items[idx].Execution.Clone()
	edit(&exec)
	exec.RecalculateEffort()
	s.items[idx].Execution = exec
	s.scheduleLocked()
	s.mu.Unlock()
	return nil
}

func (s *Syncer) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.pendingLocked() {
		return
	}
	s.timer = s.afterFunc(s.delay, s.fire)
}

func (s *Syncer) fire() {
	if _, err := s.Flush(context.Background()); err != nil {
		s.log.Warn().Err(err).Msg("write-back failed; keeping local changes")
	}
}

// Pending reports whether the enriched copy holds changes not yet handed to the writer.
func (s *Syncer) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

func (s *Syncer) pendingLocked() bool {
	return Fingerprint(s.items) != s.lastPersisted || len(s.orphans) > 0
}

// Flush writes pending changes immediately, cancelling the debounce timer. It returns
// false without calling the writer when the fingerprint is unchanged. The fingerprint is
// recorded as persisted before the writer runs, so the canonical update it causes is
// not mistaken for new work.
func (s *Syncer) Flush(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.pendingLocked() {
		s.mu.Unlock()
		return false, nil
	}

	fp := Fingerprint(s.items)
	prev := s.lastPersisted
	s.lastPersisted = fp

	batch := make([]plan.EnrichedItem, 0, len(s.items)+len(s.orphans))
	for _, item := range s.items {
		batch = append(batch, item.Clone())
	}
	orphans := s.orphans
	s.orphans = nil
	orphanIDs := make([]string, 0, len(orphans))
	for id := range orphans {
		orphanIDs = append(orphanIDs, id)
	}
	sort.Strings(orphanIDs)
	for _, id := range orphanIDs {
		batch = append(batch, orphans[id].Clone())
	}
	s.mu.Unlock()

	err := s.writer.WriteBack(ctx, s.quarter, batch)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if s.lastPersisted == fp {
			s.lastPersisted = prev
		}
		for id, item := range orphans {
			if s.orphans == nil {
				s.orphans = make(map[string]plan.EnrichedItem)
			}
			if _, newer := s.orphans[id]; !newer {
				s.orphans[id] = item
			}
		}
		s.lastErr = err
		return false, fmt.Errorf("write back %s: %w", s.quarter, err)
	}
	s.lastErr = nil
	s.writes++
	s.log.Debug().Int("items", len(batch)).Int("writes", s.writes).Msg("execution written back")
	return true, nil
}

// Writes returns the number of successful write-backs.
func (s *Syncer) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// LastError returns the error of the most recent failed write-back, cleared on success.
func (s *Syncer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close stops the debounce timer. Pending changes are not written; call Flush first.
func (s *Syncer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.closed = true
}
