package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quarterplan/internal/allocation"
	"quarterplan/internal/audit"
	"quarterplan/internal/plan"
	"quarterplan/internal/quarter"
	"quarterplan/internal/reconcile"
	"quarterplan/internal/targets"
)

var (
	// ErrInvalidQuarterTransition is returned for placements into, or removals from, a
	// locked quarter.
	ErrInvalidQuarterTransition = errors.New("quarter is locked")
	// ErrPersistenceFailure wraps repository errors. The in-memory change is kept.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrUnknownItem is returned for ids outside the selection pool.
	ErrUnknownItem = errors.New("unknown item")
)

// Repository loads and saves plan snapshots keyed by business. Save returns the stored
// snapshot, including any identifiers it assigned.
type Repository interface {
	Load(ctx context.Context, businessID string) (plan.Snapshot, error)
	Save(ctx context.Context, businessID string, snap plan.Snapshot) (plan.Snapshot, error)
}

// EventLogger records audit events.
type EventLogger interface {
	LogEvent(actor string, eventType string, payload any) error
}

// Options configures a Session.
type Options struct {
	BusinessID string
	YearType   quarter.YearType
	// PlanYear 0 selects the plan year containing now.
	PlanYear int
	Capacity allocation.Config
	Clock    quarter.Clock
	Links    []targets.Link

	Debounce  time.Duration
	AfterFunc reconcile.AfterFunc

	Repository Repository
	Audit      EventLogger
	Actor      string
	Logger     zerolog.Logger
}

// Session owns the canonical plan, the selection pool and the quarterly targets of one
// business, and the enriched copies of quarters opened for execution planning.
type Session struct {
	engine *allocation.Engine
	clock  quarter.Clock
	links  []targets.Link
	repo   Repository
	audit  EventLogger
	actor  string
	log    zerolog.Logger

	syncOpts reconcile.Options

	mu          sync.Mutex
	snap        plan.Snapshot
	syncers     map[quarter.ID]*reconcile.Syncer
	pendingSave bool
	lastSaveErr error
}

// Open loads the business plan from the repository and starts a session over it.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Repository == nil {
		return nil, fmt.Errorf("open session: repository is required")
	}
	snap, err := opts.Repository.Load(ctx, opts.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w: %w", opts.BusinessID, ErrPersistenceFailure, err)
	}
	return New(snap, opts), nil
}

// New starts a session over snap. A nil Repository keeps all changes in memory.
func New(snap plan.Snapshot, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = quarter.SystemClock
	}
	if opts.Links == nil {
		opts.Links = targets.DefaultLinks
	}
	if opts.Actor == "" {
		opts.Actor = "operator"
	}

	s := &Session{
		engine: allocation.New(opts.Capacity),
		clock:  opts.Clock,
		links:  opts.Links,
		repo:   opts.Repository,
		audit:  opts.Audit,
		actor:  opts.Actor,
		log:    opts.Logger.With().Str("component", "session").Logger(),
		syncOpts: reconcile.Options{
			Delay:     opts.Debounce,
			AfterFunc: opts.AfterFunc,
			Logger:    opts.Logger,
		},
		syncers: make(map[quarter.ID]*reconcile.Syncer),
	}

	s.snap = snap.Clone()
	if opts.BusinessID != "" {
		s.snap.BusinessID = opts.BusinessID
	}
	if opts.YearType != "" {
		s.snap.YearType = opts.YearType
	}
	if s.snap.YearType == "" {
		s.snap.YearType = quarter.Calendar
	}
	if opts.PlanYear > 0 {
		s.snap.PlanYear = opts.PlanYear
	}
	if s.snap.PlanYear <= 0 {
		s.snap.PlanYear = quarter.DeterminePlanYear(s.snap.YearType, s.clock.Now())
	}
	if s.snap.Targets == nil {
		s.snap.Targets = make(targets.Targets)
	}
	return s
}

// BusinessID returns the business this session plans for.
func (s *Session) BusinessID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.BusinessID
}

// PlanYear returns the plan year the quarters are computed for.
func (s *Session) PlanYear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.PlanYear
}

// Snapshot returns a copy of the current canonical state.
func (s *Session) Snapshot() plan.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Quarters returns the plan year's quarters evaluated against the session clock.
func (s *Session) Quarters() []quarter.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quartersLocked()
}

func (s *Session) quartersLocked() []quarter.Info {
	return quarter.Compute(s.snap.YearType, s.snap.PlanYear, s.clock.Now())
}

// QuarterView is the board projection of one quarter.
type QuarterView struct {
	Info      quarter.Info
	Items     []plan.WorkItem
	Capacity  int
	Remaining int
	Full      bool
	Locked    bool
	Load      map[string]int
}

// Board projects every quarter with its items, capacity and lock annotations. It is
// recomputed from current state on each call.
func (s *Session) Board() []QuarterView {
	s.mu.Lock()
	defer s.mu.Unlock()

	capacity := s.engine.Config().PerQuarter
	views := make([]QuarterView, 0, len(quarter.All))
	for _, info := range s.quartersLocked() {
		items := make([]plan.WorkItem, 0, len(s.snap.Plan[info.ID]))
		for _, item := range s.snap.Plan[info.ID] {
			items = append(items, item.Clone())
		}
		remaining := capacity - len(items)
		if remaining < 0 {
			remaining = 0
		}
		views = append(views, QuarterView{
			Info:      info,
			Items:     items,
			Capacity:  capacity,
			Remaining: remaining,
			Full:      remaining == 0,
			Locked:    info.IsLocked,
			Load:      allocation.AssignmentLoad(s.snap.Plan, info.ID),
		})
	}
	return views
}

// AssignmentLoad counts the items of quarter q per assignee.
func (s *Session) AssignmentLoad(q quarter.ID) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return allocation.AssignmentLoad(s.snap.Plan, q)
}

// Available lists pool items not placed in any quarter, in pool order.
func (s *Session) Available() []plan.WorkItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availableLocked()
}

func (s *Session) availableLocked() []plan.WorkItem {
	placed := s.snap.Plan.Placed()
	var out []plan.WorkItem
	for _, item := range s.snap.Items {
		if _, ok := placed[item.ID]; ok {
			continue
		}
		out = append(out, item.Clone())
	}
	return out
}

// Targets returns a copy of the quarterly targets.
func (s *Session) Targets() targets.Targets {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Targets.Clone()
}

// Pending reports whether any change has not reached the repository yet.
func (s *Session) Pending() bool {
	s.mu.Lock()
	pending := s.pendingSave
	syncers := s.syncerList()
	s.mu.Unlock()

	for _, sy := range syncers {
		if sy.Pending() {
			return true
		}
	}
	return pending
}

// LastSaveError returns the most recent repository error, cleared by a successful save.
func (s *Session) LastSaveError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaveErr
}

// Retry saves a plan whose last save failed and flushes pending execution edits.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	var err error
	if s.pendingSave {
		s.log.Info().Int("revision", s.snap.Revision).Msg("retrying plan save")
		err = s.persistLocked(ctx)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.flushSyncers(ctx)
}

// Flush writes pending execution edits immediately and retries a failed save.
func (s *Session) Flush(ctx context.Context) error {
	if err := s.flushSyncers(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingSave {
		return s.persistLocked(ctx)
	}
	return nil
}

// Close flushes pending work and stops the debounce timers.
func (s *Session) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.mu.Lock()
	for _, sy := range s.syncers {
		sy.Close()
	}
	s.mu.Unlock()
	return err
}

func (s *Session) persistLocked(ctx context.Context) error {
	if s.repo == nil {
		s.pendingSave = false
		return nil
	}
	saved, err := s.repo.Save(ctx, s.snap.BusinessID, s.snap.Clone())
	if err != nil {
		s.pendingSave = true
		s.lastSaveErr = err
		s.log.Warn().Err(err).Str("business_id", s.snap.BusinessID).Msg("plan save failed; changes kept locally")
		s.record(audit.EventPlanSaveFailed, map[string]any{"revision": s.snap.Revision, "error": err.Error()})
		return fmt.Errorf("save plan: %w: %w", ErrPersistenceFailure, err)
	}

	s.adoptLocked(saved)
	s.pendingSave = false
	s.lastSaveErr = nil
	s.record(audit.EventPlanSaved, map[string]any{"revision": s.snap.Revision})
	return nil
}

// adoptLocked takes the repository echo as canonical state so assigned ids stick.
func (s *Session) adoptLocked(saved plan.Snapshot) {
	yearType, planYear := s.snap.YearType, s.snap.PlanYear
	s.snap = saved.Clone()
	s.snap.Plan = s.snap.Plan.Clone()
	s.snap.YearType, s.snap.PlanYear = yearType, planYear
	if s.snap.Targets == nil {
		s.snap.Targets = make(targets.Targets)
	}
	s.observeLocked()
}

// observeLocked notifies open enriched copies of the canonical update.
func (s *Session) observeLocked() {
	for q, sy := range s.syncers {
		sy.Observe(s.snap.Plan[q])
	}
}

func (s *Session) syncerList() []*reconcile.Syncer {
	out := make([]*reconcile.Syncer, 0, len(s.syncers))
	for _, q := range quarter.All {
		if sy, ok := s.syncers[q]; ok {
			out = append(out, sy)
		}
	}
	return out
}

func (s *Session) record(eventType string, payload map[string]any) {
	if s.audit == nil {
		return
	}
	payload["business_id"] = s.snap.BusinessID
	if err := s.audit.LogEvent(s.actor, eventType, payload); err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("audit log failed")
	}
}
