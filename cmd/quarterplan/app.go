package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quarterplan/internal/audit"
	"quarterplan/internal/config"
	"quarterplan/internal/quarter"
	"quarterplan/internal/session"
	"quarterplan/internal/store"
	"quarterplan/internal/workspace"
)

// Flags holds the global flags shared by every command.
type Flags struct {
	Workspace string
	LogLevel  string
	LogFile   string
	Now       string
}

// App lazily opens the workspace, its stores and a planning session. Commands that
// only touch the filesystem never open the databases.
type App struct {
	flags *Flags

	ws       *workspace.Workspace
	cfg      config.Config
	clock    quarter.Clock
	store    *store.Store
	audit    *audit.Logger
	session  *session.Session
	log      zerolog.Logger
	closeLog func()
}

// Workspace resolves the workspace root and loads its config.
func (a *App) Workspace() (*workspace.Workspace, config.Config, error) {
	if a.ws != nil {
		return a.ws, a.cfg, nil
	}
	ws, err := workspace.Resolve(a.flags.Workspace)
	if err != nil {
		return nil, config.Config{}, err
	}
	cfg, err := config.Load(ws.ConfigPath)
	if err != nil {
		return nil, config.Config{}, err
	}
	if cfg.BusinessID == "" {
		return nil, config.Config{}, fmt.Errorf("%s has no business_id; run 'quarterplan init' first", ws.ConfigPath)
	}
	a.ws, a.cfg = ws, cfg
	return ws, cfg, nil
}

// Session opens the planning session for the workspace business.
func (a *App) Session(ctx context.Context) (*session.Session, error) {
	if a.session != nil {
		return a.session, nil
	}
	ws, cfg, err := a.Workspace()
	if err != nil {
		return nil, err
	}
	if err := ws.EnsureDirs(); err != nil {
		return nil, err
	}
	if err := a.setupLogger(ws, cfg); err != nil {
		return nil, err
	}
	clock, err := a.Clock()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ws.StateDBPath)
	if err != nil {
		return nil, err
	}
	st.Logger = a.log
	a.store = st
	a.audit = audit.NewLogger(ws.AuditDBPath)

	sess, err := session.Open(ctx, session.Options{
		BusinessID: cfg.BusinessID,
		YearType:   cfg.Year(),
		PlanYear:   cfg.PlanYear,
		Capacity:   cfg.Capacity,
		Clock:      clock,
		Links:      cfg.Links(),
		Debounce:   cfg.DebounceDelay(),
		Repository: st,
		Audit:      a.audit,
		Actor:      actorName(),
		Logger:     a.log,
	})
	if err != nil {
		return nil, err
	}
	a.session = sess
	a.log.Debug().
		Str("business_id", cfg.BusinessID).
		Int("plan_year", sess.PlanYear()).
		Str("year_type", cfg.YearType).
		Msg("session opened")
	return sess, nil
}

// Store returns the store opened by Session.
func (a *App) Store(ctx context.Context) (*store.Store, error) {
	if _, err := a.Session(ctx); err != nil {
		return nil, err
	}
	return a.store, nil
}

// Clock returns the clock quarter locks are evaluated against.
func (a *App) Clock() (quarter.Clock, error) {
	if a.clock != nil {
		return a.clock, nil
	}
	if a.flags.Now == "" {
		a.clock = quarter.SystemClock
		return a.clock, nil
	}
	now, err := parseNow(a.flags.Now)
	if err != nil {
		return nil, err
	}
	a.clock = quarter.FixedClock(now)
	return a.clock, nil
}

// Close flushes pending execution edits and closes the databases.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.session != nil {
		if err := a.session.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush session: %w", err))
		}
		a.session = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
		a.store = nil
	}
	if a.closeLog != nil {
		a.closeLog()
		a.closeLog = nil
	}
	return errors.Join(errs...)
}

func (a *App) setupLogger(ws *workspace.Workspace, cfg config.Config) error {
	level := cfg.LogLevel
	if a.flags.LogLevel != "" {
		level = a.flags.LogLevel
	}
	file := a.flags.LogFile
	if file == "" {
		file = ws.LogPath
	}
	logger, closer, err := newLogger(level, file)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	a.log = logger
	a.closeLog = closer
	log.Logger = logger
	return nil
}

// newLogger returns a JSON logger appending to file.
func newLogger(level string, file string) (zerolog.Logger, func(), error) {
	closer := func() {}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, closer, err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return zerolog.Logger{}, closer, fmt.Errorf("create logs dir: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Logger{}, closer, err
	}
	closer = func() { _ = f.Close() }

	l := zerolog.New(f).
		With().
		Timestamp().
		Logger().
		Level(lvl)
	return l, closer, nil
}

func parseNow(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --now %q (expected YYYY-MM-DD or RFC 3339)", value)
	}
	return t, nil
}

func actorName() string {
	if name := os.Getenv("QUARTERPLAN_ACTOR"); name != "" {
		return name
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "operator"
}
