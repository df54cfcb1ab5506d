package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"quarterplan/internal/plan"
	"quarterplan/internal/planfile"
)

// ErrConflict is returned when a save is based on a stale revision.
var ErrConflict = errors.New("plan revision conflict")

// Store persists plan snapshots and their revision history in SQLite.
type Store struct {
	DBPath string
	Logger zerolog.Logger
	db     *sql.DB
	now    func() time.Time
}

// Revision is one entry of a plan's save history.
type Revision struct {
	BusinessID string
	Revision   int
	SavedAt    time.Time
	Diff       string
}

// Open opens or creates the plan database.
func Open(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve plan db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure plan db dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("open plan db: %w", err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	store := &Store{
		DBPath: absPath,
		db:     db,
		now:    time.Now,
	}

	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS plans (
	business_id TEXT PRIMARY KEY,
	revision INTEGER NOT NULL,
	saved_at TEXT NOT NULL,
	snapshot_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS plan_revisions (
	business_id TEXT NOT NULL,
	revision INTEGER NOT NULL,
	saved_at TEXT NOT NULL,
	diff_text TEXT,
	PRIMARY KEY (business_id, revision)
);

CREATE TABLE IF NOT EXISTS plan_kv (
	key TEXT PRIMARY KEY,
	value TEXT
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create plan schema: %w", err)
	}
	return nil
}

// Load returns the latest snapshot for businessID. A business with no saved plan gets an
// empty snapshot at revision 0.
func (s *Store) Load(ctx context.Context, businessID string) (plan.Snapshot, error) {
	snap, err := s.load(ctx, s.db, businessID)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.Snapshot{BusinessID: businessID, Plan: plan.New()}, nil
	}
	return snap, err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) load(ctx context.Context, q queryer, businessID string) (plan.Snapshot, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		"SELECT snapshot_json FROM plans WHERE business_id = ?", businessID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return plan.Snapshot{}, err
		}
		return plan.Snapshot{}, fmt.Errorf("load plan %s: %w", businessID, err)
	}

	var snap plan.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return plan.Snapshot{}, fmt.Errorf("decode plan %s: %w", businessID, err)
	}
	snap.Plan = snap.Plan.Clone()
	return snap, nil
}

// Save stores snap as the next revision and returns the stored snapshot. Items without
// an id are given one. A snapshot whose Revision is behind the stored one is rejected
// with ErrConflict; revision 0 always overwrites.
func (s *Store) Save(ctx context.Context, businessID string, snap plan.Snapshot) (plan.Snapshot, error) {
	out := snap.Clone()
	out.BusinessID = businessID
	assignIDs(&out)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return plan.Snapshot{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	prev, err := s.load(ctx, tx, businessID)
	hasPrev := true
	if errors.Is(err, sql.ErrNoRows) {
		hasPrev = false
	} else if err != nil {
		return plan.Snapshot{}, err
	}

	if hasPrev && snap.Revision != 0 && snap.Revision < prev.Revision {
		return plan.Snapshot{}, fmt.Errorf("%w: saving revision %d over %d", ErrConflict, snap.Revision, prev.Revision)
	}
	out.Revision = prev.Revision + 1

	diff, err := revisionDiff(prev, out, hasPrev)
	if err != nil {
		return plan.Snapshot{}, err
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return plan.Snapshot{}, fmt.Errorf("marshal plan: %w", err)
	}
	savedAt := s.now().UTC().Format(time.RFC3339Nano)

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO plans (business_id, revision, saved_at, snapshot_json)
		VALUES (?, ?, ?, ?)
	`, businessID, out.Revision, savedAt, string(payload)); err != nil {
		return plan.Snapshot{}, fmt.Errorf("save plan: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO plan_revisions (business_id, revision, saved_at, diff_text)
		VALUES (?, ?, ?, ?)
	`, businessID, out.Revision, savedAt, diff); err != nil {
		return plan.Snapshot{}, fmt.Errorf("record revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return plan.Snapshot{}, fmt.Errorf("commit transaction: %w", err)
	}
	s.Logger.Debug().
		Str("business_id", businessID).
		Int("revision", out.Revision).
		Int("diff_bytes", len(diff)).
		Msg("plan saved")
	return out, nil
}

// History returns up to limit revisions, newest first.
func (s *Store) History(ctx context.Context, businessID string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT business_id, revision, saved_at, diff_text
		FROM plan_revisions
		WHERE business_id = ?
		ORDER BY revision DESC
		LIMIT ?
	`, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	var revs []Revision
	for rows.Next() {
		var rev Revision
		var savedAt string
		var diff sql.NullString
		if err := rows.Scan(&rev.BusinessID, &rev.Revision, &savedAt, &diff); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		rev.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
		if diff.Valid {
			rev.Diff = diff.String
		}
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return revs, nil
}

// GetKV retrieves a value from the key-value table.
func (s *Store) GetKV(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM plan_kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get kv: %w", err)
	}
	return value, nil
}

// SetKV sets a value in the key-value table.
func (s *Store) SetKV(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO plan_kv (key, value)
		VALUES (?, ?)
	`, key, value)
	if err != nil {
		return fmt.Errorf("set kv: %w", err)
	}
	return nil
}

func assignIDs(snap *plan.Snapshot) {
	for i := range snap.Items {
		if snap.Items[i].ID == "" {
			snap.Items[i].ID = uuid.NewString()
		}
	}
	for q, items := range snap.Plan {
		for i := range items {
			if items[i].ID == "" {
				items[i].ID = uuid.NewString()
				// Keep the pool in step with the placement it came from.
				snap.Items = append(snap.Items, poolCopy(items[i]))
			}
		}
		snap.Plan[q] = items
	}
}

func poolCopy(item plan.WorkItem) plan.WorkItem {
	out := item.Clone()
	out.AssigneeID = ""
	return out
}

func revisionDiff(prev, next plan.Snapshot, hasPrev bool) (string, error) {
	var before []byte
	if hasPrev {
		var err error
		before, err = planfile.Render(prev)
		if err != nil {
			return "", err
		}
	}
	after, err := planfile.Render(next)
	if err != nil {
		return "", err
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: fmt.Sprintf("revision %d", prev.Revision),
		ToFile:   fmt.Sprintf("revision %d", next.Revision),
		Context:  2,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("diff revisions: %w", err)
	}
	return text, nil
}
