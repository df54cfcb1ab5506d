package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const defaultAuditPath = ".quarterplan/audit.sqlite"

// Event types recorded for plan mutations.
const (
	EventItemPlaced       = "item_placed"
	EventItemMoved        = "item_moved"
	EventItemRemoved      = "item_removed"
	EventItemAssigned     = "item_assigned"
	EventPlanDistributed  = "plan_distributed"
	EventTargetSet        = "target_set"
	EventExecutionWritten = "execution_written"
	EventPlanSaved        = "plan_saved"
	EventPlanSaveFailed   = "plan_save_failed"
	EventPlanImported     = "plan_imported"

	EventWorkspaceInitialized = "workspace_initialized"
)

// Event is one stored audit record.
type Event struct {
	ID          int64
	Timestamp   time.Time
	Actor       string
	Type        string
	PayloadJSON string
}

// Logger writes audit events to a specific SQLite DB path.
type Logger struct {
	DBPath string
}

// NewLogger returns a Logger bound to the provided DB path.
func NewLogger(dbPath string) *Logger {
	return &Logger{DBPath: dbPath}
}

// LogEvent writes an audit event to the configured SQLite-backed log. A nil Logger
// falls back to QUARTERPLAN_AUDIT_DB or the default path.
func (l *Logger) LogEvent(actor string, eventType string, payload any) error {
	path := ""
	if l != nil {
		path = l.DBPath
	}
	resolved, err := resolveDBPath(path)
	if err != nil {
		return err
	}
	return writeEvent(resolved, actor, eventType, payload)
}

// Recent returns up to limit events, newest first. An empty type matches all.
func (l *Logger) Recent(eventType string, limit int) ([]Event, error) {
	path := ""
	if l != nil {
		path = l.DBPath
	}
	resolved, err := resolveDBPath(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", resolved)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT id, ts, actor, type, payload_json FROM events"
	args := []any{}
	if eventType != "" {
		query += " WHERE type = ?"
		args = append(args, eventType)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var ts string
		if err := rows.Scan(&ev.ID, &ts, &ev.Actor, &ev.Type, &ev.PayloadJSON); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Timestamp = parseTimestamp(ts)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func parseTimestamp(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts DATETIME NOT NULL,
			actor TEXT NOT NULL,
			type TEXT NOT NULL,
			payload_json TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

func resolveDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		dbPath = os.Getenv("QUARTERPLAN_AUDIT_DB")
	}
	if dbPath == "" {
		dbPath = defaultAuditPath
	}
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("resolve audit db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure audit db dir: %w", err)
	}
	return absPath, nil
}

func writeEvent(dbPath string, actor string, eventType string, payload any) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open audit db: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := ensureSchema(db); err != nil {
		return err
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = db.Exec(
		"INSERT INTO events (ts, actor, type, payload_json) VALUES (?, ?, ?, ?)",
		time.Now().UTC().Format(time.RFC3339Nano),
		actor,
		eventType,
		string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	return nil
}
