package integration_test

import (
	"database/sql"
	"sort"
	"testing"

	_ "modernc.org/sqlite"
)

func openAuditDB(t *testing.T, dbPath string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open audit db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// auditCounts groups the logged events by column, either "type" or "actor".
func auditCounts(t *testing.T, dbPath, column string) map[string]int {
	t.Helper()
	if column != "type" && column != "actor" {
		t.Fatalf("cannot group audit events by %q", column)
	}
	rows, err := openAuditDB(t, dbPath).Query("SELECT " + column + ", COUNT(*) FROM events GROUP BY " + column)
	if err != nil {
		t.Fatalf("query audit events: %v", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			t.Fatalf("scan audit event: %v", err)
		}
		counts[key] = count
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate audit events: %v", err)
	}
	return counts
}

// requireAuditCounts fails unless each listed event type was logged exactly as often as
// want says. Types not listed are not checked.
func requireAuditCounts(t *testing.T, dbPath string, want map[string]int) {
	t.Helper()
	got := auditCounts(t, dbPath, "type")
	types := make([]string, 0, len(want))
	for eventType := range want {
		types = append(types, eventType)
	}
	sort.Strings(types)
	for _, eventType := range types {
		if got[eventType] != want[eventType] {
			t.Fatalf("audit event %s: want %d, got %d (all: %v)", eventType, want[eventType], got[eventType], got)
		}
	}
}

// requireAuditActor fails if any event in dbPath was logged by someone other than actor.
func requireAuditActor(t *testing.T, dbPath, actor string) {
	t.Helper()
	for name, count := range auditCounts(t, dbPath, "actor") {
		if name != actor {
			t.Fatalf("expected every audit event from %s, found %d from %s", actor, count, name)
		}
	}
}
