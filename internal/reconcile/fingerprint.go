package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"quarterplan/internal/plan"
)

type fingerprintEntry struct {
	ID          string           `json:"id"`
	AssigneeID  string           `json:"assignee_id"`
	Rationale   string           `json:"rationale"`
	Outcome     string           `json:"outcome"`
	StartDate   string           `json:"start_date"`
	EndDate     string           `json:"end_date"`
	Milestones  []plan.Milestone `json:"milestones"`
	Tasks       []plan.Task      `json:"tasks"`
	EffortTotal float64          `json:"effort_total"`
}

// Fingerprint hashes the fields of items that matter for write-back, in order.
func Fingerprint(items []plan.EnrichedItem) string {
	entries := make([]fingerprintEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, fingerprintEntry{
			ID:          item.Item.ID,
			AssigneeID:  item.Item.AssigneeID,
			Rationale:   item.Execution.Rationale,
			Outcome:     item.Execution.Outcome,
			StartDate:   item.Execution.StartDate,
			EndDate:     item.Execution.EndDate,
			Milestones:  nilIfEmpty(item.Execution.Milestones),
			Tasks:       nilIfEmpty(item.Execution.Tasks),
			EffortTotal: item.Execution.EffortTotal,
		})
	}
	// Struct fields marshal in declaration order, so the encoding is stable.
	data, err := json.Marshal(entries)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// nilIfEmpty folds empty slices into nil so both encode as null.
func nilIfEmpty[T any](v []T) []T {
	if len(v) == 0 {
		return nil
	}
	return v
}

// idSetKey identifies the set of ids regardless of order.
func idSetKey(items []plan.WorkItem) string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	sort.Strings(ids)
	return strings.Join(ids, "\x00")
}
