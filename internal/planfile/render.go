package planfile

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"quarterplan/internal/plan"
	"quarterplan/internal/quarter"
)

// LoadFile reads and validates a YAML plan document.
func LoadFile(path string, opts Options) (plan.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return plan.Snapshot{}, fmt.Errorf("read plan file: %w", err)
	}
	return Parse(data, path, opts)
}

// Render encodes a snapshot as a YAML plan document. Map keys are emitted sorted, so the
// output is deterministic and diffs cleanly between revisions.
func Render(snap plan.Snapshot) ([]byte, error) {
	doc := rawDocument{
		BusinessID: snap.BusinessID,
		YearType:   string(snap.YearType),
		PlanYear:   snap.PlanYear,
	}

	placed := make(map[string]plan.WorkItem)
	for _, items := range snap.Plan {
		for _, item := range items {
			placed[item.ID] = item
		}
	}

	for _, item := range snap.Items {
		raw := rawItem{
			ID:          item.ID,
			Title:       item.Title,
			Description: item.Description,
			Category:    item.Category,
			Priority:    string(item.Priority),
			Origin:      string(item.Origin),
			Execution:   item.Execution,
		}
		if p, ok := placed[item.ID]; ok {
			raw.Assignee = p.AssigneeID
			if p.Execution != nil {
				raw.Execution = p.Execution
			}
		}
		doc.Items = append(doc.Items, raw)
	}

	for _, q := range quarter.All {
		ids := snap.Plan.IDs(q)
		if len(ids) == 0 {
			continue
		}
		if doc.Quarters == nil {
			doc.Quarters = make(map[string][]string)
		}
		doc.Quarters[q.String()] = ids
	}

	for _, key := range snap.Targets.Keys() {
		if doc.Targets == nil {
			doc.Targets = make(map[string]map[string]float64)
		}
		values := make(map[string]float64)
		for q, v := range snap.Targets[key] {
			values[q.String()] = v
		}
		doc.Targets[key] = values
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode plan document: %w", err)
	}
	return data, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
