package plan

import (
	"quarterplan/internal/quarter"
)

// Plan maps each quarter to its ordered items. Order encodes execution priority.
type Plan map[quarter.ID][]WorkItem

// New returns an empty plan with all four quarters present.
func New() Plan {
	p := make(Plan, len(quarter.All))
	for _, id := range quarter.All {
		p[id] = []WorkItem{}
	}
	return p
}

// Clone returns a deep copy with all four quarters present.
func (p Plan) Clone() Plan {
	out := New()
	for id, items := range p {
		copied := make([]WorkItem, 0, len(items))
		for _, item := range items {
			copied = append(copied, item.Clone())
		}
		out[id] = copied
	}
	return out
}

// Locate returns the quarter and index holding itemID.
func (p Plan) Locate(itemID string) (quarter.ID, int, bool) {
	for _, id := range quarter.All {
		for idx, item := range p[id] {
			if item.ID == itemID {
				return id, idx, true
			}
		}
	}
	return 0, -1, false
}

// Count returns the number of items across all quarters.
func (p Plan) Count() int {
	total := 0
	for _, items := range p {
		total += len(items)
	}
	return total
}

// IDs returns the item ids of quarter q in order.
func (p Plan) IDs(q quarter.ID) []string {
	items := p[q]
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

// Placed returns the set of item ids present in any quarter.
func (p Plan) Placed() map[string]quarter.ID {
	placed := make(map[string]quarter.ID)
	for id, items := range p {
		for _, item := range items {
			placed[item.ID] = id
		}
	}
	return placed
}
