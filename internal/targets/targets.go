package targets

import (
	"math"
	"sort"

	"quarterplan/internal/quarter"
)

// Values holds one metric's per-quarter figures.
type Values map[quarter.ID]float64

// Targets maps a metric key to its per-quarter values.
type Targets map[string]Values

// Link pairs a percentage metric with the absolute metric derived from it through a
// base metric of the same quarter (absolute = base * percent / 100).
type Link struct {
	Percent  string `yaml:"percent"`
	Absolute string `yaml:"absolute"`
	Base     string `yaml:"base"`
}

// DefaultLinks are the margin/profit pairs derived from revenue.
var DefaultLinks = []Link{
	{Percent: "gross_margin", Absolute: "gross_profit", Base: "revenue"},
	{Percent: "net_margin", Absolute: "net_profit", Base: "revenue"},
}

// Change records one field written by Set.
type Change struct {
	Key     string     `json:"key"`
	Quarter quarter.ID `json:"quarter"`
	Value   float64    `json:"value"`
	Derived bool       `json:"derived,omitempty"`
}

// Clone returns a deep copy.
func (t Targets) Clone() Targets {
	if t == nil {
		return nil
	}
	out := make(Targets, len(t))
	for key, values := range t {
		copied := make(Values, len(values))
		for q, v := range values {
			copied[q] = v
		}
		out[key] = copied
	}
	return out
}

// Get returns the value of key for quarter q.
func (t Targets) Get(key string, q quarter.ID) (float64, bool) {
	values, ok := t[key]
	if !ok {
		return 0, false
	}
	v, ok := values[q]
	return v, ok
}

// Keys returns metric keys in sorted order.
func (t Targets) Keys() []string {
	keys := make([]string, 0, len(t))
	for key := range t {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (t Targets) put(key string, q quarter.ID, value float64) {
	values, ok := t[key]
	if !ok {
		values = make(Values, len(quarter.All))
		t[key] = values
	}
	values[q] = value
}

// Set writes value to key for quarter q on a copy of t and, when key is one side of a
// link and the quarter's base figure is non-zero, derives the paired field once.
// Absolute values are rounded to whole units, percentages to one decimal place.
func Set(t Targets, links []Link, key string, q quarter.ID, value float64) (Targets, []Change) {
	out := t.Clone()
	if out == nil {
		out = make(Targets)
	}
	out.put(key, q, value)
	changes := []Change{{Key: key, Quarter: q, Value: value}}

	for _, link := range links {
		switch key {
		case link.Percent:
			base, ok := out.Get(link.Base, q)
			if !ok || base == 0 {
				continue
			}
			derived := RoundWhole(base * value / 100)
			out.put(link.Absolute, q, derived)
			changes = append(changes, Change{Key: link.Absolute, Quarter: q, Value: derived, Derived: true})
		case link.Absolute:
			base, ok := out.Get(link.Base, q)
			if !ok || base == 0 {
				continue
			}
			derived := RoundTenth(value / base * 100)
			if math.IsNaN(derived) || math.IsInf(derived, 0) {
				continue
			}
			out.put(link.Percent, q, derived)
			changes = append(changes, Change{Key: link.Percent, Quarter: q, Value: derived, Derived: true})
		}
	}
	return out, changes
}

// RoundWhole rounds to the nearest whole currency unit.
func RoundWhole(v float64) float64 {
	return math.Round(v)
}

// RoundTenth rounds to one decimal place.
func RoundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
