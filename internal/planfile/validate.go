package planfile

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"quarterplan/internal/allocation"
	"quarterplan/internal/plan"
	"quarterplan/internal/quarter"
	"quarterplan/internal/targets"
)

type rawDocument struct {
	BusinessID string                        `yaml:"business_id"`
	YearType   string                        `yaml:"year_type,omitempty"`
	PlanYear   int                           `yaml:"plan_year,omitempty"`
	Items      []rawItem                     `yaml:"items"`
	Quarters   map[string][]string           `yaml:"quarters,omitempty"`
	Targets    map[string]map[string]float64 `yaml:"targets,omitempty"`
}

type rawItem struct {
	ID          string          `yaml:"id,omitempty"`
	Title       string          `yaml:"title"`
	Description string          `yaml:"description,omitempty"`
	Category    string          `yaml:"category,omitempty"`
	Priority    string          `yaml:"priority,omitempty"`
	Origin      string          `yaml:"origin,omitempty"`
	Assignee    string          `yaml:"assignee,omitempty"`
	Execution   *plan.Execution `yaml:"execution,omitempty"`
}

// ValidationError captures a single field-specific validation issue.
type ValidationError struct {
	File    string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
}

// ValidationErrors aggregates multiple validation problems.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n")
}

// Options controls how a plan document is checked.
type Options struct {
	Capacity allocation.Config
}

// Parse unmarshals and validates a YAML plan document. Quarter placements and
// assignments go through the allocation engine, so capacity violations surface as
// validation errors.
func Parse(data []byte, source string, opts Options) (plan.Snapshot, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return plan.Snapshot{}, ValidationErrors{{
			File:    source,
			Field:   "yaml",
			Message: err.Error(),
		}}
	}
	return validateRawDocument(raw, source, opts)
}

func validateRawDocument(raw rawDocument, source string, opts Options) (plan.Snapshot, error) {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{File: source, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(raw.BusinessID) == "" {
		add("business_id", "business_id is required")
	}
	yearType, err := quarter.ParseYearType(raw.YearType)
	if err != nil {
		add("year_type", "%s", err.Error())
	}
	if raw.PlanYear < 0 {
		add("plan_year", "must not be negative")
	}

	byID := make(map[string]plan.WorkItem)
	items := make([]plan.WorkItem, 0, len(raw.Items))
	for idx, rawIt := range raw.Items {
		path := fmt.Sprintf("items[%d]", idx)
		item, itemErrs := validateItem(rawIt, path, source)
		errs = append(errs, itemErrs...)
		if item.ID != "" {
			if _, exists := byID[item.ID]; exists {
				add(path+".id", "duplicate id %q", item.ID)
				continue
			}
			byID[item.ID] = item
		}
		// Assignment belongs to a quarter placement, not to the selection pool.
		pooled := item
		pooled.AssigneeID = ""
		items = append(items, pooled)
	}

	engine := allocation.New(opts.Capacity)
	canonical := plan.New()
	for _, key := range sortedKeys(raw.Quarters) {
		q, qErr := quarter.ParseID(key)
		if qErr != nil {
			add("quarters."+key, "%s", qErr.Error())
			continue
		}
		for idx, id := range raw.Quarters[key] {
			path := fmt.Sprintf("quarters.%s[%d]", key, idx)
			item, ok := byID[strings.TrimSpace(id)]
			if !ok {
				add(path, "unknown item id %q", id)
				continue
			}
			if from, _, placed := canonical.Locate(item.ID); placed {
				add(path, "item %q already placed in %s", item.ID, from)
				continue
			}
			assignee := item.AssigneeID
			item.AssigneeID = ""
			next, placeErr := engine.PlaceInQuarter(canonical, item, q)
			if placeErr != nil {
				add(path, "%s", placeErr.Error())
				continue
			}
			if assignee != "" {
				assigned, assignErr := engine.AssignPerson(next, item.ID, q, assignee)
				if assignErr != nil {
					add(path, "%s", assignErr.Error())
				} else {
					next = assigned
				}
			}
			canonical = next
		}
	}

	tgts := make(targets.Targets)
	for _, key := range sortedKeys(raw.Targets) {
		values := make(targets.Values)
		for qKey, v := range raw.Targets[key] {
			q, qErr := quarter.ParseID(qKey)
			if qErr != nil {
				add(fmt.Sprintf("targets.%s.%s", key, qKey), "%s", qErr.Error())
				continue
			}
			values[q] = v
		}
		tgts[key] = values
	}

	if len(errs) > 0 {
		return plan.Snapshot{}, errs
	}

	return plan.Snapshot{
		BusinessID: strings.TrimSpace(raw.BusinessID),
		YearType:   yearType,
		PlanYear:   raw.PlanYear,
		Items:      items,
		Plan:       canonical,
		Targets:    tgts,
	}, nil
}

func validateItem(raw rawItem, fieldPath string, source string) (plan.WorkItem, ValidationErrors) {
	var errs ValidationErrors

	if strings.TrimSpace(raw.Title) == "" {
		errs = append(errs, ValidationError{
			File:    source,
			Field:   fieldPath + ".title",
			Message: "title is required",
		})
	}
	priority, err := plan.ParsePriority(raw.Priority)
	if err != nil {
		errs = append(errs, ValidationError{
			File:    source,
			Field:   fieldPath + ".priority",
			Message: err.Error(),
		})
	}
	origin, err := plan.ParseOrigin(raw.Origin)
	if err != nil {
		errs = append(errs, ValidationError{
			File:    source,
			Field:   fieldPath + ".origin",
			Message: err.Error(),
		})
	}

	item := plan.WorkItem{
		ID:          strings.TrimSpace(raw.ID),
		Title:       strings.TrimSpace(raw.Title),
		Description: strings.TrimSpace(raw.Description),
		Category:    strings.TrimSpace(raw.Category),
		Priority:    priority,
		Origin:      origin,
		AssigneeID:  strings.TrimSpace(raw.Assignee),
	}
	if raw.Execution != nil && !raw.Execution.IsZero() {
		exec := raw.Execution.Clone()
		exec.RecalculateEffort()
		item.Execution = &exec
	}
	return item, errs
}

// IsValidation reports whether err carries document validation problems.
func IsValidation(err error) bool {
	var ve ValidationErrors
	return errors.As(err, &ve)
}
