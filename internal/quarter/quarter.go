package quarter

import (
	"fmt"
	"strings"
	"time"
)

// YearType selects how quarters are laid out over a plan year.
type YearType string

const (
	// Calendar quarters run Jan-Mar, Apr-Jun, Jul-Sep, Oct-Dec of the plan year.
	Calendar YearType = "calendar"
	// Fiscal quarters follow a year ending June 30: Q1 starts July 1 of the prior year.
	Fiscal YearType = "fiscal"
)

// ParseYearType normalizes a year type string.
func ParseYearType(value string) (YearType, error) {
	switch YearType(strings.ToLower(strings.TrimSpace(value))) {
	case Calendar, "":
		return Calendar, nil
	case Fiscal:
		return Fiscal, nil
	default:
		return YearType(value), fmt.Errorf("invalid year type %q (expected fiscal or calendar)", value)
	}
}

func (y YearType) String() string {
	return string(y)
}

// ID is the ordinal slot of a quarter within a plan year, 1 through 4.
type ID int

const (
	Q1 ID = iota + 1
	Q2
	Q3
	Q4
)

// All lists the quarter ids in ordinal order.
var All = []ID{Q1, Q2, Q3, Q4}

// Valid reports whether the id names one of the four quarters.
func (id ID) Valid() bool {
	return id >= Q1 && id <= Q4
}

func (id ID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("Q?(%d)", int(id))
	}
	return fmt.Sprintf("Q%d", int(id))
}

// ParseID accepts "Q1".."Q4" (case-insensitive) or "1".."4".
func ParseID(value string) (ID, error) {
	v := strings.ToUpper(strings.TrimSpace(value))
	v = strings.TrimPrefix(v, "Q")
	if len(v) == 1 && v[0] >= '1' && v[0] <= '4' {
		return ID(v[0] - '0'), nil
	}
	return 0, fmt.Errorf("invalid quarter %q (expected Q1-Q4)", value)
}

// Info describes one quarter of a plan year relative to a point in time.
type Info struct {
	ID     ID
	Label  string
	Months string
	Start  time.Time
	End    time.Time

	IsPast    bool
	IsCurrent bool
	IsNext    bool
	IsLocked  bool
}

// Contains reports whether t falls within the quarter, inclusive of the final millisecond.
func (q Info) Contains(t time.Time) bool {
	return !t.Before(q.Start) && !t.After(q.End)
}

var monthAbbrev = [...]string{"", "Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// Compute returns the four quarters of planYear with flags evaluated against now.
// Dates are built in now's location. Unknown year types fall back to calendar layout.
func Compute(yearType YearType, planYear int, now time.Time) []Info {
	loc := now.Location()
	quarters := make([]Info, 0, len(All))
	current := -1

	for idx, id := range All {
		year, month := startMonth(yearType, planYear, id)
		start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
		// time.Date normalizes month overflow into the next year.
		end := time.Date(year, month+3, 1, 0, 0, 0, 0, loc).Add(-time.Millisecond)

		info := Info{
			ID:     id,
			Label:  id.String(),
			Months: fmt.Sprintf("%s-%s", monthAbbrev[start.Month()], monthAbbrev[end.Month()]),
			Start:  start,
			End:    end,
		}
		info.IsPast = end.Before(now)
		info.IsCurrent = info.Contains(now)
		info.IsLocked = info.IsPast || info.IsCurrent
		if info.IsCurrent {
			current = idx
		}
		quarters = append(quarters, info)
	}

	// No wrap across years: after the last quarter the caller advances planYear.
	if current >= 0 && current+1 < len(quarters) {
		quarters[current+1].IsNext = true
	}
	return quarters
}

func startMonth(yearType YearType, planYear int, id ID) (int, time.Month) {
	offset := int(id) - 1
	if yearType == Fiscal {
		// Q1 Jul of planYear-1, Q2 Oct of planYear-1, Q3 Jan, Q4 Apr of planYear.
		month := 7 + offset*3
		if month > 12 {
			return planYear, time.Month(month - 12)
		}
		return planYear - 1, time.Month(month)
	}
	return planYear, time.Month(1 + offset*3)
}

// DeterminePlanYear picks the plan year whose quarter set contains now.
// Fiscal years are named after the calendar year they end in.
func DeterminePlanYear(yearType YearType, now time.Time) int {
	if yearType == Fiscal && now.Month() >= time.July {
		return now.Year() + 1
	}
	return now.Year()
}

// PlanningHorizon returns the first quarter open for planning after now together with
// the plan year it belongs to, advancing to the following year when the current
// quarter closes the year.
func PlanningHorizon(yearType YearType, now time.Time) (Info, int) {
	year := DeterminePlanYear(yearType, now)
	for _, q := range Compute(yearType, year, now) {
		if !q.IsLocked {
			return q, year
		}
	}
	next := Compute(yearType, year+1, now)
	return next[0], year + 1
}

// Find returns the quarter with the given id.
func Find(quarters []Info, id ID) (Info, bool) {
	for _, q := range quarters {
		if q.ID == id {
			return q, true
		}
	}
	return Info{}, false
}
