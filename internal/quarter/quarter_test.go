package quarter

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestComputeFiscalBoundaries(t *testing.T) {
	qs := Compute(Fiscal, 2026, date(2020, time.January, 1))
	if len(qs) != 4 {
		t.Fatalf("expected 4 quarters, got %d", len(qs))
	}

	want := []struct {
		start string
		end   string
	}{
		{"2025-07-01", "2025-09-30"},
		{"2025-10-01", "2025-12-31"},
		{"2026-01-01", "2026-03-31"},
		{"2026-04-01", "2026-06-30"},
	}
	for i, w := range want {
		if got := qs[i].Start.Format("2006-01-02"); got != w.start {
			t.Fatalf("%s start = %s, want %s", qs[i].ID, got, w.start)
		}
		if got := qs[i].End.Format("2006-01-02"); got != w.end {
			t.Fatalf("%s end = %s, want %s", qs[i].ID, got, w.end)
		}
	}
	if qs[0].Months != "Jul-Sep" {
		t.Fatalf("fiscal Q1 months = %q", qs[0].Months)
	}
}

func TestComputeCalendarBoundaries(t *testing.T) {
	qs := Compute(Calendar, 2026, date(2020, time.January, 1))
	if got := qs[0].Start.Format("2006-01-02"); got != "2026-01-01" {
		t.Fatalf("calendar Q1 start = %s", got)
	}
	if got := qs[3].End.Format("2006-01-02 15:04:05.000"); got != "2026-12-31 23:59:59.999" {
		t.Fatalf("calendar Q4 end = %s", got)
	}
}

func TestComputeContiguousAndSingleCurrent(t *testing.T) {
	nows := []time.Time{
		date(2024, time.February, 29),
		date(2025, time.July, 1),
		date(2025, time.December, 31),
		date(2026, time.June, 30),
		date(2030, time.March, 3),
	}
	for _, yt := range []YearType{Fiscal, Calendar} {
		for year := 2024; year <= 2027; year++ {
			for _, now := range nows {
				qs := Compute(yt, year, now)
				if len(qs) != 4 {
					t.Fatalf("%s %d: expected 4 quarters", yt, year)
				}
				current, next := 0, 0
				for i, q := range qs {
					if q.IsCurrent {
						current++
					}
					if q.IsNext {
						next++
						if q.IsLocked {
							t.Fatalf("%s %d: next quarter %s is locked", yt, year, q.ID)
						}
					}
					if q.IsLocked != (q.IsPast || q.IsCurrent) {
						t.Fatalf("%s %d: lock flag inconsistent for %s", yt, year, q.ID)
					}
					if i > 0 && !qs[i-1].End.Add(time.Millisecond).Equal(q.Start) {
						t.Fatalf("%s %d: %s does not follow %s", yt, year, q.ID, qs[i-1].ID)
					}
				}
				if current > 1 || next > 1 {
					t.Fatalf("%s %d now=%s: current=%d next=%d", yt, year, now, current, next)
				}
			}
		}
	}
}

func TestComputeFlagsRelativeToNow(t *testing.T) {
	// 2025-11-15 falls in fiscal 2026 Q2.
	qs := Compute(Fiscal, 2026, date(2025, time.November, 15))
	if !qs[0].IsPast || !qs[0].IsLocked {
		t.Fatalf("Q1 should be past and locked: %+v", qs[0])
	}
	if !qs[1].IsCurrent || !qs[1].IsLocked {
		t.Fatalf("Q2 should be current and locked: %+v", qs[1])
	}
	if !qs[2].IsNext || qs[2].IsLocked {
		t.Fatalf("Q3 should be next and unlocked: %+v", qs[2])
	}
	if qs[3].IsNext || qs[3].IsLocked {
		t.Fatalf("Q4 should be open and not next: %+v", qs[3])
	}
}

func TestComputeEndDayInclusive(t *testing.T) {
	lastMoment := time.Date(2026, time.March, 31, 23, 59, 59, 999_000_000, time.UTC)
	qs := Compute(Calendar, 2026, lastMoment)
	if !qs[0].IsCurrent || qs[0].IsPast {
		t.Fatalf("Q1 should still be current on its last millisecond: %+v", qs[0])
	}
}

func TestComputeLastQuarterHasNoNext(t *testing.T) {
	qs := Compute(Calendar, 2026, date(2026, time.November, 2))
	for _, q := range qs {
		if q.IsNext {
			t.Fatalf("no quarter should be next when Q4 is current, got %s", q.ID)
		}
	}
}

func TestComputeElapsedYear(t *testing.T) {
	qs := Compute(Calendar, 2020, date(2026, time.May, 1))
	for _, q := range qs {
		if q.IsCurrent || !q.IsPast {
			t.Fatalf("all quarters of an elapsed year should be past: %+v", q)
		}
	}
}

func TestDeterminePlanYear(t *testing.T) {
	cases := []struct {
		yt   YearType
		now  time.Time
		want int
	}{
		{Fiscal, date(2025, time.June, 30), 2025},
		{Fiscal, date(2025, time.July, 1), 2026},
		{Fiscal, date(2025, time.December, 1), 2026},
		{Calendar, date(2025, time.July, 1), 2025},
		{Calendar, date(2025, time.December, 31), 2025},
	}
	for _, tc := range cases {
		if got := DeterminePlanYear(tc.yt, tc.now); got != tc.want {
			t.Fatalf("DeterminePlanYear(%s, %s) = %d, want %d", tc.yt, tc.now.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestPlanningHorizonAdvancesYear(t *testing.T) {
	q, year := PlanningHorizon(Calendar, date(2026, time.October, 14))
	if year != 2027 || q.ID != Q1 {
		t.Fatalf("horizon = %s %d, want Q1 2027", q.ID, year)
	}

	q, year = PlanningHorizon(Fiscal, date(2026, time.October, 14))
	if year != 2027 || q.ID != Q3 {
		t.Fatalf("horizon = %s %d, want Q3 2027", q.ID, year)
	}
}

func TestParseID(t *testing.T) {
	for in, want := range map[string]ID{"Q1": Q1, "q3": Q3, "4": Q4, " Q2 ": Q2} {
		got, err := ParseID(in)
		if err != nil || got != want {
			t.Fatalf("ParseID(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseID("Q5"); err == nil {
		t.Fatalf("expected error for Q5")
	}
}

func TestParseYearType(t *testing.T) {
	if yt, err := ParseYearType("Fiscal"); err != nil || yt != Fiscal {
		t.Fatalf("ParseYearType(Fiscal) = %v, %v", yt, err)
	}
	if yt, err := ParseYearType(""); err != nil || yt != Calendar {
		t.Fatalf("empty year type should default to calendar, got %v, %v", yt, err)
	}
	if _, err := ParseYearType("lunar"); err == nil {
		t.Fatalf("expected error for unknown year type")
	}
}
