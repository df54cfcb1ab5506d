package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarterplan/internal/plan"
	"quarterplan/internal/quarter"
	"quarterplan/internal/targets"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "plans.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleSnapshot() plan.Snapshot {
	p := plan.New()
	p[quarter.Q1] = []plan.WorkItem{{ID: "crm", Title: "Roll out CRM", Priority: plan.PriorityHigh, AssigneeID: "pat"}}
	return plan.Snapshot{
		YearType: quarter.Fiscal,
		PlanYear: 2027,
		Items: []plan.WorkItem{
			{ID: "crm", Title: "Roll out CRM", Priority: plan.PriorityHigh},
			{ID: "blog", Title: "Relaunch blog", Priority: plan.PriorityLow},
		},
		Plan:    p,
		Targets: targets.Targets{"revenue": targets.Values{quarter.Q1: 100000}},
	}
}

func TestLoadMissingBusinessReturnsEmptyPlan(t *testing.T) {
	s := openStore(t)

	snap, err := s.Load(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", snap.BusinessID)
	assert.Equal(t, 0, snap.Revision)
	assert.Len(t, snap.Plan, 4)
	assert.Zero(t, snap.Plan.Count())
}

func TestSaveAndLoad(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, "acme", sampleSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Revision)
	assert.Equal(t, "acme", saved.BusinessID)

	loaded, err := s.Load(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Revision)
	assert.Equal(t, quarter.Fiscal, loaded.YearType)
	require.Len(t, loaded.Plan[quarter.Q1], 1)
	assert.Equal(t, "pat", loaded.Plan[quarter.Q1][0].AssigneeID)
	assert.Empty(t, loaded.Plan[quarter.Q2])
	v, ok := loaded.Targets.Get("revenue", quarter.Q1)
	assert.True(t, ok)
	assert.Equal(t, 100000.0, v)
}

func TestSaveAssignsMissingIDs(t *testing.T) {
	s := openStore(t)
	snap := sampleSnapshot()
	snap.Items = append(snap.Items, plan.WorkItem{Title: "Untitled initiative"})

	saved, err := s.Save(context.Background(), "acme", snap)
	require.NoError(t, err)
	require.Len(t, saved.Items, 3)
	assert.NotEmpty(t, saved.Items[2].ID)
	assert.Empty(t, snap.Items[2].ID, "input snapshot must not be modified")
}

func TestSaveRejectsStaleRevision(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first, err := s.Save(ctx, "acme", sampleSnapshot())
	require.NoError(t, err)
	second, err := s.Save(ctx, "acme", first)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Revision)

	_, err = s.Save(ctx, "acme", first)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestHistoryRecordsDiffs(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first, err := s.Save(ctx, "acme", sampleSnapshot())
	require.NoError(t, err)

	next := first.Clone()
	next.Plan[quarter.Q2] = append(next.Plan[quarter.Q2], plan.WorkItem{ID: "blog", Title: "Relaunch blog", Priority: plan.PriorityLow})
	_, err = s.Save(ctx, "acme", next)
	require.NoError(t, err)

	revs, err := s.History(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, 2, revs[0].Revision)
	assert.Regexp(t, `(?m)^\+\s+Q2:`, revs[0].Diff)
	assert.True(t, strings.HasPrefix(revs[1].Diff, "--- revision 0"))
	assert.False(t, revs[0].SavedAt.IsZero())

	other, err := s.History(ctx, "globex", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestKV(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	v, err := s.GetKV(ctx, "last_import")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetKV(ctx, "last_import", "plan.yml"))
	require.NoError(t, s.SetKV(ctx, "last_import", "plan-v2.yml"))
	v, err = s.GetKV(ctx, "last_import")
	require.NoError(t, err)
	assert.Equal(t, "plan-v2.yml", v)
}
