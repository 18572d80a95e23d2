package assembler

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline-systems/driftline/internal/quota"
	"github.com/driftline-systems/driftline/internal/testutil"
	"github.com/driftline-systems/driftline/pkg/types"
)

func seedTenant(t *testing.T, st *testutil.MockStore) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, st.PutMemoryFact(ctx, types.MemoryFact{
			TenantID:  "acme",
			Key:       fmt.Sprintf("pref-%d", i),
			Value:     "concise weekly summaries",
			UpdatedAt: time.Now(),
		}))
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, st.AppendActivity(ctx, types.ActivityEvent{
			EventID:   fmt.Sprintf("ev-%d", i),
			TenantID:  "acme",
			Kind:      types.ActivityResourceSynced,
			Platform:  "slack",
			Resource:  "general",
			Timestamp: time.Now(),
		}))
	}
	require.NoError(t, st.PutDeliverable(ctx, types.Deliverable{
		ID:       "d1",
		TenantID: "acme",
		Name:     "Weekly digest",
		Schedule: types.ScheduleSpec{Frequency: types.FreqDaily},
		Status:   types.DeliverableActive,
	}))
	require.NoError(t, st.PutDeliverable(ctx, types.Deliverable{
		ID:       "d2",
		TenantID: "acme",
		Name:     "Paused report",
		Schedule: types.ScheduleSpec{Frequency: types.FreqDaily},
		Status:   types.DeliverablePaused,
	}))
	require.NoError(t, st.PutCursor(ctx, types.SyncCursor{
		Resource:    types.Resource{TenantID: "acme", Platform: "slack", ID: "general"},
		LastSuccess: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, st.PutCursor(ctx, types.SyncCursor{
		Resource:  types.Resource{TenantID: "acme", Platform: "gmail", ID: "inbox"},
		Suspended: true,
	}))
}

func TestAssemble_FillsAllSections(t *testing.T) {
	st := testutil.NewMockStore()
	seedTenant(t, st)
	a := New(st, nil, nil, nil)

	bundle, err := a.Assemble(context.Background(), "acme")
	require.NoError(t, err)

	assert.Len(t, bundle.Facts, 3)
	assert.Len(t, bundle.Activity, 5)
	require.Len(t, bundle.Deliverables, 1)
	assert.Equal(t, "d1", bundle.Deliverables[0].ID)
	assert.Len(t, bundle.Freshness, 2)
	assert.Positive(t, bundle.UsedChars)
	assert.LessOrEqual(t, bundle.UsedChars, bundle.BudgetChars)
}

func TestAssemble_BudgetTruncatesGreedily(t *testing.T) {
	st := testutil.NewMockStore()
	ctx := context.Background()

	// Each fact costs well over half the tiny budget, so only one fits.
	for i := 0; i < 4; i++ {
		require.NoError(t, st.PutMemoryFact(ctx, types.MemoryFact{
			TenantID: "acme",
			Key:      fmt.Sprintf("fact-%d", i),
			Value:    strings.Repeat("x", 60),
		}))
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, st.AppendActivity(ctx, types.ActivityEvent{
			EventID:  fmt.Sprintf("ev-%d", i),
			TenantID: "acme",
			Kind:     types.ActivityResourceSynced,
			Message:  strings.Repeat("y", 60),
		}))
	}

	a := New(st, nil, nil, &types.AssemblerConfig{BudgetChars: 100})
	bundle, err := a.Assemble(ctx, "acme")
	require.NoError(t, err)

	// Higher-priority facts consume the budget before activity gets any.
	assert.Len(t, bundle.Facts, 1)
	assert.Empty(t, bundle.Activity)
	assert.LessOrEqual(t, bundle.UsedChars, 100)
}

func TestAssemble_EmptyTenant(t *testing.T) {
	st := testutil.NewMockStore()
	a := New(st, nil, nil, nil)

	bundle, err := a.Assemble(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, bundle.Facts)
	assert.Empty(t, bundle.Activity)
	assert.Empty(t, bundle.Deliverables)
	assert.Empty(t, bundle.Freshness)
	assert.Zero(t, bundle.UsedChars)
}

func TestAssemble_FreshnessReportsStaleness(t *testing.T) {
	st := testutil.NewMockStore()
	ctx := context.Background()
	old := time.Now().Add(-72 * time.Hour)
	recent := time.Now().Add(-time.Hour)

	require.NoError(t, st.PutCursor(ctx, types.SyncCursor{
		Resource:    types.Resource{TenantID: "acme", Platform: "slack", ID: "general"},
		LastSuccess: old,
	}))
	require.NoError(t, st.PutCursor(ctx, types.SyncCursor{
		Resource:    types.Resource{TenantID: "acme", Platform: "slack", ID: "random"},
		LastSuccess: recent,
	}))
	require.NoError(t, st.PutCursor(ctx, types.SyncCursor{
		Resource: types.Resource{TenantID: "acme", Platform: "slack", ID: "new"},
	}))

	a := New(st, nil, nil, nil)
	bundle, err := a.Assemble(ctx, "acme")
	require.NoError(t, err)

	require.Len(t, bundle.Freshness, 1)
	pf := bundle.Freshness[0]
	assert.Equal(t, "slack", pf.Platform)
	assert.Equal(t, 3, pf.Resources)
	assert.Equal(t, 1, pf.NeverSynced)
	assert.True(t, pf.OldestSync.Equal(old))
	assert.True(t, pf.NewestSync.Equal(recent))
}

func TestAssemble_LastVersionStatusIncluded(t *testing.T) {
	st := testutil.NewMockStore()
	ctx := context.Background()
	require.NoError(t, st.PutDeliverable(ctx, types.Deliverable{
		ID:       "d1",
		TenantID: "acme",
		Name:     "Digest",
		Status:   types.DeliverableActive,
	}))
	require.NoError(t, st.PutVersion(ctx, types.DeliverableVersion{
		DeliverableID: "d1", Sequence: 1, TenantID: "acme", Status: types.VersionApproved, Version: 3,
	}))
	require.NoError(t, st.PutVersion(ctx, types.DeliverableVersion{
		DeliverableID: "d1", Sequence: 2, TenantID: "acme", Status: types.VersionStaged, Version: 2,
	}))

	a := New(st, nil, nil, nil)
	bundle, err := a.Assemble(ctx, "acme")
	require.NoError(t, err)

	require.Len(t, bundle.Deliverables, 1)
	assert.Equal(t, types.VersionStaged, bundle.Deliverables[0].LastStatus)
}

func TestAssemble_MetersMonthlyInteractions(t *testing.T) {
	st := testutil.NewMockStore()
	seedTenant(t, st)
	ctx := context.Background()
	require.NoError(t, st.PutQuota(ctx, types.TenantQuota{
		TenantID: "acme",
		Tier:     "starter",
		Usage:    map[types.ResourceClass]int64{},
	}))
	tiers := []types.TierConfig{{
		Name:      "starter",
		Frequency: types.FreqDaily,
		Limits: map[types.ResourceClass]int64{
			types.ClassMonthlyInteractions: 2,
		},
	}}
	a := New(st, quota.NewRegistry(st, tiers, "starter", nil), nil, nil)

	for i := 0; i < 2; i++ {
		_, err := a.Assemble(ctx, "acme")
		require.NoError(t, err)
	}

	var qe *types.QuotaExceededError
	_, err := a.Assemble(ctx, "acme")
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, types.ClassMonthlyInteractions, qe.Class)
}
