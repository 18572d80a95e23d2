package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline-systems/driftline/internal/store"
	"github.com/driftline-systems/driftline/pkg/types"
)

// TestDeliverableCRUD verifies deliverable round-trips and tenant listing.
func TestDeliverableCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()

	d := types.Deliverable{
		ID:       "ct-deliv-1",
		TenantID: "ct-deliv-tenant",
		Name:     "weekly status report",
		Schedule: types.ScheduleSpec{Frequency: types.FreqDaily, Anchor: "09:00", Timezone: "UTC"},
		Sources: []types.Resource{
			{TenantID: "ct-deliv-tenant", Platform: "github", ID: "repo-a"},
		},
		Status:    types.DeliverableActive,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.PutDeliverable(ctx, d))
	require.NoError(t, s.PutDeliverable(ctx, types.Deliverable{
		ID:       "ct-deliv-2",
		TenantID: "ct-deliv-tenant",
		Name:     "standup digest",
		Status:   types.DeliverablePaused,
	}))

	got, err := s.GetDeliverable(ctx, "ct-deliv-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "weekly status report", got.Name)
	assert.Len(t, got.Sources, 1)

	missing, err := s.GetDeliverable(ctx, "ct-no-such-deliv")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := s.ListDeliverables(ctx, "ct-deliv-tenant")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	// Status update propagates to both read paths.
	d.Status = types.DeliverablePaused
	require.NoError(t, s.PutDeliverable(ctx, d))
	got, err = s.GetDeliverable(ctx, "ct-deliv-1")
	require.NoError(t, err)
	assert.Equal(t, types.DeliverablePaused, got.Status)
}
