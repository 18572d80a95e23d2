package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline-systems/driftline/internal/store"
	"github.com/driftline-systems/driftline/pkg/types"
)

// TestQuotaPutGet verifies quota round-trips and unknown-tenant lookups.
func TestQuotaPutGet(t *testing.T, s store.Store) {
	ctx := context.Background()

	err := s.PutQuota(ctx, types.TenantQuota{
		TenantID: "ct-quota-tenant",
		Tier:     "pro",
		Usage: map[types.ResourceClass]int64{
			types.ClassPlatforms: 2,
		},
		UpdatedAt: time.Now(),
	})
	require.NoError(t, err)

	quota, err := s.GetQuota(ctx, "ct-quota-tenant")
	require.NoError(t, err)
	require.NotNil(t, quota)
	assert.Equal(t, "pro", quota.Tier)
	assert.Equal(t, int64(2), quota.Usage[types.ClassPlatforms])

	missing, err := s.GetQuota(ctx, "ct-no-such-tenant")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// TestReserveUsageLimit verifies reservations respect the limit boundary.
func TestReserveUsageLimit(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.PutQuota(ctx, types.TenantQuota{
		TenantID: "ct-limit-tenant",
		Tier:     "starter",
		Usage:    map[types.ResourceClass]int64{},
	}))

	// Fill to the limit.
	ok, usage, err := s.ReserveUsage(ctx, "ct-limit-tenant", types.ClassActiveDeliverables, 2, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), usage)

	ok, usage, err = s.ReserveUsage(ctx, "ct-limit-tenant", types.ClassActiveDeliverables, 1, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), usage)

	// One past the limit is refused.
	ok, usage, err = s.ReserveUsage(ctx, "ct-limit-tenant", types.ClassActiveDeliverables, 1, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(3), usage)

	// Zero or negative limit means unlimited.
	ok, _, err = s.ReserveUsage(ctx, "ct-limit-tenant", types.ClassMonthlyInteractions, 1000, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestReserveUsageRace verifies concurrent reservations never overshoot.
func TestReserveUsageRace(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.PutQuota(ctx, types.TenantQuota{
		TenantID: "ct-race-tenant",
		Tier:     "starter",
		Usage:    map[types.ResourceClass]int64{},
	}))

	const workers = 10
	const limit = 4

	var wg sync.WaitGroup
	granted := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := s.ReserveUsage(ctx, "ct-race-tenant", types.ClassSourcesPerPlatform, 1, limit)
			assert.NoError(t, err)
			if ok {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	assert.Len(t, granted, limit)

	quota, err := s.GetQuota(ctx, "ct-race-tenant")
	require.NoError(t, err)
	assert.Equal(t, int64(limit), quota.Usage[types.ClassSourcesPerPlatform])
}

// TestReleaseUsageClamp verifies release never drives a counter negative.
func TestReleaseUsageClamp(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.PutQuota(ctx, types.TenantQuota{
		TenantID: "ct-clamp-tenant",
		Tier:     "starter",
		Usage: map[types.ResourceClass]int64{
			types.ClassPlatforms: 1,
		},
	}))

	require.NoError(t, s.ReleaseUsage(ctx, "ct-clamp-tenant", types.ClassPlatforms, 1))
	require.NoError(t, s.ReleaseUsage(ctx, "ct-clamp-tenant", types.ClassPlatforms, 5))

	quota, err := s.GetQuota(ctx, "ct-clamp-tenant")
	require.NoError(t, err)
	assert.Equal(t, int64(0), quota.Usage[types.ClassPlatforms])
}
