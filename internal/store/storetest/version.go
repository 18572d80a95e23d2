package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline-systems/driftline/internal/store"
	"github.com/driftline-systems/driftline/pkg/types"
)

// TestVersionPutGet verifies version rows and descending list order.
func TestVersionPutGet(t *testing.T, s store.Store) {
	ctx := context.Background()

	for seq := 1; seq <= 3; seq++ {
		require.NoError(t, s.PutVersion(ctx, types.DeliverableVersion{
			DeliverableID: "ct-ver-deliv",
			Sequence:      seq,
			TenantID:      "ct-ver-tenant",
			Status:        types.VersionStaged,
			Version:       1,
		}))
	}

	// Duplicate sequence is refused.
	err := s.PutVersion(ctx, types.DeliverableVersion{
		DeliverableID: "ct-ver-deliv",
		Sequence:      2,
		Version:       1,
	})
	assert.Error(t, err)

	v, err := s.GetVersion(ctx, "ct-ver-deliv", 2)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, types.VersionStaged, v.Status)

	missing, err := s.GetVersion(ctx, "ct-ver-deliv", 99)
	require.NoError(t, err)
	assert.Nil(t, missing)

	versions, err := s.ListVersions(ctx, "ct-ver-deliv", 0)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, 3, versions[0].Sequence)
	assert.Equal(t, 1, versions[2].Sequence)

	latest, err := s.ListVersions(ctx, "ct-ver-deliv", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, 3, latest[0].Sequence)
}

// TestVersionCAS verifies compare-and-swap accepts a matching counter and
// rejects a stale one.
func TestVersionCAS(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.PutVersion(ctx, types.DeliverableVersion{
		DeliverableID: "ct-cas-deliv",
		Sequence:      1,
		Status:        types.VersionGenerating,
		Version:       1,
	}))

	ok, err := s.CompareAndSwapVersion(ctx, "ct-cas-deliv", 1, 1, types.DeliverableVersion{
		DeliverableID: "ct-cas-deliv",
		Sequence:      1,
		Status:        types.VersionStaged,
		Draft:         "generated text",
		Version:       2,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// Stale expected counter loses.
	ok, err = s.CompareAndSwapVersion(ctx, "ct-cas-deliv", 1, 1, types.DeliverableVersion{
		DeliverableID: "ct-cas-deliv",
		Sequence:      1,
		Status:        types.VersionFailed,
		Version:       2,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := s.GetVersion(ctx, "ct-cas-deliv", 1)
	require.NoError(t, err)
	assert.Equal(t, types.VersionStaged, v.Status)
	assert.Equal(t, 2, v.Version)
}
