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

// TestCursorPutGetList verifies cursor round-trips and tenant scoping.
func TestCursorPutGetList(t *testing.T, s store.Store) {
	ctx := context.Background()

	res1 := types.Resource{TenantID: "ct-cursor-tenant", Platform: "github", ID: "repo-a"}
	res2 := types.Resource{TenantID: "ct-cursor-tenant", Platform: "notion", ID: "page-b"}
	other := types.Resource{TenantID: "ct-cursor-other", Platform: "github", ID: "repo-a"}

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.PutCursor(ctx, types.SyncCursor{
		Resource:    res1,
		Position:    "etag-123",
		LastSuccess: now,
	}))
	require.NoError(t, s.PutCursor(ctx, types.SyncCursor{Resource: res2}))
	require.NoError(t, s.PutCursor(ctx, types.SyncCursor{Resource: other}))

	cursor, err := s.GetCursor(ctx, res1)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, "etag-123", cursor.Position)
	assert.True(t, cursor.LastSuccess.Equal(now))

	missing, err := s.GetCursor(ctx, types.Resource{TenantID: "ct-cursor-tenant", Platform: "github", ID: "nope"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	cursors, err := s.ListCursors(ctx, "ct-cursor-tenant")
	require.NoError(t, err)
	assert.Len(t, cursors, 2)

	// Updates overwrite.
	require.NoError(t, s.PutCursor(ctx, types.SyncCursor{
		Resource:  res1,
		Position:  "etag-456",
		Suspended: true,
	}))
	cursor, err = s.GetCursor(ctx, res1)
	require.NoError(t, err)
	assert.Equal(t, "etag-456", cursor.Position)
	assert.True(t, cursor.Suspended)
}
