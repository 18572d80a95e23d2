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

// TestContentUpsertGet verifies latest-wins upserts and lookups.
func TestContentUpsertGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	res := types.Resource{TenantID: "ct-content-tenant", Platform: "linear", ID: "proj-1"}

	require.NoError(t, s.UpsertContent(ctx, types.ContentItem{
		Resource:  res,
		ItemID:    "issue-1",
		Payload:   "first version",
		FetchedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	item, err := s.GetContent(ctx, res, "issue-1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "first version", item.Payload)

	// Re-fetch overwrites.
	require.NoError(t, s.UpsertContent(ctx, types.ContentItem{
		Resource:  res,
		ItemID:    "issue-1",
		Payload:   "second version",
		FetchedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	item, err = s.GetContent(ctx, res, "issue-1")
	require.NoError(t, err)
	assert.Equal(t, "second version", item.Payload)

	missing, err := s.GetContent(ctx, res, "no-such-item")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// TestContentRetention verifies the retention marker survives upserts and
// exempts rows from expiry deletion.
func TestContentRetention(t *testing.T, s store.Store) {
	ctx := context.Background()
	res := types.Resource{TenantID: "ct-retain-tenant", Platform: "linear", ID: "proj-1"}
	past := time.Now().Add(-time.Hour)

	require.NoError(t, s.UpsertContent(ctx, types.ContentItem{
		Resource:  res,
		ItemID:    "kept",
		Payload:   "pinned",
		FetchedAt: past,
		ExpiresAt: past,
	}))
	require.NoError(t, s.SetRetentionReason(ctx, res, "kept", "referenced by deliverable"))

	// Upsert does not clear the marker.
	require.NoError(t, s.UpsertContent(ctx, types.ContentItem{
		Resource:  res,
		ItemID:    "kept",
		Payload:   "pinned v2",
		FetchedAt: past,
		ExpiresAt: past,
	}))
	item, err := s.GetContent(ctx, res, "kept")
	require.NoError(t, err)
	assert.Equal(t, "referenced by deliverable", item.RetentionReason)

	// Expired but retained: not deleted.
	deleted, err := s.DeleteExpiredContent(ctx, "ct-retain-tenant", time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	// Clearing the reason makes the row sweepable again.
	require.NoError(t, s.SetRetentionReason(ctx, res, "kept", ""))
	deleted, err = s.DeleteExpiredContent(ctx, "ct-retain-tenant", time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

// TestContentExpiry verifies expiry deletion honors the batch limit and is
// idempotent.
func TestContentExpiry(t *testing.T, s store.Store) {
	ctx := context.Background()
	res := types.Resource{TenantID: "ct-expiry-tenant", Platform: "gmail", ID: "inbox"}
	past := time.Now().Add(-time.Minute)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.UpsertContent(ctx, types.ContentItem{
			Resource:  res,
			ItemID:    id,
			Payload:   "stale",
			FetchedAt: past,
			ExpiresAt: past,
		}))
	}
	require.NoError(t, s.UpsertContent(ctx, types.ContentItem{
		Resource:  res,
		ItemID:    "fresh",
		Payload:   "live",
		FetchedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	// Batch limit caps one pass.
	deleted, err := s.DeleteExpiredContent(ctx, "ct-expiry-tenant", time.Now(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	deleted, err = s.DeleteExpiredContent(ctx, "ct-expiry-tenant", time.Now(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	// Nothing left to delete; the fresh row survives.
	deleted, err = s.DeleteExpiredContent(ctx, "ct-expiry-tenant", time.Now(), 2)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	item, err := s.GetContent(ctx, res, "fresh")
	require.NoError(t, err)
	require.NotNil(t, item)
}
