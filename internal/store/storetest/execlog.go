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

// TestExecutionLogs verifies audit records append and list recent-first.
func TestExecutionLogs(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().Add(-time.Minute).UTC()

	for seq := 1; seq <= 3; seq++ {
		require.NoError(t, s.AppendExecutionLog(ctx, types.ExecutionLog{
			DeliverableID: "ct-log-deliv",
			TenantID:      "ct-log-tenant",
			Sequence:      seq,
			Outcome:       "staged",
			Attempts:      1,
			Sources: []types.SourceRead{
				{Resource: types.Resource{TenantID: "ct-log-tenant", Platform: "github", ID: "repo-a"}, ItemCount: seq},
			},
			StartedAt:   base.Add(time.Duration(seq) * time.Second),
			CompletedAt: base.Add(time.Duration(seq)*time.Second + 500*time.Millisecond),
		}))
	}

	logs, err := s.ListExecutionLogs(ctx, "ct-log-deliv", 0)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, 3, logs[0].Sequence)
	require.Len(t, logs[0].Sources, 1)
	assert.Equal(t, 3, logs[0].Sources[0].ItemCount)

	limited, err := s.ListExecutionLogs(ctx, "ct-log-deliv", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// TestLeasing verifies acquire, contention, release, and TTL expiry.
func TestLeasing(t *testing.T, s store.Store) {
	ctx := context.Background()

	ok, err := s.AcquireLease(ctx, "ct-lease:sync:a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Held lease refuses a second acquirer.
	ok, err = s.AcquireLease(ctx, "ct-lease:sync:a", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// Different key is independent.
	ok, err = s.AcquireLease(ctx, "ct-lease:sync:b", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.ReleaseLease(ctx, "ct-lease:sync:a"))

	ok, err = s.AcquireLease(ctx, "ct-lease:sync:a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Expired lease is acquirable without release.
	ok, err = s.AcquireLease(ctx, "ct-lease:expiring", 1*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(1500 * time.Millisecond)

	ok, err = s.AcquireLease(ctx, "ct-lease:expiring", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
