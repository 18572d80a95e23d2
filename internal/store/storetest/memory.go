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

// TestMemoryFacts verifies fact round-trips and latest-wins updates.
func TestMemoryFacts(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.PutMemoryFact(ctx, types.MemoryFact{
		TenantID:  "ct-fact-tenant",
		Key:       "timezone",
		Value:     "America/New_York",
		Source:    "user",
		UpdatedAt: time.Now(),
	}))
	require.NoError(t, s.PutMemoryFact(ctx, types.MemoryFact{
		TenantID:  "ct-fact-tenant",
		Key:       "team",
		Value:     "platform",
		Source:    "system",
		UpdatedAt: time.Now(),
	}))

	facts, err := s.ListMemoryFacts(ctx, "ct-fact-tenant", 0)
	require.NoError(t, err)
	assert.Len(t, facts, 2)

	// Same key overwrites.
	require.NoError(t, s.PutMemoryFact(ctx, types.MemoryFact{
		TenantID:  "ct-fact-tenant",
		Key:       "timezone",
		Value:     "Europe/Berlin",
		UpdatedAt: time.Now(),
	}))
	facts, err = s.ListMemoryFacts(ctx, "ct-fact-tenant", 0)
	require.NoError(t, err)
	assert.Len(t, facts, 2)
	values := map[string]string{}
	for _, f := range facts {
		values[f.Key] = f.Value
	}
	assert.Equal(t, "Europe/Berlin", values["timezone"])
}

// TestActivityAppendList verifies activity is appended and listed recent-first.
func TestActivityAppendList(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().Add(-time.Minute).UTC()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendActivity(ctx, types.ActivityEvent{
			TenantID:  "ct-activity-tenant",
			Kind:      types.ActivityResourceSynced,
			Resource:  "github/repo-a",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	events, err := s.ListActivity(ctx, "ct-activity-tenant", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.True(t, events[0].Timestamp.After(events[2].Timestamp))

	limited, err := s.ListActivity(ctx, "ct-activity-tenant", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
