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

// TestSignalDedup verifies the conditional put suppresses duplicates inside
// the cool-down and admits them after it passes.
func TestSignalDedup(t *testing.T, s store.Store) {
	ctx := context.Background()

	ok, err := s.PutSignal(ctx, types.Signal{
		SignalID:  "sig-1",
		TenantID:  "ct-signal-tenant",
		Type:      types.SignalInactivity,
		DedupKey:  "github/repo-a",
		EmittedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// Same (type, dedup key) inside the cool-down is suppressed.
	ok, err = s.PutSignal(ctx, types.Signal{
		SignalID:  "sig-2",
		TenantID:  "ct-signal-tenant",
		Type:      types.SignalInactivity,
		DedupKey:  "github/repo-a",
		EmittedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, ok)

	// Different dedup key is admitted.
	ok, err = s.PutSignal(ctx, types.Signal{
		SignalID:  "sig-3",
		TenantID:  "ct-signal-tenant",
		Type:      types.SignalInactivity,
		DedupKey:  "github/repo-b",
		EmittedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// A signal whose cool-down already passed does not suppress.
	ok, err = s.PutSignal(ctx, types.Signal{
		SignalID:  "sig-4",
		TenantID:  "ct-signal-tenant",
		Type:      types.SignalDeadlineApproaching,
		DedupKey:  "stale",
		EmittedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.PutSignal(ctx, types.Signal{
		SignalID:  "sig-5",
		TenantID:  "ct-signal-tenant",
		Type:      types.SignalDeadlineApproaching,
		DedupKey:  "stale",
		EmittedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, ok, "expired signal must not suppress a new one")

	sig, err := s.GetSignal(ctx, "ct-signal-tenant", types.SignalInactivity, "github/repo-a")
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "sig-1", sig.SignalID)

	signals, err := s.ListSignals(ctx, "ct-signal-tenant", 0)
	require.NoError(t, err)
	assert.Len(t, signals, 3)
}
