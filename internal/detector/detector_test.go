package detector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline-systems/driftline/internal/testutil"
	"github.com/driftline-systems/driftline/pkg/types"
)

type triggerRecorder struct {
	mu      sync.Mutex
	signals []types.Signal
}

func (r *triggerRecorder) record(_ context.Context, sig types.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, sig)
}

func (r *triggerRecorder) all() []types.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Signal(nil), r.signals...)
}

func newTestDetector(t *testing.T, st *testutil.MockStore, rec *triggerRecorder) *Detector {
	t.Helper()
	require.NoError(t, st.PutQuota(context.Background(), types.TenantQuota{TenantID: "acme", Tier: "starter"}))
	return New(st, rec.record, nil, &types.DetectorConfig{
		InactivityDays: 7,
		DeadlineDays:   3,
		Cooldown:       "72h",
	})
}

func seedStaleCursor(t *testing.T, st *testutil.MockStore, id string, lastSuccess time.Time) {
	t.Helper()
	require.NoError(t, st.PutCursor(context.Background(), types.SyncCursor{
		Resource:    types.Resource{TenantID: "acme", Platform: "slack", ID: id},
		LastSuccess: lastSuccess,
		LastAttempt: lastSuccess,
	}))
}

func TestScan_EmitsInactivitySignal(t *testing.T) {
	st := testutil.NewMockStore()
	rec := &triggerRecorder{}
	d := newTestDetector(t, st, rec)

	seedStaleCursor(t, st, "general", time.Now().Add(-10*24*time.Hour))

	require.NoError(t, d.Scan(context.Background()))

	signals := rec.all()
	require.Len(t, signals, 1)
	assert.Equal(t, types.SignalInactivity, signals[0].Type)
	assert.Equal(t, "acme/slack/general", signals[0].DedupKey)
	assert.NotEmpty(t, signals[0].SignalID)
}

func TestScan_ActiveResourceNotFlagged(t *testing.T) {
	st := testutil.NewMockStore()
	rec := &triggerRecorder{}
	d := newTestDetector(t, st, rec)

	seedStaleCursor(t, st, "general", time.Now().Add(-time.Hour))

	require.NoError(t, d.Scan(context.Background()))
	assert.Empty(t, rec.all())
}

func TestScan_RecentContentCountsAsActivity(t *testing.T) {
	// The cursor is stale but freshly fetched content resets the clock.
	st := testutil.NewMockStore()
	rec := &triggerRecorder{}
	d := newTestDetector(t, st, rec)

	res := types.Resource{TenantID: "acme", Platform: "slack", ID: "general"}
	seedStaleCursor(t, st, "general", time.Now().Add(-10*24*time.Hour))
	require.NoError(t, st.UpsertContent(context.Background(), types.ContentItem{
		Resource:  res,
		ItemID:    "m1",
		Payload:   "recent message",
		FetchedAt: time.Now().Add(-time.Hour),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}))

	require.NoError(t, d.Scan(context.Background()))
	assert.Empty(t, rec.all())
}

func TestScan_CooldownSuppressesRepeat(t *testing.T) {
	st := testutil.NewMockStore()
	rec := &triggerRecorder{}
	d := newTestDetector(t, st, rec)

	seedStaleCursor(t, st, "general", time.Now().Add(-10*24*time.Hour))

	require.NoError(t, d.Scan(context.Background()))
	require.NoError(t, d.Scan(context.Background()))

	// The second scan matched again but the cool-down suppressed the emit.
	assert.Len(t, rec.all(), 1)
}

func TestScan_ExpiredCooldownReEmits(t *testing.T) {
	st := testutil.NewMockStore()
	rec := &triggerRecorder{}
	d := newTestDetector(t, st, rec)
	d.cooldown = 50 * time.Millisecond

	seedStaleCursor(t, st, "general", time.Now().Add(-10*24*time.Hour))

	require.NoError(t, d.Scan(context.Background()))
	time.Sleep(80 * time.Millisecond)
	require.NoError(t, d.Scan(context.Background()))

	assert.Len(t, rec.all(), 2)
}

func TestScan_DistinctResourcesEmitIndependently(t *testing.T) {
	st := testutil.NewMockStore()
	rec := &triggerRecorder{}
	d := newTestDetector(t, st, rec)

	seedStaleCursor(t, st, "general", time.Now().Add(-10*24*time.Hour))
	seedStaleCursor(t, st, "random", time.Now().Add(-10*24*time.Hour))

	require.NoError(t, d.Scan(context.Background()))
	assert.Len(t, rec.all(), 2)
}

func TestScan_DeadlineInContent(t *testing.T) {
	st := testutil.NewMockStore()
	rec := &triggerRecorder{}
	d := newTestDetector(t, st, rec)

	res := types.Resource{TenantID: "acme", Platform: "slack", ID: "general"}
	due := time.Now().Add(48 * time.Hour).Format("2006-01-02")
	require.NoError(t, st.UpsertContent(context.Background(), types.ContentItem{
		Resource:  res,
		ItemID:    "m1",
		Payload:   "contract renewal due " + due,
		FetchedAt: time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}))

	require.NoError(t, d.Scan(context.Background()))

	signals := rec.all()
	require.Len(t, signals, 1)
	assert.Equal(t, types.SignalDeadlineApproaching, signals[0].Type)
}

func TestScan_PastAndFarDatesIgnored(t *testing.T) {
	st := testutil.NewMockStore()
	rec := &triggerRecorder{}
	d := newTestDetector(t, st, rec)

	res := types.Resource{TenantID: "acme", Platform: "slack", ID: "general"}
	past := time.Now().Add(-48 * time.Hour).Format("2006-01-02")
	far := time.Now().Add(30 * 24 * time.Hour).Format("2006-01-02")
	require.NoError(t, st.UpsertContent(context.Background(), types.ContentItem{
		Resource:  res,
		ItemID:    "m1",
		Payload:   "shipped " + past + ", next review " + far,
		FetchedAt: time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}))

	require.NoError(t, d.Scan(context.Background()))
	assert.Empty(t, rec.all())
}

func TestScan_RecordsActivity(t *testing.T) {
	st := testutil.NewMockStore()
	rec := &triggerRecorder{}
	d := newTestDetector(t, st, rec)

	seedStaleCursor(t, st, "general", time.Now().Add(-10*24*time.Hour))
	require.NoError(t, d.Scan(context.Background()))

	activity, err := st.ListActivity(context.Background(), "acme", 10)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, types.ActivitySignalEmitted, activity[0].Kind)
}
