package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline-systems/driftline/internal/connector"
	"github.com/driftline-systems/driftline/internal/quota"
	"github.com/driftline-systems/driftline/internal/testutil"
	"github.com/driftline-systems/driftline/pkg/types"
)

var testTiers = []types.TierConfig{
	{
		Name:      "starter",
		Frequency: types.FreqDaily,
		Limits: map[types.ResourceClass]int64{
			types.ClassSourcesPerPlatform: 3,
		},
	},
	{
		Name:      "scale",
		Frequency: types.FreqHourly,
		Limits: map[types.ResourceClass]int64{
			types.ClassSourcesPerPlatform: 100,
		},
	},
}

type fixture struct {
	store *testutil.MockStore
	conn  *testutil.MockConnector
	sched *Scheduler
}

func newFixture(t *testing.T, tier string) *fixture {
	t.Helper()
	st := testutil.NewMockStore()
	require.NoError(t, st.PutQuota(context.Background(), types.TenantQuota{
		TenantID: "acme",
		Tier:     tier,
		Usage:    map[types.ResourceClass]int64{},
	}))

	conn := testutil.NewMockConnector("slack")
	reg := connector.NewRegistry()
	require.NoError(t, reg.Register(conn))

	q := quota.NewRegistry(st, testTiers, "starter", nil)
	sched := New(st, q, connector.NewGuarded(reg, time.Second), nil, nil, ParseConfig(nil))
	return &fixture{store: st, conn: conn, sched: sched}
}

func seedCursor(t *testing.T, fx *fixture, id string, lastSuccess time.Time) types.Resource {
	t.Helper()
	res := types.Resource{TenantID: "acme", Platform: "slack", ID: id}
	require.NoError(t, fx.store.PutCursor(context.Background(), types.SyncCursor{
		Resource:    res,
		LastSuccess: lastSuccess,
		LastAttempt: lastSuccess,
	}))
	return res
}

func TestTick_FetchesDueResources(t *testing.T) {
	fx := newFixture(t, "scale")
	res := seedCursor(t, fx, "general", time.Now().Add(-2*time.Hour))
	fx.conn.Results[res.Key()] = types.FetchResult{
		Items:     []types.ContentItem{{ItemID: "m1", Payload: "hello"}},
		NewCursor: "c1",
	}

	require.NoError(t, fx.sched.Tick(context.Background()))

	assert.EqualValues(t, 1, fx.conn.FetchCount())

	cursor, err := fx.store.GetCursor(context.Background(), res)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, "c1", cursor.Position)
	assert.Zero(t, cursor.ConsecutiveFailures)
	assert.False(t, cursor.LastSuccess.IsZero())

	item, err := fx.store.GetContent(context.Background(), res, "m1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "hello", item.Payload)
}

func TestTick_SkipsFreshResources(t *testing.T) {
	fx := newFixture(t, "scale")
	seedCursor(t, fx, "general", time.Now().Add(-5*time.Minute))

	require.NoError(t, fx.sched.Tick(context.Background()))
	assert.Zero(t, fx.conn.FetchCount())
}

func TestTick_NeverSyncedIsDueImmediately(t *testing.T) {
	fx := newFixture(t, "starter")
	seedCursor(t, fx, "general", time.Time{})

	require.NoError(t, fx.sched.Tick(context.Background()))
	assert.EqualValues(t, 1, fx.conn.FetchCount())
}

func TestTick_TierFrequencyGovernsDue(t *testing.T) {
	// Three hours stale: due for an hourly tier, not for a daily one.
	fx := newFixture(t, "starter")
	seedCursor(t, fx, "general", time.Now().Add(-3*time.Hour))

	require.NoError(t, fx.sched.Tick(context.Background()))
	assert.Zero(t, fx.conn.FetchCount())

	require.NoError(t, fx.store.PutQuota(context.Background(), types.TenantQuota{
		TenantID: "acme",
		Tier:     "scale",
		Usage:    map[types.ResourceClass]int64{},
	}))
	require.NoError(t, fx.sched.Tick(context.Background()))
	assert.EqualValues(t, 1, fx.conn.FetchCount())
}

func TestTick_CatchUpSyncsOnceAfterLongOffline(t *testing.T) {
	// A week of missed hourly intervals produces exactly one fetch.
	fx := newFixture(t, "scale")
	seedCursor(t, fx, "general", time.Now().Add(-7*24*time.Hour))

	require.NoError(t, fx.sched.Tick(context.Background()))
	assert.EqualValues(t, 1, fx.conn.FetchCount())
}

func TestTick_TransientFailureBacksOff(t *testing.T) {
	fx := newFixture(t, "scale")
	res := seedCursor(t, fx, "general", time.Now().Add(-2*time.Hour))
	fx.conn.Errs[res.Key()] = &types.TransientFetchError{Platform: "slack", Err: errors.New("rate limited")}

	require.NoError(t, fx.sched.Tick(context.Background()))

	cursor, err := fx.store.GetCursor(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, 1, cursor.ConsecutiveFailures)
	assert.False(t, cursor.Suspended)

	// Immediately retrying is blocked by backoff from the last attempt.
	require.NoError(t, fx.sched.Tick(context.Background()))
	assert.EqualValues(t, 1, fx.conn.FetchCount())
}

func TestTick_AuthExpiredSuspendsWholePlatform(t *testing.T) {
	fx := newFixture(t, "scale")
	var alerts []types.Alert
	var alertMu sync.Mutex
	fx.sched.alertFn = func(a types.Alert) {
		alertMu.Lock()
		defer alertMu.Unlock()
		alerts = append(alerts, a)
	}

	resA := seedCursor(t, fx, "general", time.Now().Add(-2*time.Hour))
	resB := seedCursor(t, fx, "random", time.Now().Add(-2*time.Hour))
	authErr := &types.AuthExpiredError{TenantID: "acme", Platform: "slack", Err: errors.New("token revoked")}
	fx.conn.Errs[resA.Key()] = authErr
	fx.conn.Errs[resB.Key()] = authErr
	// A fresh sibling on the same platform is suspended too.
	resC := seedCursor(t, fx, "ops", time.Now().Add(-5*time.Minute))

	require.NoError(t, fx.sched.Tick(context.Background()))

	for _, res := range []types.Resource{resA, resB, resC} {
		cursor, err := fx.store.GetCursor(context.Background(), res)
		require.NoError(t, err)
		assert.True(t, cursor.Suspended, "resource %s should be suspended", res.Key())
		assert.NotEmpty(t, cursor.SuspendedReason)
	}

	// One alert for the platform, not one per resource.
	alertMu.Lock()
	assert.Len(t, alerts, 1)
	alertMu.Unlock()

	// Suspended resources are not retried on subsequent ticks.
	fetched := fx.conn.FetchCount()
	require.NoError(t, fx.sched.Tick(context.Background()))
	assert.Equal(t, fetched, fx.conn.FetchCount())
}

func TestTick_HeldLeaseSkipsResource(t *testing.T) {
	fx := newFixture(t, "scale")
	res := seedCursor(t, fx, "general", time.Now().Add(-2*time.Hour))

	held, err := fx.store.AcquireLease(context.Background(), "sync:"+res.Key(), time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	require.NoError(t, fx.sched.Tick(context.Background()))
	assert.Zero(t, fx.conn.FetchCount())
}

func TestTick_InconclusiveRecordedAsFailure(t *testing.T) {
	fx := newFixture(t, "scale")
	res := seedCursor(t, fx, "general", time.Now().Add(-2*time.Hour))
	fx.conn.Errs[res.Key()] = &types.InconclusiveSyncError{Resource: res}

	require.NoError(t, fx.sched.Tick(context.Background()))

	cursor, err := fx.store.GetCursor(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, 1, cursor.ConsecutiveFailures)

	activity, err := fx.store.ListActivity(context.Background(), "acme", 10)
	require.NoError(t, err)
	kinds := make([]types.ActivityKind, 0, len(activity))
	for _, ev := range activity {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, types.ActivitySyncInconclusive)
}

func TestSelect_ReservesQuotaAndCreatesCursor(t *testing.T) {
	fx := newFixture(t, "starter")

	for i, id := range []string{"a", "b", "c"} {
		res := types.Resource{TenantID: "acme", Platform: "slack", ID: id}
		require.NoError(t, fx.sched.Select(context.Background(), res), "selection %d", i)
	}

	// Fourth selection exceeds the starter source limit.
	err := fx.sched.Select(context.Background(), types.Resource{TenantID: "acme", Platform: "slack", ID: "d"})
	var qe *types.QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.EqualValues(t, 3, qe.Limit)

	// A failed selection does not leak quota.
	q, err := fx.store.GetQuota(context.Background(), "acme")
	require.NoError(t, err)
	assert.EqualValues(t, 3, q.Usage[types.ClassSourcesPerPlatform])
}

func TestSelect_DuplicateRejected(t *testing.T) {
	fx := newFixture(t, "starter")
	res := types.Resource{TenantID: "acme", Platform: "slack", ID: "general"}

	require.NoError(t, fx.sched.Select(context.Background(), res))
	require.Error(t, fx.sched.Select(context.Background(), res))

	q, err := fx.store.GetQuota(context.Background(), "acme")
	require.NoError(t, err)
	assert.EqualValues(t, 1, q.Usage[types.ClassSourcesPerPlatform])
}

func TestSelect_FirstResourcePerPlatformChargesPlatformQuota(t *testing.T) {
	fx := newFixture(t, "starter")
	tiers := []types.TierConfig{{
		Name:      "starter",
		Frequency: types.FreqDaily,
		Limits: map[types.ResourceClass]int64{
			types.ClassPlatforms:          1,
			types.ClassSourcesPerPlatform: 3,
		},
	}}
	fx.sched.quotas = quota.NewRegistry(fx.store, tiers, "starter", nil)
	ctx := context.Background()

	require.NoError(t, fx.sched.Select(ctx, types.Resource{TenantID: "acme", Platform: "slack", ID: "general"}))
	// A second resource on the same platform consumes no platform unit.
	require.NoError(t, fx.sched.Select(ctx, types.Resource{TenantID: "acme", Platform: "slack", ID: "random"}))

	var qe *types.QuotaExceededError
	err := fx.sched.Select(ctx, types.Resource{TenantID: "acme", Platform: "github", ID: "repo"})
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, types.ClassPlatforms, qe.Class)

	// The rejected selection left no cursor behind.
	c, err := fx.store.GetCursor(ctx, types.Resource{TenantID: "acme", Platform: "github", ID: "repo"})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestResume_ClearsSuspensionAndFailures(t *testing.T) {
	fx := newFixture(t, "scale")
	now := time.Now()
	res := types.Resource{TenantID: "acme", Platform: "slack", ID: "general"}
	require.NoError(t, fx.store.PutCursor(context.Background(), types.SyncCursor{
		Resource:            res,
		Suspended:           true,
		SuspendedReason:     "token revoked",
		SuspendedAt:         &now,
		ConsecutiveFailures: 4,
	}))

	resumed, err := fx.sched.Resume(context.Background(), "acme", "slack")
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	cursor, err := fx.store.GetCursor(context.Background(), res)
	require.NoError(t, err)
	assert.False(t, cursor.Suspended)
	assert.Empty(t, cursor.SuspendedReason)
	assert.Zero(t, cursor.ConsecutiveFailures)
}

func TestFailureBackoff(t *testing.T) {
	cfg := Config{BackoffBase: 10 * time.Minute, BackoffMax: 6 * time.Hour, BackoffFactor: 2.0}

	assert.Equal(t, time.Duration(0), failureBackoff(cfg, 0))
	assert.Equal(t, 10*time.Minute, failureBackoff(cfg, 1))
	assert.Equal(t, 20*time.Minute, failureBackoff(cfg, 2))
	assert.Equal(t, 40*time.Minute, failureBackoff(cfg, 3))
	// Capped at BackoffMax.
	assert.Equal(t, 6*time.Hour, failureBackoff(cfg, 12))
}

func TestRecordFailure_AlertsOnceAtThreshold(t *testing.T) {
	fx := newFixture(t, "scale")
	fx.sched.config.FailuresToAlert = 2
	var alerts []types.Alert
	fx.sched.alertFn = func(a types.Alert) { alerts = append(alerts, a) }

	res := seedCursor(t, fx, "general", time.Time{})
	cause := errors.New("rate limited")
	for i := 0; i < 3; i++ {
		cursor, err := fx.store.GetCursor(context.Background(), res)
		require.NoError(t, err)
		require.NotNil(t, cursor)
		fx.sched.recordFailure(context.Background(), *cursor, cause)
	}

	// Crossing the threshold alerts once; further failures stay quiet.
	require.Len(t, alerts, 1)
	assert.Equal(t, "source repeatedly failing", alerts[0].Subject)
	assert.Equal(t, "slack", alerts[0].Platform)
}

func TestStartStop(t *testing.T) {
	fx := newFixture(t, "scale")
	fx.sched.config.TickInterval = 10 * time.Millisecond

	ctx := context.Background()
	fx.sched.Start(ctx)
	time.Sleep(30 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	fx.sched.Stop(stopCtx)
}
