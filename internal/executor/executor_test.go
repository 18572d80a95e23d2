package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline-systems/driftline/internal/connector"
	"github.com/driftline-systems/driftline/internal/quota"
	"github.com/driftline-systems/driftline/internal/testutil"
	"github.com/driftline-systems/driftline/pkg/types"
)

var execTiers = []types.TierConfig{
	{
		Name:      "starter",
		Frequency: types.FreqDaily,
		Limits: map[types.ResourceClass]int64{
			types.ClassActiveDeliverables: 5,
		},
	},
}

// scriptedGenerator fails a fixed number of times, then succeeds.
type scriptedGenerator struct {
	mu        sync.Mutex
	failTimes int
	calls     atomic.Int64
	block     chan struct{} // when set, Generate waits on it
	lastReq   types.GenerationRequest
}

func (g *scriptedGenerator) Generate(ctx context.Context, req types.GenerationRequest) (types.GenerationOutput, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.lastReq = req
	fail := g.failTimes > 0
	if fail {
		g.failTimes--
	}
	block := g.block
	g.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return types.GenerationOutput{}, ctx.Err()
		}
	}
	if fail {
		return types.GenerationOutput{}, errors.New("model unavailable")
	}
	return types.GenerationOutput{Text: "draft text"}, nil
}

type execFixture struct {
	store  *testutil.MockStore
	conn   *testutil.MockConnector
	gen    *scriptedGenerator
	engine *Engine
	alerts []types.Alert
	mu     sync.Mutex
}

func newExecFixture(t *testing.T) *execFixture {
	t.Helper()
	st := testutil.NewMockStore()
	require.NoError(t, st.PutQuota(context.Background(), types.TenantQuota{
		TenantID: "acme",
		Tier:     "starter",
		Usage:    map[types.ResourceClass]int64{},
	}))

	conn := testutil.NewMockConnector("slack")
	conn.Results["acme/slack/general"] = types.FetchResult{
		Items: []types.ContentItem{{ItemID: "live-1", Payload: "live message"}},
	}
	reg := connector.NewRegistry()
	require.NoError(t, reg.Register(conn))

	fx := &execFixture{store: st, conn: conn, gen: &scriptedGenerator{}}
	cfg := ParseConfig(nil)
	cfg.RetryBackoff = time.Millisecond
	fx.engine = New(st, quota.NewRegistry(st, execTiers, "starter", nil),
		connector.NewGuarded(reg, time.Second), fx.gen,
		func(a types.Alert) {
			fx.mu.Lock()
			defer fx.mu.Unlock()
			fx.alerts = append(fx.alerts, a)
		}, nil, cfg)
	return fx
}

func (fx *execFixture) seedDeliverable(t *testing.T, id string, status types.DeliverableStatus) {
	t.Helper()
	require.NoError(t, fx.store.PutDeliverable(context.Background(), types.Deliverable{
		ID:       id,
		TenantID: "acme",
		Name:     "Weekly digest",
		Schedule: types.ScheduleSpec{Frequency: types.FreqDaily},
		Sources: []types.Resource{
			{TenantID: "acme", Platform: "slack", ID: "general"},
		},
		Prompt: "Summarize the week.",
		Status: status,
	}))
}

func (fx *execFixture) alertCount() int {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return len(fx.alerts)
}

func TestExecute_StagesVersion(t *testing.T) {
	fx := newExecFixture(t)
	fx.seedDeliverable(t, "d1", types.DeliverableActive)

	v, err := fx.engine.Execute(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, types.VersionStaged, v.Status)
	assert.Equal(t, 1, v.Sequence)
	assert.Equal(t, "draft text", v.Draft)

	logs, err := fx.store.ListExecutionLogs(context.Background(), "d1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "staged", logs[0].Outcome)
	require.Len(t, logs[0].Sources, 1)
	assert.Equal(t, 1, logs[0].Sources[0].ItemCount)
}

func TestExecute_LiveFetchIgnoresContentStore(t *testing.T) {
	fx := newExecFixture(t)
	fx.seedDeliverable(t, "d1", types.DeliverableActive)

	// A stale cached item must not reach the generator.
	require.NoError(t, fx.store.UpsertContent(context.Background(), types.ContentItem{
		Resource:  types.Resource{TenantID: "acme", Platform: "slack", ID: "general"},
		ItemID:    "cached-1",
		Payload:   "stale cache",
		FetchedAt: time.Now().Add(-24 * time.Hour),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}))

	_, err := fx.engine.Execute(context.Background(), "d1")
	require.NoError(t, err)

	assert.EqualValues(t, 1, fx.conn.FetchCount())
	fx.gen.mu.Lock()
	defer fx.gen.mu.Unlock()
	require.Len(t, fx.gen.lastReq.Items, 1)
	assert.Equal(t, "live message", fx.gen.lastReq.Items[0].Payload)
}

func TestExecute_SequencesIncrement(t *testing.T) {
	fx := newExecFixture(t)
	fx.seedDeliverable(t, "d1", types.DeliverableActive)

	for want := 1; want <= 3; want++ {
		v, err := fx.engine.Execute(context.Background(), "d1")
		require.NoError(t, err)
		assert.Equal(t, want, v.Sequence)
	}
}

func TestExecute_PausedDeliverableRejected(t *testing.T) {
	fx := newExecFixture(t)
	fx.seedDeliverable(t, "d1", types.DeliverablePaused)

	_, err := fx.engine.Execute(context.Background(), "d1")
	require.Error(t, err)
	assert.Zero(t, fx.gen.calls.Load())
}

func TestExecute_UnknownDeliverable(t *testing.T) {
	fx := newExecFixture(t)

	_, err := fx.engine.Execute(context.Background(), "ghost")
	require.Error(t, err)
}

func TestExecute_ConcurrentTriggersProduceOneVersion(t *testing.T) {
	fx := newExecFixture(t)
	fx.seedDeliverable(t, "d1", types.DeliverableActive)

	block := make(chan struct{})
	fx.gen.block = block

	done := make(chan error, 1)
	go func() {
		_, err := fx.engine.Execute(context.Background(), "d1")
		done <- err
	}()

	// Wait for the first execution to reach generation, then contend.
	require.Eventually(t, func() bool { return fx.gen.calls.Load() == 1 },
		time.Second, 5*time.Millisecond)

	_, err := fx.engine.Execute(context.Background(), "d1")
	var lce *types.LockContentionError
	require.ErrorAs(t, err, &lce)

	close(block)
	require.NoError(t, <-done)

	versions, err := fx.store.ListVersions(context.Background(), "d1", 0)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestExecute_GeneratorRetriesWithinAttempt(t *testing.T) {
	fx := newExecFixture(t)
	fx.seedDeliverable(t, "d1", types.DeliverableActive)
	gen := &testutil.MockGenerator{Errs: []error{errors.New("busy"), errors.New("busy")}}
	fx.engine.generator = gen

	v, err := fx.engine.Execute(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, types.VersionStaged, v.Status)
	assert.Equal(t, 3, gen.Calls())
}

func TestExecute_ExhaustedRetriesFailTerminally(t *testing.T) {
	fx := newExecFixture(t)
	fx.seedDeliverable(t, "d1", types.DeliverableActive)
	gen := &testutil.MockGenerator{Errs: []error{
		errors.New("busy"), errors.New("busy"), errors.New("busy"),
	}}
	fx.engine.generator = gen

	v, err := fx.engine.Execute(context.Background(), "d1")
	var ge *types.GenerationError
	require.ErrorAs(t, err, &ge)
	require.NotNil(t, v)
	assert.Equal(t, types.VersionFailed, v.Status)
	assert.NotEmpty(t, v.FailureReason)
	assert.Equal(t, 1, fx.alertCount())

	logs, err := fx.store.ListExecutionLogs(context.Background(), "d1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "failed", logs[0].Outcome)

	// FAILED is terminal: no review transition can leave it.
	_, err = fx.engine.StartReview(context.Background(), "d1", v.Sequence)
	require.Error(t, err)
}

func TestExecute_SourceFetchFailureFailsVersion(t *testing.T) {
	fx := newExecFixture(t)
	fx.seedDeliverable(t, "d1", types.DeliverableActive)
	fx.conn.Errs["acme/slack/general"] = &types.TransientFetchError{Platform: "slack", Err: errors.New("timeout")}

	v, err := fx.engine.Execute(context.Background(), "d1")
	require.Error(t, err)
	require.NotNil(t, v)
	assert.Equal(t, types.VersionFailed, v.Status)
	assert.Zero(t, fx.gen.calls.Load())
}

func TestReview_FullLifecycle(t *testing.T) {
	fx := newExecFixture(t)
	fx.seedDeliverable(t, "d1", types.DeliverableActive)

	staged, err := fx.engine.Execute(context.Background(), "d1")
	require.NoError(t, err)

	reviewing, err := fx.engine.StartReview(context.Background(), "d1", staged.Sequence)
	require.NoError(t, err)
	assert.Equal(t, types.VersionReviewing, reviewing.Status)

	approved, err := fx.engine.Approve(context.Background(), "d1", staged.Sequence, "")
	require.NoError(t, err)
	assert.Equal(t, types.VersionApproved, approved.Status)
	// Empty final text falls back to the draft.
	assert.Equal(t, "draft text", approved.Final)

	// Approved is terminal.
	_, err = fx.engine.Reject(context.Background(), "d1", staged.Sequence, "changed my mind")
	require.Error(t, err)
}

func TestReview_RejectRecordsReason(t *testing.T) {
	fx := newExecFixture(t)
	fx.seedDeliverable(t, "d1", types.DeliverableActive)

	staged, err := fx.engine.Execute(context.Background(), "d1")
	require.NoError(t, err)

	_, err = fx.engine.StartReview(context.Background(), "d1", staged.Sequence)
	require.NoError(t, err)

	rejected, err := fx.engine.Reject(context.Background(), "d1", staged.Sequence, "off topic")
	require.NoError(t, err)
	assert.Equal(t, types.VersionRejected, rejected.Status)
	assert.Equal(t, "off topic", rejected.FailureReason)
}

func TestReview_FastApproveFromStaged(t *testing.T) {
	fx := newExecFixture(t)
	fx.seedDeliverable(t, "d1", types.DeliverableActive)

	staged, err := fx.engine.Execute(context.Background(), "d1")
	require.NoError(t, err)

	// STAGED may be approved directly without an explicit review step.
	approved, err := fx.engine.Approve(context.Background(), "d1", staged.Sequence, "edited final")
	require.NoError(t, err)
	assert.Equal(t, types.VersionApproved, approved.Status)
	assert.Equal(t, "edited final", approved.Final)
}

func TestTriggerSignal_ExecutesCoveringDeliverable(t *testing.T) {
	fx := newExecFixture(t)
	fx.seedDeliverable(t, "d1", types.DeliverableActive)

	fx.engine.TriggerSignal(context.Background(), types.Signal{
		SignalID: "sig1",
		TenantID: "acme",
		Type:     types.SignalInactivity,
		DedupKey: "acme/slack/general",
		Message:  "no activity for 7 days",
	})

	versions, err := fx.store.ListVersions(context.Background(), "d1", 0)
	require.NoError(t, err)
	assert.Len(t, versions, 1)

	// No ad-hoc deliverable was created.
	deliverables, err := fx.store.ListDeliverables(context.Background(), "acme")
	require.NoError(t, err)
	assert.Len(t, deliverables, 1)
}

func TestTriggerSignal_SpawnsAdHocForUncoveredResource(t *testing.T) {
	fx := newExecFixture(t)

	fx.engine.TriggerSignal(context.Background(), types.Signal{
		SignalID: "sig1",
		TenantID: "acme",
		Type:     types.SignalInactivity,
		DedupKey: "acme/slack/random",
		Message:  "no activity for 7 days",
	})

	deliverables, err := fx.store.ListDeliverables(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, deliverables, 1)
	assert.Equal(t, types.DeliverableActive, deliverables[0].Status)

	versions, err := fx.store.ListVersions(context.Background(), deliverables[0].ID, 0)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestTriggerSignal_AdHocRunsAtDeliverableLimit(t *testing.T) {
	fx := newExecFixture(t)
	// Limit 1 must admit the ad-hoc run: quota is charged once, in Execute.
	tight := []types.TierConfig{{
		Name:      "starter",
		Frequency: types.FreqDaily,
		Limits: map[types.ResourceClass]int64{
			types.ClassActiveDeliverables: 1,
		},
	}}
	fx.engine.quotas = quota.NewRegistry(fx.store, tight, "starter", nil)

	fx.engine.TriggerSignal(context.Background(), types.Signal{
		SignalID: "sig1",
		TenantID: "acme",
		Type:     types.SignalInactivity,
		DedupKey: "acme/slack/general",
		Message:  "no activity for 7 days",
	})

	deliverables, err := fx.store.ListDeliverables(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, deliverables, 1)

	versions, err := fx.store.ListVersions(context.Background(), deliverables[0].ID, 0)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
	assert.Equal(t, types.VersionStaged, versions[0].Status)
}
