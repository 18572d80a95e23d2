// Package executor implements the deliverable execution engine: one live
// fetch-and-generate cycle per invocation, with per-deliverable mutual
// exclusion and a single atomic audit log write.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/driftline-systems/driftline/internal/connector"
	"github.com/driftline-systems/driftline/internal/metrics"
	"github.com/driftline-systems/driftline/internal/quota"
	"github.com/driftline-systems/driftline/internal/store"
	"github.com/driftline-systems/driftline/pkg/types"
)

// Generator is the opaque generation call. It has no side effects beyond
// returning text, and may fail transiently or permanently.
type Generator interface {
	Generate(ctx context.Context, req types.GenerationRequest) (types.GenerationOutput, error)
}

// Config holds parsed executor settings.
type Config struct {
	TickInterval    time.Duration
	GenerateTimeout time.Duration
	MaxAttempts     int
	RetryBackoff    time.Duration
	LeaseTTL        time.Duration
	MaxFacts        int
}

// ParseConfig resolves an ExecutorConfig into concrete values.
func ParseConfig(c *types.ExecutorConfig) Config {
	cfg := Config{
		TickInterval:    types.DefaultTickInterval,
		GenerateTimeout: 2 * time.Minute,
		MaxAttempts:     3,
		RetryBackoff:    5 * time.Second,
		LeaseTTL:        10 * time.Minute,
		MaxFacts:        10,
	}
	if c == nil {
		return cfg
	}
	cfg.TickInterval = types.ParseDurationOr(c.TickInterval, cfg.TickInterval)
	cfg.GenerateTimeout = types.ParseDurationOr(c.GenerateTimeout, cfg.GenerateTimeout)
	cfg.RetryBackoff = types.ParseDurationOr(c.RetryBackoff, cfg.RetryBackoff)
	cfg.LeaseTTL = types.ParseDurationOr(c.LeaseTTL, cfg.LeaseTTL)
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.MaxFacts > 0 {
		cfg.MaxFacts = c.MaxFacts
	}
	return cfg
}

// Engine executes deliverables.
type Engine struct {
	store      store.Store
	quotas     *quota.Registry
	connectors *connector.Guarded
	generator  Generator
	alertFn    func(types.Alert)
	logger     *slog.Logger
	config     Config
	now        func() time.Time
	sleep      func(context.Context, time.Duration)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an execution Engine.
func New(st store.Store, q *quota.Registry, conns *connector.Guarded, gen Generator, alertFn func(types.Alert), logger *slog.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:      st,
		quotas:     q,
		connectors: conns,
		generator:  gen,
		alertFn:    alertFn,
		logger:     logger,
		config:     cfg,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// Execute performs one live-fetch-and-generate cycle for a deliverable.
// A concurrent trigger while one execution is running gets a
// *types.LockContentionError and creates zero versions; it is rejected, not
// queued.
func (e *Engine) Execute(ctx context.Context, deliverableID string) (*types.DeliverableVersion, error) {
	d, err := e.store.GetDeliverable(ctx, deliverableID)
	if err != nil {
		return nil, fmt.Errorf("loading deliverable %q: %w", deliverableID, err)
	}
	if d == nil {
		return nil, fmt.Errorf("deliverable %q not found", deliverableID)
	}
	if d.Status != types.DeliverableActive {
		return nil, fmt.Errorf("deliverable %q is %s", deliverableID, d.Status)
	}

	leaseKey := "exec:" + deliverableID
	acquired, err := e.store.AcquireLease(ctx, leaseKey, e.config.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquiring execution lease: %w", err)
	}
	if !acquired {
		metrics.LeaseContention.Inc()
		return nil, &types.LockContentionError{Key: leaseKey}
	}
	defer func() {
		if err := e.store.ReleaseLease(ctx, leaseKey); err != nil {
			e.logger.Error("failed to release execution lease", "deliverable", deliverableID, "error", err)
		}
	}()

	if err := e.quotas.CheckAndReserve(ctx, d.TenantID, types.ClassActiveDeliverables, 1); err != nil {
		return nil, err
	}
	defer e.quotas.Release(ctx, d.TenantID, types.ClassActiveDeliverables, 1)

	metrics.ExecutionsTotal.Inc()
	return e.run(ctx, d)
}

// run is the single atomic gather-generate-stage operation plus its audit
// log entry.
func (e *Engine) run(ctx context.Context, d *types.Deliverable) (*types.DeliverableVersion, error) {
	startedAt := e.now()
	seq, err := e.nextSequence(ctx, d.ID)
	if err != nil {
		return nil, err
	}

	version := types.DeliverableVersion{
		DeliverableID: d.ID,
		Sequence:      seq,
		TenantID:      d.TenantID,
		Status:        types.VersionGenerating,
		Version:       1,
		CreatedAt:     startedAt,
		UpdatedAt:     startedAt,
	}
	if err := e.store.PutVersion(ctx, version); err != nil {
		return nil, fmt.Errorf("creating version %s/%d: %w", d.ID, seq, err)
	}

	// Live path: fetch every source directly from its platform, bypassing
	// the content store entirely. Deliverables reflect platform state at
	// generation time, not a cached snapshot.
	items, reads, fetchErr := e.liveFetch(ctx, d)
	if fetchErr != nil {
		return e.fail(ctx, d, version, reads, startedAt, 0, fetchErr)
	}

	facts, err := e.store.ListMemoryFacts(ctx, d.TenantID, e.config.MaxFacts)
	if err != nil {
		e.logger.Warn("failed to load memory facts, generating without", "deliverable", d.ID, "error", err)
		facts = nil
	}

	req := types.GenerationRequest{
		TenantID:      d.TenantID,
		DeliverableID: d.ID,
		Prompt:        d.Prompt,
		Items:         items,
		Facts:         facts,
	}

	output, attempts, genErr := e.generate(ctx, d.ID, req)
	if genErr != nil {
		return e.fail(ctx, d, version, reads, startedAt, attempts, genErr)
	}

	staged := version
	staged.Status = types.VersionStaged
	staged.Draft = output.Text
	staged.Version = 2
	staged.UpdatedAt = e.now()
	ok, err := e.store.CompareAndSwapVersion(ctx, d.ID, seq, 1, staged)
	if err != nil {
		return nil, fmt.Errorf("staging version %s/%d: %w", d.ID, seq, err)
	}
	if !ok {
		return nil, fmt.Errorf("version %s/%d was modified concurrently", d.ID, seq)
	}

	e.appendLog(ctx, d, seq, reads, "staged", attempts, startedAt)
	e.appendActivity(ctx, types.ActivityEvent{
		EventID:   ulid.Make().String(),
		TenantID:  d.TenantID,
		Kind:      types.ActivityDeliverableRun,
		Message:   fmt.Sprintf("%s version %d staged", d.Name, seq),
		Details:   map[string]interface{}{"deliverable": d.ID, "sequence": seq, "attempts": attempts},
		Timestamp: e.now(),
	})
	e.logger.Info("deliverable staged", "deliverable", d.ID, "sequence", seq, "sources", len(reads), "attempts", attempts)
	return &staged, nil
}

// liveFetch reads every configured source fresh. One failing source fails
// the execution; partial context would silently degrade the deliverable.
func (e *Engine) liveFetch(ctx context.Context, d *types.Deliverable) ([]types.ContentItem, []types.SourceRead, error) {
	var items []types.ContentItem
	var reads []types.SourceRead

	for _, src := range d.Sources {
		// Empty cursor: read current platform state, not a delta.
		result, err := e.connectors.Fetch(ctx, src, "")
		if err != nil {
			return nil, reads, fmt.Errorf("live fetch of %s: %w", src.Key(), err)
		}
		for i := range result.Items {
			result.Items[i].Resource = src
		}
		items = append(items, result.Items...)
		reads = append(reads, types.SourceRead{
			Resource:  src,
			ItemCount: len(result.Items),
			FetchedAt: result.FetchedAt,
		})
	}
	return items, reads, nil
}

// generate invokes the generation call with bounded internal retries.
// Retries happen inside the same execution attempt, not as a new stage.
func (e *Engine) generate(ctx context.Context, deliverableID string, req types.GenerationRequest) (types.GenerationOutput, int, error) {
	var lastErr error
	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		genCtx, cancel := context.WithTimeout(ctx, e.config.GenerateTimeout)
		output, err := e.generator.Generate(genCtx, req)
		cancel()
		if err == nil {
			return output, attempt, nil
		}
		lastErr = err
		if attempt < e.config.MaxAttempts {
			metrics.GenerationRetries.Inc()
			e.logger.Warn("generation attempt failed, retrying", "deliverable", deliverableID, "attempt", attempt, "error", err)
			e.sleep(ctx, e.config.RetryBackoff*time.Duration(1<<(attempt-1)))
		}
		if ctx.Err() != nil {
			break
		}
	}
	return types.GenerationOutput{}, e.config.MaxAttempts, &types.GenerationError{
		DeliverableID: deliverableID,
		Attempts:      e.config.MaxAttempts,
		Err:           lastErr,
	}
}

// fail transitions the version to FAILED (terminal, no auto-retrigger) and
// writes the audit log entry.
func (e *Engine) fail(ctx context.Context, d *types.Deliverable, version types.DeliverableVersion, reads []types.SourceRead, startedAt time.Time, attempts int, cause error) (*types.DeliverableVersion, error) {
	metrics.ExecutionsFailed.Inc()

	failed := version
	failed.Status = types.VersionFailed
	failed.FailureReason = cause.Error()
	failed.Version = 2
	failed.UpdatedAt = e.now()
	if _, err := e.store.CompareAndSwapVersion(ctx, d.ID, version.Sequence, 1, failed); err != nil {
		e.logger.Error("failed to mark version failed", "deliverable", d.ID, "sequence", version.Sequence, "error", err)
	}

	e.appendLog(ctx, d, version.Sequence, reads, "failed", attempts, startedAt)
	e.appendActivity(ctx, types.ActivityEvent{
		EventID:   ulid.Make().String(),
		TenantID:  d.TenantID,
		Kind:      types.ActivityDeliverableFailed,
		Message:   cause.Error(),
		Details:   map[string]interface{}{"deliverable": d.ID, "sequence": version.Sequence},
		Timestamp: e.now(),
	})
	e.fireAlert(types.Alert{
		Level:     types.AlertLevelError,
		TenantID:  d.TenantID,
		Subject:   "version failed to generate",
		Message:   fmt.Sprintf("%s version %d failed: %v", d.Name, version.Sequence, cause),
		Timestamp: e.now(),
	})
	e.logger.Warn("deliverable execution failed", "deliverable", d.ID, "sequence", version.Sequence, "error", cause)
	return &failed, cause
}

func (e *Engine) nextSequence(ctx context.Context, deliverableID string) (int, error) {
	versions, err := e.store.ListVersions(ctx, deliverableID, 1)
	if err != nil {
		return 0, fmt.Errorf("listing versions for %q: %w", deliverableID, err)
	}
	if len(versions) == 0 {
		return 1, nil
	}
	return versions[0].Sequence + 1, nil
}

func (e *Engine) appendLog(ctx context.Context, d *types.Deliverable, seq int, reads []types.SourceRead, outcome string, attempts int, startedAt time.Time) {
	entry := types.ExecutionLog{
		LogID:         ulid.Make().String(),
		DeliverableID: d.ID,
		TenantID:      d.TenantID,
		Sequence:      seq,
		Sources:       reads,
		Outcome:       outcome,
		Attempts:      attempts,
		StartedAt:     startedAt,
		CompletedAt:   e.now(),
	}
	if err := e.store.AppendExecutionLog(ctx, entry); err != nil {
		e.logger.Error("failed to append execution log", "deliverable", d.ID, "sequence", seq, "error", err)
	}
}

func (e *Engine) appendActivity(ctx context.Context, event types.ActivityEvent) {
	if err := e.store.AppendActivity(ctx, event); err != nil {
		e.logger.Error("failed to append activity", "tenant", event.TenantID, "kind", string(event.Kind), "error", err)
	}
}

func (e *Engine) fireAlert(alert types.Alert) {
	if e.alertFn != nil {
		e.alertFn(alert)
	}
}
