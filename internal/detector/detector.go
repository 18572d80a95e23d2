// Package detector implements the periodic behavioral signal scan. Matches
// are deduplicated by (tenant, type, dedup key) under a cool-down window
// before being handed to the deliverable trigger path.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/driftline-systems/driftline/internal/metrics"
	"github.com/driftline-systems/driftline/internal/store"
	"github.com/driftline-systems/driftline/pkg/types"
)

// TriggerFunc consumes an emitted signal, typically creating an ad-hoc
// deliverable or executing an existing one.
type TriggerFunc func(ctx context.Context, sig types.Signal)

// Detector runs the batch pattern scan on its own cadence.
type Detector struct {
	store    store.Store
	matchers []Matcher
	trigger  TriggerFunc
	logger   *slog.Logger

	interval time.Duration
	cooldown time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Detector with the standard matcher set.
func New(st store.Store, trigger TriggerFunc, logger *slog.Logger, cfg *types.DetectorConfig) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	interval := 24 * time.Hour
	cooldown := 72 * time.Hour
	inactivityDays := 7
	deadlineDays := 3
	if cfg != nil {
		interval = types.ParseDurationOr(cfg.Interval, interval)
		cooldown = types.ParseDurationOr(cfg.Cooldown, cooldown)
		if cfg.InactivityDays > 0 {
			inactivityDays = cfg.InactivityDays
		}
		if cfg.DeadlineDays > 0 {
			deadlineDays = cfg.DeadlineDays
		}
	}
	return &Detector{
		store: st,
		matchers: []Matcher{
			InactivityMatcher{Days: inactivityDays},
			DeadlineMatcher{Days: deadlineDays},
		},
		trigger:  trigger,
		logger:   logger,
		interval: interval,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Start begins the scan loop.
func (d *Detector) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.logger.Info("detector started", "interval", d.interval)

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				d.logger.Info("detector stopping")
				return
			case <-ticker.C:
				if err := d.Scan(ctx); err != nil {
					d.logger.Error("scan failed", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully shuts down the detector.
func (d *Detector) Stop(ctx context.Context) {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("detector stopped")
	case <-ctx.Done():
		d.logger.Warn("detector stop timed out")
	}
}

// Scan runs one full pass over all tenants. Per-tenant failures are scoped;
// the returned error reflects coordinator-level failure only.
func (d *Detector) Scan(ctx context.Context) error {
	tenants, err := d.store.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("listing tenants: %w", err)
	}

	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := d.scanTenant(ctx, tenantID); err != nil {
			d.logger.Error("tenant scan failed", "tenant", tenantID, "error", err)
		}
	}
	return nil
}

func (d *Detector) scanTenant(ctx context.Context, tenantID string) error {
	cursors, err := d.store.ListCursors(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("listing cursors: %w", err)
	}
	content, err := d.store.ListContent(ctx, tenantID, 0)
	if err != nil {
		return fmt.Errorf("listing content: %w", err)
	}
	activity, err := d.store.ListActivity(ctx, tenantID, 200)
	if err != nil {
		return fmt.Errorf("listing activity: %w", err)
	}

	snap := Snapshot{
		TenantID: tenantID,
		Cursors:  cursors,
		Content:  content,
		Activity: activity,
		Now:      d.now(),
	}

	for _, matcher := range d.matchers {
		for _, candidate := range matcher.Match(snap) {
			d.emit(ctx, candidate)
		}
	}
	return nil
}

// emit writes the candidate through the store's conditional put; an
// existing non-expired signal with the same key suppresses it.
func (d *Detector) emit(ctx context.Context, sig types.Signal) {
	now := d.now()
	sig.SignalID = ulid.Make().String()
	sig.EmittedAt = now
	sig.ExpiresAt = now.Add(d.cooldown)

	emitted, err := d.store.PutSignal(ctx, sig)
	if err != nil {
		d.logger.Error("failed to put signal", "tenant", sig.TenantID, "type", string(sig.Type), "error", err)
		return
	}
	if !emitted {
		metrics.SignalsSuppressed.Inc()
		d.logger.Debug("signal suppressed by cool-down", "tenant", sig.TenantID, "type", string(sig.Type), "key", sig.DedupKey)
		return
	}

	metrics.SignalsEmitted.Inc()
	if err := d.store.AppendActivity(ctx, types.ActivityEvent{
		EventID:   ulid.Make().String(),
		TenantID:  sig.TenantID,
		Kind:      types.ActivitySignalEmitted,
		Message:   sig.Message,
		Details:   map[string]interface{}{"type": string(sig.Type), "dedupKey": sig.DedupKey},
		Timestamp: now,
	}); err != nil {
		d.logger.Error("failed to append signal activity", "tenant", sig.TenantID, "error", err)
	}
	d.logger.Info("signal emitted", "tenant", sig.TenantID, "type", string(sig.Type), "key", sig.DedupKey)

	if d.trigger != nil {
		d.trigger(ctx, sig)
	}
}
