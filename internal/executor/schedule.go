package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/driftline-systems/driftline/pkg/types"
)

// Start begins the recurring-execution loop: every TickInterval it runs the
// active deliverables whose current schedule cycle has produced no version
// yet.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.logger.Info("executor started", "tick", e.config.TickInterval)

		ticker := time.NewTicker(e.config.TickInterval)
		defer ticker.Stop()

		// Run immediately on start
		if err := e.RunDue(ctx); err != nil {
			e.logger.Error("recurring pass failed", "error", err)
		}

		for {
			select {
			case <-ctx.Done():
				e.logger.Info("executor stopping")
				return
			case <-ticker.C:
				if err := e.RunDue(ctx); err != nil {
					e.logger.Error("recurring pass failed", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully shuts down the loop, waiting for an in-flight pass.
func (e *Engine) Stop(ctx context.Context) {
	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("executor stopped")
	case <-ctx.Done():
		e.logger.Warn("executor stop timed out")
	}
}

// RunDue runs one recurring-execution pass. The returned error reflects
// coordinator-level failure only: individual execution failures are scoped
// to their deliverable and surfaced as failed versions.
func (e *Engine) RunDue(ctx context.Context) error {
	tenants, err := e.store.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("listing tenants: %w", err)
	}

	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		deliverables, err := e.store.ListDeliverables(ctx, tenantID)
		if err != nil {
			e.logger.Error("failed to list deliverables", "tenant", tenantID, "error", err)
			continue
		}
		for _, d := range deliverables {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Deliverables without a frequency (ad-hoc) never recur.
			if d.Status != types.DeliverableActive || d.Schedule.Frequency == "" {
				continue
			}
			due, err := e.cycleDue(ctx, d)
			if err != nil {
				e.logger.Error("failed to evaluate schedule", "deliverable", d.ID, "error", err)
				continue
			}
			if !due {
				continue
			}
			// Lock contention means another coordinator already took this
			// cycle; the lease plus the last-version check keep it to one
			// run per cycle.
			if _, err := e.Execute(ctx, d.ID); err != nil && !types.IsLockContention(err) {
				e.logger.Error("scheduled execution failed", "deliverable", d.ID, "error", err)
			}
		}
	}
	return nil
}

// cycleDue reports whether the deliverable's current cycle has run. Due is
// decided by the latest version's creation time, whatever its outcome: a
// failed version blocks re-runs until the next cycle boundary, and however
// many cycles were missed while offline, exactly one run is due.
func (e *Engine) cycleDue(ctx context.Context, d types.Deliverable) (bool, error) {
	versions, err := e.store.ListVersions(ctx, d.ID, 1)
	if err != nil {
		return false, fmt.Errorf("listing versions for %q: %w", d.ID, err)
	}
	var last time.Time
	if len(versions) > 0 {
		last = versions[0].CreatedAt
	}
	return last.Before(cycleStart(d.Schedule, e.now())), nil
}

// cycleStart returns the most recent anchor-aligned cycle boundary at or
// before now. The anchor fixes the time-of-day offset ("HH:MM" in the
// schedule's timezone, midnight UTC when unset); the frequency sets the
// boundary spacing.
func cycleStart(spec types.ScheduleSpec, now time.Time) time.Time {
	loc := time.UTC
	if spec.Timezone != "" {
		if l, err := time.LoadLocation(spec.Timezone); err == nil {
			loc = l
		}
	}
	local := now.In(loc)

	hour, minute := 0, 0
	if spec.Anchor != "" {
		if t, err := time.Parse("15:04", spec.Anchor); err == nil {
			hour, minute = t.Hour(), t.Minute()
		}
	}

	interval := spec.Frequency.Interval()
	boundary := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	for boundary.After(local) {
		boundary = boundary.Add(-interval)
	}
	for !boundary.Add(interval).After(local) {
		boundary = boundary.Add(interval)
	}
	return boundary
}
