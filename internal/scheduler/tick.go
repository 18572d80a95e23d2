package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/driftline-systems/driftline/internal/metrics"
	"github.com/driftline-systems/driftline/pkg/types"
)

// Tick runs one scheduling cycle. The returned error reflects
// coordinator-level failure only: individual fetch job failures are scoped
// to their resource and never abort the tick.
func (s *Scheduler) Tick(ctx context.Context) error {
	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("listing tenants: %w", err)
	}

	// Tracks (tenant, platform) pairs already suspended this tick so a
	// failed credential refresh suspends all its resources in one pass.
	suspended := &suspensionTracker{done: make(map[string]bool)}

	var wg sync.WaitGroup
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			break
		}

		// Tier is re-read every tick, never cached per job, so tier
		// changes take effect on the next cycle.
		tier, err := s.quotas.Tier(ctx, tenantID)
		if err != nil {
			s.logger.Error("failed to resolve tier", "tenant", tenantID, "error", err)
			continue
		}
		interval := tier.Frequency.Interval()

		cursors, err := s.store.ListCursors(ctx, tenantID)
		if err != nil {
			s.logger.Error("failed to list cursors", "tenant", tenantID, "error", err)
			continue
		}

		for _, cursor := range cursors {
			if ctx.Err() != nil {
				break
			}
			if cursor.Suspended {
				continue
			}
			if !s.isDue(cursor, interval) {
				continue
			}

			if err := s.workers.Acquire(ctx, 1); err != nil {
				break // context cancelled
			}
			wg.Add(1)
			go func(c types.SyncCursor) {
				defer wg.Done()
				defer s.workers.Release(1)
				s.runFetch(ctx, c, suspended)
			}(cursor)
		}
	}

	wg.Wait()
	return ctx.Err()
}

// isDue applies the tier interval plus failure backoff to lastSuccess.
// Computing due from lastSuccess alone is also the catch-up policy: however
// many intervals were missed while offline, the pair is due exactly once.
func (s *Scheduler) isDue(cursor types.SyncCursor, interval time.Duration) bool {
	now := s.now()
	due := cursor.LastSuccess.Add(interval)
	if cursor.ConsecutiveFailures > 0 {
		// Back off from the last attempt, so a persistently failing
		// resource does not retry every tick forever.
		backoffDue := cursor.LastAttempt.Add(failureBackoff(s.config, cursor.ConsecutiveFailures))
		if backoffDue.After(due) {
			due = backoffDue
		}
	}
	return !now.Before(due)
}

// runFetch executes one leased fetch job for a due resource.
func (s *Scheduler) runFetch(ctx context.Context, cursor types.SyncCursor, suspended *suspensionTracker) {
	res := cursor.Resource
	leaseKey := "sync:" + res.Key()

	acquired, err := s.store.AcquireLease(ctx, leaseKey, s.config.LeaseTTL())
	if err != nil {
		s.logger.Error("failed to acquire lease", "resource", res.Key(), "error", err)
		return
	}
	if !acquired {
		// Another worker holds the lease; skip this cycle.
		metrics.LeaseContention.Inc()
		s.logger.Debug("lease held, skipping", "resource", res.Key())
		return
	}
	defer func() {
		if err := s.store.ReleaseLease(ctx, leaseKey); err != nil {
			s.logger.Error("failed to release lease", "resource", res.Key(), "error", err)
		}
	}()

	metrics.FetchesTotal.Inc()
	now := s.now()

	result, fetchErr := s.connectors.Fetch(ctx, res, cursor.Position)
	if fetchErr != nil {
		s.handleFetchFailure(ctx, cursor, fetchErr, suspended)
		return
	}

	// Apply items in result order before advancing the cursor, so a later
	// fetch never observes an advanced position over missing items.
	for _, item := range result.Items {
		item.Resource = res
		if item.FetchedAt.IsZero() {
			item.FetchedAt = result.FetchedAt
		}
		if err := s.store.UpsertContent(ctx, item); err != nil {
			s.logger.Error("failed to upsert content", "resource", res.Key(), "item", item.ItemID, "error", err)
			s.recordFailure(ctx, cursor, fmt.Errorf("storing item %q: %w", item.ItemID, err))
			return
		}
		metrics.ItemsUpserted.Inc()
	}

	cursor.Position = result.NewCursor
	cursor.LastAttempt = now
	cursor.LastSuccess = now
	cursor.ConsecutiveFailures = 0
	if err := s.store.PutCursor(ctx, cursor); err != nil {
		s.logger.Error("failed to update cursor", "resource", res.Key(), "error", err)
		return
	}

	s.appendActivity(ctx, types.ActivityEvent{
		EventID:   ulid.Make().String(),
		TenantID:  res.TenantID,
		Kind:      types.ActivityResourceSynced,
		Platform:  res.Platform,
		Resource:  res.ID,
		Details:   map[string]interface{}{"items": len(result.Items)},
		Timestamp: now,
	})
	s.logger.Info("resource synced", "resource", res.Key(), "items", len(result.Items))
}

func (s *Scheduler) handleFetchFailure(ctx context.Context, cursor types.SyncCursor, fetchErr error, suspended *suspensionTracker) {
	res := cursor.Resource
	metrics.FetchesFailed.Inc()

	switch {
	case types.IsAuthExpired(fetchErr):
		s.suspendPlatform(ctx, res.TenantID, res.Platform, fetchErr, suspended)

	case isInconclusive(fetchErr):
		metrics.FetchesInconclusive.Inc()
		s.appendActivity(ctx, types.ActivityEvent{
			EventID:   ulid.Make().String(),
			TenantID:  res.TenantID,
			Kind:      types.ActivitySyncInconclusive,
			Platform:  res.Platform,
			Resource:  res.ID,
			Message:   fetchErr.Error(),
			Timestamp: s.now(),
		})
		s.recordFailure(ctx, cursor, fetchErr)

	case types.IsTransient(fetchErr):
		s.recordFailure(ctx, cursor, fetchErr)

	default:
		// Unknown errors: an auth failure may only reveal itself at fetch
		// time, so probe a refresh once before treating it as transient.
		if _, err := s.connectors.Refresh(ctx, res.TenantID, res.Platform); types.IsAuthExpired(err) {
			s.suspendPlatform(ctx, res.TenantID, res.Platform, err, suspended)
			return
		}
		s.recordFailure(ctx, cursor, fetchErr)
	}
}

// recordFailure increments the failure count and stamps the attempt,
// leaving lastSuccess unchanged so the pair stays due for the next
// backoff-adjusted tick.
func (s *Scheduler) recordFailure(ctx context.Context, cursor types.SyncCursor, cause error) {
	res := cursor.Resource
	cursor.LastAttempt = s.now()
	cursor.ConsecutiveFailures++
	if err := s.store.PutCursor(ctx, cursor); err != nil {
		s.logger.Error("failed to record fetch failure", "resource", res.Key(), "error", err)
		return
	}

	s.appendActivity(ctx, types.ActivityEvent{
		EventID:   ulid.Make().String(),
		TenantID:  res.TenantID,
		Kind:      types.ActivitySyncFailed,
		Platform:  res.Platform,
		Resource:  res.ID,
		Message:   cause.Error(),
		Details:   map[string]interface{}{"consecutiveFailures": cursor.ConsecutiveFailures},
		Timestamp: cursor.LastAttempt,
	})
	// Fires exactly once per failure streak, when the count crosses the
	// threshold; a reset on success re-arms it.
	if cursor.ConsecutiveFailures == s.config.FailuresToAlert {
		s.fireAlert(types.Alert{
			Level:     types.AlertLevelWarning,
			TenantID:  res.TenantID,
			Platform:  res.Platform,
			Subject:   "source repeatedly failing",
			Message:   fmt.Sprintf("%s has failed %d consecutive syncs: %v", res.Key(), cursor.ConsecutiveFailures, cause),
			Timestamp: cursor.LastAttempt,
		})
	}
	s.logger.Warn("fetch failed", "resource", res.Key(), "failures", cursor.ConsecutiveFailures, "error", cause)
}

// suspendPlatform marks every selected resource under (tenant, platform) as
// suspended in one pass and surfaces a reconnection alert. Resources stay
// suspended, not retried every tick, until Resume clears them.
func (s *Scheduler) suspendPlatform(ctx context.Context, tenantID, platform string, cause error, suspended *suspensionTracker) {
	if !suspended.mark(tenantID + "/" + platform) {
		return // another job already suspended this platform this tick
	}

	cursors, err := s.store.ListCursors(ctx, tenantID)
	if err != nil {
		s.logger.Error("failed to list cursors for suspension", "tenant", tenantID, "error", err)
		return
	}

	now := s.now()
	count := 0
	for _, c := range cursors {
		if c.Resource.Platform != platform || c.Suspended {
			continue
		}
		c.Suspended = true
		c.SuspendedReason = cause.Error()
		c.SuspendedAt = &now
		if err := s.store.PutCursor(ctx, c); err != nil {
			s.logger.Error("failed to suspend cursor", "resource", c.Resource.Key(), "error", err)
			continue
		}
		metrics.SourcesSuspended.Inc()
		count++
	}

	s.appendActivity(ctx, types.ActivityEvent{
		EventID:   ulid.Make().String(),
		TenantID:  tenantID,
		Kind:      types.ActivitySourceSuspended,
		Platform:  platform,
		Message:   cause.Error(),
		Details:   map[string]interface{}{"resources": count},
		Timestamp: now,
	})
	s.fireAlert(types.Alert{
		Level:     types.AlertLevelError,
		TenantID:  tenantID,
		Platform:  platform,
		Subject:   "source needs reconnecting",
		Message:   fmt.Sprintf("%s connection expired; %d resources suspended until reconnected", platform, count),
		Timestamp: now,
	})
	s.logger.Warn("platform suspended", "tenant", tenantID, "platform", platform, "resources", count)
}

func (s *Scheduler) appendActivity(ctx context.Context, event types.ActivityEvent) {
	if err := s.store.AppendActivity(ctx, event); err != nil {
		s.logger.Error("failed to append activity", "tenant", event.TenantID, "kind", string(event.Kind), "error", err)
	}
}

func isInconclusive(err error) bool {
	var ie *types.InconclusiveSyncError
	return errors.As(err, &ie)
}

// suspensionTracker dedups suspension passes within a single tick.
type suspensionTracker struct {
	mu   sync.Mutex
	done map[string]bool
}

func (t *suspensionTracker) mark(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done[key] {
		return false
	}
	t.done[key] = true
	return true
}
