package scheduler

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/driftline-systems/driftline/pkg/types"
)

// Select registers a resource for syncing: it reserves the tenant's
// per-platform source quota (plus a connected-platform unit when this is
// the tenant's first resource on the platform) and creates the sync cursor.
// A zero-value lastSuccess makes the resource due on the next tick.
func (s *Scheduler) Select(ctx context.Context, res types.Resource) error {
	existing, err := s.store.GetCursor(ctx, res)
	if err != nil {
		return fmt.Errorf("checking cursor for %s: %w", res.Key(), err)
	}
	if existing != nil {
		return fmt.Errorf("resource %s is already selected", res.Key())
	}

	// The first resource on a platform also consumes a connected-platform
	// unit; further resources on the same platform do not.
	firstOnPlatform, err := s.isFirstOnPlatform(ctx, res)
	if err != nil {
		return err
	}
	if firstOnPlatform {
		if err := s.quotas.CheckAndReserve(ctx, res.TenantID, types.ClassPlatforms, 1); err != nil {
			return err
		}
	}
	release := func() {
		s.quotas.Release(ctx, res.TenantID, types.ClassSourcesPerPlatform, 1)
		if firstOnPlatform {
			s.quotas.Release(ctx, res.TenantID, types.ClassPlatforms, 1)
		}
	}

	if err := s.quotas.CheckAndReserve(ctx, res.TenantID, types.ClassSourcesPerPlatform, 1); err != nil {
		if firstOnPlatform {
			s.quotas.Release(ctx, res.TenantID, types.ClassPlatforms, 1)
		}
		return err
	}

	cursor := types.SyncCursor{Resource: res}
	if err := s.store.PutCursor(ctx, cursor); err != nil {
		release()
		return fmt.Errorf("creating cursor for %s: %w", res.Key(), err)
	}
	return nil
}

func (s *Scheduler) isFirstOnPlatform(ctx context.Context, res types.Resource) (bool, error) {
	cursors, err := s.store.ListCursors(ctx, res.TenantID)
	if err != nil {
		return false, fmt.Errorf("listing cursors for %s: %w", res.TenantID, err)
	}
	for _, c := range cursors {
		if c.Resource.Platform == res.Platform {
			return false, nil
		}
	}
	return true, nil
}

// Resume clears the suspension on every cursor of (tenant, platform) after
// the tenant reconnects the platform.
func (s *Scheduler) Resume(ctx context.Context, tenantID, platform string) (int, error) {
	cursors, err := s.store.ListCursors(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("listing cursors: %w", err)
	}

	resumed := 0
	for _, c := range cursors {
		if c.Resource.Platform != platform || !c.Suspended {
			continue
		}
		c.Suspended = false
		c.SuspendedReason = ""
		c.SuspendedAt = nil
		c.ConsecutiveFailures = 0
		if err := s.store.PutCursor(ctx, c); err != nil {
			return resumed, fmt.Errorf("resuming %s: %w", c.Resource.Key(), err)
		}
		resumed++
	}

	if resumed > 0 {
		s.appendActivity(ctx, types.ActivityEvent{
			EventID:   ulid.Make().String(),
			TenantID:  tenantID,
			Kind:      types.ActivitySourceResumed,
			Platform:  platform,
			Details:   map[string]interface{}{"resources": resumed},
			Timestamp: s.now(),
		})
	}
	return resumed, nil
}
