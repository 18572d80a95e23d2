package executor

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/driftline-systems/driftline/pkg/types"
)

// TriggerSignal is the deliverable trigger path for emitted signals: when a
// signal concerns a resource inside an existing active deliverable's scope,
// that deliverable is executed; otherwise an ad-hoc deliverable is created
// and executed once. Lock contention means a run is already in flight and
// the trigger is dropped, not queued.
func (e *Engine) TriggerSignal(ctx context.Context, sig types.Signal) {
	deliverables, err := e.store.ListDeliverables(ctx, sig.TenantID)
	if err != nil {
		e.logger.Error("trigger: failed to list deliverables", "tenant", sig.TenantID, "error", err)
		return
	}

	resourceKey := signalResourceKey(sig)
	for _, d := range deliverables {
		if d.Status != types.DeliverableActive {
			continue
		}
		for _, src := range d.Sources {
			if src.Key() != resourceKey {
				continue
			}
			if _, err := e.Execute(ctx, d.ID); err != nil && !types.IsLockContention(err) {
				e.logger.Error("trigger: execution failed", "deliverable", d.ID, "signal", sig.SignalID, "error", err)
			}
			return
		}
	}

	// No existing deliverable covers the resource: spawn an ad-hoc one.
	res, ok := parseResourceKey(sig.TenantID, resourceKey)
	if !ok {
		e.logger.Warn("trigger: signal has no resolvable resource", "signal", sig.SignalID, "key", sig.DedupKey)
		return
	}

	now := e.now()
	adhoc := types.Deliverable{
		ID:       "adhoc-" + ulid.Make().String(),
		TenantID: sig.TenantID,
		Name:     "Ad-hoc: " + sig.Message,
		// No frequency: ad-hoc deliverables run only when triggered and
		// are never picked up by the recurring pass.
		Schedule:  types.ScheduleSpec{},
		Sources:   []types.Resource{res},
		Prompt:    sig.Message,
		Status:    types.DeliverableActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Quota is enforced once, inside Execute.
	if err := e.store.PutDeliverable(ctx, adhoc); err != nil {
		e.logger.Error("trigger: failed to create ad-hoc deliverable", "tenant", sig.TenantID, "error", err)
		return
	}
	if _, err := e.Execute(ctx, adhoc.ID); err != nil && !types.IsLockContention(err) {
		e.logger.Error("trigger: ad-hoc execution failed", "deliverable", adhoc.ID, "signal", sig.SignalID, "error", err)
	}
}

// signalResourceKey extracts the "tenant/platform/resource" part of a
// signal's dedup key. Deadline signals append "#item#date" suffixes.
func signalResourceKey(sig types.Signal) string {
	if i := strings.Index(sig.DedupKey, "#"); i >= 0 {
		return sig.DedupKey[:i]
	}
	return sig.DedupKey
}

func parseResourceKey(tenantID, key string) (types.Resource, bool) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 || parts[0] != tenantID {
		return types.Resource{}, false
	}
	return types.Resource{TenantID: parts[0], Platform: parts[1], ID: parts[2]}, true
}
