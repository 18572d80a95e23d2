// Package quota implements the tenant quota registry: tier lookup and
// conditional usage reservation.
package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/driftline-systems/driftline/internal/metrics"
	"github.com/driftline-systems/driftline/internal/store"
	"github.com/driftline-systems/driftline/pkg/types"
)

// Registry enforces per-tenant tier limits. It is an explicit handle passed
// to every component; all mutation goes through the store's conditional
// writes, so concurrent reservations cannot both succeed past a limit.
type Registry struct {
	store  store.Store
	tiers  []types.TierConfig
	def    string
	logger *slog.Logger
}

// NewRegistry creates a quota registry over the given tier table.
func NewRegistry(st store.Store, tiers []types.TierConfig, defaultTier string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: st, tiers: tiers, def: defaultTier, logger: logger}
}

// Tier resolves a tenant's tier configuration. It re-reads the tenant's
// assignment on every call so tier changes take effect immediately; callers
// must not cache the result across scheduler ticks.
func (r *Registry) Tier(ctx context.Context, tenantID string) (types.TierConfig, error) {
	q, err := r.store.GetQuota(ctx, tenantID)
	if err != nil {
		return types.TierConfig{}, fmt.Errorf("loading quota for tenant %q: %w", tenantID, err)
	}
	if q == nil {
		return types.TierConfig{}, fmt.Errorf("tenant %q has no quota record", tenantID)
	}
	tier, ok := r.tierByName(q.Tier)
	if !ok {
		return types.TierConfig{}, fmt.Errorf("tenant %q has unknown tier %q and no default is configured", tenantID, q.Tier)
	}
	return tier, nil
}

// CheckAndReserve reserves delta units of a resource class, or returns a
// *types.QuotaExceededError carrying limit and current usage.
func (r *Registry) CheckAndReserve(ctx context.Context, tenantID string, class types.ResourceClass, delta int64) error {
	tier, err := r.Tier(ctx, tenantID)
	if err != nil {
		return err
	}
	limit := tier.Limit(class)

	ok, usage, err := r.store.ReserveUsage(ctx, tenantID, class, delta, limit)
	if err != nil {
		return fmt.Errorf("reserving %s for tenant %q: %w", class, tenantID, err)
	}
	if !ok {
		metrics.QuotaRejections.Inc()
		return &types.QuotaExceededError{TenantID: tenantID, Class: class, Limit: limit, Usage: usage}
	}
	return nil
}

// Release returns delta units of a resource class to the tenant's budget.
func (r *Registry) Release(ctx context.Context, tenantID string, class types.ResourceClass, delta int64) {
	if err := r.store.ReleaseUsage(ctx, tenantID, class, delta); err != nil {
		r.logger.Error("failed to release usage", "tenant", tenantID, "class", string(class), "error", err)
	}
}

func (r *Registry) tierByName(name string) (types.TierConfig, bool) {
	for _, t := range r.tiers {
		if t.Name == name {
			return t, true
		}
	}
	if r.def != "" && r.def != name {
		return r.tierByName(r.def)
	}
	return types.TierConfig{}, false
}
