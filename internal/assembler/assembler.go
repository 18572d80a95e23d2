// Package assembler builds the bounded working-context bundle for
// interactive consumption. It only reads the store: stale or absent data is
// reported in the freshness section, never fetched.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/driftline-systems/driftline/internal/quota"
	"github.com/driftline-systems/driftline/internal/store"
	"github.com/driftline-systems/driftline/pkg/types"
)

// Defaults for unset assembler config values.
const (
	defaultBudgetChars = 12000
	defaultMaxFacts    = 20
	defaultMaxActivity = 50
	defaultMaxBriefs   = 10
)

// Assembler composes character-budgeted context bundles.
type Assembler struct {
	store  store.Store
	quotas *quota.Registry
	logger *slog.Logger

	budgetChars int
	maxFacts    int
	maxActivity int
	maxBriefs   int
	now         func() time.Time
}

// New creates an Assembler. A nil quota registry disables interaction
// metering.
func New(st store.Store, q *quota.Registry, logger *slog.Logger, cfg *types.AssemblerConfig) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Assembler{
		store:       st,
		quotas:      q,
		logger:      logger,
		budgetChars: defaultBudgetChars,
		maxFacts:    defaultMaxFacts,
		maxActivity: defaultMaxActivity,
		maxBriefs:   defaultMaxBriefs,
		now:         time.Now,
	}
	if cfg != nil {
		if cfg.BudgetChars > 0 {
			a.budgetChars = cfg.BudgetChars
		}
		if cfg.MaxFacts > 0 {
			a.maxFacts = cfg.MaxFacts
		}
		if cfg.MaxActivity > 0 {
			a.maxActivity = cfg.MaxActivity
		}
		if cfg.MaxDelivered > 0 {
			a.maxBriefs = cfg.MaxDelivered
		}
	}
	return a
}

// Assemble builds a bundle for one tenant. Sections fill greedily in
// priority order: memory facts, recent activity, active deliverable
// metadata, platform freshness. Budget a higher-priority section does not
// use flows to the next.
func (a *Assembler) Assemble(ctx context.Context, tenantID string) (*types.ContextBundle, error) {
	// Each assembly is one billable interaction. The reservation is never
	// released here; the monthly counter is reset by the billing cycle.
	if a.quotas != nil {
		if err := a.quotas.CheckAndReserve(ctx, tenantID, types.ClassMonthlyInteractions, 1); err != nil {
			return nil, err
		}
	}

	bundle := &types.ContextBundle{
		TenantID:    tenantID,
		BudgetChars: a.budgetChars,
		AssembledAt: a.now(),
	}
	remaining := a.budgetChars

	facts, err := a.store.ListMemoryFacts(ctx, tenantID, a.maxFacts)
	if err != nil {
		return nil, fmt.Errorf("loading memory facts: %w", err)
	}
	for _, f := range facts {
		cost := len(f.Key) + len(f.Value)
		if cost > remaining {
			break
		}
		bundle.Facts = append(bundle.Facts, f)
		remaining -= cost
	}

	activity, err := a.store.ListActivity(ctx, tenantID, a.maxActivity)
	if err != nil {
		return nil, fmt.Errorf("loading activity: %w", err)
	}
	for _, ev := range activity {
		cost := len(string(ev.Kind)) + len(ev.Message) + len(ev.Resource) + 32
		if cost > remaining {
			break
		}
		bundle.Activity = append(bundle.Activity, ev)
		remaining -= cost
	}

	deliverables, err := a.store.ListDeliverables(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("loading deliverables: %w", err)
	}
	for _, d := range deliverables {
		if d.Status != types.DeliverableActive {
			continue
		}
		if len(bundle.Deliverables) >= a.maxBriefs {
			break
		}
		brief := types.DeliverableBrief{ID: d.ID, Name: d.Name, Frequency: d.Schedule.Frequency}
		if versions, err := a.store.ListVersions(ctx, d.ID, 1); err == nil && len(versions) > 0 {
			brief.LastStatus = versions[0].Status
		}
		cost := len(brief.ID) + len(brief.Name) + 16
		if cost > remaining {
			break
		}
		bundle.Deliverables = append(bundle.Deliverables, brief)
		remaining -= cost
	}

	freshness, err := a.freshness(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, pf := range freshness {
		cost := len(pf.Platform) + 48
		if cost > remaining {
			break
		}
		bundle.Freshness = append(bundle.Freshness, pf)
		remaining -= cost
	}

	bundle.UsedChars = a.budgetChars - remaining
	return bundle, nil
}

// freshness summarizes per-platform connection and sync state from cursors.
func (a *Assembler) freshness(ctx context.Context, tenantID string) ([]types.PlatformFreshness, error) {
	cursors, err := a.store.ListCursors(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("loading cursors: %w", err)
	}

	byPlatform := make(map[string]*types.PlatformFreshness)
	for _, c := range cursors {
		pf, ok := byPlatform[c.Resource.Platform]
		if !ok {
			pf = &types.PlatformFreshness{Platform: c.Resource.Platform}
			byPlatform[c.Resource.Platform] = pf
		}
		pf.Resources++
		if c.Suspended {
			pf.Suspended++
		}
		if c.LastSuccess.IsZero() {
			pf.NeverSynced++
			continue
		}
		if pf.OldestSync.IsZero() || c.LastSuccess.Before(pf.OldestSync) {
			pf.OldestSync = c.LastSuccess
		}
		if c.LastSuccess.After(pf.NewestSync) {
			pf.NewestSync = c.LastSuccess
		}
	}

	out := make([]types.PlatformFreshness, 0, len(byPlatform))
	for _, pf := range byPlatform {
		out = append(out, *pf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}
