package connector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/driftline-systems/driftline/pkg/types"
)

// Guarded wraps a registry with per-platform circuit breakers, fetch
// timeouts, and singleflight credential refresh. All callers go
// through it rather than hitting connectors directly.
type Guarded struct {
	registry     *Registry
	fetchTimeout time.Duration

	breakers struct {
		mu sync.Mutex
		m  map[string]*gobreaker.CircuitBreaker
	}
	refreshGroup singleflight.Group
}

// NewGuarded wraps a registry. fetchTimeout bounds every Fetch call.
func NewGuarded(reg *Registry, fetchTimeout time.Duration) *Guarded {
	if fetchTimeout <= 0 {
		fetchTimeout = types.DefaultFetchTimeout
	}
	g := &Guarded{registry: reg, fetchTimeout: fetchTimeout}
	g.breakers.m = make(map[string]*gobreaker.CircuitBreaker)
	return g
}

func (g *Guarded) breaker(platform string) *gobreaker.CircuitBreaker {
	g.breakers.mu.Lock()
	defer g.breakers.mu.Unlock()
	cb, ok := g.breakers.m[platform]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    platform,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
		g.breakers.m[platform] = cb
	}
	return cb
}

// Fetch performs one cursor fetch through the platform's circuit breaker.
// An open breaker and timeouts surface as *types.TransientFetchError; an
// inconclusive result surfaces as *types.InconclusiveSyncError.
func (g *Guarded) Fetch(ctx context.Context, res types.Resource, cursor string) (types.FetchResult, error) {
	conn, err := g.registry.Get(res.Platform)
	if err != nil {
		return types.FetchResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.fetchTimeout)
	defer cancel()

	out, err := g.breaker(res.Platform).Execute(func() (interface{}, error) {
		return conn.Fetch(ctx, res, cursor)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return types.FetchResult{}, &types.TransientFetchError{Platform: res.Platform, Err: err}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return types.FetchResult{}, &types.TransientFetchError{Platform: res.Platform, Err: err}
		}
		return types.FetchResult{}, err
	}

	result := out.(types.FetchResult)
	if result.Inconclusive && len(result.Items) == 0 {
		return result, &types.InconclusiveSyncError{Resource: res}
	}
	return result, nil
}

// Refresh refreshes credentials for (tenant, platform). Concurrent callers
// for the same pair share a single in-flight refresh, so five simultaneously
// due resources under one credential trigger exactly one refresh attempt.
func (g *Guarded) Refresh(ctx context.Context, tenantID, platform string) (types.Credential, error) {
	conn, err := g.registry.Get(platform)
	if err != nil {
		return types.Credential{}, err
	}

	key := tenantID + "/" + platform
	out, err, _ := g.refreshGroup.Do(key, func() (interface{}, error) {
		cred, err := conn.RefreshCredentials(ctx, tenantID)
		if err != nil {
			return nil, &types.AuthExpiredError{TenantID: tenantID, Platform: platform, Err: err}
		}
		return cred, nil
	})
	if err != nil {
		return types.Credential{}, err
	}
	return out.(types.Credential), nil
}
