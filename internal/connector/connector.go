// Package connector defines the platform adapter contract and the guards the
// platform core applies around it: circuit breaking, fetch timeouts, and
// serialized credential refresh.
package connector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/driftline-systems/driftline/pkg/types"
)

// Connector is the per-platform fetch/refresh interface. Implementations
// live outside this core; only the contract is defined here.
//
// Fetch must be idempotent with respect to cursor: re-fetching the same
// cursor yields the same or a superset of items. A fetch that cannot verify
// the source must set FetchResult.Inconclusive rather than returning an
// empty success.
type Connector interface {
	Platform() string
	Fetch(ctx context.Context, res types.Resource, cursor string) (types.FetchResult, error)
	RefreshCredentials(ctx context.Context, tenantID string) (types.Credential, error)
}

// Registry maps platform names to connectors.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewRegistry creates an empty connector registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

// Register adds a connector. Registering the same platform twice is an error.
func (r *Registry) Register(c Connector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.connectors[c.Platform()]; exists {
		return fmt.Errorf("connector for platform %q already registered", c.Platform())
	}
	r.connectors[c.Platform()] = c
	return nil
}

// Get returns the connector for a platform.
func (r *Registry) Get(platform string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[platform]
	if !ok {
		return nil, fmt.Errorf("no connector registered for platform %q", platform)
	}
	return c, nil
}

// Platforms returns the registered platform names, sorted.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
