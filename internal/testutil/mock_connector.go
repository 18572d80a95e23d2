package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/driftline-systems/driftline/pkg/types"
)

// MockConnector is a scriptable connector for tests. Fetch and refresh
// behavior is controlled per resource/tenant via the Err and Results maps.
type MockConnector struct {
	mu       sync.Mutex
	platform string

	Results      map[string]types.FetchResult // key: resource key
	Errs         map[string]error             // key: resource key
	RefreshErr   error
	RefreshCred  types.Credential
	FetchDelay   time.Duration
	Inconclusive bool

	fetchCount   atomic.Int64
	refreshCount atomic.Int64
	fetched      []types.Resource
}

// NewMockConnector creates a mock connector for the given platform.
func NewMockConnector(platform string) *MockConnector {
	return &MockConnector{
		platform: platform,
		Results:  make(map[string]types.FetchResult),
		Errs:     make(map[string]error),
	}
}

func (c *MockConnector) Platform() string { return c.platform }

func (c *MockConnector) Fetch(ctx context.Context, res types.Resource, cursor string) (types.FetchResult, error) {
	c.fetchCount.Add(1)
	if c.FetchDelay > 0 {
		select {
		case <-time.After(c.FetchDelay):
		case <-ctx.Done():
			return types.FetchResult{}, ctx.Err()
		}
	}
	c.mu.Lock()
	c.fetched = append(c.fetched, res)
	result, ok := c.Results[res.Key()]
	err := c.Errs[res.Key()]
	c.mu.Unlock()

	if err != nil {
		return types.FetchResult{}, err
	}
	if !ok {
		result = types.FetchResult{NewCursor: cursor, FetchedAt: time.Now(), Inconclusive: c.Inconclusive}
	}
	if result.FetchedAt.IsZero() {
		result.FetchedAt = time.Now()
	}
	return result, nil
}

func (c *MockConnector) RefreshCredentials(_ context.Context, tenantID string) (types.Credential, error) {
	c.refreshCount.Add(1)
	if c.RefreshErr != nil {
		return types.Credential{}, c.RefreshErr
	}
	cred := c.RefreshCred
	if cred.TenantID == "" {
		cred = types.Credential{TenantID: tenantID, Platform: c.platform, Token: "refreshed", ExpiresAt: time.Now().Add(time.Hour)}
	}
	return cred, nil
}

// FetchCount returns how many Fetch calls were made.
func (c *MockConnector) FetchCount() int64 { return c.fetchCount.Load() }

// RefreshCount returns how many RefreshCredentials calls were made.
func (c *MockConnector) RefreshCount() int64 { return c.refreshCount.Load() }

// Fetched returns the resources fetched so far, in call order.
func (c *MockConnector) Fetched() []types.Resource {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Resource, len(c.fetched))
	copy(out, c.fetched)
	return out
}

// MockGenerator is a scriptable generation function for tests.
type MockGenerator struct {
	mu     sync.Mutex
	Output types.GenerationOutput
	// Errs is consumed one per call; nil entries mean success. When the
	// slice is exhausted further calls succeed.
	Errs  []error
	calls int
}

// Generate implements the executor's Generator interface.
func (g *MockGenerator) Generate(_ context.Context, req types.GenerationRequest) (types.GenerationOutput, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.Errs) > 0 {
		err := g.Errs[0]
		g.Errs = g.Errs[1:]
		if err != nil {
			return types.GenerationOutput{}, err
		}
	}
	out := g.Output
	if out.Text == "" {
		out.Text = "generated draft for " + req.DeliverableID
	}
	return out, nil
}

// Calls returns how many Generate calls were made.
func (g *MockGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
