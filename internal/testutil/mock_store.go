// Package testutil provides shared test utilities for Driftline.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/driftline-systems/driftline/internal/store"
	"github.com/driftline-systems/driftline/pkg/types"
)

// Compile-time interface satisfaction check.
var _ store.Store = (*MockStore)(nil)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu           sync.Mutex
	quotas       map[string]types.TenantQuota
	cursors      map[string]types.SyncCursor          // key: resource key
	content      map[string]types.ContentItem         // key: resource key + "#" + item id
	facts        map[string]types.MemoryFact          // key: tenant + "#" + fact key
	activity     []types.ActivityEvent
	deliverables map[string]types.Deliverable
	versions     map[string]types.DeliverableVersion // key: deliverable id + "#" + seq
	signals      map[string]types.Signal             // key: tenant + "#" + type + "#" + dedup
	execLogs     []types.ExecutionLog
	leases       map[string]time.Time // key -> expiry

	// Clock is substitutable so lease expiry and sweeps are testable.
	Now func() time.Time

	leaseAttempts atomic.Int64
}

// NewMockStore creates a new in-memory mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		quotas:       make(map[string]types.TenantQuota),
		cursors:      make(map[string]types.SyncCursor),
		content:      make(map[string]types.ContentItem),
		facts:        make(map[string]types.MemoryFact),
		deliverables: make(map[string]types.Deliverable),
		versions:     make(map[string]types.DeliverableVersion),
		signals:      make(map[string]types.Signal),
		leases:       make(map[string]time.Time),
		Now:          time.Now,
	}
}

// LeaseAttempts returns how many AcquireLease calls were made.
func (m *MockStore) LeaseAttempts() int64 { return m.leaseAttempts.Load() }

func (m *MockStore) PutQuota(_ context.Context, quota types.TenantQuota) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if quota.Usage == nil {
		quota.Usage = make(map[types.ResourceClass]int64)
	}
	m.quotas[quota.TenantID] = quota
	return nil
}

func (m *MockStore) GetQuota(_ context.Context, tenantID string) (*types.TenantQuota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotas[tenantID]
	if !ok {
		return nil, nil
	}
	cp := q
	cp.Usage = make(map[types.ResourceClass]int64, len(q.Usage))
	for k, v := range q.Usage {
		cp.Usage[k] = v
	}
	return &cp, nil
}

func (m *MockStore) ReserveUsage(_ context.Context, tenantID string, class types.ResourceClass, delta, limit int64) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotas[tenantID]
	if !ok {
		return false, 0, fmt.Errorf("quota for tenant %q not found", tenantID)
	}
	if q.Usage == nil {
		q.Usage = make(map[types.ResourceClass]int64)
	}
	current := q.Usage[class]
	if limit > 0 && current+delta > limit {
		return false, current, nil
	}
	q.Usage[class] = current + delta
	q.UpdatedAt = m.Now()
	q.Version++
	m.quotas[tenantID] = q
	return true, current + delta, nil
}

func (m *MockStore) ReleaseUsage(_ context.Context, tenantID string, class types.ResourceClass, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotas[tenantID]
	if !ok {
		return fmt.Errorf("quota for tenant %q not found", tenantID)
	}
	if q.Usage == nil {
		q.Usage = make(map[types.ResourceClass]int64)
	}
	q.Usage[class] -= delta
	if q.Usage[class] < 0 {
		q.Usage[class] = 0
	}
	q.UpdatedAt = m.Now()
	q.Version++
	m.quotas[tenantID] = q
	return nil
}

func (m *MockStore) ListTenants(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.quotas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MockStore) PutCursor(_ context.Context, cursor types.SyncCursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[cursor.Resource.Key()] = cursor
	return nil
}

func (m *MockStore) GetCursor(_ context.Context, res types.Resource) (*types.SyncCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cursors[res.Key()]
	if !ok {
		return nil, nil
	}
	cp := c
	return &cp, nil
}

func (m *MockStore) ListCursors(_ context.Context, tenantID string) ([]types.SyncCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.SyncCursor
	for _, c := range m.cursors {
		if c.Resource.TenantID == tenantID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Resource.Key() < out[j].Resource.Key()
	})
	return out, nil
}

func (m *MockStore) UpsertContent(_ context.Context, item types.ContentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := item.Resource.Key() + "#" + item.ItemID
	if prev, ok := m.content[key]; ok && prev.RetentionReason != "" && item.RetentionReason == "" {
		item.RetentionReason = prev.RetentionReason
	}
	m.content[key] = item
	return nil
}

func (m *MockStore) GetContent(_ context.Context, res types.Resource, itemID string) (*types.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.content[res.Key()+"#"+itemID]
	if !ok {
		return nil, nil
	}
	cp := item
	return &cp, nil
}

func (m *MockStore) ListContent(_ context.Context, tenantID string, limit int) ([]types.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.ContentItem
	for _, item := range m.content {
		if item.Resource.TenantID == tenantID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FetchedAt.After(out[j].FetchedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) SetRetentionReason(_ context.Context, res types.Resource, itemID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := res.Key() + "#" + itemID
	item, ok := m.content[key]
	if !ok {
		return fmt.Errorf("content item %q not found", key)
	}
	item.RetentionReason = reason
	m.content[key] = item
	return nil
}

func (m *MockStore) DeleteExpiredContent(_ context.Context, tenantID string, now time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for key, item := range m.content {
		if limit > 0 && deleted >= limit {
			break
		}
		if item.Resource.TenantID != tenantID {
			continue
		}
		if item.RetentionReason == "" && item.ExpiresAt.Before(now) {
			delete(m.content, key)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MockStore) PutMemoryFact(_ context.Context, fact types.MemoryFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts[fact.TenantID+"#"+fact.Key] = fact
	return nil
}

func (m *MockStore) ListMemoryFacts(_ context.Context, tenantID string, limit int) ([]types.MemoryFact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.MemoryFact
	for key, f := range m.facts {
		if strings.HasPrefix(key, tenantID+"#") {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) AppendActivity(_ context.Context, event types.ActivityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, event)
	return nil
}

func (m *MockStore) ListActivity(_ context.Context, tenantID string, limit int) ([]types.ActivityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.ActivityEvent
	for i := len(m.activity) - 1; i >= 0; i-- {
		if m.activity[i].TenantID == tenantID {
			out = append(out, m.activity[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockStore) PutDeliverable(_ context.Context, d types.Deliverable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliverables[d.ID] = d
	return nil
}

func (m *MockStore) GetDeliverable(_ context.Context, id string) (*types.Deliverable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliverables[id]
	if !ok {
		return nil, nil
	}
	cp := d
	return &cp, nil
}

func (m *MockStore) ListDeliverables(_ context.Context, tenantID string) ([]types.Deliverable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Deliverable
	for _, d := range m.deliverables {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func versionKey(deliverableID string, sequence int) string {
	return fmt.Sprintf("%s#%06d", deliverableID, sequence)
}

func (m *MockStore) PutVersion(_ context.Context, v types.DeliverableVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := versionKey(v.DeliverableID, v.Sequence)
	if _, ok := m.versions[key]; ok {
		return fmt.Errorf("version %s/%d already exists", v.DeliverableID, v.Sequence)
	}
	m.versions[key] = v
	return nil
}

func (m *MockStore) GetVersion(_ context.Context, deliverableID string, sequence int) (*types.DeliverableVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionKey(deliverableID, sequence)]
	if !ok {
		return nil, nil
	}
	cp := v
	return &cp, nil
}

func (m *MockStore) ListVersions(_ context.Context, deliverableID string, limit int) ([]types.DeliverableVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.DeliverableVersion
	for _, v := range m.versions {
		if v.DeliverableID == deliverableID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence > out[j].Sequence })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) CompareAndSwapVersion(_ context.Context, deliverableID string, sequence, expectedVersion int, v types.DeliverableVersion) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := versionKey(deliverableID, sequence)
	existing, ok := m.versions[key]
	if !ok {
		return false, fmt.Errorf("version %s/%d not found", deliverableID, sequence)
	}
	if existing.Version != expectedVersion {
		return false, nil
	}
	m.versions[key] = v
	return true, nil
}

func signalKey(tenantID string, sigType types.SignalType, dedupKey string) string {
	return tenantID + "#" + string(sigType) + "#" + dedupKey
}

func (m *MockStore) PutSignal(_ context.Context, sig types.Signal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := signalKey(sig.TenantID, sig.Type, sig.DedupKey)
	if existing, ok := m.signals[key]; ok && m.Now().Before(existing.ExpiresAt) {
		return false, nil
	}
	m.signals[key] = sig
	return true, nil
}

func (m *MockStore) GetSignal(_ context.Context, tenantID string, sigType types.SignalType, dedupKey string) (*types.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[signalKey(tenantID, sigType, dedupKey)]
	if !ok {
		return nil, nil
	}
	cp := s
	return &cp, nil
}

func (m *MockStore) ListSignals(_ context.Context, tenantID string, limit int) ([]types.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Signal
	for key, s := range m.signals {
		if strings.HasPrefix(key, tenantID+"#") {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmittedAt.After(out[j].EmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) AppendExecutionLog(_ context.Context, entry types.ExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execLogs = append(m.execLogs, entry)
	return nil
}

func (m *MockStore) ListExecutionLogs(_ context.Context, deliverableID string, limit int) ([]types.ExecutionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.ExecutionLog
	for i := len(m.execLogs) - 1; i >= 0; i-- {
		if m.execLogs[i].DeliverableID == deliverableID {
			out = append(out, m.execLogs[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockStore) AcquireLease(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.leaseAttempts.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	if expiry, ok := m.leases[key]; ok && now.Before(expiry) {
		return false, nil
	}
	m.leases[key] = now.Add(ttl)
	return true, nil
}

func (m *MockStore) ReleaseLease(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leases, key)
	return nil
}

func (m *MockStore) Start(_ context.Context) error { return nil }
func (m *MockStore) Stop(_ context.Context) error  { return nil }
func (m *MockStore) Ping(_ context.Context) error  { return nil }
