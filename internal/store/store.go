// Package store defines the storage backend interface for Driftline.
package store

import (
	"context"
	"time"

	"github.com/driftline-systems/driftline/pkg/types"
)

// Store is the storage backend interface. All cross-worker shared state
// (quota counters, cursors, content, leases) lives behind it; writes to
// shared keys go through conditional updates or leases so the store itself
// needs no additional locking.
type Store interface {
	// Tenant quotas. ReserveUsage and ReleaseUsage are conditional
	// (compare-and-swap on the counter) so concurrent reservations cannot
	// both succeed past a limit.
	PutQuota(ctx context.Context, quota types.TenantQuota) error
	GetQuota(ctx context.Context, tenantID string) (*types.TenantQuota, error)
	ReserveUsage(ctx context.Context, tenantID string, class types.ResourceClass, delta, limit int64) (bool, int64, error)
	ReleaseUsage(ctx context.Context, tenantID string, class types.ResourceClass, delta int64) error
	ListTenants(ctx context.Context) ([]string, error)

	// Sync cursors, one per selected (tenant, platform, resource).
	PutCursor(ctx context.Context, cursor types.SyncCursor) error
	GetCursor(ctx context.Context, res types.Resource) (*types.SyncCursor, error)
	ListCursors(ctx context.Context, tenantID string) ([]types.SyncCursor, error)

	// Content items, upserted latest-wins with a TTL. Only sync fetch jobs
	// write here; the assembler and detector read.
	UpsertContent(ctx context.Context, item types.ContentItem) error
	GetContent(ctx context.Context, res types.Resource, itemID string) (*types.ContentItem, error)
	ListContent(ctx context.Context, tenantID string, limit int) ([]types.ContentItem, error)
	SetRetentionReason(ctx context.Context, res types.Resource, itemID, reason string) error
	DeleteExpiredContent(ctx context.Context, tenantID string, now time.Time, limit int) (int, error)

	// Durable memory facts.
	PutMemoryFact(ctx context.Context, fact types.MemoryFact) error
	ListMemoryFacts(ctx context.Context, tenantID string, limit int) ([]types.MemoryFact, error)

	// Activity log is an append-only provenance trail.
	AppendActivity(ctx context.Context, event types.ActivityEvent) error
	ListActivity(ctx context.Context, tenantID string, limit int) ([]types.ActivityEvent, error)

	// Deliverable definitions.
	PutDeliverable(ctx context.Context, d types.Deliverable) error
	GetDeliverable(ctx context.Context, id string) (*types.Deliverable, error)
	ListDeliverables(ctx context.Context, tenantID string) ([]types.Deliverable, error)

	// Deliverable versions, keyed by (deliverable id, sequence), with CAS
	// for state-machine transitions.
	PutVersion(ctx context.Context, v types.DeliverableVersion) error
	GetVersion(ctx context.Context, deliverableID string, sequence int) (*types.DeliverableVersion, error)
	ListVersions(ctx context.Context, deliverableID string, limit int) ([]types.DeliverableVersion, error)
	CompareAndSwapVersion(ctx context.Context, deliverableID string, sequence, expectedVersion int, v types.DeliverableVersion) (bool, error)

	// Signals. PutSignal is conditional: it succeeds only when no signal
	// with the same (tenant, type, dedup key) exists inside its cool-down.
	PutSignal(ctx context.Context, sig types.Signal) (bool, error)
	GetSignal(ctx context.Context, tenantID string, sigType types.SignalType, dedupKey string) (*types.Signal, error)
	ListSignals(ctx context.Context, tenantID string, limit int) ([]types.Signal, error)

	// Execution log: one atomic audit record per execution attempt.
	AppendExecutionLog(ctx context.Context, entry types.ExecutionLog) error
	ListExecutionLogs(ctx context.Context, deliverableID string, limit int) ([]types.ExecutionLog, error)

	// TTL leases for sync and execution mutual exclusion. An expired lease
	// is acquirable without manual intervention.
	AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key string) error

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}
