// Package types defines the public domain types for the Driftline sync and
// deliverable platform core.
package types

import "time"

// ResourceClass identifies a quota-limited resource category.
type ResourceClass string

// ResourceClass values enumerate the quota-limited categories of a tier.
const (
	ClassPlatforms           ResourceClass = "platforms"
	ClassSourcesPerPlatform  ResourceClass = "sources_per_platform"
	ClassMonthlyInteractions ResourceClass = "monthly_interactions"
	ClassActiveDeliverables  ResourceClass = "active_deliverables"
)

// FrequencyClass names a tier's sync cadence.
type FrequencyClass string

// FrequencyClass values enumerate the supported sync cadences.
const (
	FreqHourly  FrequencyClass = "hourly"
	Freq6Hourly FrequencyClass = "6-hourly"
	FreqDaily   FrequencyClass = "daily"
)

// Interval returns the sync interval for a frequency class. Unknown classes
// fall back to daily, the coarsest cadence.
func (f FrequencyClass) Interval() time.Duration {
	switch f {
	case FreqHourly:
		return time.Hour
	case Freq6Hourly:
		return 6 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// TierConfig is a named bundle of numeric limits and a sync-frequency class.
// Tiers are data, not code: new tiers are added in configuration.
type TierConfig struct {
	Name      string                  `yaml:"name" json:"name"`
	Frequency FrequencyClass          `yaml:"frequency" json:"frequency"`
	Limits    map[ResourceClass]int64 `yaml:"limits" json:"limits"`
}

// Limit returns the configured limit for a resource class, or 0 if the class
// is not limited by this tier.
func (t TierConfig) Limit(class ResourceClass) int64 {
	return t.Limits[class]
}

// TenantQuota holds a tenant's tier assignment and live usage counters.
// Counters never exceed limits except transiently during a race that the
// next conditional write resolves.
type TenantQuota struct {
	TenantID  string                  `json:"tenantId"`
	Tier      string                  `json:"tier"`
	Usage     map[ResourceClass]int64 `json:"usage"`
	UpdatedAt time.Time               `json:"updatedAt"`
	Version   int                     `json:"version"`
}

// Resource addresses one selectable unit inside an external platform.
type Resource struct {
	TenantID string `yaml:"tenantId" json:"tenantId"`
	Platform string `yaml:"platform" json:"platform"`
	ID       string `yaml:"id" json:"id"`
}

// Key returns the canonical "tenant/platform/resource" key.
func (r Resource) Key() string {
	return r.TenantID + "/" + r.Platform + "/" + r.ID
}

// SyncCursor records the last fetched position for one selected resource.
// It is created on first selection and never deleted while selected.
type SyncCursor struct {
	Resource            Resource   `json:"resource"`
	Position            string     `json:"position"`
	LastAttempt         time.Time  `json:"lastAttempt"`
	LastSuccess         time.Time  `json:"lastSuccess"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	Suspended           bool       `json:"suspended"`
	SuspendedReason     string     `json:"suspendedReason,omitempty"`
	SuspendedAt         *time.Time `json:"suspendedAt,omitempty"`
}

// ContentItem is one fetched, time-bounded unit of external content.
// The retention reason, while set, exempts the row from expiry.
type ContentItem struct {
	Resource        Resource  `json:"resource"`
	ItemID          string    `json:"itemId"`
	Payload         string    `json:"payload"`
	FetchedAt       time.Time `json:"fetchedAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
	RetentionReason string    `json:"retentionReason,omitempty"`
}

// MemoryFact is a durable, small key/value fact with no expiry.
type MemoryFact struct {
	TenantID  string    `json:"tenantId"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Source    string    `json:"source,omitempty"` // "user" or "system"
	UpdatedAt time.Time `json:"updatedAt"`
}

// ActivityKind classifies an activity log entry.
type ActivityKind string

// ActivityKind values enumerate the categories of recorded activity.
const (
	ActivityResourceSynced    ActivityKind = "RESOURCE_SYNCED"
	ActivitySyncFailed        ActivityKind = "SYNC_FAILED"
	ActivitySyncInconclusive  ActivityKind = "SYNC_INCONCLUSIVE"
	ActivitySourceSuspended   ActivityKind = "SOURCE_SUSPENDED"
	ActivitySourceResumed     ActivityKind = "SOURCE_RESUMED"
	ActivityDeliverableRun    ActivityKind = "DELIVERABLE_EXECUTED"
	ActivityDeliverableFailed ActivityKind = "DELIVERABLE_FAILED"
	ActivitySignalEmitted     ActivityKind = "SIGNAL_EMITTED"
	ActivityRetentionSweep    ActivityKind = "RETENTION_SWEEP"
	ActivityQuotaRejected     ActivityKind = "QUOTA_REJECTED"
	ActivityVersionReviewed   ActivityKind = "VERSION_REVIEWED"
)

// ActivityEvent is an append-only provenance log entry. Never mutated.
type ActivityEvent struct {
	EventID   string                 `json:"eventId"`
	TenantID  string                 `json:"tenantId"`
	Kind      ActivityKind           `json:"kind"`
	Platform  string                 `json:"platform,omitempty"`
	Resource  string                 `json:"resource,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// DeliverableStatus is the activation state of a deliverable definition.
type DeliverableStatus string

const (
	DeliverableActive DeliverableStatus = "ACTIVE"
	DeliverablePaused DeliverableStatus = "PAUSED"
)

// ScheduleSpec defines when a recurring deliverable runs.
type ScheduleSpec struct {
	Frequency FrequencyClass `yaml:"frequency" json:"frequency"`
	Anchor    string         `yaml:"anchor,omitempty" json:"anchor,omitempty"` // "HH:MM", interpreted in Timezone
	Timezone  string         `yaml:"timezone,omitempty" json:"timezone,omitempty"`
}

// Deliverable is a recurring (or ad-hoc) generation task definition.
type Deliverable struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Name      string            `json:"name"`
	Schedule  ScheduleSpec      `json:"schedule"`
	Sources   []Resource        `json:"sources"`
	Prompt    string            `json:"prompt,omitempty"`
	Status    DeliverableStatus `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// VersionStatus is the lifecycle state of one deliverable execution attempt.
type VersionStatus string

// VersionStatus values. Approved, rejected, and failed are terminal.
const (
	VersionGenerating VersionStatus = "GENERATING"
	VersionStaged     VersionStatus = "STAGED"
	VersionReviewing  VersionStatus = "REVIEWING"
	VersionApproved   VersionStatus = "APPROVED"
	VersionRejected   VersionStatus = "REJECTED"
	VersionFailed     VersionStatus = "FAILED"
)

// DeliverableVersion is one row per execution attempt, keyed by
// (deliverable id, sequence).
type DeliverableVersion struct {
	DeliverableID string        `json:"deliverableId"`
	Sequence      int           `json:"sequence"`
	TenantID      string        `json:"tenantId"`
	Status        VersionStatus `json:"status"`
	Draft         string        `json:"draft,omitempty"`
	Final         string        `json:"final,omitempty"`
	FailureReason string        `json:"failureReason,omitempty"`
	Version       int           `json:"version"` // optimistic concurrency counter
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// SignalType names a behavioral pattern a matcher can detect.
type SignalType string

const (
	SignalInactivity          SignalType = "INACTIVITY"
	SignalDeadlineApproaching SignalType = "DEADLINE_APPROACHING"
)

// Signal is a detected behavioral pattern, deduplicated by
// (tenant, type, dedup key) under a cool-down window.
type Signal struct {
	SignalID  string     `json:"signalId"`
	TenantID  string     `json:"tenantId"`
	Type      SignalType `json:"type"`
	DedupKey  string     `json:"dedupKey"`
	Message   string     `json:"message,omitempty"`
	EmittedAt time.Time  `json:"emittedAt"`
	ExpiresAt time.Time  `json:"expiresAt"` // cool-down boundary
}

// SourceRead records one live source read made during an execution.
type SourceRead struct {
	Resource  Resource  `json:"resource"`
	ItemCount int       `json:"itemCount"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// ExecutionLog is the single atomic audit record of one deliverable
// execution: which sources were read and how fresh they were.
type ExecutionLog struct {
	LogID         string       `json:"logId"`
	DeliverableID string       `json:"deliverableId"`
	TenantID      string       `json:"tenantId"`
	Sequence      int          `json:"sequence"`
	Sources       []SourceRead `json:"sources"`
	Outcome       string       `json:"outcome"` // "staged" or "failed"
	Attempts      int          `json:"attempts"`
	StartedAt     time.Time    `json:"startedAt"`
	CompletedAt   time.Time    `json:"completedAt"`
}

// Credential is a decrypted, possibly-expired credential object. Acquisition
// and storage live outside this core; sync and execution only consume it.
type Credential struct {
	TenantID  string    `json:"tenantId"`
	Platform  string    `json:"platform"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the credential is past its expiry.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// FetchResult is what a connector returns for one cursor fetch.
// Inconclusive distinguishes "zero items but the sync could not verify the
// source" from "zero items, genuinely nothing new"; an inconclusive result
// must be surfaced as a failure, never a silent success.
type FetchResult struct {
	Items        []ContentItem `json:"items"`
	NewCursor    string        `json:"newCursor"`
	Inconclusive bool          `json:"inconclusive"`
	FetchedAt    time.Time     `json:"fetchedAt"`
}

// GenerationRequest is the input to the opaque generation call.
type GenerationRequest struct {
	TenantID      string        `json:"tenantId"`
	DeliverableID string        `json:"deliverableId"`
	Prompt        string        `json:"prompt,omitempty"`
	Items         []ContentItem `json:"items"`
	Facts         []MemoryFact  `json:"facts"`
}

// GenerationOutput is the result of the opaque generation call.
type GenerationOutput struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ContextBundle is the budgeted working-context bundle assembled for
// interactive use. Sections are filled greedily in priority order.
type ContextBundle struct {
	TenantID     string              `json:"tenantId"`
	Facts        []MemoryFact        `json:"facts"`
	Activity     []ActivityEvent     `json:"activity"`
	Deliverables []DeliverableBrief  `json:"deliverables"`
	Freshness    []PlatformFreshness `json:"freshness"`
	BudgetChars  int                 `json:"budgetChars"`
	UsedChars    int                 `json:"usedChars"`
	AssembledAt  time.Time           `json:"assembledAt"`
}

// DeliverableBrief is the compact deliverable metadata included in a bundle.
type DeliverableBrief struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Frequency  FrequencyClass `json:"frequency"`
	LastStatus VersionStatus  `json:"lastStatus,omitempty"`
}

// PlatformFreshness reports connection and sync freshness per platform.
// Stale or absent data is reported, never awaited.
type PlatformFreshness struct {
	Platform    string    `json:"platform"`
	Resources   int       `json:"resources"`
	Suspended   int       `json:"suspended"`
	OldestSync  time.Time `json:"oldestSync,omitempty"`
	NewestSync  time.Time `json:"newestSync,omitempty"`
	NeverSynced int       `json:"neverSynced"`
}
