package types

import (
	"errors"
	"fmt"
)

// TransientFetchError wraps a network or rate-limit failure that should be
// retried with backoff. It never fails the tenant's other resources.
type TransientFetchError struct {
	Platform string
	Err      error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch error on %s: %v", e.Platform, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// AuthExpiredError means credential refresh failed; the affected resources
// are suspended and flagged for reconnection rather than retried every tick.
type AuthExpiredError struct {
	TenantID string
	Platform string
	Err      error
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("credentials expired for tenant %s platform %s: %v", e.TenantID, e.Platform, e.Err)
}

func (e *AuthExpiredError) Unwrap() error { return e.Err }

// QuotaExceededError is rejected at the point of request and always carries
// limit and usage so callers can produce an actionable message.
type QuotaExceededError struct {
	TenantID string
	Class    ResourceClass
	Limit    int64
	Usage    int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for tenant %s: %s usage %d of limit %d", e.TenantID, e.Class, e.Usage, e.Limit)
}

// LockContentionError means another worker holds the lease or mutex.
// Treated as "skip this cycle": logged, never escalated.
type LockContentionError struct {
	Key string
}

func (e *LockContentionError) Error() string {
	return fmt.Sprintf("lease %q held by another worker", e.Key)
}

// GenerationError means generation retries were exhausted inside one
// execution attempt; the version transitions to FAILED with no auto-retrigger.
type GenerationError struct {
	DeliverableID string
	Attempts      int
	Err           error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for %s after %d attempts: %v", e.DeliverableID, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// InconclusiveSyncError surfaces a fetch that returned zero items without
// being able to verify the source. It is recorded as a failure, never as a
// silent empty success.
type InconclusiveSyncError struct {
	Resource Resource
}

func (e *InconclusiveSyncError) Error() string {
	return fmt.Sprintf("inconclusive sync for %s: zero items, source unverified", e.Resource.Key())
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	var te *TransientFetchError
	return errors.As(err, &te)
}

// IsAuthExpired reports whether err indicates a failed credential refresh.
func IsAuthExpired(err error) bool {
	var ae *AuthExpiredError
	return errors.As(err, &ae)
}

// IsLockContention reports whether err indicates a held lease.
func IsLockContention(err error) bool {
	var le *LockContentionError
	return errors.As(err, &le)
}
