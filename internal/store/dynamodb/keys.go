package dynamodb

import (
	"fmt"
	"time"

	"github.com/driftline-systems/driftline/pkg/types"
)

// Single-table key layout. Tenant-scoped rows share a TENANT#<id> partition
// so a tenant's cursors, content, facts, and activity can be range-queried
// with a single SK prefix; deliverables carry their own partition because
// versions and execution logs grow unbounded.
const (
	tenantPKPrefix      = "TENANT#"
	deliverablePKPrefix = "DELIVERABLE#"
	leasePKPrefix       = "LEASE#"

	quotaSK             = "QUOTA"
	cursorSKPrefix      = "CURSOR#"
	contentSKPrefix     = "CONTENT#"
	factSKPrefix        = "FACT#"
	activitySKPrefix    = "ACTIVITY#"
	deliverableSKPrefix = "DELIVERABLE#"
	signalSKPrefix      = "SIGNAL#"
	configSK            = "CONFIG"
	versionSKPrefix     = "VERSION#"
	execLogSKPrefix     = "EXECLOG#"
	leaseSK             = "LEASE"
)

func tenantPK(tenantID string) string {
	return tenantPKPrefix + tenantID
}

func cursorSK(res types.Resource) string {
	return fmt.Sprintf("%s%s#%s", cursorSKPrefix, res.Platform, res.ID)
}

func contentSK(res types.Resource, itemID string) string {
	return fmt.Sprintf("%s%s#%s#%s", contentSKPrefix, res.Platform, res.ID, itemID)
}

func factSK(key string) string {
	return factSKPrefix + key
}

// activitySK encodes the event time for range ordering plus a nonce so two
// events in the same millisecond do not collide.
func activitySK(at time.Time, nonce string) string {
	return fmt.Sprintf("%s%013d#%s", activitySKPrefix, at.UnixMilli(), nonce)
}

func signalSK(sigType types.SignalType, dedupKey string) string {
	return fmt.Sprintf("%s%s#%s", signalSKPrefix, sigType, dedupKey)
}

func deliverablePK(id string) string {
	return deliverablePKPrefix + id
}

// versionSK zero-pads the sequence so lexicographic SK order matches
// numeric sequence order.
func versionSK(sequence int) string {
	return fmt.Sprintf("%s%06d", versionSKPrefix, sequence)
}

func execLogSK(at time.Time, nonce string) string {
	return fmt.Sprintf("%s%013d#%s", execLogSKPrefix, at.UnixMilli(), nonce)
}

func leasePK(key string) string {
	return leasePKPrefix + key
}

func ttlEpoch(at time.Time) int64 {
	return at.Unix()
}
