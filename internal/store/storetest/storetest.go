// Package storetest provides shared conformance tests for store.Store
// implementations. Call RunAll from a test function to verify a backend
// satisfies the full behavioral contract.
package storetest

import (
	"testing"

	"github.com/driftline-systems/driftline/internal/store"
)

// RunAll runs the complete store conformance suite as subtests.
func RunAll(t *testing.T, s store.Store) {
	t.Helper()

	t.Run("QuotaPutGet", func(t *testing.T) { TestQuotaPutGet(t, s) })
	t.Run("ReserveUsageLimit", func(t *testing.T) { TestReserveUsageLimit(t, s) })
	t.Run("ReserveUsageRace", func(t *testing.T) { TestReserveUsageRace(t, s) })
	t.Run("ReleaseUsageClamp", func(t *testing.T) { TestReleaseUsageClamp(t, s) })
	t.Run("CursorPutGetList", func(t *testing.T) { TestCursorPutGetList(t, s) })
	t.Run("ContentUpsertGet", func(t *testing.T) { TestContentUpsertGet(t, s) })
	t.Run("ContentRetention", func(t *testing.T) { TestContentRetention(t, s) })
	t.Run("ContentExpiry", func(t *testing.T) { TestContentExpiry(t, s) })
	t.Run("MemoryFacts", func(t *testing.T) { TestMemoryFacts(t, s) })
	t.Run("ActivityAppendList", func(t *testing.T) { TestActivityAppendList(t, s) })
	t.Run("DeliverableCRUD", func(t *testing.T) { TestDeliverableCRUD(t, s) })
	t.Run("VersionPutGet", func(t *testing.T) { TestVersionPutGet(t, s) })
	t.Run("VersionCAS", func(t *testing.T) { TestVersionCAS(t, s) })
	t.Run("SignalDedup", func(t *testing.T) { TestSignalDedup(t, s) })
	t.Run("ExecutionLogs", func(t *testing.T) { TestExecutionLogs(t, s) })
	t.Run("Leasing", func(t *testing.T) { TestLeasing(t, s) })
}
