package testutil

import (
	"testing"

	"github.com/driftline-systems/driftline/internal/store/storetest"
)

// The in-memory mock must satisfy the same behavioral contract as the real
// backend so component tests built on it stay honest.
func TestMockStoreConformance(t *testing.T) {
	storetest.RunAll(t, NewMockStore())
}
