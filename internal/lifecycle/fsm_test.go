package lifecycle

import (
	"testing"

	"github.com/driftline-systems/driftline/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from  types.VersionStatus
		to    types.VersionStatus
		valid bool
	}{
		{types.VersionGenerating, types.VersionStaged, true},
		{types.VersionGenerating, types.VersionFailed, true},
		{types.VersionGenerating, types.VersionApproved, false},
		{types.VersionStaged, types.VersionReviewing, true},
		{types.VersionStaged, types.VersionApproved, true},
		{types.VersionStaged, types.VersionRejected, true},
		{types.VersionStaged, types.VersionFailed, false},
		{types.VersionReviewing, types.VersionApproved, true},
		{types.VersionReviewing, types.VersionRejected, true},
		{types.VersionReviewing, types.VersionGenerating, false},
		{types.VersionApproved, types.VersionRejected, false},
		{types.VersionRejected, types.VersionApproved, false},
		{types.VersionFailed, types.VersionGenerating, false},
	}

	for _, tt := range tests {
		got := CanTransition(tt.from, tt.to)
		assert.Equal(t, tt.valid, got, "%s -> %s", tt.from, tt.to)
	}
}

func TestTransitionError(t *testing.T) {
	assert.NoError(t, Transition(types.VersionGenerating, types.VersionStaged))
	assert.Error(t, Transition(types.VersionApproved, types.VersionRejected))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(types.VersionApproved))
	assert.True(t, IsTerminal(types.VersionRejected))
	assert.True(t, IsTerminal(types.VersionFailed))
	assert.False(t, IsTerminal(types.VersionGenerating))
	assert.False(t, IsTerminal(types.VersionStaged))
	assert.False(t, IsTerminal(types.VersionReviewing))
}
