// Package lifecycle implements the deliverable version state machine.
package lifecycle

import (
	"fmt"

	"github.com/driftline-systems/driftline/pkg/types"
)

// Transition table: from -> allowed tos
var validTransitions = map[types.VersionStatus][]types.VersionStatus{
	types.VersionGenerating: {types.VersionStaged, types.VersionFailed},
	types.VersionStaged:     {types.VersionReviewing, types.VersionApproved, types.VersionRejected},
	types.VersionReviewing:  {types.VersionApproved, types.VersionRejected},
	types.VersionApproved:   {},
	types.VersionRejected:   {},
	types.VersionFailed:     {},
}

// CanTransition checks if transitioning from one version status to another is valid.
func CanTransition(from, to types.VersionStatus) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates the move, returning an error if it is invalid.
func Transition(from, to types.VersionStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true if the status is a terminal (final) state.
// A version never leaves a terminal state; approved and rejected are
// mutually exclusive.
func IsTerminal(status types.VersionStatus) bool {
	return status == types.VersionApproved || status == types.VersionRejected || status == types.VersionFailed
}
