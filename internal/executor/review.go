package executor

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/driftline-systems/driftline/internal/lifecycle"
	"github.com/driftline-systems/driftline/pkg/types"
)

// StartReview moves a staged version into review.
func (e *Engine) StartReview(ctx context.Context, deliverableID string, sequence int) (*types.DeliverableVersion, error) {
	return e.transition(ctx, deliverableID, sequence, types.VersionReviewing, "", "")
}

// Approve finalizes a version. Approved is terminal and mutually exclusive
// with rejected.
func (e *Engine) Approve(ctx context.Context, deliverableID string, sequence int, finalText string) (*types.DeliverableVersion, error) {
	return e.transition(ctx, deliverableID, sequence, types.VersionApproved, finalText, "")
}

// Reject terminally rejects a version.
func (e *Engine) Reject(ctx context.Context, deliverableID string, sequence int, reason string) (*types.DeliverableVersion, error) {
	return e.transition(ctx, deliverableID, sequence, types.VersionRejected, "", reason)
}

// transition applies one validated state-machine move via CAS, so two
// concurrent reviewers cannot both land a terminal state.
func (e *Engine) transition(ctx context.Context, deliverableID string, sequence int, to types.VersionStatus, finalText, reason string) (*types.DeliverableVersion, error) {
	v, err := e.store.GetVersion(ctx, deliverableID, sequence)
	if err != nil {
		return nil, fmt.Errorf("loading version %s/%d: %w", deliverableID, sequence, err)
	}
	if v == nil {
		return nil, fmt.Errorf("version %s/%d not found", deliverableID, sequence)
	}
	if err := lifecycle.Transition(v.Status, to); err != nil {
		return nil, fmt.Errorf("version %s/%d: %w", deliverableID, sequence, err)
	}

	updated := *v
	updated.Status = to
	updated.Version = v.Version + 1
	updated.UpdatedAt = e.now()
	if to == types.VersionApproved {
		if finalText == "" {
			finalText = v.Draft
		}
		updated.Final = finalText
	}
	if to == types.VersionRejected && reason != "" {
		updated.FailureReason = reason
	}

	ok, err := e.store.CompareAndSwapVersion(ctx, deliverableID, sequence, v.Version, updated)
	if err != nil {
		return nil, fmt.Errorf("updating version %s/%d: %w", deliverableID, sequence, err)
	}
	if !ok {
		return nil, fmt.Errorf("version %s/%d was modified concurrently", deliverableID, sequence)
	}

	e.appendActivity(ctx, types.ActivityEvent{
		EventID:   ulid.Make().String(),
		TenantID:  v.TenantID,
		Kind:      types.ActivityVersionReviewed,
		Message:   fmt.Sprintf("version %d %s", sequence, to),
		Details:   map[string]interface{}{"deliverable": deliverableID, "sequence": sequence, "status": string(to)},
		Timestamp: updated.UpdatedAt,
	})
	return &updated, nil
}
