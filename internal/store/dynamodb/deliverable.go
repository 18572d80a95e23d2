package dynamodb

import (
	"context"

	"github.com/driftline-systems/driftline/pkg/types"
)

// Deliverable definitions are dual-written: the authoritative row lives in
// the deliverable's own partition (next to versions and execution logs), and
// a copy lives under the tenant partition for ListDeliverables. The copy is
// written second; a crash between the two leaves only the authoritative row,
// which the next PutDeliverable repairs.

// PutDeliverable writes a deliverable definition.
func (s *DynamoDBStore) PutDeliverable(ctx context.Context, d types.Deliverable) error {
	if err := s.putItem(ctx, deliverablePK(d.ID), configSK, d, nil); err != nil {
		return err
	}
	return s.putItem(ctx, tenantPK(d.TenantID), deliverableSKPrefix+d.ID, d, nil)
}

// GetDeliverable reads the authoritative definition. Returns nil when absent.
func (s *DynamoDBStore) GetDeliverable(ctx context.Context, id string) (*types.Deliverable, error) {
	var d types.Deliverable
	found, err := s.getItem(ctx, deliverablePK(id), configSK, &d)
	if err != nil || !found {
		return nil, err
	}
	return &d, nil
}

// ListDeliverables lists a tenant's deliverables from the tenant partition.
func (s *DynamoDBStore) ListDeliverables(ctx context.Context, tenantID string) ([]types.Deliverable, error) {
	items, err := s.queryPrefix(ctx, tenantPK(tenantID), deliverableSKPrefix, 0, false)
	if err != nil {
		return nil, err
	}
	deliverables := make([]types.Deliverable, 0, len(items))
	for _, item := range items {
		var d types.Deliverable
		if err := unmarshalData(item, &d); err != nil {
			return nil, err
		}
		deliverables = append(deliverables, d)
	}
	return deliverables, nil
}
