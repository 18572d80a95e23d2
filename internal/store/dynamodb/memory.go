package dynamodb

import (
	"context"

	"github.com/driftline-systems/driftline/pkg/types"
)

// PutMemoryFact writes a durable fact, latest wins. Facts never expire.
func (s *DynamoDBStore) PutMemoryFact(ctx context.Context, fact types.MemoryFact) error {
	return s.putItem(ctx, tenantPK(fact.TenantID), factSK(fact.Key), fact, nil)
}

// ListMemoryFacts lists a tenant's facts in key order.
func (s *DynamoDBStore) ListMemoryFacts(ctx context.Context, tenantID string, limit int) ([]types.MemoryFact, error) {
	items, err := s.queryPrefix(ctx, tenantPK(tenantID), factSKPrefix, limit, false)
	if err != nil {
		return nil, err
	}
	facts := make([]types.MemoryFact, 0, len(items))
	for _, item := range items {
		var fact types.MemoryFact
		if err := unmarshalData(item, &fact); err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	return facts, nil
}
