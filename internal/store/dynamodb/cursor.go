package dynamodb

import (
	"context"

	"github.com/driftline-systems/driftline/pkg/types"
)

// PutCursor writes a sync cursor, latest wins.
func (s *DynamoDBStore) PutCursor(ctx context.Context, cursor types.SyncCursor) error {
	return s.putItem(ctx, tenantPK(cursor.Resource.TenantID), cursorSK(cursor.Resource), cursor, nil)
}

// GetCursor reads the cursor for one resource. Returns nil when absent.
func (s *DynamoDBStore) GetCursor(ctx context.Context, res types.Resource) (*types.SyncCursor, error) {
	var cursor types.SyncCursor
	found, err := s.getItem(ctx, tenantPK(res.TenantID), cursorSK(res), &cursor)
	if err != nil || !found {
		return nil, err
	}
	return &cursor, nil
}

// ListCursors lists all cursors for a tenant.
func (s *DynamoDBStore) ListCursors(ctx context.Context, tenantID string) ([]types.SyncCursor, error) {
	items, err := s.queryPrefix(ctx, tenantPK(tenantID), cursorSKPrefix, 0, false)
	if err != nil {
		return nil, err
	}
	cursors := make([]types.SyncCursor, 0, len(items))
	for _, item := range items {
		var cursor types.SyncCursor
		if err := unmarshalData(item, &cursor); err != nil {
			return nil, err
		}
		cursors = append(cursors, cursor)
	}
	return cursors, nil
}
