package dynamodb

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/driftline-systems/driftline/pkg/types"
)

// AppendActivity writes one provenance entry. The SK encodes the timestamp
// plus the event id so entries in the same millisecond do not collide.
func (s *DynamoDBStore) AppendActivity(ctx context.Context, event types.ActivityEvent) error {
	if event.EventID == "" {
		event.EventID = ulid.Make().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	sk := activitySK(event.Timestamp, event.EventID)
	return s.putItem(ctx, tenantPK(event.TenantID), sk, event, nil)
}

// ListActivity lists a tenant's activity, most recent first.
func (s *DynamoDBStore) ListActivity(ctx context.Context, tenantID string, limit int) ([]types.ActivityEvent, error) {
	items, err := s.queryPrefix(ctx, tenantPK(tenantID), activitySKPrefix, limit, true)
	if err != nil {
		return nil, err
	}
	events := make([]types.ActivityEvent, 0, len(items))
	for _, item := range items {
		var event types.ActivityEvent
		if err := unmarshalData(item, &event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
