package dynamodb

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/driftline-systems/driftline/pkg/types"
)

// AppendExecutionLog writes one audit record for an execution attempt.
func (s *DynamoDBStore) AppendExecutionLog(ctx context.Context, entry types.ExecutionLog) error {
	if entry.LogID == "" {
		entry.LogID = ulid.Make().String()
	}
	at := entry.CompletedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	sk := execLogSK(at, entry.LogID)
	return s.putItem(ctx, deliverablePK(entry.DeliverableID), sk, entry, nil)
}

// ListExecutionLogs lists audit records for a deliverable, most recent first.
func (s *DynamoDBStore) ListExecutionLogs(ctx context.Context, deliverableID string, limit int) ([]types.ExecutionLog, error) {
	items, err := s.queryPrefix(ctx, deliverablePK(deliverableID), execLogSKPrefix, limit, true)
	if err != nil {
		return nil, err
	}
	logs := make([]types.ExecutionLog, 0, len(items))
	for _, item := range items {
		var entry types.ExecutionLog
		if err := unmarshalData(item, &entry); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, nil
}
