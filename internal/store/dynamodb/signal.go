package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/driftline-systems/driftline/pkg/types"
)

// PutSignal writes a signal only when no live signal with the same
// (tenant, type, dedup key) exists. The cool-down boundary doubles as the
// row's ttl: once it passes, the same pattern may fire again by overwriting
// the stale row. Returns false when suppressed by an existing signal.
func (s *DynamoDBStore) PutSignal(ctx context.Context, sig types.Signal) (bool, error) {
	data, err := marshalData(sig)
	if err != nil {
		return false, err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: tenantPK(sig.TenantID)},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: signalSK(sig.Type, sig.DedupKey)},
			"data": data,
			"ttl":  &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlEpoch(sig.ExpiresAt))},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) OR #ttl < :now"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":now": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", time.Now().Unix())},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("putting signal %s/%s: %w", sig.Type, sig.DedupKey, err)
	}
	return true, nil
}

// GetSignal reads a signal row. Returns nil when absent.
func (s *DynamoDBStore) GetSignal(ctx context.Context, tenantID string, sigType types.SignalType, dedupKey string) (*types.Signal, error) {
	var sig types.Signal
	found, err := s.getItem(ctx, tenantPK(tenantID), signalSK(sigType, dedupKey), &sig)
	if err != nil || !found {
		return nil, err
	}
	return &sig, nil
}

// ListSignals lists a tenant's signals.
func (s *DynamoDBStore) ListSignals(ctx context.Context, tenantID string, limit int) ([]types.Signal, error) {
	items, err := s.queryPrefix(ctx, tenantPK(tenantID), signalSKPrefix, limit, false)
	if err != nil {
		return nil, err
	}
	signals := make([]types.Signal, 0, len(items))
	for _, item := range items {
		var sig types.Signal
		if err := unmarshalData(item, &sig); err != nil {
			return nil, err
		}
		signals = append(signals, sig)
	}
	return signals, nil
}
