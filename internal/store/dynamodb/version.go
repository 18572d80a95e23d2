package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/driftline-systems/driftline/pkg/types"
)

// Version rows duplicate the optimistic concurrency counter as a top-level
// "version" attribute so state transitions can be conditional puts.

// PutVersion creates a version row. Fails if the (deliverable, sequence) row
// already exists, so two executors racing on the same sequence cannot both
// create it.
func (s *DynamoDBStore) PutVersion(ctx context.Context, v types.DeliverableVersion) error {
	data, err := marshalData(v)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":      &ddbtypes.AttributeValueMemberS{Value: deliverablePK(v.DeliverableID)},
			"SK":      &ddbtypes.AttributeValueMemberS{Value: versionSK(v.Sequence)},
			"data":    data,
			"version": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", v.Version)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("version %s#%d already exists", v.DeliverableID, v.Sequence)
		}
		return fmt.Errorf("putting version %s#%d: %w", v.DeliverableID, v.Sequence, err)
	}
	return nil
}

// GetVersion reads one version row. Returns nil when absent.
func (s *DynamoDBStore) GetVersion(ctx context.Context, deliverableID string, sequence int) (*types.DeliverableVersion, error) {
	var v types.DeliverableVersion
	found, err := s.getItem(ctx, deliverablePK(deliverableID), versionSK(sequence), &v)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

// ListVersions lists versions for a deliverable, highest sequence first.
func (s *DynamoDBStore) ListVersions(ctx context.Context, deliverableID string, limit int) ([]types.DeliverableVersion, error) {
	items, err := s.queryPrefix(ctx, deliverablePK(deliverableID), versionSKPrefix, limit, true)
	if err != nil {
		return nil, err
	}
	versions := make([]types.DeliverableVersion, 0, len(items))
	for _, item := range items {
		var v types.DeliverableVersion
		if err := unmarshalData(item, &v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// CompareAndSwapVersion replaces a version row only when its concurrency
// counter still matches expectedVersion. Returns false on a lost race.
func (s *DynamoDBStore) CompareAndSwapVersion(ctx context.Context, deliverableID string, sequence, expectedVersion int, v types.DeliverableVersion) (bool, error) {
	data, err := marshalData(v)
	if err != nil {
		return false, err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":      &ddbtypes.AttributeValueMemberS{Value: deliverablePK(deliverableID)},
			"SK":      &ddbtypes.AttributeValueMemberS{Value: versionSK(sequence)},
			"data":    data,
			"version": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", v.Version)},
		},
		ConditionExpression: aws.String("#version = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#version": "version",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":expected": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("swapping version %s#%d: %w", deliverableID, sequence, err)
	}
	return true, nil
}
