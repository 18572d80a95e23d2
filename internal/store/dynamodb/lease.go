package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Leases are conditional puts keyed by the lease name. An expired lease is
// acquirable by the next caller without manual cleanup; the native table TTL
// eventually removes abandoned rows.

// AcquireLease attempts to take a TTL lease. Returns false when the lease is
// held and unexpired.
func (s *DynamoDBStore) AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":         &ddbtypes.AttributeValueMemberS{Value: leasePK(key)},
			"SK":         &ddbtypes.AttributeValueMemberS{Value: leaseSK},
			"ttl":        &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlEpoch(now.Add(ttl)))},
			"acquiredAt": &ddbtypes.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) OR #ttl < :now"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":now": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("acquiring lease %s: %w", key, err)
	}
	return true, nil
}

// ReleaseLease deletes a lease row. Releasing an absent lease is a no-op.
func (s *DynamoDBStore) ReleaseLease(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: leasePK(key)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: leaseSK},
		},
	})
	if err != nil {
		return fmt.Errorf("releasing lease %s: %w", key, err)
	}
	return nil
}
