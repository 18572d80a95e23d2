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

// Content rows carry two attributes the sweep query filters on: "expires"
// (epoch seconds) and "retained" (present only while a retention reason is
// set). Content rows never get the native "ttl" attribute: DynamoDB TTL
// cannot honor the retained marker, so the sweeper is the sole reaper.

// UpsertContent writes a content item, latest wins. The retained marker is
// managed only by SetRetentionReason, so an upsert never clears it.
func (s *DynamoDBStore) UpsertContent(ctx context.Context, item types.ContentItem) error {
	// Persist the payload without the retention field; the "retained"
	// attribute is the single source of truth for it.
	item.RetentionReason = ""
	if item.ExpiresAt.IsZero() {
		item.ExpiresAt = item.FetchedAt.Add(s.contentTTL)
	}
	data, err := marshalData(item)
	if err != nil {
		return err
	}

	input := &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: tenantPK(item.Resource.TenantID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: contentSK(item.Resource, item.ItemID)},
		},
		UpdateExpression: aws.String("SET #data = :data, expires = :expires"),
		ExpressionAttributeNames: map[string]string{
			"#data": "data",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":data":    data,
			":expires": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlEpoch(item.ExpiresAt))},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("upserting content %s: %w", item.ItemID, err)
	}
	return nil
}

// GetContent reads one content item. Returns nil when absent.
func (s *DynamoDBStore) GetContent(ctx context.Context, res types.Resource, itemID string) (*types.ContentItem, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: tenantPK(res.TenantID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: contentSK(res, itemID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting content %s: %w", itemID, err)
	}
	if resp.Item == nil {
		return nil, nil
	}
	return contentFromItem(resp.Item)
}

func contentFromItem(raw map[string]ddbtypes.AttributeValue) (*types.ContentItem, error) {
	var item types.ContentItem
	if err := unmarshalData(raw, &item); err != nil {
		return nil, err
	}
	if av, ok := raw["retained"]; ok {
		if sv, ok := av.(*ddbtypes.AttributeValueMemberS); ok {
			item.RetentionReason = sv.Value
		}
	}
	return &item, nil
}

// ListContent lists content items for a tenant, newest SK first.
func (s *DynamoDBStore) ListContent(ctx context.Context, tenantID string, limit int) ([]types.ContentItem, error) {
	rows, err := s.queryPrefix(ctx, tenantPK(tenantID), contentSKPrefix, limit, false)
	if err != nil {
		return nil, err
	}
	items := make([]types.ContentItem, 0, len(rows))
	for _, row := range rows {
		item, err := contentFromItem(row)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

// SetRetentionReason sets or clears the retention marker on a content item.
// A retained row is exempt from both the sweep and the native TTL.
func (s *DynamoDBStore) SetRetentionReason(ctx context.Context, res types.Resource, itemID, reason string) error {
	key := map[string]ddbtypes.AttributeValue{
		"PK": &ddbtypes.AttributeValueMemberS{Value: tenantPK(res.TenantID)},
		"SK": &ddbtypes.AttributeValueMemberS{Value: contentSK(res, itemID)},
	}

	var input *dynamodb.UpdateItemInput
	if reason != "" {
		input = &dynamodb.UpdateItemInput{
			TableName:        &s.tableName,
			Key:              key,
			UpdateExpression: aws.String("SET retained = :reason"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":reason": &ddbtypes.AttributeValueMemberS{Value: reason},
			},
			ConditionExpression: aws.String("attribute_exists(PK)"),
		}
	} else {
		input = &dynamodb.UpdateItemInput{
			TableName:           &s.tableName,
			Key:                 key,
			UpdateExpression:    aws.String("REMOVE retained"),
			ConditionExpression: aws.String("attribute_exists(PK)"),
		}
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("content item %s/%s not found", res.Key(), itemID)
		}
		return fmt.Errorf("setting retention on %s: %w", itemID, err)
	}
	return nil
}

// DeleteExpiredContent removes up to limit expired, unretained content rows
// for a tenant. Returns how many rows were deleted; a second call after a
// partial batch picks up where the first left off.
func (s *DynamoDBStore) DeleteExpiredContent(ctx context.Context, tenantID string, now time.Time, limit int) (int, error) {
	resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		FilterExpression:       aws.String("expires <= :now AND attribute_not_exists(retained)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: tenantPK(tenantID)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: contentSKPrefix},
			":now":    &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("querying expired content for %s: %w", tenantID, err)
	}

	deleted := 0
	for _, item := range resp.Items {
		if limit > 0 && deleted >= limit {
			break
		}
		sk, err := attributeStr(item, "SK")
		if err != nil {
			return deleted, err
		}
		_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: &s.tableName,
			Key: map[string]ddbtypes.AttributeValue{
				"PK": &ddbtypes.AttributeValueMemberS{Value: tenantPK(tenantID)},
				"SK": &ddbtypes.AttributeValueMemberS{Value: sk},
			},
		})
		if err != nil {
			return deleted, fmt.Errorf("deleting expired content %s: %w", sk, err)
		}
		deleted++
	}
	return deleted, nil
}
