package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Entity rows carry a "data" attribute holding the JSON-encoded value.
// Attributes that conditional expressions touch (version counters, expiry
// epochs, retention markers) are duplicated as top-level attributes.

func marshalData(v interface{}) (ddbtypes.AttributeValue, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling data: %w", err)
	}
	return &ddbtypes.AttributeValueMemberS{Value: string(raw)}, nil
}

func unmarshalData(item map[string]ddbtypes.AttributeValue, out interface{}) error {
	raw, err := attributeStr(item, "data")
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("unmarshaling data: %w", err)
	}
	return nil
}

// putItem writes an entity row unconditionally (latest wins).
func (s *DynamoDBStore) putItem(ctx context.Context, pk, sk string, v interface{}, extra map[string]ddbtypes.AttributeValue) error {
	data, err := marshalData(v)
	if err != nil {
		return err
	}
	item := map[string]ddbtypes.AttributeValue{
		"PK":   &ddbtypes.AttributeValueMemberS{Value: pk},
		"SK":   &ddbtypes.AttributeValueMemberS{Value: sk},
		"data": data,
	}
	for k, av := range extra {
		item[k] = av
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("putting item %s/%s: %w", pk, sk, err)
	}
	return nil
}

// getItem reads an entity row. Returns (false, nil) when the row is absent.
func (s *DynamoDBStore) getItem(ctx context.Context, pk, sk string, out interface{}) (bool, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: pk},
			"SK": &ddbtypes.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return false, fmt.Errorf("getting item %s/%s: %w", pk, sk, err)
	}
	if resp.Item == nil {
		return false, nil
	}
	if err := unmarshalData(resp.Item, out); err != nil {
		return false, err
	}
	return true, nil
}

// queryPrefix lists entity rows within a partition whose SK starts with the
// given prefix. limit <= 0 means unbounded. Results follow SK order; pass
// descending=true for newest-first layouts.
func (s *DynamoDBStore) queryPrefix(ctx context.Context, pk, skPrefix string, limit int, descending bool) ([]map[string]ddbtypes.AttributeValue, error) {
	var items []map[string]ddbtypes.AttributeValue
	var startKey map[string]ddbtypes.AttributeValue
	for {
		input := &dynamodb.QueryInput{
			TableName:              &s.tableName,
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":pk":     &ddbtypes.AttributeValueMemberS{Value: pk},
				":prefix": &ddbtypes.AttributeValueMemberS{Value: skPrefix},
			},
			ExclusiveStartKey: startKey,
		}
		if descending {
			input.ScanIndexForward = aws.Bool(false)
		}
		if limit > 0 {
			remaining := int32(limit - len(items))
			input.Limit = &remaining
		}
		resp, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("querying %s/%s*: %w", pk, skPrefix, err)
		}
		items = append(items, resp.Items...)
		if limit > 0 && len(items) >= limit {
			return items[:limit], nil
		}
		if resp.LastEvaluatedKey == nil {
			return items, nil
		}
		startKey = resp.LastEvaluatedKey
	}
}
