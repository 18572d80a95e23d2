package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/driftline-systems/driftline/pkg/types"
)

// Quota rows hold the usage counters as a top-level map attribute so
// reservations can be single conditional UpdateItem calls instead of
// read-modify-write cycles on a JSON blob.

// PutQuota writes a tenant's tier assignment and counters.
func (s *DynamoDBStore) PutQuota(ctx context.Context, quota types.TenantQuota) error {
	usage := map[string]int64{}
	for class, n := range quota.Usage {
		usage[string(class)] = n
	}
	usageAV, err := attributevalue.Marshal(usage)
	if err != nil {
		return fmt.Errorf("marshaling usage: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":        &ddbtypes.AttributeValueMemberS{Value: tenantPK(quota.TenantID)},
			"SK":        &ddbtypes.AttributeValueMemberS{Value: quotaSK},
			"tier":      &ddbtypes.AttributeValueMemberS{Value: quota.Tier},
			"usage":     usageAV,
			"version":   &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", quota.Version)},
			"updatedAt": &ddbtypes.AttributeValueMemberS{Value: quota.UpdatedAt.UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("putting quota for %s: %w", quota.TenantID, err)
	}
	return nil
}

// GetQuota reads a tenant's quota row. Returns nil when the tenant is unknown.
func (s *DynamoDBStore) GetQuota(ctx context.Context, tenantID string) (*types.TenantQuota, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: quotaSK},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting quota for %s: %w", tenantID, err)
	}
	if resp.Item == nil {
		return nil, nil
	}
	return quotaFromItem(tenantID, resp.Item)
}

func quotaFromItem(tenantID string, item map[string]ddbtypes.AttributeValue) (*types.TenantQuota, error) {
	tier, err := attributeStr(item, "tier")
	if err != nil {
		return nil, err
	}
	version, err := attributeInt(item, "version")
	if err != nil {
		return nil, err
	}

	usage := map[types.ResourceClass]int64{}
	if av, ok := item["usage"]; ok {
		raw := map[string]int64{}
		if err := attributevalue.Unmarshal(av, &raw); err != nil {
			return nil, fmt.Errorf("unmarshaling usage: %w", err)
		}
		for class, n := range raw {
			usage[types.ResourceClass(class)] = n
		}
	}

	quota := &types.TenantQuota{
		TenantID: tenantID,
		Tier:     tier,
		Usage:    usage,
		Version:  int(version),
	}
	if raw, err := attributeStr(item, "updatedAt"); err == nil {
		if t, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			quota.UpdatedAt = t
		}
	}
	return quota, nil
}

// ReserveUsage atomically adds delta to a usage counter, refusing when the
// result would exceed limit. limit <= 0 means unlimited. Returns the counter
// value after the operation (or the current value on refusal).
func (s *DynamoDBStore) ReserveUsage(ctx context.Context, tenantID string, class types.ResourceClass, delta, limit int64) (bool, int64, error) {
	input := &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: quotaSK},
		},
		UpdateExpression: aws.String("SET #usage.#class = if_not_exists(#usage.#class, :zero) + :delta, updatedAt = :now"),
		ExpressionAttributeNames: map[string]string{
			"#usage": "usage",
			"#class": string(class),
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":zero":  &ddbtypes.AttributeValueMemberN{Value: "0"},
			":delta": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", delta)},
			":now":   &ddbtypes.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ReturnValues: ddbtypes.ReturnValueUpdatedNew,
	}
	if limit > 0 {
		// The condition is evaluated against the pre-update counter, so
		// the headroom check uses limit - delta.
		input.ConditionExpression = aws.String("attribute_exists(#usage) AND (attribute_not_exists(#usage.#class) OR #usage.#class <= :max)")
		input.ExpressionAttributeValues[":max"] = &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", limit-delta)}
	} else {
		input.ConditionExpression = aws.String("attribute_exists(#usage)")
	}

	resp, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		if isConditionalCheckFailed(err) {
			current, gerr := s.currentUsage(ctx, tenantID, class)
			if gerr != nil {
				return false, 0, gerr
			}
			return false, current, nil
		}
		return false, 0, fmt.Errorf("reserving %s/%s: %w", tenantID, class, err)
	}

	updated, err := usageFromAttributes(resp.Attributes, class)
	if err != nil {
		return false, 0, err
	}
	return true, updated, nil
}

// ReleaseUsage atomically subtracts delta from a counter, clamping at zero.
func (s *DynamoDBStore) ReleaseUsage(ctx context.Context, tenantID string, class types.ResourceClass, delta int64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: quotaSK},
		},
		UpdateExpression: aws.String("SET #usage.#class = #usage.#class - :delta"),
		ExpressionAttributeNames: map[string]string{
			"#usage": "usage",
			"#class": string(class),
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":delta": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", delta)},
		},
		ConditionExpression: aws.String("#usage.#class >= :delta"),
	})
	if err == nil {
		return nil
	}
	if !isConditionalCheckFailed(err) {
		return fmt.Errorf("releasing %s/%s: %w", tenantID, class, err)
	}

	// Counter is below delta (or absent): clamp to zero.
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: quotaSK},
		},
		UpdateExpression: aws.String("SET #usage.#class = :zero"),
		ExpressionAttributeNames: map[string]string{
			"#usage": "usage",
			"#class": string(class),
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":zero": &ddbtypes.AttributeValueMemberN{Value: "0"},
		},
		ConditionExpression: aws.String("attribute_exists(#usage)"),
	})
	if err != nil && !isConditionalCheckFailed(err) {
		return fmt.Errorf("clamping %s/%s: %w", tenantID, class, err)
	}
	return nil
}

func (s *DynamoDBStore) currentUsage(ctx context.Context, tenantID string, class types.ResourceClass) (int64, error) {
	quota, err := s.GetQuota(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if quota == nil {
		return 0, nil
	}
	return quota.Usage[class], nil
}

func usageFromAttributes(attrs map[string]ddbtypes.AttributeValue, class types.ResourceClass) (int64, error) {
	av, ok := attrs["usage"]
	if !ok {
		return 0, fmt.Errorf("update returned no usage attribute")
	}
	raw := map[string]int64{}
	if err := attributevalue.Unmarshal(av, &raw); err != nil {
		return 0, fmt.Errorf("unmarshaling updated usage: %w", err)
	}
	return raw[string(class)], nil
}

// ListTenants scans for quota rows. Tenants are bounded in practice, so a
// filtered table scan is acceptable here.
func (s *DynamoDBStore) ListTenants(ctx context.Context) ([]string, error) {
	var tenants []string
	var startKey map[string]ddbtypes.AttributeValue
	for {
		resp, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        &s.tableName,
			FilterExpression: aws.String("SK = :quota"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":quota": &ddbtypes.AttributeValueMemberS{Value: quotaSK},
			},
			ProjectionExpression: aws.String("PK, SK"),
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scanning tenants: %w", err)
		}
		for _, item := range resp.Items {
			pk, err := attributeStr(item, "PK")
			if err != nil {
				return nil, err
			}
			if len(pk) > len(tenantPKPrefix) {
				tenants = append(tenants, pk[len(tenantPKPrefix):])
			}
		}
		if resp.LastEvaluatedKey == nil {
			return tenants, nil
		}
		startKey = resp.LastEvaluatedKey
	}
}
