package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/eleven-am/warden/internal/domain"
)

const (
	// batchGetLimit is the most keys one BatchGetItem call accepts.
	batchGetLimit      = 100
	maxUnprocessedRuns = 5
)

type dynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

type Tables struct {
	Objects string
	Rules   string
	Bundles string
	// BundleIndex is the global secondary index on the rules table keyed by
	// ruleBundleId.
	BundleIndex string
}

type DynamoStore struct {
	client dynamoAPI
	tables Tables
}

func NewDynamoStore(cfg aws.Config, tables Tables) *DynamoStore {
	return newDynamoStore(dynamodb.NewFromConfig(cfg), tables)
}

func newDynamoStore(client dynamoAPI, tables Tables) *DynamoStore {
	return &DynamoStore{client: client, tables: tables}
}

func (s *DynamoStore) Close() error {
	return nil
}

func (s *DynamoStore) GetRule(ctx context.Context, id string) (*domain.FlowRule, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tables.Rules),
		Key:            idKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get rule %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return nil, &domain.NotFoundError{Kind: "rule", ID: id}
	}
	var rule domain.FlowRule
	if err := attributevalue.UnmarshalMap(out.Item, &rule); err != nil {
		return nil, fmt.Errorf("decode rule %s: %w", id, err)
	}
	return &rule, nil
}

func (s *DynamoStore) GetRuleBundles(ctx context.Context, ids []string) ([]domain.FlowRuleBundle, error) {
	items, err := s.batchGet(ctx, s.tables.Bundles, ids)
	if err != nil {
		return nil, fmt.Errorf("get rule bundles: %w", err)
	}
	var bundles []domain.FlowRuleBundle
	if err := attributevalue.UnmarshalListOfMaps(items, &bundles); err != nil {
		return nil, fmt.Errorf("decode rule bundles: %w", err)
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].ID < bundles[j].ID })
	return bundles, nil
}

func (s *DynamoStore) GetObjects(ctx context.Context, ids []string) ([]domain.FlowObject, error) {
	items, err := s.batchGet(ctx, s.tables.Objects, ids)
	if err != nil {
		return nil, fmt.Errorf("get objects: %w", err)
	}
	var objects []domain.FlowObject
	if err := attributevalue.UnmarshalListOfMaps(items, &objects); err != nil {
		return nil, fmt.Errorf("decode objects: %w", err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].ID < objects[j].ID })
	return objects, nil
}

func (s *DynamoStore) ListActiveRules(ctx context.Context, bundleID string) ([]domain.FlowRule, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("ruleBundleId").Equal(expression.Value(bundleID))).
		WithFilter(expression.Name("status").NotEqual(expression.Value(string(domain.RuleStatusFailed)))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build rule query: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tables.Rules),
		IndexName:                 aws.String(s.tables.BundleIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var rules []domain.FlowRule
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list rules of bundle %s: %w", bundleID, err)
		}
		var batch []domain.FlowRule
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("decode rules: %w", err)
		}
		rules = append(rules, batch...)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

func (s *DynamoStore) UpdateRule(ctx context.Context, rule domain.FlowRule) (domain.FlowRule, error) {
	expected := rule.Version
	rule.Version++
	rule.LastUpdated = now()

	cond := expression.AttributeExists(expression.Name("id")).
		And(expression.Name("version").Equal(expression.Value(expected)))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return domain.FlowRule{}, fmt.Errorf("build rule condition: %w", err)
	}

	item, err := attributevalue.MarshalMap(rule)
	if err != nil {
		return domain.FlowRule{}, fmt.Errorf("encode rule %s: %w", rule.ID, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tables.Rules),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		if _, getErr := s.GetRule(ctx, rule.ID); getErr != nil {
			return domain.FlowRule{}, getErr
		}
		return domain.FlowRule{}, &domain.ConflictError{RuleID: rule.ID, Version: expected}
	}
	if err != nil {
		return domain.FlowRule{}, fmt.Errorf("update rule %s: %w", rule.ID, err)
	}
	return rule, nil
}

func (s *DynamoStore) PutObject(ctx context.Context, obj domain.FlowObject) error {
	return s.put(ctx, s.tables.Objects, obj.ID, obj)
}

func (s *DynamoStore) PutBundle(ctx context.Context, bundle domain.FlowRuleBundle) error {
	return s.put(ctx, s.tables.Bundles, bundle.ID, bundle)
}

func (s *DynamoStore) PutRule(ctx context.Context, rule domain.FlowRule) error {
	return s.put(ctx, s.tables.Rules, rule.ID, rule)
}

func (s *DynamoStore) put(ctx context.Context, table, id string, v any) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put %s into %s: %w", id, table, err)
	}
	return nil
}

// batchGet reads ids in chunks of batchGetLimit and retries unprocessed keys
// a bounded number of times.
func (s *DynamoStore) batchGet(ctx context.Context, table string, ids []string) ([]map[string]types.AttributeValue, error) {
	ids = uniqueIDs(ids)
	var items []map[string]types.AttributeValue
	for start := 0; start < len(ids); start += batchGetLimit {
		end := min(start+batchGetLimit, len(ids))
		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, idKey(id))
		}

		request := map[string]types.KeysAndAttributes{table: {Keys: keys}}
		for run := 0; len(request) > 0; run++ {
			if run == maxUnprocessedRuns {
				return nil, fmt.Errorf("batch get on %s: unprocessed keys remain after %d attempts", table, run)
			}
			out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, fmt.Errorf("batch get on %s: %w", table, err)
			}
			items = append(items, out.Responses[table]...)
			request = out.UnprocessedKeys
		}
	}
	return items, nil
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
