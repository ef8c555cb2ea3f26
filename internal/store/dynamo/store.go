// Package dynamo implements the record store on a DynamoDB table.
package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	apperrors "github.com/louisbranch/identitymesh/internal/platform/errors"
	"github.com/louisbranch/identitymesh/internal/platform/timeouts"
	"github.com/louisbranch/identitymesh/internal/store"
)

// Client is the subset of the DynamoDB API the store uses.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store is a DynamoDB-backed record store.
type Store struct {
	client Client
	table  string
}

var _ store.Store = (*Store)(nil)

// New creates a record store over the given table.
func New(client Client, table string) *Store {
	return &Store{client: client, table: table}
}

// GetItem loads one item by its full primary key.
func (s *Store) GetItem(ctx context.Context, key store.Key, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.StoreRead)
	defer cancel()

	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       keyAttributes(key),
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeTransientStore, "get item", err)
	}
	if len(resp.Item) == 0 {
		return store.ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(resp.Item, out); err != nil {
		return fmt.Errorf("unmarshal item: %w", err)
	}
	return nil
}

// PutItemIfAbsent writes one item guarded by an existence condition.
func (s *Store) PutItemIfAbsent(ctx context.Context, item any, cond store.Condition) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.StoreWrite)
	defer cancel()

	attrs, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                attrs,
		ConditionExpression: conditionExpression(cond),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return store.ErrAlreadyExists
		}
		return apperrors.Wrap(apperrors.CodeTransientStore, "put item", err)
	}
	return nil
}

// QueryByIndex runs a keyed prefix query against the table or one of its
// secondary indexes, following pagination to exhaustion.
func (s *Store) QueryByIndex(ctx context.Context, index store.Index, partitionValue, sortPrefix string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.StoreRead)
	defer cancel()

	pkName, skName := indexKeyNames(index)

	condition := "#pk = :pk"
	names := map[string]string{"#pk": pkName}
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: partitionValue},
	}
	if sortPrefix != "" {
		condition += " AND begins_with(#sk, :prefix)"
		names["#sk"] = skName
		values[":prefix"] = &types.AttributeValueMemberS{Value: sortPrefix}
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String(condition),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
	if index != store.IndexPrimary {
		input.IndexName = aws.String(string(index))
	}

	var items []map[string]types.AttributeValue
	for {
		resp, err := s.client.Query(ctx, input)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeTransientStore, "query index", err)
		}
		items = append(items, resp.Items...)
		if resp.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = resp.LastEvaluatedKey
	}

	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("unmarshal items: %w", err)
	}
	return nil
}

// TransactWrite submits all ops as one atomic transaction. A cancellation
// caused by any failed condition surfaces as ErrTransactionConflict so the
// caller can converge through a re-read instead of failing the user flow.
func (s *Store) TransactWrite(ctx context.Context, ops []store.WriteOp) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.StoreWrite)
	defer cancel()

	writes := make([]types.TransactWriteItem, 0, len(ops))
	for _, op := range ops {
		attrs, err := attributevalue.MarshalMap(op.Item)
		if err != nil {
			return fmt.Errorf("marshal transaction item: %w", err)
		}
		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(s.table),
				Item:                attrs,
				ConditionExpression: conditionExpression(op.Condition),
			},
		})
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	if err != nil {
		var cancelled *types.TransactionCanceledException
		if errors.As(err, &cancelled) {
			for _, reason := range cancelled.CancellationReasons {
				if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
					return store.ErrTransactionConflict
				}
			}
		}
		return apperrors.Wrap(apperrors.CodeTransientStore, "transact write", err)
	}
	return nil
}

func keyAttributes(key store.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: key.PK},
		"SK": &types.AttributeValueMemberS{Value: key.SK},
	}
}

func conditionExpression(cond store.Condition) *string {
	switch cond {
	case store.ConditionPKAbsent:
		return aws.String("attribute_not_exists(PK)")
	case store.ConditionSKAbsent:
		return aws.String("attribute_not_exists(SK)")
	default:
		return nil
	}
}

func indexKeyNames(index store.Index) (pk, sk string) {
	if index == store.IndexPrimary {
		return "PK", "SK"
	}
	return string(index) + "PK", string(index) + "SK"
}
