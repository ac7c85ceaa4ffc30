package ddb

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/steparena/checkpoint"
)

const (
	attrInstance = "instance"
	attrKey      = "key"
	attrNum      = "n"
	attrBytes    = "b"

	// maxTransactItems is the DynamoDB limit per TransactWriteItems call.
	maxTransactItems = 100
)

// Client is the subset of the DynamoDB API used by Store.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

// Store implements checkpoint.Store over one DynamoDB table.
type Store struct {
	client   Client
	table    string
	instance string
	capacity int

	mu    sync.Mutex
	known map[string]checkpoint.Value
}

var (
	_ checkpoint.Store   = (*Store)(nil)
	_ checkpoint.Batcher = (*Store)(nil)
)

// NewStore returns the scalar store of instance in table. capacity <= 0
// uses checkpoint.DefaultCapacity.
func NewStore(client Client, table, instance string, capacity int) *Store {
	if capacity <= 0 {
		capacity = checkpoint.DefaultCapacity
	}
	return &Store{client: client, table: table, instance: instance, capacity: capacity}
}

// New loads the default AWS configuration and returns a Store.
func New(ctx context.Context, table, instance string, capacity int, optFns ...func(*config.LoadOptions) error) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, err
	}
	return NewStore(dynamodb.NewFromConfig(cfg), table, instance, capacity), nil
}

func (s *Store) Capacity() int { return s.capacity }

func (s *Store) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrInstance: &types.AttributeValueMemberS{Value: s.instance},
		attrKey:      &types.AttributeValueMemberS{Value: key},
	}
}

func (s *Store) encode(key string, v checkpoint.Value) map[string]types.AttributeValue {
	item := s.itemKey(key)
	if v.Kind == checkpoint.KindBytes {
		item[attrBytes] = &types.AttributeValueMemberB{Value: v.Bytes}
	} else {
		item[attrNum] = &types.AttributeValueMemberN{Value: strconv.FormatUint(v.Num, 10)}
	}
	return item
}

func decode(item map[string]types.AttributeValue) (string, checkpoint.Value, error) {
	k, ok := item[attrKey].(*types.AttributeValueMemberS)
	if !ok {
		return "", checkpoint.Value{}, fmt.Errorf("ddb: item without %q", attrKey)
	}
	if b, ok := item[attrBytes].(*types.AttributeValueMemberB); ok {
		return k.Value, checkpoint.Bytes(b.Value), nil
	}
	if n, ok := item[attrNum].(*types.AttributeValueMemberN); ok {
		v, err := strconv.ParseUint(n.Value, 10, 64)
		if err != nil {
			return "", checkpoint.Value{}, fmt.Errorf("ddb: %q: %w", k.Value, err)
		}
		return k.Value, checkpoint.Uint(v), nil
	}
	return "", checkpoint.Value{}, fmt.Errorf("ddb: %q has no value", k.Value)
}

func (s *Store) Load(ctx context.Context, key string) (checkpoint.Value, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return checkpoint.Value{}, false, err
	}
	if len(out.Item) == 0 {
		return checkpoint.Value{}, false, nil
	}
	_, v, err := decode(out.Item)
	if err != nil {
		return checkpoint.Value{}, false, err
	}
	return v, true, nil
}

func (s *Store) LoadAll(ctx context.Context) (map[string]checkpoint.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	return maps.Clone(s.known), nil
}

// refresh queries every item of the instance; callers hold mu.
func (s *Store) refresh(ctx context.Context) error {
	known := make(map[string]checkpoint.Value)
	var start map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("#i = :i"),
			ExpressionAttributeNames: map[string]string{
				"#i": attrInstance,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":i": &types.AttributeValueMemberS{Value: s.instance},
			},
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return err
		}
		for _, item := range out.Items {
			k, v, err := decode(item)
			if err != nil {
				return err
			}
			known[k] = v
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	s.known = known
	return nil
}

func (s *Store) Save(ctx context.Context, key string, v checkpoint.Value) error {
	return s.Apply(ctx, map[string]checkpoint.Value{key: v}, nil)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.itemKey(key),
	})
	if err != nil {
		return err
	}
	if s.known != nil {
		delete(s.known, key)
	}
	return nil
}

// Apply implements checkpoint.Batcher. Change sets of up to 100 items are
// written in one transaction.
func (s *Store) Apply(ctx context.Context, set map[string]checkpoint.Value, del []string) error {
	for _, v := range set {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known == nil {
		if err := s.refresh(ctx); err != nil {
			return err
		}
	}
	if err := checkpoint.CheckCapacity(s.capacity, s.known, set, del); err != nil {
		return err
	}

	var items []types.TransactWriteItem
	for _, k := range del {
		if _, replaced := set[k]; replaced {
			continue
		}
		items = append(items, types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(s.table),
			Key:       s.itemKey(k),
		}})
	}
	for _, k := range slices.Sorted(maps.Keys(set)) {
		items = append(items, types.TransactWriteItem{Put: &types.Put{
			TableName: aws.String(s.table),
			Item:      s.encode(k, set[k]),
		}})
	}

	for chunk := range slices.Chunk(items, maxTransactItems) {
		if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: chunk,
		}); err != nil {
			s.known = nil
			return err
		}
	}

	for _, k := range del {
		delete(s.known, k)
	}
	for k, v := range set {
		s.known[k] = v
	}
	return nil
}

// Clear deletes every item of the instance.
func (s *Store) Clear(ctx context.Context) error {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}
	return s.Apply(ctx, nil, slices.Collect(maps.Keys(all)))
}
