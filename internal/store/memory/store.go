// Package memory implements the record store in process memory with the
// same conditional and transactional semantics as the DynamoDB backend.
// It exists for component tests; nothing in the runtime path uses it.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/louisbranch/identitymesh/internal/store"
)

// Store is an in-memory record store.
type Store struct {
	mu    sync.Mutex
	items map[store.Key]map[string]types.AttributeValue

	// TransactHook, when set, intercepts the next TransactWrite call
	// exactly once. Tests use it to commit a concurrent winner's items and
	// return a conflict, simulating a lost conditional race.
	TransactHook func(ops []store.WriteOp) error

	// PutErr, when set, is returned by the next PutItemIfAbsent call.
	PutErr error
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory record store.
func New() *Store {
	return &Store{items: make(map[store.Key]map[string]types.AttributeValue)}
}

// GetItem loads one item by its full primary key.
func (s *Store) GetItem(_ context.Context, key store.Key, out any) error {
	s.mu.Lock()
	attrs, ok := s.items[key]
	s.mu.Unlock()

	if !ok {
		return store.ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(attrs, out); err != nil {
		return fmt.Errorf("unmarshal item: %w", err)
	}
	return nil
}

// PutItemIfAbsent writes one item guarded by an existence condition. Both
// condition variants express "no item with this primary key exists", which
// is how DynamoDB evaluates attribute_not_exists on a key attribute.
func (s *Store) PutItemIfAbsent(_ context.Context, item any, cond store.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.PutErr != nil {
		err := s.PutErr
		s.PutErr = nil
		return err
	}

	attrs, key, err := marshalItem(item)
	if err != nil {
		return err
	}
	if _, exists := s.items[key]; exists && cond != store.ConditionNone {
		return store.ErrAlreadyExists
	}
	s.items[key] = attrs
	return nil
}

// QueryByIndex runs a keyed prefix query against the table or one of its
// secondary index projections.
func (s *Store) QueryByIndex(_ context.Context, index store.Index, partitionValue, sortPrefix string, out any) error {
	pkName, skName := indexKeyNames(index)

	s.mu.Lock()
	type match struct {
		sortValue string
		attrs     map[string]types.AttributeValue
	}
	var matches []match
	for _, attrs := range s.items {
		if stringAttr(attrs, pkName) != partitionValue {
			continue
		}
		sortValue := stringAttr(attrs, skName)
		if sortPrefix != "" && !strings.HasPrefix(sortValue, sortPrefix) {
			continue
		}
		matches = append(matches, match{sortValue: sortValue, attrs: attrs})
	}
	s.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].sortValue < matches[j].sortValue })

	items := make([]map[string]types.AttributeValue, len(matches))
	for i, m := range matches {
		items[i] = m.attrs
	}
	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("unmarshal items: %w", err)
	}
	return nil
}

// TransactWrite applies all ops atomically: every condition is checked
// before any item is written, and one failed condition cancels the whole
// transaction.
func (s *Store) TransactWrite(_ context.Context, ops []store.WriteOp) error {
	if s.TransactHook != nil {
		hook := s.TransactHook
		s.TransactHook = nil
		return hook(ops)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[store.Key]map[string]types.AttributeValue, len(ops))
	for _, op := range ops {
		attrs, key, err := marshalItem(op.Item)
		if err != nil {
			return err
		}
		if _, exists := s.items[key]; exists && op.Condition != store.ConditionNone {
			return store.ErrTransactionConflict
		}
		staged[key] = attrs
	}
	for key, attrs := range staged {
		s.items[key] = attrs
	}
	return nil
}

// Seed writes an item unconditionally, bypassing condition checks.
func (s *Store) Seed(item any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attrs, key, err := marshalItem(item)
	if err != nil {
		return err
	}
	s.items[key] = attrs
	return nil
}

// Len reports how many items the store holds.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func marshalItem(item any) (map[string]types.AttributeValue, store.Key, error) {
	attrs, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, store.Key{}, fmt.Errorf("marshal item: %w", err)
	}
	key := store.Key{PK: stringAttr(attrs, "PK"), SK: stringAttr(attrs, "SK")}
	if key.PK == "" || key.SK == "" {
		return nil, store.Key{}, fmt.Errorf("item is missing its primary key")
	}
	return attrs, key, nil
}

func stringAttr(attrs map[string]types.AttributeValue, name string) string {
	if v, ok := attrs[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func indexKeyNames(index store.Index) (pk, sk string) {
	if index == store.IndexPrimary {
		return "PK", "SK"
	}
	return string(index) + "PK", string(index) + "SK"
}
