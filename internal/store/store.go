// Package store defines the typed access layer over the shared single-table
// design: one keyed table holding every entity, four secondary index
// projections, and a contract of keyed lookups, prefix queries, conditional
// puts, and multi-item transactions. No full-table scan exists on any path.
package store

import (
	"context"

	"github.com/louisbranch/identitymesh/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing. A lookup miss is an
// expected outcome, not a failure.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// ErrAlreadyExists indicates a conditional put lost to an existing record.
var ErrAlreadyExists = errors.New(errors.CodeConflictRetryable, "record already exists")

// ErrTransactionConflict indicates a transaction was cancelled because one
// of its conditions failed, meaning a concurrent writer won the race.
var ErrTransactionConflict = errors.New(errors.CodeConflictRetryable, "transaction condition failed")

// Key is the two-part primary key of the shared table.
type Key struct {
	PK string
	SK string
}

// Index selects which key projection a query runs against.
type Index string

const (
	// IndexPrimary queries the table's own PK/SK pair.
	IndexPrimary Index = ""
	// IndexEmail (GSI1) resolves a case-folded email to its user profile.
	IndexEmail Index = "GSI1"
	// IndexSubject (GSI2) resolves an external subject id to its identity link.
	IndexSubject Index = "GSI2"
	// IndexTenant (GSI3) lists the members of a tenant.
	IndexTenant Index = "GSI3"
	// IndexGroup (GSI4) lists the members of an authorization group.
	IndexGroup Index = "GSI4"
)

// Condition guards a write inside a transaction. The closed set mirrors the
// only guards the engine needs: "this item does not exist yet", expressed on
// either key attribute.
type Condition int

const (
	// ConditionNone writes unconditionally.
	ConditionNone Condition = iota
	// ConditionPKAbsent requires that no item with this primary key exists,
	// expressed as attribute_not_exists(PK).
	ConditionPKAbsent
	// ConditionSKAbsent requires that no item with this primary key exists,
	// expressed as attribute_not_exists(SK).
	ConditionSKAbsent
)

// WriteOp is one conditioned put inside a transaction.
type WriteOp struct {
	Item      any
	Condition Condition
}

// Store is the record store contract. Implementations must keep every index
// projection in sync with the primary item inside the same atomic write;
// callers never update a projection independently.
//
// All operations are bounded: implementations apply their own deadline on
// top of the caller's context. Transient backend failures are surfaced with
// a retryable code and must never be folded into ErrNotFound or a condition
// failure.
type Store interface {
	// GetItem loads the item at key into out, which must be a pointer to an
	// entity struct. Returns ErrNotFound on a miss.
	GetItem(ctx context.Context, key Key, out any) error

	// PutItemIfAbsent writes item guarded by cond. Returns ErrAlreadyExists
	// when the condition fails.
	PutItemIfAbsent(ctx context.Context, item any, cond Condition) error

	// QueryByIndex runs a keyed prefix query against the given index and
	// unmarshals the ordered result into out, a pointer to a slice of
	// entity structs. An empty sortPrefix matches every item under the
	// partition value.
	QueryByIndex(ctx context.Context, index Index, partitionValue, sortPrefix string, out any) error

	// TransactWrite submits all ops as one atomic unit. If any condition
	// fails the whole transaction is cancelled and ErrTransactionConflict
	// is returned.
	TransactWrite(ctx context.Context, ops []WriteOp) error
}
