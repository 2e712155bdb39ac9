package extraction

import (
	"context"

	"github.com/krew-solutions/itemquery/itemquery/sqlbuild"
)

// TransactionContext gives extraction access to one database transaction.
type TransactionContext interface {
	Context() context.Context
	Dialect() sqlbuild.Dialect
	// ResolveTable maps a logical table to its physical name; ok is false
	// when the table is not materialized, which means it holds no rows.
	ResolveTable(table string) (name string, ok bool, err error)
	// LoadItems runs the select and returns the sorted distinct item ids.
	LoadItems(b *sqlbuild.SelectBuilder) ([]int64, error)
	CountItems(b *sqlbuild.SelectBuilder) (int, error)
}

// Visitor consumes one execution of a Function. VisitSQL and VisitItems may
// be called any number of times between VisitStarted and VisitFinished; the
// item set is the union of everything received.
type Visitor interface {
	VisitStarted(ctx TransactionContext) error
	VisitSQL(ctx TransactionContext, b *sqlbuild.SelectBuilder) error
	VisitItems(ctx TransactionContext, items []int64) error
	VisitFinished(ctx TransactionContext) error
}

// Function is a deferred computation of an item set. It is bound to one
// transaction and executes at most once.
type Function interface {
	Execute(ctx TransactionContext, v Visitor) error
}

// Operator maps an input function to a narrowed or widened one. Operators
// hold no per-execution state and may be shared.
type Operator interface {
	Apply(ctx TransactionContext, input Function) Function
	// Cost is a relative estimate; cheaper operators run first in a chain.
	Cost() int
	String() string
}

const (
	CostMinimal       = -1000
	CostNegatedFilter = -20
	CostFilter        = -10
	CostJoin          = 0
	CostSubquery      = 50
)
