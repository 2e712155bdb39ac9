package extraction

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/krew-solutions/itemquery/itemquery/sqlbuild"
)

// SQLError is the single error type for failures of the SQL layer.
type SQLError struct {
	Query string
	Err   error
}

func (e *SQLError) Error() string {
	if e.Query == "" {
		return "sql: " + e.Err.Error()
	}
	return fmt.Sprintf("sql: %s [%s]", e.Err, e.Query)
}

func (e *SQLError) Unwrap() error {
	return e.Err
}

// AsSQLError returns err unchanged when it already carries a SQLError and
// wraps it otherwise.
func AsSQLError(err error, query string) error {
	if err == nil {
		return nil
	}
	var sqlErr *SQLError
	if errors.As(err, &sqlErr) {
		return err
	}
	return &SQLError{Query: query, Err: err}
}

type FunctionFunc func(ctx TransactionContext, v Visitor) error

type singleUse struct {
	f    FunctionFunc
	used bool
}

// SingleUse wraps f so that executing it twice panics.
func SingleUse(f FunctionFunc) Function {
	return &singleUse{f: f}
}

func (s *singleUse) Execute(ctx TransactionContext, v Visitor) error {
	if s.used {
		panic("extraction: function executed twice")
	}
	s.used = true
	return s.f(ctx, v)
}

func bracket(ctx TransactionContext, v Visitor, body func() error) error {
	if err := v.VisitStarted(ctx); err != nil {
		return err
	}
	if err := body(); err != nil {
		return err
	}
	return v.VisitFinished(ctx)
}

// AllItems yields a single select over every item.
func AllItems() Function {
	return SingleUse(func(ctx TransactionContext, v Visitor) error {
		return bracket(ctx, v, func() error {
			return v.VisitSQL(ctx, sqlbuild.NewSelectBuilder())
		})
	})
}

// NoItems yields nothing.
func NoItems() Function {
	return SingleUse(func(ctx TransactionContext, v Visitor) error {
		return bracket(ctx, v, func() error { return nil })
	})
}

// ItemsOf yields the given ids as one batch.
func ItemsOf(items []int64) Function {
	sorted := sqlbuild.SortedUnique(items)
	return SingleUse(func(ctx TransactionContext, v Visitor) error {
		return bracket(ctx, v, func() error {
			if len(sorted) == 0 {
				return nil
			}
			return v.VisitItems(ctx, sorted)
		})
	})
}

// forwarder passes the bracket through and rewrites SQL and item batches.
type forwarder struct {
	next  Visitor
	sql   func(ctx TransactionContext, b *sqlbuild.SelectBuilder) error
	items func(ctx TransactionContext, items []int64) error
}

func (f *forwarder) VisitStarted(ctx TransactionContext) error {
	return f.next.VisitStarted(ctx)
}

func (f *forwarder) VisitSQL(ctx TransactionContext, b *sqlbuild.SelectBuilder) error {
	return f.sql(ctx, b)
}

func (f *forwarder) VisitItems(ctx TransactionContext, items []int64) error {
	return f.items(ctx, items)
}

func (f *forwarder) VisitFinished(ctx TransactionContext) error {
	return f.next.VisitFinished(ctx)
}

// unbracketed forwards results but not the bracket, so several executions
// can feed one downstream pass.
type unbracketed struct {
	next Visitor
}

func (u unbracketed) VisitStarted(TransactionContext) error  { return nil }
func (u unbracketed) VisitFinished(TransactionContext) error { return nil }

func (u unbracketed) VisitSQL(ctx TransactionContext, b *sqlbuild.SelectBuilder) error {
	return u.next.VisitSQL(ctx, b)
}

func (u unbracketed) VisitItems(ctx TransactionContext, items []int64) error {
	return u.next.VisitItems(ctx, items)
}
