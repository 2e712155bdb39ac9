package extraction

import (
	"context"
	"fmt"

	"github.com/krew-solutions/itemquery/itemquery/sqlbuild"
)

// fakeContext resolves tables from a fixed map and answers selects by their
// rendered SQL.
type fakeContext struct {
	tables     map[string]string
	results    map[string][]int64
	resolveErr error
	loaded     []string
}

func newFakeContext(tables ...string) *fakeContext {
	c := &fakeContext{tables: map[string]string{}, results: map[string][]int64{}}
	for _, t := range tables {
		c.tables[t] = t
	}
	return c
}

func (c *fakeContext) Context() context.Context { return context.Background() }

func (c *fakeContext) Dialect() sqlbuild.Dialect { return sqlbuild.SQLite }

func (c *fakeContext) ResolveTable(table string) (string, bool, error) {
	if c.resolveErr != nil {
		return "", false, c.resolveErr
	}
	name, ok := c.tables[table]
	return name, ok, nil
}

func (c *fakeContext) LoadItems(b *sqlbuild.SelectBuilder) ([]int64, error) {
	query := b.Build(c.Dialect()).SQL
	c.loaded = append(c.loaded, query)
	items, ok := c.results[query]
	if !ok {
		return nil, fmt.Errorf("unexpected query %q", query)
	}
	return items, nil
}

func (c *fakeContext) CountItems(b *sqlbuild.SelectBuilder) (int, error) {
	items, err := c.LoadItems(b)
	return len(items), err
}

// recorder keeps every visitor call.
type recorder struct {
	started  int
	finished int
	sql      []string
	items    [][]int64
}

func (r *recorder) VisitStarted(TransactionContext) error {
	r.started++
	return nil
}

func (r *recorder) VisitSQL(ctx TransactionContext, b *sqlbuild.SelectBuilder) error {
	r.sql = append(r.sql, b.Build(ctx.Dialect()).SQL)
	return nil
}

func (r *recorder) VisitItems(_ TransactionContext, items []int64) error {
	r.items = append(r.items, items)
	return nil
}

func (r *recorder) VisitFinished(TransactionContext) error {
	r.finished++
	return nil
}

type costOperator struct {
	name string
	cost int
}

func (o costOperator) Apply(_ TransactionContext, input Function) Function { return input }
func (o costOperator) Cost() int                                            { return o.cost }
func (o costOperator) String() string                                       { return o.name }
