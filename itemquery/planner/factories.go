package planner

import (
	"github.com/shopspring/decimal"

	"github.com/krew-solutions/itemquery/itemquery/extraction"
	"github.com/krew-solutions/itemquery/itemquery/predicate"
	"github.com/krew-solutions/itemquery/itemquery/sqlbuild"
)

func createNotNull(_ *Compiler, p predicate.Predicate, negated bool) (extraction.Operator, error) {
	return extraction.NewTableJoinOperator(p.Attribute().Table, negated), nil
}

func createEquals(c *Compiler, p predicate.Predicate, negated bool) (extraction.Operator, error) {
	eq := p.(predicate.Equals)
	attr := eq.Attr
	if attr.Multi || len(eq.Values) == 0 {
		return nil, nil
	}
	return extraction.NewTableFilteringOperator(attr.Table, c.valuesCondition(attr, eq.Values, negated), false), nil
}

func createIntersects(c *Compiler, p predicate.Predicate, negated bool) (extraction.Operator, error) {
	in := p.(predicate.Intersects)
	if negated || len(in.Values) == 0 {
		return nil, nil
	}
	return extraction.NewTableFilteringOperator(in.Attr.Table, c.valuesCondition(in.Attr, in.Values, false), true), nil
}

func (c *Compiler) valuesCondition(attr *predicate.Attribute, values []any, negated bool) sqlbuild.WhereBuilder {
	if len(values) == 1 {
		return sqlbuild.Equals{Column: attr.Column, Value: values[0], Negated: negated}
	}
	return sqlbuild.EqualsOneOf{
		Column:      attr.Column,
		Values:      values,
		Integer:     attr.IsInteger(),
		Negated:     negated,
		InlineLimit: c.options.InlineListLimit,
		MaxParams:   c.options.MaxSQLParams,
	}
}

func createCompare(_ *Compiler, p predicate.Predicate, negated bool) (extraction.Operator, error) {
	cmp := p.(predicate.Compare)
	if negated {
		cmp = cmp.Negated()
	}
	if cmp.Value == nil {
		if !cmp.AcceptNull {
			return nil, nil
		}
		return extraction.NewTableJoinOperator(cmp.Attr.Table, true), nil
	}
	if _, ok := cmp.Value.(decimal.Decimal); ok {
		return nil, nil
	}
	condition := sqlbuild.Compare{
		Column:     cmp.Attr.Column,
		Value:      cmp.Value,
		Less:       cmp.Less,
		Equal:      cmp.OrEqual,
		AcceptNull: cmp.AcceptNull,
	}
	return extraction.NewTableFilteringOperator(cmp.Attr.Table, condition, false), nil
}

func createReferredBy(c *Compiler, p predicate.Predicate, negated bool) (extraction.Operator, error) {
	ref := p.(predicate.ReferredBy)
	sub, err := c.Compile(ref.Query)
	if err != nil {
		return nil, err
	}
	return extraction.NewJoinSubqueryOperator(ref.Attr.Table, ref.Attr.Column, sub, negated), nil
}

// resolveIdentities looks keys up in the identities table when the
// operator runs. Unknown keys are skipped.
func (c *Compiler) resolveIdentities(ctx extraction.TransactionContext, keys []string) ([]int64, error) {
	name, ok, err := ctx.ResolveTable(c.options.IdentitiesTable)
	if err != nil {
		return nil, extraction.AsSQLError(err, "")
	}
	if !ok {
		return nil, nil
	}
	values := make([]any, len(keys))
	for i, k := range keys {
		values[i] = k
	}
	b := sqlbuild.NewSelectBuilder()
	j := b.JoinPrimaryTable(name, sqlbuild.ItemColumn, false)
	c.valuesCondition(&predicate.Attribute{Column: c.options.IdentityKeyColumn}, values, false).AppendTo(b.Where(), j.Alias())
	items, err := ctx.LoadItems(b)
	if err != nil {
		return nil, extraction.AsSQLError(err, "")
	}
	return items, nil
}

// createEqualsIdentified handles single-valued attributes only; a key that
// identifies nothing matches no item.
func createEqualsIdentified(c *Compiler, p predicate.Predicate, negated bool) (extraction.Operator, error) {
	id := p.(predicate.EqualsIdentified)
	if id.Attr.Multi {
		return nil, nil
	}
	column := id.Attr.Column

	where := func(ctx extraction.TransactionContext) (sqlbuild.WhereBuilder, error) {
		items, err := c.resolveIdentities(ctx, []string{id.Key})
		if err != nil || len(items) == 0 {
			return nil, err
		}
		return sqlbuild.Equals{Column: column, Value: items[0], Negated: negated}, nil
	}

	cost, label := extraction.CostFilter, id.String()
	if negated {
		cost, label = extraction.CostNegatedFilter, "!"+label
	}
	return extraction.NewTableBasedOperator(id.Attr.Table, negated, false, cost, label, where), nil
}

func createIntersectsIdentified(c *Compiler, p predicate.Predicate, negated bool) (extraction.Operator, error) {
	in := p.(predicate.IntersectsIdentified)
	if negated || len(in.Keys) == 0 || !in.Attr.IsInteger() {
		return nil, nil
	}
	column := in.Attr.Column

	where := func(ctx extraction.TransactionContext) (sqlbuild.WhereBuilder, error) {
		items, err := c.resolveIdentities(ctx, in.Keys)
		if err != nil || len(items) == 0 {
			return nil, err
		}
		if len(items) == 1 {
			return sqlbuild.Equals{Column: column, Value: items[0]}, nil
		}
		values := make([]any, len(items))
		for i, item := range items {
			values[i] = item
		}
		return sqlbuild.EqualsOneOf{
			Column:      column,
			Values:      values,
			Integer:     true,
			InlineLimit: c.options.InlineListLimit,
			MaxParams:   c.options.MaxSQLParams,
		}, nil
	}
	return extraction.NewTableBasedOperator(in.Attr.Table, false, true, extraction.CostFilter, in.String(), where), nil
}
