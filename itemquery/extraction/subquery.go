package extraction

import (
	"fmt"

	"github.com/krew-solutions/itemquery/itemquery/logger"
	"github.com/krew-solutions/itemquery/itemquery/sqlbuild"
)

// JoinSubqueryOperator keeps items referenced from column of table by at
// least one referring item selected by subquery. With negated it keeps the
// items that no such referring item points to.
//
// The subquery is evaluated during Apply. A positive reference is resolved
// by joining the subquery into the input select; a negated one materializes
// the referenced ids and subtracts them.
type JoinSubqueryOperator struct {
	table    string
	column   string
	subquery Operator
	negated  bool
}

func NewJoinSubqueryOperator(table, column string, subquery Operator, negated bool) *JoinSubqueryOperator {
	return &JoinSubqueryOperator{table: table, column: column, subquery: subquery, negated: negated}
}

func (o *JoinSubqueryOperator) Cost() int {
	return CostSubquery
}

func (o *JoinSubqueryOperator) String() string {
	prefix := ""
	if o.negated {
		prefix = "!"
	}
	return fmt.Sprintf("%s%s.%s <- [%s]", prefix, o.table, o.column, o.subquery)
}

func (o *JoinSubqueryOperator) Apply(ctx TransactionContext, input Function) Function {
	name, referrers, err := o.evaluate(ctx)
	if err != nil {
		return SingleUse(func(TransactionContext, Visitor) error { return err })
	}
	if referrers == nil || referrers.IsEmpty() {
		if o.negated {
			return input
		}
		return NoItems()
	}
	if !o.negated {
		return o.joined(name, referrers, input)
	}
	referenced, err := o.materialize(ctx, name, referrers)
	if err != nil {
		return SingleUse(func(TransactionContext, Visitor) error { return err })
	}
	logger.Logger.Debugw("materialized subquery", "operator", o.String(), "referenced", len(referenced))
	if len(referenced) == 0 {
		return input
	}
	return o.subtracted(referenced, input)
}

func (o *JoinSubqueryOperator) evaluate(ctx TransactionContext) (string, *CollectingVisitor, error) {
	name, ok, err := ctx.ResolveTable(o.table)
	if err != nil {
		return "", nil, AsSQLError(err, "")
	}
	if !ok {
		return "", nil, nil
	}
	referrers := NewCollectingVisitor()
	if err := o.subquery.Apply(ctx, AllItems()).Execute(ctx, referrers); err != nil {
		return "", nil, AsSQLError(err, "")
	}
	return name, referrers, nil
}

// referrerSelects expresses the collected referrers as selects.
func referrerSelects(referrers *CollectingVisitor) []*sqlbuild.SelectBuilder {
	selects := referrers.Builders()
	if items := referrers.Items(); len(items) > 0 {
		b := sqlbuild.NewSelectBuilder()
		b.WhereItemIn(items)
		selects = append(selects, b)
	}
	return selects
}

// joinReferences joins table into b so that the item expression of b is
// referenced by a referrer selected by sub.
func (o *JoinSubqueryOperator) joinReferences(b *sqlbuild.SelectBuilder, name string, sub *sqlbuild.SelectBuilder) {
	j := b.JoinPrimaryTableSeparate(name, o.column, false)
	b.Where().Column(j.Alias(), o.column).Append(" IS NOT NULL")
	j.JoinSecondaryQueryInner(sqlbuild.ItemColumn, sub)
}

func (o *JoinSubqueryOperator) joined(name string, referrers *CollectingVisitor, input Function) Function {
	selects := referrerSelects(referrers)
	return SingleUse(func(ctx TransactionContext, v Visitor) error {
		emit := func(ctx TransactionContext, b *sqlbuild.SelectBuilder) error {
			for _, sub := range selects {
				c := b.Clone()
				o.joinReferences(c, name, sub)
				if err := v.VisitSQL(ctx, c); err != nil {
					return err
				}
			}
			return nil
		}
		return input.Execute(ctx, &forwarder{
			next: v,
			sql:  emit,
			items: func(ctx TransactionContext, items []int64) error {
				if len(items) == 0 {
					return nil
				}
				b := sqlbuild.NewSelectBuilder()
				b.WhereItemIn(items)
				return emit(ctx, b)
			},
		})
	})
}

func (o *JoinSubqueryOperator) materialize(ctx TransactionContext, name string, referrers *CollectingVisitor) ([]int64, error) {
	var referenced []int64
	for _, sub := range referrerSelects(referrers) {
		b := sqlbuild.NewSelectBuilder()
		o.joinReferences(b, name, sub)
		items, err := ctx.LoadItems(b)
		if err != nil {
			return nil, AsSQLError(err, "")
		}
		referenced = sqlbuild.Union(referenced, items)
	}
	return referenced, nil
}

func (o *JoinSubqueryOperator) subtracted(referenced []int64, input Function) Function {
	return SingleUse(func(ctx TransactionContext, v Visitor) error {
		return input.Execute(ctx, &forwarder{
			next: v,
			sql: func(ctx TransactionContext, b *sqlbuild.SelectBuilder) error {
				c := b.Clone()
				c.WhereItemNotIn(referenced)
				return v.VisitSQL(ctx, c)
			},
			items: func(ctx TransactionContext, items []int64) error {
				rest := sqlbuild.Subtract(items, referenced)
				if len(rest) == 0 {
					return nil
				}
				return v.VisitItems(ctx, rest)
			},
		})
	})
}
