package extraction

import (
	"github.com/krew-solutions/itemquery/itemquery/sqlbuild"
)

// WhereSource produces the condition of a table operator for one
// execution. A nil condition means no row of the table can match.
type WhereSource func(ctx TransactionContext) (sqlbuild.WhereBuilder, error)

// TableBasedOperator narrows its input to items whose row in a table
// satisfies a condition. Items without a row pass only when acceptMissingRow is set.
type TableBasedOperator struct {
	table            string
	acceptMissingRow bool
	separateJoin     bool
	where            WhereSource
	cost             int
	label            string
}

func NewTableBasedOperator(table string, acceptMissingRow, separateJoin bool, cost int, label string, where WhereSource) *TableBasedOperator {
	return &TableBasedOperator{
		table:            table,
		acceptMissingRow: acceptMissingRow,
		separateJoin:     separateJoin,
		where:            where,
		cost:             cost,
		label:            label,
	}
}

func (o *TableBasedOperator) Table() string { return o.table }

func (o *TableBasedOperator) Cost() int { return o.cost }

func (o *TableBasedOperator) String() string {
	return o.table + ": " + o.label
}

func (o *TableBasedOperator) Apply(_ TransactionContext, input Function) Function {
	return SingleUse(func(ctx TransactionContext, v Visitor) error {
		name, ok, err := ctx.ResolveTable(o.table)
		if err != nil {
			return AsSQLError(err, "")
		}
		var where sqlbuild.WhereBuilder
		if ok {
			if where, err = o.where(ctx); err != nil {
				return err
			}
		}
		if where == nil {
			if o.acceptMissingRow {
				return input.Execute(ctx, v)
			}
			return NoItems().Execute(ctx, v)
		}
		return input.Execute(ctx, &forwarder{
			next: v,
			sql: func(ctx TransactionContext, b *sqlbuild.SelectBuilder) error {
				c := b.Clone()
				o.attach(c, name, where)
				return v.VisitSQL(ctx, c)
			},
			items: func(ctx TransactionContext, items []int64) error {
				if len(items) == 0 {
					return nil
				}
				c := sqlbuild.NewSelectBuilder()
				c.WhereItemIn(items)
				o.attach(c, name, where)
				return v.VisitSQL(ctx, c)
			},
		})
	})
}

func (o *TableBasedOperator) attach(b *sqlbuild.SelectBuilder, name string, where sqlbuild.WhereBuilder) {
	outer := where.AcceptsNull()
	var j *sqlbuild.Join
	if o.separateJoin {
		j = b.JoinPrimaryTableSeparate(name, sqlbuild.ItemColumn, outer)
	} else {
		j = b.JoinPrimaryTable(name, sqlbuild.ItemColumn, outer)
	}
	where.AppendTo(b.Where(), j.Alias())
}

// TableFilteringOperator applies a column condition.
type TableFilteringOperator struct {
	TableBasedOperator
}

func NewTableFilteringOperator(table string, condition sqlbuild.WhereBuilder, separateJoin bool) *TableFilteringOperator {
	cost := CostFilter
	if condition.AcceptsNull() {
		cost = CostNegatedFilter
	}
	op := &TableFilteringOperator{}
	op.TableBasedOperator = *NewTableBasedOperator(table, condition.AcceptsNull(), separateJoin, cost, condition.String(),
		func(TransactionContext) (sqlbuild.WhereBuilder, error) { return condition, nil })
	return op
}

// TableJoinOperator keeps items that have a row in the table, or with
// negated those that have none.
type TableJoinOperator struct {
	TableBasedOperator
	negated bool
}

func NewTableJoinOperator(table string, negated bool) *TableJoinOperator {
	condition := sqlbuild.Exists{Negated: negated}
	cost := CostJoin
	if negated {
		cost = CostNegatedFilter
	}
	op := &TableJoinOperator{negated: negated}
	op.TableBasedOperator = *NewTableBasedOperator(table, negated, false, cost, condition.String(),
		func(TransactionContext) (sqlbuild.WhereBuilder, error) { return condition, nil })
	return op
}

func (o *TableJoinOperator) Negated() bool {
	return o.negated
}
