package sqlbuild

import (
	"sort"
	"strconv"
	"strings"
)

const (
	// ItemsTable lists every item id; it is the source of a select without joins.
	ItemsTable = "items"
	// ItemColumn is the item id column shared by the items table and attribute tables.
	ItemColumn = "item"
	// MaxInlineItems is the largest id list rendered as inline bind markers.
	MaxInlineItems = 10

	itemsAlias  = "_ti"
	aliasPrefix = "_t"
)

// Statement is a rendered query with its bound arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Join is a table joined into a SelectBuilder. Primary joins are joined on
// the item expression of the select; secondary joins hang off another join.
type Join struct {
	builder      *SelectBuilder
	table        string
	alias        string
	column       string
	parentAlias  string
	parentColumn string
	outer        bool
	separate     bool
}

func (j *Join) Table() string { return j.table }

func (j *Join) Alias() string { return j.alias }

func (j *Join) Column() string { return j.column }

func (j *Join) Outer() bool { return j.outer }

func (j *Join) primary() bool { return j.parentAlias == "" }

// JoinSecondaryTable joins table ON j.parentColumn = table.column.
func (j *Join) JoinSecondaryTable(parentColumn, table, column string, outer bool) *Join {
	return j.builder.addJoin(&Join{
		table:        table,
		column:       column,
		parentAlias:  j.alias,
		parentColumn: parentColumn,
		outer:        outer,
	})
}

// JoinSecondaryQueryInner inner-joins the tables of sub so that
// j.parentColumn matches the item expression of sub; the where conditions
// and item restriction of sub are carried over with renamed aliases.
func (j *Join) JoinSecondaryQueryInner(parentColumn string, sub *SelectBuilder) {
	b := j.builder
	renames := map[string]string{}
	source := sub.source()

	var head *Join
	if source == nil {
		head = j.JoinSecondaryTable(parentColumn, ItemsTable, ItemColumn, false)
		renames[itemsAlias] = head.alias
	} else {
		head = j.JoinSecondaryTable(parentColumn, source.table, source.column, false)
		renames[source.alias] = head.alias
	}
	for _, sj := range sub.joins {
		if sj == source {
			continue
		}
		var nj *Join
		if sj.primary() {
			nj = head.JoinSecondaryTable(head.column, sj.table, sj.column, sj.outer)
		} else {
			parent := renames[sj.parentAlias]
			nj = b.addJoin(&Join{
				table:        sj.table,
				column:       sj.column,
				parentAlias:  parent,
				parentColumn: sj.parentColumn,
				outer:        sj.outer,
			})
		}
		renames[sj.alias] = nj.alias
	}
	for _, w := range sub.wheres {
		b.wheres = append(b.wheres, w.RenameAliases(renames))
	}
	if sub.hasItemFilter {
		AppendInList(b.Where(), head.alias, head.column, sub.itemFilter, false)
	}
	if len(sub.itemExclude) > 0 {
		AppendInList(b.Where(), head.alias, head.column, sub.itemExclude, true)
	}
}

// SelectBuilder assembles a query selecting item ids.
type SelectBuilder struct {
	joins         []*Join
	wheres        []*Parts
	itemFilter    []int64
	hasItemFilter bool
	itemExclude   []int64
	seq           int
}

// NewSelectBuilder returns a builder selecting every item.
func NewSelectBuilder() *SelectBuilder {
	return &SelectBuilder{}
}

func (b *SelectBuilder) nextAlias() string {
	alias := aliasPrefix + strconv.Itoa(b.seq)
	b.seq++
	return alias
}

func (b *SelectBuilder) addJoin(j *Join) *Join {
	j.builder = b
	j.alias = b.nextAlias()
	b.joins = append(b.joins, j)
	return j
}

// JoinPrimaryTable joins table on column = item. An existing join of the
// same table and column is reused; an inner request turns it into an inner join.
func (b *SelectBuilder) JoinPrimaryTable(table, column string, outer bool) *Join {
	for _, j := range b.joins {
		if j.primary() && !j.separate && j.table == table && j.column == column {
			if !outer {
				j.outer = false
			}
			return j
		}
	}
	return b.addJoin(&Join{table: table, column: column, outer: outer})
}

// JoinPrimaryTableSeparate always adds a new join, for tables holding
// several rows per item.
func (b *SelectBuilder) JoinPrimaryTableSeparate(table, column string, outer bool) *Join {
	return b.addJoin(&Join{table: table, column: column, outer: outer, separate: true})
}

// Where starts a new condition; conditions are combined with AND.
func (b *SelectBuilder) Where() *Parts {
	p := NewParts()
	b.wheres = append(b.wheres, p)
	return p
}

// WhereItemIn restricts the result to items. Repeated calls intersect.
func (b *SelectBuilder) WhereItemIn(items []int64) {
	sorted := SortedUnique(items)
	if b.hasItemFilter {
		sorted = Intersect(b.itemFilter, sorted)
	}
	b.itemFilter = sorted
	b.hasItemFilter = true
}

// WhereItemNotIn removes items from the result. Repeated calls accumulate.
func (b *SelectBuilder) WhereItemNotIn(items []int64) {
	b.itemExclude = Union(b.itemExclude, SortedUnique(items))
}

func (b *SelectBuilder) source() *Join {
	for _, j := range b.joins {
		if j.primary() && !j.outer {
			return j
		}
	}
	return nil
}

// Clone returns a deep copy that can be modified independently.
func (b *SelectBuilder) Clone() *SelectBuilder {
	c := &SelectBuilder{
		joins:         make([]*Join, len(b.joins)),
		wheres:        make([]*Parts, len(b.wheres)),
		itemFilter:    append([]int64(nil), b.itemFilter...),
		hasItemFilter: b.hasItemFilter,
		itemExclude:   append([]int64(nil), b.itemExclude...),
		seq:           b.seq,
	}
	for i, j := range b.joins {
		copied := *j
		copied.builder = c
		c.joins[i] = &copied
	}
	for i, w := range b.wheres {
		c.wheres[i] = w.Clone()
	}
	return c
}

// Build renders SELECT <item> r FROM ... for d.
func (b *SelectBuilder) Build(d Dialect) Statement {
	return b.build(d, false)
}

// BuildCount renders a query counting distinct items.
func (b *SelectBuilder) BuildCount(d Dialect) Statement {
	return b.build(d, true)
}

func (b *SelectBuilder) build(d Dialect, count bool) Statement {
	var w strings.Builder
	var args []any

	source := b.source()
	srcTable, srcAlias, srcColumn := ItemsTable, itemsAlias, ItemColumn
	if source != nil {
		srcTable, srcAlias, srcColumn = source.table, source.alias, source.column
	}
	item := srcAlias + "." + srcColumn

	w.WriteString("SELECT ")
	if count {
		w.WriteString("COUNT(DISTINCT " + item + ")")
	} else {
		w.WriteString(item + " r")
	}
	w.WriteString(" FROM " + srcTable + " " + srcAlias)

	for _, j := range b.joins {
		if j == source {
			continue
		}
		if j.outer {
			w.WriteString(" LEFT OUTER JOIN ")
		} else {
			w.WriteString(" INNER JOIN ")
		}
		w.WriteString(j.table + " " + j.alias + " ON ")
		if j.primary() {
			w.WriteString(item)
		} else {
			w.WriteString(j.parentAlias + "." + j.parentColumn)
		}
		w.WriteString(" = " + j.alias + "." + j.column)
	}

	conditions := make([]*Parts, 0, len(b.wheres)+1)
	if b.hasItemFilter {
		p := NewParts()
		AppendInList(p, srcAlias, srcColumn, b.itemFilter, false)
		conditions = append(conditions, p)
	}
	if len(b.itemExclude) > 0 {
		p := NewParts()
		AppendInList(p, srcAlias, srcColumn, b.itemExclude, true)
		conditions = append(conditions, p)
	}
	for _, where := range b.wheres {
		if !where.IsEmpty() {
			conditions = append(conditions, where)
		}
	}
	for i, cond := range conditions {
		if i == 0 {
			w.WriteString(" WHERE (")
		} else {
			w.WriteString(" AND (")
		}
		cond.write(&w, &args, d)
		w.WriteString(")")
	}
	return Statement{SQL: d.Rebind(w.String()), Args: args}
}

func (b *SelectBuilder) String() string {
	return b.Build(SQLite).SQL
}

// AppendInList renders alias.column IN values choosing between a single
// marker, an inline list and an array parameter.
func AppendInList(p *Parts, alias, column string, values []int64, negated bool) {
	switch {
	case len(values) == 0:
		if negated {
			p.Append("1 = 1")
		} else {
			p.Append("1 = 0")
		}
	case len(values) == 1:
		p.Column(alias, column)
		if negated {
			p.Append(" != ")
		} else {
			p.Append(" = ")
		}
		p.Param(values[0])
	default:
		p.Column(alias, column)
		if negated {
			p.Append(" NOT IN ")
		} else {
			p.Append(" IN ")
		}
		if len(values) <= MaxInlineItems {
			args := make([]any, len(values))
			for i, v := range values {
				args[i] = v
			}
			p.Append("(").Params(args...).Append(")")
		} else {
			p.Array(values)
		}
	}
}

// SortedUnique returns a sorted copy of ids without duplicates.
func SortedUnique(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, id := range out {
		if i == 0 || id != out[n-1] {
			out[n] = id
			n++
		}
	}
	return out[:n]
}

// Intersect merges two sorted unique lists.
func Intersect(x, y []int64) []int64 {
	out := make([]int64, 0)
	for i, j := 0, 0; i < len(x) && j < len(y); {
		switch {
		case x[i] < y[j]:
			i++
		case x[i] > y[j]:
			j++
		default:
			out = append(out, x[i])
			i++
			j++
		}
	}
	return out
}

// Subtract returns the ids of sorted unique x that are not in sorted unique y.
func Subtract(x, y []int64) []int64 {
	out := make([]int64, 0, len(x))
	j := 0
	for _, id := range x {
		for j < len(y) && y[j] < id {
			j++
		}
		if j < len(y) && y[j] == id {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Union merges two sorted unique lists.
func Union(x, y []int64) []int64 {
	out := make([]int64, 0, len(x)+len(y))
	i, j := 0, 0
	for i < len(x) && j < len(y) {
		switch {
		case x[i] < y[j]:
			out = append(out, x[i])
			i++
		case x[i] > y[j]:
			out = append(out, y[j])
			j++
		default:
			out = append(out, x[i])
			i++
			j++
		}
	}
	out = append(out, x[i:]...)
	return append(out, y[j:]...)
}
