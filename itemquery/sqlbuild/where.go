package sqlbuild

import (
	"fmt"
	"math"
	"strings"

	"github.com/krew-solutions/itemquery/itemquery/logger"
)

const (
	// DefaultInlineListLimit is the largest integer list EqualsOneOf binds inline.
	DefaultInlineListLimit = 40
	// DefaultMaxParams caps the values of a non-integer EqualsOneOf.
	DefaultMaxParams = 100
)

// WhereBuilder renders a condition on one joined table.
type WhereBuilder interface {
	AppendTo(p *Parts, alias string)
	// AcceptsNull reports whether a NULL column, and thus a missing row
	// under an outer join, satisfies the condition.
	AcceptsNull() bool
	String() string
}

// Equals is column = value. The negation also accepts NULL.
type Equals struct {
	Column  string
	Value   any
	Negated bool
}

func (w Equals) AppendTo(p *Parts, alias string) {
	if w.Negated {
		p.Column(alias, w.Column).Append(" != ").Param(w.Value).
			Append(" OR ").Column(alias, w.Column).Append(" IS NULL")
		return
	}
	p.Column(alias, w.Column).Append(" = ").Param(w.Value)
}

func (w Equals) AcceptsNull() bool { return w.Negated }

func (w Equals) String() string {
	if w.Negated {
		return fmt.Sprintf("%s != %v", w.Column, w.Value)
	}
	return fmt.Sprintf("%s = %v", w.Column, w.Value)
}

// EqualsOneOf is column IN values. Integer lists longer than InlineLimit
// are bound as a single array parameter; other lists are capped at MaxParams.
type EqualsOneOf struct {
	Column      string
	Values      []any
	Integer     bool
	Negated     bool
	InlineLimit int
	MaxParams   int
}

func (w EqualsOneOf) AppendTo(p *Parts, alias string) {
	if len(w.Values) == 0 {
		logger.Logger.Warnw("empty value list in where condition", "column", w.Column)
		if w.Negated {
			p.Append("1 = 1")
		} else {
			p.Append("1 = 0")
		}
		return
	}
	p.Column(alias, w.Column)
	if w.Negated {
		p.Append(" NOT IN ")
	} else {
		p.Append(" IN ")
	}
	if ids, ok := w.integers(); ok && len(ids) > w.inlineLimit() {
		p.Array(ids)
	} else {
		values := w.Values
		if limit := w.maxParams(); len(values) > limit {
			logger.Logger.Warnw("too many values in where condition, truncating",
				"column", w.Column, "count", len(values), "max", limit)
			values = values[:limit]
		}
		p.Append("(").Params(values...).Append(")")
	}
	if w.Negated {
		p.Append(" OR ").Column(alias, w.Column).Append(" IS NULL")
	}
}

func (w EqualsOneOf) integers() ([]int64, bool) {
	if !w.Integer {
		return nil, false
	}
	ids := make([]int64, 0, len(w.Values))
	for _, v := range w.Values {
		id, ok := Int64Of(v)
		if !ok {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func (w EqualsOneOf) inlineLimit() int {
	if w.InlineLimit > 0 {
		return w.InlineLimit
	}
	return DefaultInlineListLimit
}

func (w EqualsOneOf) maxParams() int {
	if w.MaxParams > 0 {
		return w.MaxParams
	}
	return DefaultMaxParams
}

func (w EqualsOneOf) AcceptsNull() bool { return w.Negated }

func (w EqualsOneOf) String() string {
	parts := make([]string, len(w.Values))
	for i, v := range w.Values {
		parts[i] = fmt.Sprint(v)
	}
	op := "in"
	if w.Negated {
		op = "not in"
	}
	return fmt.Sprintf("%s %s (%s)", w.Column, op, strings.Join(parts, ", "))
}

// Compare is an ordering comparison. Ordering never matches NULL unless
// AcceptNull is set.
type Compare struct {
	Column     string
	Value      any
	Less       bool
	Equal      bool
	AcceptNull bool
}

func (w Compare) operator() string {
	switch {
	case w.Less && w.Equal:
		return "<="
	case w.Less:
		return "<"
	case w.Equal:
		return ">="
	default:
		return ">"
	}
}

func (w Compare) AppendTo(p *Parts, alias string) {
	p.Column(alias, w.Column).Append(" " + w.operator() + " ").Param(w.Value)
	if w.AcceptNull {
		p.Append(" OR ").Column(alias, w.Column).Append(" IS NULL")
	}
}

func (w Compare) AcceptsNull() bool { return w.AcceptNull }

func (w Compare) String() string {
	s := fmt.Sprintf("%s %s %v", w.Column, w.operator(), w.Value)
	if w.AcceptNull {
		s += " or null"
	}
	return s
}

// Exists matches items that have a row in the joined table, or with
// Negated items that have none.
type Exists struct {
	Negated bool
}

func (w Exists) AppendTo(p *Parts, alias string) {
	if w.Negated {
		p.Column(alias, ItemColumn).Append(" IS NULL")
		return
	}
	p.Column(alias, ItemColumn).Append(" IS NOT NULL")
}

func (w Exists) AcceptsNull() bool { return w.Negated }

func (w Exists) String() string {
	if w.Negated {
		return "not exists"
	}
	return "exists"
}

// Int64Of converts integral values of any numeric type.
func Int64Of(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), uint64(x) <= math.MaxInt64
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), x <= math.MaxInt64
	case float64:
		return int64(x), x == math.Trunc(x) && math.Abs(x) < 1<<63
	}
	return 0, false
}
