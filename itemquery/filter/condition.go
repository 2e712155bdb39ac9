package filter

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/krew-solutions/itemquery/itemquery/boolexpr"
)

// Op is the operator of a Condition. $ne, $not, $and and $or never appear
// in conditions: they become negated terms and operations.
type Op string

const (
	OpEq     Op = "$eq"
	OpIn     Op = "$in"
	OpGt     Op = "$gt"
	OpGte    Op = "$gte"
	OpLt     Op = "$lt"
	OpLte    Op = "$lte"
	OpIsNull Op = "$is_null"
	OpRel    Op = "$rel"
)

var opSymbols = map[Op]string{
	OpEq:  "=",
	OpIn:  "in",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// Condition is a leaf of a filter document.
type Condition struct {
	Field string
	Op    Op
	// Value is a scalar, or the sorted values of $in.
	Value any
	// Rel is the nested document of $rel.
	Rel Expr
}

// Expr is a parsed filter document.
type Expr = boolexpr.Expr[Condition]

func (c Condition) Equal(other Condition) bool {
	if c.Field != other.Field || c.Op != other.Op {
		return false
	}
	if c.Op == OpRel {
		return c.Rel != nil && other.Rel != nil && c.Rel.Equal(other.Rel)
	}
	return reflect.DeepEqual(c.Value, other.Value)
}

func (c Condition) Hash() uint64 {
	h := xxhash.Sum64String(c.Field + "\x00" + string(c.Op))
	if c.Op == OpRel {
		if c.Rel != nil {
			h ^= c.Rel.Hash()
		}
		return h
	}
	return h ^ xxhash.Sum64String(fmt.Sprintf("%#v", c.Value))
}

func (c Condition) String() string {
	switch c.Op {
	case OpIsNull:
		return c.Field + " is null"
	case OpRel:
		return fmt.Sprintf("%s <- %v", c.Field, c.Rel)
	case OpIn:
		values, _ := c.Value.([]any)
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = fmt.Sprint(v)
		}
		return fmt.Sprintf("%s in (%s)", c.Field, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s %s %v", c.Field, opSymbols[c.Op], c.Value)
}
