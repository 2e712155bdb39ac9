package predicate

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"

	"github.com/krew-solutions/itemquery/itemquery/boolexpr"
)

// Tag selects the factories able to compile a predicate.
type Tag string

const (
	TagNotNull              Tag = "not_null"
	TagEquals               Tag = "equals"
	TagEqualsIdentified     Tag = "equals_identified"
	TagIntersects           Tag = "intersects"
	TagIntersectsIdentified Tag = "intersects_identified"
	TagCompare              Tag = "compare"
	TagReferredBy           Tag = "referred_by"
)

// Predicate is a condition on one attribute of an item.
type Predicate interface {
	Tag() Tag
	Attribute() *Attribute
	Equal(other Predicate) bool
	Hash() uint64
	String() string
}

// Expr is a boolean expression over item predicates.
type Expr = boolexpr.Expr[Predicate]

func hashOf(p Predicate) uint64 {
	return xxhash.Sum64String(string(p.Tag()) + "\x00" + p.String())
}

func sameAttribute(x, y *Attribute) bool {
	return x == y || (x != nil && y != nil && *x == *y)
}

func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(v)
}

func valueEqual(x, y any) bool {
	if dx, ok := x.(decimal.Decimal); ok {
		dy, ok := y.(decimal.Decimal)
		return ok && dx.Equal(dy)
	}
	return reflect.DeepEqual(x, y)
}

func valuesEqual(x, y []any) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if !valueEqual(x[i], y[i]) {
			return false
		}
	}
	return true
}

// normalizeValues sorts values by their text and drops duplicates, so that
// predicates over the same value set compare equal.
func normalizeValues(values []any) []any {
	keyed := make([]any, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		key := fmt.Sprintf("%T:%s", v, formatValue(v))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keyed = append(keyed, v)
	}
	sort.SliceStable(keyed, func(i, j int) bool { return formatValue(keyed[i]) < formatValue(keyed[j]) })
	return keyed
}

func joinValues(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatValue(v)
	}
	return strings.Join(parts, ", ")
}

// NotNull holds for items with at least one value of the attribute.
type NotNull struct {
	Attr *Attribute
}

func (p NotNull) Tag() Tag              { return TagNotNull }
func (p NotNull) Attribute() *Attribute { return p.Attr }
func (p NotNull) Hash() uint64          { return hashOf(p) }
func (p NotNull) String() string        { return p.Attr.Name + " exists" }

func (p NotNull) Equal(other Predicate) bool {
	o, ok := other.(NotNull)
	return ok && sameAttribute(p.Attr, o.Attr)
}

// Equals holds when the single value of the attribute is one of Values.
type Equals struct {
	Attr   *Attribute
	Values []any
}

func NewEquals(attr *Attribute, values ...any) Equals {
	return Equals{Attr: attr, Values: normalizeValues(values)}
}

func (p Equals) Tag() Tag              { return TagEquals }
func (p Equals) Attribute() *Attribute { return p.Attr }
func (p Equals) Hash() uint64          { return hashOf(p) }

func (p Equals) String() string {
	if len(p.Values) == 1 {
		return p.Attr.Name + " = " + formatValue(p.Values[0])
	}
	return p.Attr.Name + " in (" + joinValues(p.Values) + ")"
}

func (p Equals) Equal(other Predicate) bool {
	o, ok := other.(Equals)
	return ok && sameAttribute(p.Attr, o.Attr) && valuesEqual(p.Values, o.Values)
}

// EqualsIdentified holds when the attribute refers to the item registered
// under Key in the identities table.
type EqualsIdentified struct {
	Attr *Attribute
	Key  string
}

func (p EqualsIdentified) Tag() Tag              { return TagEqualsIdentified }
func (p EqualsIdentified) Attribute() *Attribute { return p.Attr }
func (p EqualsIdentified) Hash() uint64          { return hashOf(p) }
func (p EqualsIdentified) String() string        { return p.Attr.Name + " = @" + p.Key }

func (p EqualsIdentified) Equal(other Predicate) bool {
	o, ok := other.(EqualsIdentified)
	return ok && sameAttribute(p.Attr, o.Attr) && p.Key == o.Key
}

// Intersects holds when a multi-valued attribute has at least one of Values.
type Intersects struct {
	Attr   *Attribute
	Values []any
}

func NewIntersects(attr *Attribute, values ...any) Intersects {
	return Intersects{Attr: attr, Values: normalizeValues(values)}
}

func (p Intersects) Tag() Tag              { return TagIntersects }
func (p Intersects) Attribute() *Attribute { return p.Attr }
func (p Intersects) Hash() uint64          { return hashOf(p) }

func (p Intersects) String() string {
	return p.Attr.Name + " has any (" + joinValues(p.Values) + ")"
}

func (p Intersects) Equal(other Predicate) bool {
	o, ok := other.(Intersects)
	return ok && sameAttribute(p.Attr, o.Attr) && valuesEqual(p.Values, o.Values)
}

// IntersectsIdentified holds when the attribute refers to at least one of
// the items registered under Keys in the identities table.
type IntersectsIdentified struct {
	Attr *Attribute
	Keys []string
}

func NewIntersectsIdentified(attr *Attribute, keys ...string) IntersectsIdentified {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	n := 0
	for i, k := range sorted {
		if i == 0 || k != sorted[n-1] {
			sorted[n] = k
			n++
		}
	}
	return IntersectsIdentified{Attr: attr, Keys: sorted[:n]}
}

func (p IntersectsIdentified) Tag() Tag              { return TagIntersectsIdentified }
func (p IntersectsIdentified) Attribute() *Attribute { return p.Attr }
func (p IntersectsIdentified) Hash() uint64          { return hashOf(p) }

func (p IntersectsIdentified) String() string {
	return p.Attr.Name + " has any (@" + strings.Join(p.Keys, ", @") + ")"
}

func (p IntersectsIdentified) Equal(other Predicate) bool {
	o, ok := other.(IntersectsIdentified)
	if !ok || !sameAttribute(p.Attr, o.Attr) || len(p.Keys) != len(o.Keys) {
		return false
	}
	for i := range p.Keys {
		if p.Keys[i] != o.Keys[i] {
			return false
		}
	}
	return true
}

// Compare orders the attribute against Value. Less and OrEqual select one
// of <, <=, >, >=. AcceptNull also admits items without a value.
type Compare struct {
	Attr       *Attribute
	Value      any
	Less       bool
	OrEqual    bool
	AcceptNull bool
}

func (p Compare) Tag() Tag              { return TagCompare }
func (p Compare) Attribute() *Attribute { return p.Attr }
func (p Compare) Hash() uint64          { return hashOf(p) }

// Negated returns the complement: the order flips and null acceptance inverts.
func (p Compare) Negated() Compare {
	return Compare{Attr: p.Attr, Value: p.Value, Less: !p.Less, OrEqual: !p.OrEqual, AcceptNull: !p.AcceptNull}
}

func (p Compare) Operator() string {
	switch {
	case p.Less && p.OrEqual:
		return "<="
	case p.Less:
		return "<"
	case p.OrEqual:
		return ">="
	default:
		return ">"
	}
}

func (p Compare) String() string {
	s := p.Attr.Name + " " + p.Operator() + " " + formatValue(p.Value)
	if p.AcceptNull {
		s += " or null"
	}
	return s
}

func (p Compare) Equal(other Predicate) bool {
	o, ok := other.(Compare)
	return ok && sameAttribute(p.Attr, o.Attr) && valueEqual(p.Value, o.Value) &&
		p.Less == o.Less && p.OrEqual == o.OrEqual && p.AcceptNull == o.AcceptNull
}

// ReferredBy holds for items referenced through Attr by an item matching Query.
type ReferredBy struct {
	Attr  *Attribute
	Query Expr
}

func (p ReferredBy) Tag() Tag              { return TagReferredBy }
func (p ReferredBy) Attribute() *Attribute { return p.Attr }

func (p ReferredBy) Hash() uint64 {
	return xxhash.Sum64String(string(TagReferredBy)+"\x00"+p.Attr.Name) ^ p.Query.Hash()
}

func (p ReferredBy) String() string {
	return p.Attr.Name + " <- " + p.Query.String()
}

func (p ReferredBy) Equal(other Predicate) bool {
	o, ok := other.(ReferredBy)
	return ok && sameAttribute(p.Attr, o.Attr) && p.Query.Equal(o.Query)
}
