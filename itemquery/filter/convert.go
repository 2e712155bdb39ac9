package filter

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/krew-solutions/itemquery/itemquery/boolexpr"
	"github.com/krew-solutions/itemquery/itemquery/predicate"
)

// IdentityPrefix marks a reference value given as an identity key.
const IdentityPrefix = "@"

var ErrInconvertible = errors.New("filter cannot be converted")

// Converter maps document conditions onto item predicates of a catalog.
// Values are coerced to the type of the attribute.
type Converter struct {
	catalog *predicate.Catalog
}

func NewConverter(catalog *predicate.Catalog) *Converter {
	return &Converter{catalog: catalog}
}

// Convert converts every condition of e. The first failing condition is
// reported.
func (c *Converter) Convert(e Expr) (predicate.Expr, error) {
	var failure error
	rule := boolexpr.NewConverter[Condition, predicate.Predicate](func(cond Condition, negated bool) (predicate.Expr, bool) {
		converted, err := c.condition(cond, negated)
		if err != nil {
			if failure == nil {
				failure = err
			}
			return nil, false
		}
		return converted, true
	}, false)

	converted, ok := rule.Convert(e)
	if !ok {
		if failure == nil {
			failure = errors.Wrapf(ErrInconvertible, "%v", e)
		}
		return nil, failure
	}
	return converted, nil
}

func (c *Converter) condition(cond Condition, negated bool) (predicate.Expr, error) {
	attr, ok := c.catalog.Lookup(cond.Field)
	if !ok {
		return nil, errors.Wrapf(ErrInconvertible, "unknown attribute %q", cond.Field)
	}
	term := func(p predicate.Predicate, negated bool) predicate.Expr {
		return boolexpr.NewTerm[predicate.Predicate](p, negated)
	}

	switch cond.Op {
	case OpIsNull:
		return term(predicate.NotNull{Attr: attr}, !negated), nil

	case OpEq, OpIn:
		values := []any{cond.Value}
		if cond.Op == OpIn {
			values, _ = cond.Value.([]any)
		}
		return c.membership(attr, values, negated)

	case OpGt, OpGte, OpLt, OpLte:
		if attr.Type == predicate.TypeDecimal || attr.Type == predicate.TypeBool {
			return nil, errors.Wrapf(ErrInconvertible, "%s of %s attribute %s", cond.Op, attr.Type, attr.Name)
		}
		v, err := coerce(attr, cond.Value)
		if err != nil {
			return nil, err
		}
		cmp := predicate.Compare{
			Attr:    attr,
			Value:   v,
			Less:    cond.Op == OpLt || cond.Op == OpLte,
			OrEqual: cond.Op == OpGte || cond.Op == OpLte,
		}
		return term(cmp, negated), nil

	case OpRel:
		if attr.Type != predicate.TypeReference {
			return nil, errors.Wrapf(ErrInconvertible, "$rel on %s attribute %s", attr.Type, attr.Name)
		}
		query, err := c.Convert(cond.Rel)
		if err != nil {
			return nil, err
		}
		return term(predicate.ReferredBy{Attr: attr, Query: query}, negated), nil
	}
	return nil, errors.Wrapf(ErrInconvertible, "operator %s", cond.Op)
}

// membership converts $eq and $in. Identity keys of reference attributes
// are resolved by the database; the other values are coerced.
func (c *Converter) membership(attr *predicate.Attribute, values []any, negated bool) (predicate.Expr, error) {
	if attr.Multi && negated {
		return nil, errors.Wrapf(ErrInconvertible, "%s is multi-valued and cannot be negated", attr.Name)
	}
	var keys []string
	plain := make([]any, 0, len(values))
	for _, value := range values {
		if key, ok := identityKey(attr, value); ok {
			keys = append(keys, key)
			continue
		}
		v, err := coerce(attr, value)
		if err != nil {
			return nil, err
		}
		plain = append(plain, v)
	}

	var parts []predicate.Expr
	if len(plain) > 0 || len(keys) == 0 {
		if attr.Multi {
			parts = append(parts, boolexpr.TermOf[predicate.Predicate](predicate.NewIntersects(attr, plain...)))
		} else {
			parts = append(parts, boolexpr.TermOf[predicate.Predicate](predicate.NewEquals(attr, plain...)))
		}
	}
	switch {
	case len(keys) == 0:
	case !attr.Multi && (len(keys) == 1 || negated):
		for _, key := range keys {
			parts = append(parts, boolexpr.TermOf[predicate.Predicate](predicate.EqualsIdentified{Attr: attr, Key: key}))
		}
	default:
		parts = append(parts, boolexpr.TermOf[predicate.Predicate](predicate.NewIntersectsIdentified(attr, keys...)))
	}

	var e predicate.Expr = parts[0]
	if len(parts) > 1 {
		e = boolexpr.Or(parts...)
	}
	if negated {
		return e.Negate(), nil
	}
	return e, nil
}

func identityKey(attr *predicate.Attribute, value any) (string, bool) {
	s, ok := value.(string)
	if !ok || attr.Type != predicate.TypeReference || !strings.HasPrefix(s, IdentityPrefix) {
		return "", false
	}
	return strings.TrimPrefix(s, IdentityPrefix), true
}

func coerce(attr *predicate.Attribute, value any) (any, error) {
	mismatch := func() error {
		return errors.Wrapf(ErrInconvertible, "%v (%T) is not a valid %s value of %s", value, value, attr.Type, attr.Name)
	}
	switch attr.Type {
	case predicate.TypeInteger, predicate.TypeReference:
		switch v := value.(type) {
		case int64:
			return v, nil
		case float64:
			if v != math.Trunc(v) {
				return nil, mismatch()
			}
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, mismatch()
			}
			return n, nil
		}
	case predicate.TypeDecimal:
		switch v := value.(type) {
		case int64:
			return decimal.NewFromInt(v), nil
		case float64:
			return decimal.NewFromFloat(v), nil
		case string:
			d, err := decimal.NewFromString(v)
			if err != nil {
				return nil, mismatch()
			}
			return d, nil
		}
	case predicate.TypeBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	default:
		switch v := value.(type) {
		case string:
			return v, nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
	}
	return nil, mismatch()
}
