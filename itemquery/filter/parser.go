package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/krew-solutions/itemquery/itemquery/boolexpr"
)

const operatorPrefix = "$"

var ErrInvalidDocument = errors.New("invalid filter document")

func invalid(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidDocument, format, args...)
}

// Parser turns a decoded document (maps, lists and scalars) into a filter
// expression. Fields of one mapping are ANDed. A field maps to a scalar, an
// operator mapping or null.
type Parser struct{}

// Parse is Parser{}.Parse.
func Parse(doc any) (Expr, error) {
	return Parser{}.Parse(doc)
}

// ParseYAML decodes a YAML (or JSON) document and parses it.
func ParseYAML(data []byte) (Expr, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding filter document")
	}
	if doc == nil {
		return boolexpr.True[Condition](), nil
	}
	return Parse(doc)
}

// Parse parses a document. An empty mapping matches every item.
func (p Parser) Parse(doc any) (Expr, error) {
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, invalid("filter must be a mapping, got: %T", doc)
	}
	if len(m) == 0 {
		return boolexpr.True[Condition](), nil
	}

	var operators, fields []string
	for _, k := range sortedKeys(m) {
		if strings.HasPrefix(k, operatorPrefix) {
			operators = append(operators, k)
		} else {
			fields = append(fields, k)
		}
	}
	if len(operators) > 0 && len(fields) > 0 {
		return nil, invalid("cannot mix operators and fields at same level. Operators: %v, Fields: %v",
			operators, fields)
	}

	parsed := make([]Expr, 0, len(m))
	for _, k := range operators {
		e, err := p.parseLogical(k, m[k])
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, e)
	}
	for _, k := range fields {
		e, err := p.parseField(k, m[k])
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, e)
	}
	return conjunction(parsed), nil
}

func (p Parser) parseLogical(op string, value any) (Expr, error) {
	switch op {
	case "$and", "$or":
		list, ok := value.([]any)
		if !ok {
			return nil, invalid("%s value must be list, got: %T", op, value)
		}
		if len(list) < 1 {
			return nil, invalid("%s requires at least 1 operand", op)
		}
		parsed := make([]Expr, len(list))
		for i, item := range list {
			e, err := p.Parse(item)
			if err != nil {
				return nil, err
			}
			parsed[i] = e
		}
		if op == "$or" {
			return disjunction(parsed), nil
		}
		return conjunction(parsed), nil
	case "$not":
		e, err := p.Parse(value)
		if err != nil {
			return nil, err
		}
		return e.Negate(), nil
	}
	return nil, invalid("unknown operator: %s", op)
}

func (p Parser) parseField(field string, value any) (Expr, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return p.parseOperator(field, string(OpEq), value)
	}
	if len(m) == 0 {
		return nil, invalid("empty condition for %s", field)
	}
	parsed := make([]Expr, 0, len(m))
	for _, op := range sortedKeys(m) {
		if !strings.HasPrefix(op, operatorPrefix) {
			return nil, invalid("expected an operator for %s, got: %s", field, op)
		}
		e, err := p.parseOperator(field, op, m[op])
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, e)
	}
	return conjunction(parsed), nil
}

func (p Parser) parseOperator(field, op string, value any) (Expr, error) {
	switch Op(op) {
	case OpEq:
		if value == nil {
			return term(Condition{Field: field, Op: OpIsNull}, false), nil
		}
		v, err := scalar(field, value)
		if err != nil {
			return nil, err
		}
		return term(Condition{Field: field, Op: OpEq, Value: v}, false), nil
	case OpGt, OpGte, OpLt, OpLte:
		if value == nil {
			return nil, invalid("%s of %s requires a value", op, field)
		}
		v, err := scalar(field, value)
		if err != nil {
			return nil, err
		}
		return term(Condition{Field: field, Op: Op(op), Value: v}, false), nil
	case OpIn:
		return p.parseIn(field, value)
	case OpIsNull:
		b, ok := value.(bool)
		if !ok {
			return nil, invalid("$is_null value must be bool, got: %T", value)
		}
		return term(Condition{Field: field, Op: OpIsNull}, !b), nil
	case OpRel:
		if _, ok := value.(map[string]any); !ok {
			return nil, invalid("$rel value must be dict, got: %T", value)
		}
		rel, err := p.Parse(value)
		if err != nil {
			return nil, err
		}
		return term(Condition{Field: field, Op: OpRel, Rel: rel}, false), nil
	}

	switch op {
	case "$ne":
		e, err := p.parseOperator(field, string(OpEq), value)
		if err != nil {
			return nil, err
		}
		return e.Negate(), nil
	case "$not":
		e, err := p.parseField(field, value)
		if err != nil {
			return nil, err
		}
		return e.Negate(), nil
	case "$or":
		list, ok := value.([]any)
		if !ok || len(list) == 0 {
			return nil, invalid("$or of %s must be a non-empty list", field)
		}
		parsed := make([]Expr, len(list))
		for i, item := range list {
			e, err := p.parseField(field, item)
			if err != nil {
				return nil, err
			}
			parsed[i] = e
		}
		return disjunction(parsed), nil
	}
	return nil, invalid("unknown operator: %s", op)
}

func (p Parser) parseIn(field string, value any) (Expr, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, invalid("$in value must be list, got: %T", value)
	}
	if len(list) < 1 {
		return nil, invalid("$in requires at least 1 value, got: %d", len(list))
	}
	values := make([]any, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, item := range list {
		v, err := scalar(field, item)
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("%T:%v", v, v)
		if seen[key] {
			continue
		}
		seen[key] = true
		values = append(values, v)
	}
	sort.SliceStable(values, func(i, j int) bool {
		return fmt.Sprint(values[i]) < fmt.Sprint(values[j])
	})
	if len(values) == 1 {
		return term(Condition{Field: field, Op: OpEq, Value: values[0]}, false), nil
	}
	return term(Condition{Field: field, Op: OpIn, Value: values}, false), nil
}

// scalar normalizes decoded numbers so that equal documents give equal conditions.
func scalar(field string, value any) (any, error) {
	switch v := value.(type) {
	case string, bool, int64, float64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float32:
		return float64(v), nil
	}
	return nil, invalid("%s: unsupported value %v (%T)", field, value, value)
}

func term(c Condition, negated bool) Expr {
	return boolexpr.NewTerm(c, negated)
}

func conjunction(exprs []Expr) Expr {
	if len(exprs) == 1 {
		return exprs[0]
	}
	return boolexpr.And(exprs...)
}

func disjunction(exprs []Expr) Expr {
	if len(exprs) == 1 {
		return exprs[0]
	}
	return boolexpr.Or(exprs...)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
