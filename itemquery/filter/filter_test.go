package filter

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/itemquery/itemquery/boolexpr"
	"github.com/krew-solutions/itemquery/itemquery/predicate"
)

func cond(field string, op Op, value any) Expr {
	return boolexpr.TermOf(Condition{Field: field, Op: op, Value: value})
}

func TestParserScalar(t *testing.T) {
	parser := Parser{}

	t.Run("int", func(t *testing.T) {
		result, err := parser.Parse(map[string]any{"size": 5})
		require.NoError(t, err)
		assert.True(t, cond("size", OpEq, int64(5)).Equal(result))
	})
	t.Run("string", func(t *testing.T) {
		result, err := parser.Parse(map[string]any{"color": "red"})
		require.NoError(t, err)
		assert.True(t, cond("color", OpEq, "red").Equal(result))
	})
	t.Run("nil", func(t *testing.T) {
		result, err := parser.Parse(map[string]any{"color": nil})
		require.NoError(t, err)
		assert.True(t, cond("color", OpIsNull, nil).Equal(result))
	})
	t.Run("empty", func(t *testing.T) {
		result, err := parser.Parse(map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, "1", result.String())
	})
}

func TestParserOperators(t *testing.T) {
	cases := []struct {
		name string
		doc  map[string]any
		want Expr
	}{
		{
			"ne",
			map[string]any{"color": map[string]any{"$ne": "red"}},
			cond("color", OpEq, "red").Negate(),
		},
		{
			"range",
			map[string]any{"size": map[string]any{"$gte": 3, "$lt": 10}},
			boolexpr.And(cond("size", OpGte, int64(3)), cond("size", OpLt, int64(10))),
		},
		{
			"in ignores order and duplicates",
			map[string]any{"color": map[string]any{"$in": []any{"red", "blue", "red"}}},
			cond("color", OpIn, []any{"blue", "red"}),
		},
		{
			"in with one value",
			map[string]any{"color": map[string]any{"$in": []any{"red"}}},
			cond("color", OpEq, "red"),
		},
		{
			"is null false",
			map[string]any{"color": map[string]any{"$is_null": false}},
			cond("color", OpIsNull, nil).Negate(),
		},
		{
			"field not",
			map[string]any{"size": map[string]any{"$not": map[string]any{"$gt": 4}}},
			cond("size", OpGt, int64(4)).Negate(),
		},
		{
			"field or",
			map[string]any{"size": map[string]any{"$or": []any{
				map[string]any{"$lt": 2}, map[string]any{"$gt": 8},
			}}},
			boolexpr.Or(cond("size", OpLt, int64(2)), cond("size", OpGt, int64(8))),
		},
		{
			"fields are anded",
			map[string]any{"color": "red", "size": 1},
			boolexpr.And(cond("color", OpEq, "red"), cond("size", OpEq, int64(1))),
		},
		{
			"logical",
			map[string]any{"$or": []any{
				map[string]any{"color": "red"},
				map[string]any{"$not": map[string]any{"size": 1}},
			}},
			boolexpr.Or(cond("color", OpEq, "red"), cond("size", OpEq, int64(1)).Negate()),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := Parse(tc.doc)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(result), "want %s, got %s", tc.want, result)
		})
	}
}

func TestParserRel(t *testing.T) {
	result, err := Parse(map[string]any{"parent": map[string]any{"$rel": map[string]any{"color": "red"}}})
	require.NoError(t, err)

	want := boolexpr.TermOf(Condition{Field: "parent", Op: OpRel, Rel: cond("color", OpEq, "red")})
	assert.True(t, want.Equal(result))
	assert.Equal(t, want.Hash(), result.Hash())
	assert.Equal(t, "parent <- color = red", result.String())
}

func TestParserErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  any
	}{
		{"not a mapping", []any{1}},
		{"mixed", map[string]any{"$or": []any{}, "color": "red"}},
		{"unknown operator", map[string]any{"color": map[string]any{"$like": "r%"}}},
		{"field in condition", map[string]any{"color": map[string]any{"size": 1}}},
		{"in is not a list", map[string]any{"color": map[string]any{"$in": "red"}}},
		{"empty in", map[string]any{"color": map[string]any{"$in": []any{}}}},
		{"is null not bool", map[string]any{"color": map[string]any{"$is_null": "yes"}}},
		{"rel not a mapping", map[string]any{"parent": map[string]any{"$rel": 5}}},
		{"compare with null", map[string]any{"size": map[string]any{"$gt": nil}}},
		{"empty or", map[string]any{"$or": []any{}}},
		{"list value", map[string]any{"color": []any{"red"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.doc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidDocument))
		})
	}
}

func TestParseYAML(t *testing.T) {
	doc := []byte(`
color:
  $in: [red, blue]
size:
  $gte: 3
`)
	result, err := ParseYAML(doc)
	require.NoError(t, err)
	want := boolexpr.And(cond("color", OpIn, []any{"blue", "red"}), cond("size", OpGte, int64(3)))
	assert.True(t, want.Equal(result), "got %s", result)

	result, err = ParseYAML([]byte(""))
	require.NoError(t, err)
	assert.Equal(t, "1", result.String())

	_, err = ParseYAML([]byte("color: [red"))
	assert.Error(t, err)
}

func testCatalog(t *testing.T) *predicate.Catalog {
	t.Helper()
	catalog, err := predicate.NewCatalog(
		predicate.Attribute{Name: "color"},
		predicate.Attribute{Name: "size", Type: predicate.TypeInteger},
		predicate.Attribute{Name: "price", Type: predicate.TypeDecimal},
		predicate.Attribute{Name: "tags", Multi: true},
		predicate.Attribute{Name: "owner", Type: predicate.TypeReference},
		predicate.Attribute{Name: "active", Type: predicate.TypeBool},
		predicate.Attribute{Name: "watchers", Type: predicate.TypeReference, Multi: true},
	)
	require.NoError(t, err)
	return catalog
}

func TestConverter(t *testing.T) {
	catalog := testCatalog(t)
	attr := func(name string) *predicate.Attribute {
		a, _ := catalog.Lookup(name)
		return a
	}
	term := func(p predicate.Predicate) predicate.Expr {
		return boolexpr.TermOf[predicate.Predicate](p)
	}

	cases := []struct {
		name string
		doc  string
		want predicate.Expr
	}{
		{"equals", "color: red", term(predicate.NewEquals(attr("color"), "red"))},
		{"integer from text", "size: '7'", term(predicate.NewEquals(attr("size"), int64(7)))},
		{"decimal", "price: '9.9'", term(predicate.NewEquals(attr("price"), decimal.RequireFromString("9.9")))},
		{"bool", "active: true", term(predicate.NewEquals(attr("active"), true))},
		{"not equals", "color: {$ne: red}", term(predicate.NewEquals(attr("color"), "red")).Negate()},
		{"in", "size: {$in: [2, 1]}", term(predicate.NewEquals(attr("size"), int64(1), int64(2)))},
		{"multi", "tags: {$in: [a, b]}", term(predicate.NewIntersects(attr("tags"), "a", "b"))},
		{"multi scalar", "tags: a", term(predicate.NewIntersects(attr("tags"), "a"))},
		{"identity", "owner: '@alice'", term(predicate.EqualsIdentified{Attr: attr("owner"), Key: "alice"})},
		{"identity of multi", "watchers: '@alice'", term(predicate.NewIntersectsIdentified(attr("watchers"), "alice"))},
		{"identities", "owner: {$in: ['@bob', '@alice']}", term(predicate.NewIntersectsIdentified(attr("owner"), "alice", "bob"))},
		{"identities and ids", "owner: {$in: ['@alice', 3]}", boolexpr.Or(
			term(predicate.NewEquals(attr("owner"), int64(3))),
			term(predicate.EqualsIdentified{Attr: attr("owner"), Key: "alice"}),
		)},
		{"not identities", "owner: {$not: {$in: ['@alice', '@bob']}}", boolexpr.Or(
			term(predicate.EqualsIdentified{Attr: attr("owner"), Key: "alice"}),
			term(predicate.EqualsIdentified{Attr: attr("owner"), Key: "bob"}),
		).Negate()},
		{"null", "color: null", term(predicate.NotNull{Attr: attr("color")}).Negate()},
		{"not null", "color: {$is_null: false}", term(predicate.NotNull{Attr: attr("color")})},
		{"less", "size: {$lt: 5}", term(predicate.Compare{Attr: attr("size"), Value: int64(5), Less: true})},
		{"greater or equal", "size: {$gte: 5}", term(predicate.Compare{Attr: attr("size"), Value: int64(5), OrEqual: true})},
		{"rel", "owner: {$rel: {color: red}}", term(predicate.ReferredBy{
			Attr: attr("owner"), Query: term(predicate.NewEquals(attr("color"), "red")),
		})},
		{"everything", "{}", boolexpr.True[predicate.Predicate]()},
	}
	converter := NewConverter(catalog)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := ParseYAML([]byte(tc.doc))
			require.NoError(t, err)
			result, err := converter.Convert(doc)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(result), "want %s, got %s", tc.want, result)
		})
	}
}

func TestConverterErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"unknown attribute", "weight: 3"},
		{"not an integer", "size: big"},
		{"fractional integer", "size: 2.5"},
		{"not a bool", "active: 1"},
		{"negated multi", "tags: {$ne: a}"},
		{"negated identity of multi", "watchers: {$ne: '@alice'}"},
		{"decimal order", "price: {$gt: 3}"},
		{"rel on scalar", "color: {$rel: {size: 1}}"},
		{"nested failure", "owner: {$rel: {weight: 1}}"},
		{"one of many", "$or: [{color: red}, {weight: 1}]"},
	}
	converter := NewConverter(testCatalog(t))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := ParseYAML([]byte(tc.doc))
			require.NoError(t, err)
			_, err = converter.Convert(doc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInconvertible))
		})
	}
}
