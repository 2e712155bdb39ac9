package boolexpr

import (
	"hash/maphash"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var symSeed = maphash.MakeSeed()

type sym string

func (s sym) Equal(other sym) bool { return s == other }
func (s sym) Hash() uint64         { return maphash.String(symSeed, string(s)) }

var (
	a = TermOf[sym]("a")
	b = TermOf[sym]("b")
	c = TermOf[sym]("c")
	d = TermOf[sym]("d")
)

func TestFlattening(t *testing.T) {
	e := a.And(b).And(c)
	op, ok := e.AsOperationOf(KindAnd)
	require.True(t, ok)
	assert.Equal(t, 3, op.Len())
	for _, arg := range op.Args() {
		_, nested := arg.AsOperation()
		assert.False(t, nested)
	}

	// negated operations are kept as a unit
	e = a.And(b).Negate().And(c)
	op, _ = e.AsOperation()
	assert.Equal(t, 2, op.Len())

	// unlike kinds nest
	e = a.Or(b).And(c)
	op, _ = e.AsOperation()
	assert.Equal(t, 2, op.Len())
}

func TestOperationEquality(t *testing.T) {
	t.Run("order independent", func(t *testing.T) {
		x := NewOperation[sym](KindAnd, []Expr[sym]{a, b}, false, false)
		y := NewOperation[sym](KindAnd, []Expr[sym]{b, a}, false, false)
		assert.True(t, x.Equal(y))
		assert.Equal(t, x.Hash(), y.Hash())
	})
	t.Run("kind and negation matter", func(t *testing.T) {
		x := And[sym](a, b)
		assert.False(t, x.Equal(Or[sym](a, b)))
		assert.False(t, x.Equal(x.Negate()))
		assert.True(t, x.Equal(x.Negate().Negate()))
	})
	t.Run("duplicates compare as sets of equal size", func(t *testing.T) {
		x := NewOperation[sym](KindOr, []Expr[sym]{a, a, b}, false, false)
		y := NewOperation[sym](KindOr, []Expr[sym]{a, b, b}, false, false)
		z := NewOperation[sym](KindOr, []Expr[sym]{a, b}, false, false)
		assert.True(t, x.Equal(y))
		assert.Equal(t, x.Hash(), y.Hash())
		assert.False(t, x.Equal(z))
	})
	t.Run("variants differ", func(t *testing.T) {
		assert.False(t, a.Equal(True[sym]()))
		assert.True(t, True[sym]().Equal(False[sym]().Negate()))
		assert.False(t, a.Equal(a.Negate()))
		assert.NotEqual(t, a.Hash(), a.Negate().Hash())
	})
}

func TestEval(t *testing.T) {
	calls := 0
	truth := map[sym]bool{"a": true, "b": false, "c": true}
	eval := func(s sym) bool {
		calls++
		return truth[s]
	}

	assert.True(t, Or[sym](a, b, c).Eval(eval))
	assert.Equal(t, 1, calls, "or stops at the first true")

	calls = 0
	assert.False(t, And[sym](b, a, c).Eval(eval))
	assert.Equal(t, 1, calls, "and stops at the first false")

	assert.True(t, And[sym](b, a).Negate().Eval(eval))
	assert.True(t, b.Negate().Eval(eval))
	assert.True(t, True[sym]().Eval(eval))
	assert.False(t, False[sym]().Eval(eval))
}

func TestEvalEmptyOperation(t *testing.T) {
	empty := NewOperation[sym](KindOr, nil, false, true)
	assert.True(t, empty.Eval(func(sym) bool { return false }))
	assert.False(t, empty.Negate().Eval(func(sym) bool { return false }))
}

func TestNegationConsistency(t *testing.T) {
	for _, e := range randomExprs(200) {
		for _, assignment := range assignments() {
			eval := assignment.eval
			assert.Equal(t, e.Eval(eval), !e.Negate().Eval(eval), e.String())
		}
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "(a & !b)", And[sym](a, b.Negate()).String())
	assert.Equal(t, "!(a | b)", Or[sym](a, b).Negate().String())
	assert.Equal(t, "1", True[sym]().String())
	assert.Equal(t, "0", False[sym]().String())
	assert.Equal(t, "(& a)", And[sym](a).String())

	long := TermOf(sym(strings.Repeat("x", 150)))
	assert.Equal(t, strings.Repeat("x", 100)+"...", long.String())
}

func TestAccessors(t *testing.T) {
	op := And[sym](a, b)
	_, ok := op.AsOperationOf(KindOr)
	assert.False(t, ok)
	_, ok = op.AsOperationOf(KindAnd)
	assert.True(t, ok)

	term, ok := a.AsTerm()
	require.True(t, ok)
	assert.Equal(t, sym("a"), term.Predicate())

	_, ok = op.AsTerm()
	assert.False(t, ok)

	lit, ok := False[sym]().AsLiteral()
	require.True(t, ok)
	assert.False(t, lit.Value())
}

func TestFoldTerms(t *testing.T) {
	e := Or[sym](And[sym](a, b.Negate()), a, c)
	count := FoldTerms(e, 0, func(acc int, _ *Term[sym]) int { return acc + 1 })
	assert.Equal(t, 4, count)
	assert.Equal(t, []sym{"a", "b", "c"}, Predicates[sym](e))
}

func TestToOperandList(t *testing.T) {
	e := And[sym](a, b)
	assert.Len(t, ToOperandList[sym](e, KindAnd), 2)
	assert.Len(t, ToOperandList[sym](e, KindOr), 1)
	assert.Len(t, ToOperandList(e.Negate(), KindAnd), 1)
}
