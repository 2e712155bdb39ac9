package boolexpr

import (
	"github.com/cockroachdb/errors"
)

// DefaultMaxPasses bounds the number of rewrite passes of a Reducer.
const DefaultMaxPasses = 1000

// ErrReductionLimit reports a reduction that did not converge.
var ErrReductionLimit = errors.AssertionFailedf("boolexpr: reduction did not reach a fixpoint")

// Rule attempts one local rewrite of e. A rule that fires writes the
// replacement into b and returns true; a rule that declines leaves b untouched.
type Rule[P Predicate[P]] interface {
	Apply(e Expr[P], b *Builder[P]) bool
}

type RuleFunc[P Predicate[P]] func(e Expr[P], b *Builder[P]) bool

func (f RuleFunc[P]) Apply(e Expr[P], b *Builder[P]) bool {
	return f(e, b)
}

// Chain applies the first rule that fires.
type Chain[P Predicate[P]] []Rule[P]

func (c Chain[P]) Apply(e Expr[P], b *Builder[P]) bool {
	for _, rule := range c {
		if rule.Apply(e, b) {
			return true
		}
		b.Reset()
	}
	return false
}

type reducerOptions struct {
	maxPasses int
}

type ReducerOption func(*reducerOptions)

func WithMaxPasses(n int) ReducerOption {
	return func(o *reducerOptions) {
		if n > 0 {
			o.maxPasses = n
		}
	}
}

// Reducer rewrites an expression with a rule until a whole pass over the
// tree changes nothing.
type Reducer[P Predicate[P]] struct {
	rule      Rule[P]
	maxPasses int
}

func NewReducer[P Predicate[P]](rule Rule[P], opts ...ReducerOption) *Reducer[P] {
	o := reducerOptions{maxPasses: DefaultMaxPasses}
	for _, opt := range opts {
		opt(&o)
	}
	return &Reducer[P]{rule: rule, maxPasses: o.maxPasses}
}

func (r *Reducer[P]) Reduce(e Expr[P]) (Expr[P], error) {
	b := NewBuilder[P]()
	current := e
	for pass := 0; pass < r.maxPasses; pass++ {
		next, changed, err := r.pass(current, b)
		if err != nil {
			return nil, err
		}
		if !changed {
			return current, nil
		}
		current = next
	}
	return nil, errors.Wrapf(ErrReductionLimit, "gave up after %d passes on %s", r.maxPasses, e)
}

func (r *Reducer[P]) pass(e Expr[P], b *Builder[P]) (Expr[P], bool, error) {
	b.Reset()
	if r.rule.Apply(e, b) {
		out, err := b.Build()
		if err != nil {
			return nil, false, errors.Wrapf(err, "rewriting %s", e)
		}
		if out.Equal(e) {
			return nil, false, errors.Wrapf(ErrReductionLimit, "rule rewrote %s into itself", e)
		}
		return out, true, nil
	}
	op, ok := e.AsOperation()
	if !ok {
		return e, false, nil
	}
	var args []Expr[P]
	for i, arg := range op.args {
		next, changed, err := r.pass(arg, b)
		if err != nil {
			return nil, false, err
		}
		if changed && args == nil {
			args = make([]Expr[P], i, len(op.args))
			copy(args, op.args[:i])
		}
		if args != nil {
			args = append(args, next)
		}
	}
	if args == nil {
		return e, false, nil
	}
	return NewOperation(op.kind, args, op.negated, true), true, nil
}

// Simplify reduces e with SimplifyRules.
func Simplify[P Predicate[P]](e Expr[P], opts ...ReducerOption) (Expr[P], error) {
	return NewReducer[P](SimplifyRules[P](), opts...).Reduce(e)
}

// ToCNF rewrites e into an AND of ORs of terms.
func ToCNF[P Predicate[P]](e Expr[P], opts ...ReducerOption) (Expr[P], error) {
	return NewReducer[P](CNFRules[P](), opts...).Reduce(e)
}

// ToDNF rewrites e into an OR of ANDs of terms.
func ToDNF[P Predicate[P]](e Expr[P], opts ...ReducerOption) (Expr[P], error) {
	return NewReducer[P](DNFRules[P](), opts...).Reduce(e)
}

func SimplifyRules[P Predicate[P]]() Chain[P] {
	return Chain[P]{
		RuleFunc[P](removeEmptyOperation[P]),
		RuleFunc[P](foldSingleChild[P]),
		RuleFunc[P](applyIdentities[P]),
		RuleFunc[P](removeDuplicates[P]),
		RuleFunc[P](flatten[P]),
		RuleFunc[P](absorb[P]),
	}
}

func CNFRules[P Predicate[P]]() Chain[P] {
	return append(SimplifyRules[P](), RuleFunc[P](deMorgan[P]), distribute[P](KindAnd))
}

func DNFRules[P Predicate[P]]() Chain[P] {
	return append(SimplifyRules[P](), RuleFunc[P](deMorgan[P]), distribute[P](KindOr))
}

// AND() is TRUE and OR() is FALSE.
func removeEmptyOperation[P Predicate[P]](e Expr[P], b *Builder[P]) bool {
	op, ok := e.AsOperation()
	if !ok || len(op.args) > 0 {
		return false
	}
	b.SetLiteral((op.kind == KindAnd) != op.negated)
	return true
}

func foldSingleChild[P Predicate[P]](e Expr[P], b *Builder[P]) bool {
	op, ok := e.AsOperation()
	if !ok || len(op.args) != 1 {
		return false
	}
	child := op.args[0]
	if op.negated {
		child = child.Negate()
	}
	b.SetExpression(child)
	return true
}

// Drops identity literals; collapses to the annihilator when one is present
// or when a child appears next to its own negation.
func applyIdentities[P Predicate[P]](e Expr[P], b *Builder[P]) bool {
	op, ok := e.AsOperation()
	if !ok {
		return false
	}
	identity := op.kind == KindAnd
	annihilator := func() bool {
		b.SetLiteral(!identity != op.negated)
		return true
	}
	var kept []Expr[P]
	dropped := false
	for i, arg := range op.args {
		if lit, ok := arg.AsLiteral(); ok {
			if lit.Value() != identity {
				return annihilator()
			}
			if kept == nil {
				kept = make([]Expr[P], i, len(op.args))
				copy(kept, op.args[:i])
			}
			dropped = true
			continue
		}
		for _, other := range op.args[i+1:] {
			if isComplement(arg, other) {
				return annihilator()
			}
		}
		if kept != nil {
			kept = append(kept, arg)
		}
	}
	if !dropped {
		return false
	}
	b.SetOperation(op.kind, op.negated).Add(kept...)
	return true
}

func isComplement[P Predicate[P]](a, b Expr[P]) bool {
	return a.Negated() != b.Negated() && a.Equal(b.Negate())
}

func removeDuplicates[P Predicate[P]](e Expr[P], b *Builder[P]) bool {
	op, ok := e.AsOperation()
	if !ok {
		return false
	}
	kept := make([]Expr[P], 0, len(op.args))
	for _, arg := range op.args {
		if !Contains(kept, arg) {
			kept = append(kept, arg)
		}
	}
	if len(kept) == len(op.args) {
		return false
	}
	b.SetOperation(op.kind, op.negated).Add(kept...)
	return true
}

func flatten[P Predicate[P]](e Expr[P], b *Builder[P]) bool {
	op, ok := e.AsOperation()
	if !ok {
		return false
	}
	nested := false
	for _, arg := range op.args {
		if child, ok := arg.AsOperationOf(op.kind); ok && !child.negated {
			nested = true
			break
		}
	}
	if !nested {
		return false
	}
	b.SetOperation(op.kind, op.negated)
	for _, arg := range op.args {
		b.Add(ToOperandList(arg, op.kind)...)
	}
	return true
}

// a & (a | b) = a, a | (a & b) = a
func absorb[P Predicate[P]](e Expr[P], b *Builder[P]) bool {
	op, ok := e.AsOperation()
	if !ok {
		return false
	}
	dual := op.kind.Opposite()
	var kept []Expr[P]
	for i, arg := range op.args {
		if absorbed(op.args, i, dual) {
			if kept == nil {
				kept = make([]Expr[P], i, len(op.args))
				copy(kept, op.args[:i])
			}
			continue
		}
		if kept != nil {
			kept = append(kept, arg)
		}
	}
	if kept == nil {
		return false
	}
	b.SetOperation(op.kind, op.negated).Add(kept...)
	return true
}

func absorbed[P Predicate[P]](siblings []Expr[P], i int, dual Kind) bool {
	inner, ok := siblings[i].AsOperationOf(dual)
	if !ok || inner.negated {
		return false
	}
	for j, sibling := range siblings {
		if j != i && Contains(inner.args, sibling) {
			return true
		}
	}
	return false
}

// !(a & b) = !a | !b, !(a | b) = !a & !b
func deMorgan[P Predicate[P]](e Expr[P], b *Builder[P]) bool {
	op, ok := e.AsOperation()
	if !ok || !op.negated {
		return false
	}
	b.SetOperation(op.kind.Opposite(), false)
	for _, arg := range op.args {
		b.Add(arg.Negate())
	}
	return true
}

// distribute returns the rule that pushes the dual of target below target.
// For target AND (CNF): x | (a & b) = (x | a) & (x | b).
func distribute[P Predicate[P]](target Kind) Rule[P] {
	return RuleFunc[P](func(e Expr[P], b *Builder[P]) bool {
		op, ok := e.AsOperationOf(target.Opposite())
		if !ok || op.negated {
			return false
		}
		pivot := -1
		for i, arg := range op.args {
			if inner, ok := arg.AsOperationOf(target); ok && !inner.negated && len(inner.args) > 0 {
				pivot = i
				break
			}
		}
		if pivot < 0 {
			return false
		}
		inner, _ := op.args[pivot].AsOperation()
		b.SetOperation(target, false)
		for _, factor := range inner.args {
			b.AddNode().SetOperation(op.kind, false)
			for i, arg := range op.args {
				if i == pivot {
					b.Add(factor)
				} else {
					b.Add(arg)
				}
			}
			b.Up()
		}
		return true
	})
}
