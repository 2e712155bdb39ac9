// Package boolexpr implements generic boolean expressions over predicates,
// their reduction and conversion to disjunctive normal form.
//
// Misuse of the Builder and a reduction that does not converge are reported
// as assertion failures of github.com/cockroachdb/errors, so callers can
// tell them apart from user errors with errors.HasAssertionFailure.
package boolexpr

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/krew-solutions/itemquery/itemquery/logger"
)

// Kind is the connective of an Operation.
type Kind int

const (
	KindAnd Kind = iota
	KindOr
)

func (k Kind) String() string {
	if k == KindAnd {
		return "&"
	}
	return "|"
}

// Opposite returns the dual connective.
func (k Kind) Opposite() Kind {
	if k == KindAnd {
		return KindOr
	}
	return KindAnd
}

// Predicate is the contract for values wrapped by a Term.
// Equal values must report equal hashes.
type Predicate[P any] interface {
	Equal(other P) bool
	Hash() uint64
}

// Expr is an immutable, negatable boolean expression over predicates of type P.
// Implementations are *Operation, *Term and *Literal.
type Expr[P Predicate[P]] interface {
	Negated() bool
	Negate() Expr[P]
	Eval(evaluator func(P) bool) bool
	Equal(other Expr[P]) bool
	Hash() uint64
	String() string

	And(others ...Expr[P]) Expr[P]
	Or(others ...Expr[P]) Expr[P]

	AsOperation() (*Operation[P], bool)
	AsOperationOf(kind Kind) (*Operation[P], bool)
	AsTerm() (*Term[P], bool)
	AsLiteral() (*Literal[P], bool)

	sealed()
}

const maxTermText = 100

func finishHash(h uint64, negated bool) uint64 {
	if negated {
		h ^= 0xAAAAAAAA
	}
	if h == 0 {
		h = math.MaxUint64
	}
	return h
}

// Term

type Term[P Predicate[P]] struct {
	predicate P
	negated   bool
	hash      uint64
}

func NewTerm[P Predicate[P]](predicate P, negated bool) *Term[P] {
	return &Term[P]{
		predicate: predicate,
		negated:   negated,
		hash:      finishHash(predicate.Hash()*31+17, negated),
	}
}

// TermOf is a shortcut for a non-negated term.
func TermOf[P Predicate[P]](predicate P) *Term[P] {
	return NewTerm(predicate, false)
}

func (t *Term[P]) Predicate() P {
	return t.predicate
}

func (t *Term[P]) Negated() bool {
	return t.negated
}

func (t *Term[P]) Negate() Expr[P] {
	return NewTerm(t.predicate, !t.negated)
}

func (t *Term[P]) Eval(evaluator func(P) bool) bool {
	return evaluator(t.predicate) != t.negated
}

func (t *Term[P]) Equal(other Expr[P]) bool {
	o, ok := other.(*Term[P])
	if !ok {
		return false
	}
	if t == o {
		return true
	}
	return t.hash == o.hash && t.negated == o.negated && t.predicate.Equal(o.predicate)
}

func (t *Term[P]) Hash() uint64 {
	return t.hash
}

func (t *Term[P]) String() string {
	s := fmt.Sprint(t.predicate)
	if len(s) > maxTermText {
		s = s[:maxTermText] + "..."
	}
	if t.negated {
		return "!" + s
	}
	return s
}

func (t *Term[P]) And(others ...Expr[P]) Expr[P] {
	return And(prepend[P](t, others)...)
}

func (t *Term[P]) Or(others ...Expr[P]) Expr[P] {
	return Or(prepend[P](t, others)...)
}

func (t *Term[P]) AsOperation() (*Operation[P], bool)        { return nil, false }
func (t *Term[P]) AsOperationOf(Kind) (*Operation[P], bool) { return nil, false }
func (t *Term[P]) AsTerm() (*Term[P], bool)                 { return t, true }
func (t *Term[P]) AsLiteral() (*Literal[P], bool)           { return nil, false }
func (t *Term[P]) sealed()                                  {}

// Literal

// Literal is the constant TRUE (not negated) or FALSE (negated).
type Literal[P Predicate[P]] struct {
	negated bool
}

func True[P Predicate[P]]() *Literal[P] {
	return &Literal[P]{negated: false}
}

func False[P Predicate[P]]() *Literal[P] {
	return &Literal[P]{negated: true}
}

func NewLiteral[P Predicate[P]](value bool) *Literal[P] {
	return &Literal[P]{negated: !value}
}

func (l *Literal[P]) Value() bool {
	return !l.negated
}

func (l *Literal[P]) Negated() bool {
	return l.negated
}

func (l *Literal[P]) Negate() Expr[P] {
	return &Literal[P]{negated: !l.negated}
}

func (l *Literal[P]) Eval(func(P) bool) bool {
	return !l.negated
}

func (l *Literal[P]) Equal(other Expr[P]) bool {
	o, ok := other.(*Literal[P])
	return ok && o.negated == l.negated
}

func (l *Literal[P]) Hash() uint64 {
	return finishHash(0x5bd1e995, l.negated)
}

func (l *Literal[P]) String() string {
	if l.negated {
		return "0"
	}
	return "1"
}

func (l *Literal[P]) And(others ...Expr[P]) Expr[P] {
	return And(prepend[P](l, others)...)
}

func (l *Literal[P]) Or(others ...Expr[P]) Expr[P] {
	return Or(prepend[P](l, others)...)
}

func (l *Literal[P]) AsOperation() (*Operation[P], bool)        { return nil, false }
func (l *Literal[P]) AsOperationOf(Kind) (*Operation[P], bool) { return nil, false }
func (l *Literal[P]) AsTerm() (*Term[P], bool)                 { return nil, false }
func (l *Literal[P]) AsLiteral() (*Literal[P], bool)           { return l, true }
func (l *Literal[P]) sealed()                                  {}

// Operation

// Operation is an AND/OR node. Equality ignores child order and compares
// children as sets of equal size.
type Operation[P Predicate[P]] struct {
	kind    Kind
	args    []Expr[P]
	negated bool
	hash    uint64
}

// NewOperation creates an operation node. When reuse is false the args slice
// is copied; otherwise the caller hands over ownership.
func NewOperation[P Predicate[P]](kind Kind, args []Expr[P], negated bool, reuse bool) *Operation[P] {
	if !reuse {
		args = append([]Expr[P](nil), args...)
	}
	return &Operation[P]{
		kind:    kind,
		args:    args,
		negated: negated,
		hash:    operationHash(kind, args, negated),
	}
}

func operationHash[P Predicate[P]](kind Kind, args []Expr[P], negated bool) uint64 {
	hashes := make([]uint64, len(args))
	for i, arg := range args {
		hashes[i] = arg.Hash()
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	h := uint64(kind+1) * 10007
	for i, x := range hashes {
		if i > 0 && hashes[i-1] == x {
			continue
		}
		h = h*31 + x
	}
	return finishHash(h, negated)
}

// And builds a conjunction, splicing in the children of non-negated AND arguments.
func And[P Predicate[P]](args ...Expr[P]) *Operation[P] {
	return combine(KindAnd, args)
}

// Or builds a disjunction, splicing in the children of non-negated OR arguments.
func Or[P Predicate[P]](args ...Expr[P]) *Operation[P] {
	return combine(KindOr, args)
}

// Not returns the negation of e.
func Not[P Predicate[P]](e Expr[P]) Expr[P] {
	return e.Negate()
}

func combine[P Predicate[P]](kind Kind, args []Expr[P]) *Operation[P] {
	children := make([]Expr[P], 0, len(args))
	for _, arg := range args {
		if op, ok := arg.AsOperationOf(kind); ok && !op.negated {
			children = append(children, op.args...)
			continue
		}
		children = append(children, arg)
	}
	return NewOperation(kind, children, false, true)
}

func prepend[P Predicate[P]](first Expr[P], rest []Expr[P]) []Expr[P] {
	out := make([]Expr[P], 0, len(rest)+1)
	out = append(out, first)
	return append(out, rest...)
}

func (o *Operation[P]) Kind() Kind {
	return o.kind
}

// Args returns the children. The slice must not be modified.
func (o *Operation[P]) Args() []Expr[P] {
	return o.args
}

func (o *Operation[P]) Len() int {
	return len(o.args)
}

func (o *Operation[P]) Negated() bool {
	return o.negated
}

func (o *Operation[P]) Negate() Expr[P] {
	return &Operation[P]{
		kind:    o.kind,
		args:    o.args,
		negated: !o.negated,
		hash:    operationHash(o.kind, o.args, !o.negated),
	}
}

func (o *Operation[P]) Eval(evaluator func(P) bool) bool {
	if len(o.args) == 0 {
		logger.Logger.Warnw("evaluating operation without arguments", "operation", o.String())
		return !o.negated
	}
	stopOn := o.kind == KindOr
	result := !stopOn
	for _, arg := range o.args {
		if arg.Eval(evaluator) == stopOn {
			result = stopOn
			break
		}
	}
	return result != o.negated
}

func (o *Operation[P]) Equal(other Expr[P]) bool {
	that, ok := other.(*Operation[P])
	if !ok {
		return false
	}
	if o == that {
		return true
	}
	if o.hash != that.hash || o.kind != that.kind || o.negated != that.negated || len(o.args) != len(that.args) {
		return false
	}
	return containsAll(o.args, that.args) && containsAll(that.args, o.args)
}

func containsAll[P Predicate[P]](set, items []Expr[P]) bool {
	for _, item := range items {
		if !Contains(set, item) {
			return false
		}
	}
	return true
}

// Contains reports whether one of exprs equals e.
func Contains[P Predicate[P]](exprs []Expr[P], e Expr[P]) bool {
	for _, x := range exprs {
		if x.Equal(e) {
			return true
		}
	}
	return false
}

func (o *Operation[P]) Hash() uint64 {
	return o.hash
}

func (o *Operation[P]) String() string {
	parts := make([]string, len(o.args))
	for i, arg := range o.args {
		parts[i] = arg.String()
	}
	var s string
	if len(parts) < 2 {
		s = "(" + o.kind.String() + " " + strings.Join(parts, "") + ")"
	} else {
		s = "(" + strings.Join(parts, " "+o.kind.String()+" ") + ")"
	}
	if o.negated {
		return "!" + s
	}
	return s
}

func (o *Operation[P]) And(others ...Expr[P]) Expr[P] {
	return And(prepend[P](o, others)...)
}

func (o *Operation[P]) Or(others ...Expr[P]) Expr[P] {
	return Or(prepend[P](o, others)...)
}

func (o *Operation[P]) AsOperation() (*Operation[P], bool) {
	return o, true
}

func (o *Operation[P]) AsOperationOf(kind Kind) (*Operation[P], bool) {
	if o.kind != kind {
		return nil, false
	}
	return o, true
}

func (o *Operation[P]) AsTerm() (*Term[P], bool)       { return nil, false }
func (o *Operation[P]) AsLiteral() (*Literal[P], bool) { return nil, false }
func (o *Operation[P]) sealed()                        {}

// FoldTerms visits every term depth-first, threading an accumulator.
func FoldTerms[P Predicate[P], T any](e Expr[P], seed T, f func(acc T, term *Term[P]) T) T {
	switch x := e.(type) {
	case *Term[P]:
		return f(seed, x)
	case *Operation[P]:
		acc := seed
		for _, arg := range x.args {
			acc = FoldTerms(arg, acc, f)
		}
		return acc
	}
	return seed
}

// Predicates returns the distinct predicates referenced by e, in first-seen order.
func Predicates[P Predicate[P]](e Expr[P]) []P {
	return FoldTerms(e, []P(nil), func(acc []P, term *Term[P]) []P {
		for _, p := range acc {
			if p.Equal(term.predicate) {
				return acc
			}
		}
		return append(acc, term.predicate)
	})
}

// ToOperandList returns the children of e when it is a non-negated operation
// of the given kind, and e itself otherwise.
func ToOperandList[P Predicate[P]](e Expr[P], kind Kind) []Expr[P] {
	if op, ok := e.AsOperationOf(kind); ok && !op.negated {
		return op.args
	}
	return []Expr[P]{e}
}
