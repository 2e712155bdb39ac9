package boolexpr

import (
	"github.com/cockroachdb/errors"
)

// ErrIncomplete is returned by Builder.Build when a node was never set.
var ErrIncomplete = errors.New("boolexpr: incomplete expression")

type builderNode[P Predicate[P]] struct {
	parent   *builderNode[P]
	expr     Expr[P]
	isOp     bool
	kind     Kind
	negated  bool
	children []*builderNode[P]
}

func (n *builderNode[P]) isSet() bool {
	return n.expr != nil || n.isOp
}

// Builder assembles an expression top-down. It keeps a cursor on the
// current node; AddNode descends into a new child and Up returns to the parent.
// Misuse (setting a node twice, leaving the root) panics.
type Builder[P Predicate[P]] struct {
	root    *builderNode[P]
	current *builderNode[P]
}

func NewBuilder[P Predicate[P]]() *Builder[P] {
	b := &Builder[P]{}
	b.Reset()
	return b
}

func (b *Builder[P]) Reset() *Builder[P] {
	b.root = &builderNode[P]{}
	b.current = b.root
	return b
}

// IsEmpty reports whether nothing was written.
func (b *Builder[P]) IsEmpty() bool {
	return !b.root.isSet()
}

func (b *Builder[P]) checkUnset() {
	if b.current.isSet() {
		panic(errors.AssertionFailedf("boolexpr: node is already set"))
	}
}

func (b *Builder[P]) SetExpression(e Expr[P]) *Builder[P] {
	b.checkUnset()
	b.current.expr = e
	return b
}

func (b *Builder[P]) SetTerm(p P, negated bool) *Builder[P] {
	return b.SetExpression(NewTerm(p, negated))
}

func (b *Builder[P]) SetLiteral(value bool) *Builder[P] {
	return b.SetExpression(NewLiteral[P](value))
}

func (b *Builder[P]) SetOperation(kind Kind, negated bool) *Builder[P] {
	b.checkUnset()
	b.current.isOp = true
	b.current.kind = kind
	b.current.negated = negated
	return b
}

func (b *Builder[P]) operationNode() *builderNode[P] {
	if !b.current.isOp {
		panic(errors.AssertionFailedf("boolexpr: current node is not an operation"))
	}
	return b.current
}

// AddNode appends an empty child to the current operation and makes it current.
func (b *Builder[P]) AddNode() *Builder[P] {
	parent := b.operationNode()
	child := &builderNode[P]{parent: parent}
	parent.children = append(parent.children, child)
	b.current = child
	return b
}

// Add appends finished expressions to the current operation; the cursor stays.
func (b *Builder[P]) Add(exprs ...Expr[P]) *Builder[P] {
	parent := b.operationNode()
	for _, e := range exprs {
		parent.children = append(parent.children, &builderNode[P]{parent: parent, expr: e})
	}
	return b
}

func (b *Builder[P]) Up() *Builder[P] {
	if b.current.parent == nil {
		panic(errors.AssertionFailedf("boolexpr: builder underflow"))
	}
	b.current = b.current.parent
	return b
}

// Remove drops the current node from its parent and moves the cursor up.
func (b *Builder[P]) Remove() *Builder[P] {
	parent := b.current.parent
	if parent == nil {
		panic(errors.AssertionFailedf("boolexpr: builder underflow"))
	}
	for i, child := range parent.children {
		if child == b.current {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	b.current = parent
	return b
}

func (b *Builder[P]) Negate() *Builder[P] {
	n := b.current
	switch {
	case n.isOp:
		n.negated = !n.negated
	case n.expr != nil:
		n.expr = n.expr.Negate()
	default:
		panic(errors.AssertionFailedf("boolexpr: cannot negate an unset node"))
	}
	return b
}

func (b *Builder[P]) SetNegated(negated bool) *Builder[P] {
	n := b.current
	switch {
	case n.isOp:
		n.negated = negated
	case n.expr != nil:
		if n.expr.Negated() != negated {
			n.expr = n.expr.Negate()
		}
	default:
		panic(errors.AssertionFailedf("boolexpr: cannot negate an unset node"))
	}
	return b
}

func (b *Builder[P]) Build() (Expr[P], error) {
	return b.build(b.root)
}

// MustBuild is Build for callers that consider an incomplete tree a bug.
func (b *Builder[P]) MustBuild() Expr[P] {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

func (b *Builder[P]) build(n *builderNode[P]) (Expr[P], error) {
	if n.expr != nil {
		return n.expr, nil
	}
	if !n.isOp {
		return nil, ErrIncomplete
	}
	args := make([]Expr[P], 0, len(n.children))
	for _, child := range n.children {
		e, err := b.build(child)
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	return NewOperation(n.kind, args, n.negated, true), nil
}
