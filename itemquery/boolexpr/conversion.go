package boolexpr

// ConversionRule translates an expression over S into an equivalent one over T.
// It returns false when a part of the expression cannot be converted.
type ConversionRule[S Predicate[S], T Predicate[T]] interface {
	Convert(e Expr[S]) (Expr[T], bool)
}

// TermConverter converts a single leaf. The returned expression must already
// account for negated.
type TermConverter[S Predicate[S], T Predicate[T]] func(predicate S, negated bool) (Expr[T], bool)

// Converter copies operations and literals and delegates terms to a TermConverter.
type Converter[S Predicate[S], T Predicate[T]] struct {
	term                TermConverter[S, T]
	ignoreInconvertible bool
}

// NewConverter creates a Converter. With ignoreInconvertible, operation
// children that fail to convert are dropped instead of failing the whole tree.
func NewConverter[S Predicate[S], T Predicate[T]](term TermConverter[S, T], ignoreInconvertible bool) *Converter[S, T] {
	return &Converter[S, T]{term: term, ignoreInconvertible: ignoreInconvertible}
}

func (c *Converter[S, T]) Convert(e Expr[S]) (Expr[T], bool) {
	switch x := e.(type) {
	case *Literal[S]:
		return NewLiteral[T](x.Value()), true
	case *Term[S]:
		return c.term(x.predicate, x.negated)
	case *Operation[S]:
		args := make([]Expr[T], 0, len(x.args))
		for _, arg := range x.args {
			converted, ok := c.Convert(arg)
			if !ok {
				if c.ignoreInconvertible {
					continue
				}
				return nil, false
			}
			args = append(args, converted)
		}
		return NewOperation(x.kind, args, x.negated, true), true
	}
	return nil, false
}
