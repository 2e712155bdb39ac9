package extraction

import (
	"sort"
	"strings"
)

// ConstOperator ignores its input and yields nothing.
type ConstOperator struct{}

// IdentityOperator yields its input unchanged.
type IdentityOperator struct{}

var (
	None Operator = ConstOperator{}
	All  Operator = IdentityOperator{}
)

func (ConstOperator) Apply(TransactionContext, Function) Function {
	return NoItems()
}

func (ConstOperator) Cost() int      { return CostMinimal }
func (ConstOperator) String() string { return "none" }

func (IdentityOperator) Apply(_ TransactionContext, input Function) Function {
	return input
}

func (IdentityOperator) Cost() int      { return CostMinimal }
func (IdentityOperator) String() string { return "all" }

// ChainOperator threads the input through its operators in order, each one
// narrowing the result of the previous one.
type ChainOperator struct {
	operators []Operator
}

// NewChain builds the conjunction of operators, cheapest first.
func NewChain(operators ...Operator) Operator {
	flat := make([]Operator, 0, len(operators))
	for _, op := range operators {
		switch x := op.(type) {
		case ConstOperator:
			return None
		case IdentityOperator:
			continue
		case *ChainOperator:
			flat = append(flat, x.operators...)
		default:
			flat = append(flat, op)
		}
	}
	switch len(flat) {
	case 0:
		return All
	case 1:
		return flat[0]
	}
	sort.SliceStable(flat, func(i, j int) bool { return flat[i].Cost() < flat[j].Cost() })
	return &ChainOperator{operators: flat}
}

func (c *ChainOperator) Operators() []Operator {
	return c.operators
}

func (c *ChainOperator) Apply(ctx TransactionContext, input Function) Function {
	f := input
	for _, op := range c.operators {
		f = op.Apply(ctx, f)
	}
	return f
}

func (c *ChainOperator) Cost() int {
	cost := 0
	for _, op := range c.operators {
		cost += op.Cost()
	}
	return cost
}

func (c *ChainOperator) String() string {
	return "chain(" + joinOperators(c.operators) + ")"
}

// CombiningOperator applies every operator to the same input and yields the
// union of the results within a single visitor pass.
type CombiningOperator struct {
	operators []Operator
}

// NewCombining builds the disjunction of operators.
func NewCombining(operators ...Operator) Operator {
	flat := make([]Operator, 0, len(operators))
	for _, op := range operators {
		switch x := op.(type) {
		case IdentityOperator:
			return All
		case ConstOperator:
			continue
		case *CombiningOperator:
			flat = append(flat, x.operators...)
		default:
			flat = append(flat, op)
		}
	}
	switch len(flat) {
	case 0:
		return None
	case 1:
		return flat[0]
	}
	return &CombiningOperator{operators: flat}
}

func (c *CombiningOperator) Operators() []Operator {
	return c.operators
}

func (c *CombiningOperator) Apply(_ TransactionContext, input Function) Function {
	return SingleUse(func(ctx TransactionContext, v Visitor) error {
		collected := NewCollectingVisitor()
		if err := input.Execute(ctx, collected); err != nil {
			return err
		}
		return bracket(ctx, v, func() error {
			sink := unbracketed{next: v}
			for _, op := range c.operators {
				if err := op.Apply(ctx, collected.Replay()).Execute(ctx, sink); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (c *CombiningOperator) Cost() int {
	cost := 0
	for _, op := range c.operators {
		cost += op.Cost()
	}
	return cost
}

func (c *CombiningOperator) String() string {
	return "any(" + joinOperators(c.operators) + ")"
}

func joinOperators(operators []Operator) string {
	parts := make([]string, len(operators))
	for i, op := range operators {
		parts[i] = op.String()
	}
	return strings.Join(parts, ", ")
}
