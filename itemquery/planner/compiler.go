package planner

import (
	"github.com/pkg/errors"

	"github.com/krew-solutions/itemquery/itemquery/boolexpr"
	"github.com/krew-solutions/itemquery/itemquery/extraction"
	"github.com/krew-solutions/itemquery/itemquery/logger"
	"github.com/krew-solutions/itemquery/itemquery/predicate"
	"github.com/krew-solutions/itemquery/itemquery/sqlbuild"
)

type Options struct {
	InlineListLimit    int
	MaxSQLParams       int
	MaxReductionPasses int
	CacheSize          int
	IdentitiesTable    string
	IdentityKeyColumn  string
}

func DefaultOptions() Options {
	return Options{
		InlineListLimit:    sqlbuild.DefaultInlineListLimit,
		MaxSQLParams:       sqlbuild.DefaultMaxParams,
		MaxReductionPasses: boolexpr.DefaultMaxPasses,
		CacheSize:          256,
		IdentitiesTable:    "identities",
		IdentityKeyColumn:  "key",
	}
}

// Compiler turns predicate expressions into extraction operators. Compiled
// operators are cached and may be shared by concurrent transactions.
type Compiler struct {
	registry *Registry
	options  Options
	cache    *operatorCache
}

func NewCompiler(registry *Registry, options Options) *Compiler {
	return &Compiler{
		registry: registry,
		options:  options,
		cache:    newOperatorCache(options.CacheSize),
	}
}

func (c *Compiler) Options() Options {
	return c.options
}

// Normalize simplifies e and rewrites it into disjunctive normal form.
func (c *Compiler) Normalize(e predicate.Expr) (predicate.Expr, error) {
	opt := boolexpr.WithMaxPasses(c.options.MaxReductionPasses)
	simplified, err := boolexpr.Simplify(e, opt)
	if err != nil {
		return nil, errors.Wrap(err, "simplify")
	}
	dnf, err := boolexpr.ToDNF(simplified, opt)
	if err != nil {
		return nil, errors.Wrap(err, "dnf")
	}
	return dnf, nil
}

func (c *Compiler) Compile(e predicate.Expr) (extraction.Operator, error) {
	if op, ok := c.cache.get(e); ok {
		return op, nil
	}
	dnf, err := c.Normalize(e)
	if err != nil {
		return nil, err
	}
	op, err := c.build(dnf)
	if err != nil {
		return nil, err
	}
	logger.Logger.Debugw("compiled filter", "filter", e.String(), "dnf", dnf.String(), "operator", op.String())
	c.cache.add(e, op)
	return op, nil
}

func (c *Compiler) build(e predicate.Expr) (extraction.Operator, error) {
	switch x := e.(type) {
	case *boolexpr.Literal[predicate.Predicate]:
		if x.Value() {
			return extraction.All, nil
		}
		return extraction.None, nil
	case *boolexpr.Term[predicate.Predicate]:
		return c.registry.Create(c, x.Predicate(), x.Negated())
	case *boolexpr.Operation[predicate.Predicate]:
		if x.Negated() {
			return nil, errors.Wrapf(ErrFilterInvalid, "negated operation %s in normal form", x)
		}
		ops := make([]extraction.Operator, 0, x.Len())
		for _, arg := range x.Args() {
			op, err := c.build(arg)
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
		}
		if x.Kind() == boolexpr.KindOr {
			return extraction.NewCombining(ops...), nil
		}
		return extraction.NewChain(ops...), nil
	}
	return nil, errors.Wrapf(ErrFilterInvalid, "unexpected expression %T", e)
}
