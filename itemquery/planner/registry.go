package planner

import (
	"github.com/pkg/errors"

	"github.com/krew-solutions/itemquery/itemquery/extraction"
	"github.com/krew-solutions/itemquery/itemquery/predicate"
)

// ErrFilterInvalid reports a filter that cannot be compiled into operators.
var ErrFilterInvalid = errors.New("filter invalid")

// Factory compiles a term into an operator. A factory that cannot handle the
// predicate returns a nil operator and a nil error.
type Factory interface {
	Create(c *Compiler, p predicate.Predicate, negated bool) (extraction.Operator, error)
}

type FactoryFunc func(c *Compiler, p predicate.Predicate, negated bool) (extraction.Operator, error)

func (f FactoryFunc) Create(c *Compiler, p predicate.Predicate, negated bool) (extraction.Operator, error) {
	return f(c, p, negated)
}

// Registry maps predicate tags to candidate factories.
type Registry struct {
	factories map[predicate.Tag][]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[predicate.Tag][]Factory)}
}

func (r *Registry) Register(tag predicate.Tag, f Factory) *Registry {
	r.factories[tag] = append(r.factories[tag], f)
	return r
}

// Create asks every factory registered for the tag of p and keeps the
// cheapest operator. Ties go to the earlier registration.
func (r *Registry) Create(c *Compiler, p predicate.Predicate, negated bool) (extraction.Operator, error) {
	var best extraction.Operator
	for _, f := range r.factories[p.Tag()] {
		op, err := f.Create(c, p, negated)
		if err != nil {
			return nil, err
		}
		if op == nil {
			continue
		}
		if best == nil || op.Cost() < best.Cost() {
			best = op
		}
	}
	if best == nil {
		prefix := ""
		if negated {
			prefix = "!"
		}
		return nil, errors.Wrapf(ErrFilterInvalid, "no factory accepts %s%s", prefix, p)
	}
	return best, nil
}

// NewDefaultRegistry registers the factories for every predicate of the
// predicate package.
func NewDefaultRegistry() *Registry {
	return NewRegistry().
		Register(predicate.TagNotNull, FactoryFunc(createNotNull)).
		Register(predicate.TagEquals, FactoryFunc(createEquals)).
		Register(predicate.TagEqualsIdentified, FactoryFunc(createEqualsIdentified)).
		Register(predicate.TagIntersects, FactoryFunc(createIntersects)).
		Register(predicate.TagIntersectsIdentified, FactoryFunc(createIntersectsIdentified)).
		Register(predicate.TagCompare, FactoryFunc(createCompare)).
		Register(predicate.TagReferredBy, FactoryFunc(createReferredBy))
}
