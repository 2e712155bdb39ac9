package planner

import (
	"github.com/pkg/errors"

	"github.com/krew-solutions/itemquery/itemquery/extraction"
	"github.com/krew-solutions/itemquery/itemquery/predicate"
	"github.com/krew-solutions/itemquery/itemquery/sqlbuild"
)

// Processor runs filters against the items visible in a transaction.
type Processor struct {
	compiler *Compiler
}

func NewProcessor(compiler *Compiler) *Processor {
	return &Processor{compiler: compiler}
}

func (p *Processor) Compiler() *Compiler {
	return p.compiler
}

func (p *Processor) run(ctx extraction.TransactionContext, filter predicate.Expr, input extraction.Function, v extraction.Visitor) error {
	op, err := p.compiler.Compile(filter)
	if err != nil {
		return err
	}
	if err := op.Apply(ctx, input).Execute(ctx, v); err != nil {
		return errors.Wrapf(err, "extracting %s", filter)
	}
	return nil
}

// LoadItems returns the sorted ids of every item matching filter.
func (p *Processor) LoadItems(ctx extraction.TransactionContext, filter predicate.Expr) ([]int64, error) {
	loader := extraction.NewLoadingVisitor()
	if err := p.run(ctx, filter, extraction.AllItems(), loader); err != nil {
		return nil, err
	}
	return loader.Items(), nil
}

// Count returns the number of matching items. A result expressed as a
// single select is counted by the database.
func (p *Processor) Count(ctx extraction.TransactionContext, filter predicate.Expr) (int, error) {
	collected := extraction.NewCollectingVisitor()
	if err := p.run(ctx, filter, extraction.AllItems(), collected); err != nil {
		return 0, err
	}
	builders, items := collected.Builders(), collected.Items()
	if len(builders) == 1 && len(items) == 0 {
		n, err := ctx.CountItems(builders[0])
		if err != nil {
			return 0, errors.Wrapf(err, "counting %s", filter)
		}
		return n, nil
	}
	all := items
	for _, b := range builders {
		loaded, err := ctx.LoadItems(b)
		if err != nil {
			return 0, errors.Wrapf(err, "counting %s", filter)
		}
		all = sqlbuild.Union(all, loaded)
	}
	return len(all), nil
}

// FilterItems returns the sorted subset of items that match filter.
func (p *Processor) FilterItems(ctx extraction.TransactionContext, filter predicate.Expr, items []int64) ([]int64, error) {
	if len(items) == 0 {
		return []int64{}, nil
	}
	loader := extraction.NewLoadingVisitor()
	if err := p.run(ctx, filter, extraction.ItemsOf(items), loader); err != nil {
		return nil, err
	}
	return loader.Items(), nil
}

// CheckItem reports whether item matches filter. Ids below 1 never match.
func (p *Processor) CheckItem(ctx extraction.TransactionContext, filter predicate.Expr, item int64) (bool, error) {
	if item <= 0 {
		return false, nil
	}
	found, err := p.FilterItems(ctx, filter, []int64{item})
	if err != nil {
		return false, err
	}
	return len(found) == 1, nil
}

// VisitItems streams matching ids in batches as they are loaded. An item
// may appear in more than one batch.
func (p *Processor) VisitItems(ctx extraction.TransactionContext, filter predicate.Expr, fn func(batch []int64) error) error {
	return p.run(ctx, filter, extraction.AllItems(), &batchVisitor{fn: fn})
}

type batchVisitor struct {
	fn func(batch []int64) error
}

func (v *batchVisitor) VisitStarted(extraction.TransactionContext) error  { return nil }
func (v *batchVisitor) VisitFinished(extraction.TransactionContext) error { return nil }

func (v *batchVisitor) VisitSQL(ctx extraction.TransactionContext, b *sqlbuild.SelectBuilder) error {
	items, err := ctx.LoadItems(b)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return v.fn(items)
}

func (v *batchVisitor) VisitItems(_ extraction.TransactionContext, items []int64) error {
	if len(items) == 0 {
		return nil
	}
	return v.fn(sqlbuild.SortedUnique(items))
}
