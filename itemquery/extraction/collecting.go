package extraction

import (
	"github.com/krew-solutions/itemquery/itemquery/sqlbuild"
)

// CollectingVisitor records the selects and ids of one execution. Results
// are available after VisitFinished; reading them earlier panics.
type CollectingVisitor struct {
	builders []*sqlbuild.SelectBuilder
	items    []int64
	finished bool
}

func NewCollectingVisitor() *CollectingVisitor {
	return &CollectingVisitor{}
}

func (c *CollectingVisitor) VisitStarted(TransactionContext) error {
	return nil
}

func (c *CollectingVisitor) VisitSQL(_ TransactionContext, b *sqlbuild.SelectBuilder) error {
	c.builders = append(c.builders, b)
	return nil
}

func (c *CollectingVisitor) VisitItems(_ TransactionContext, items []int64) error {
	c.items = append(c.items, items...)
	return nil
}

func (c *CollectingVisitor) VisitFinished(TransactionContext) error {
	c.items = sqlbuild.SortedUnique(c.items)
	c.finished = true
	return nil
}

func (c *CollectingVisitor) checkFinished() {
	if !c.finished {
		panic("extraction: collecting visitor read before the pass finished")
	}
}

func (c *CollectingVisitor) Builders() []*sqlbuild.SelectBuilder {
	c.checkFinished()
	return c.builders
}

// Items returns the sorted distinct ids seen.
func (c *CollectingVisitor) Items() []int64 {
	c.checkFinished()
	return c.items
}

func (c *CollectingVisitor) IsEmpty() bool {
	c.checkFinished()
	return len(c.builders) == 0 && len(c.items) == 0
}

// Replay returns a function yielding copies of the collected results.
func (c *CollectingVisitor) Replay() Function {
	c.checkFinished()
	return SingleUse(func(ctx TransactionContext, v Visitor) error {
		return bracket(ctx, v, func() error {
			for _, b := range c.builders {
				if err := v.VisitSQL(ctx, b.Clone()); err != nil {
					return err
				}
			}
			if len(c.items) > 0 {
				return v.VisitItems(ctx, c.items)
			}
			return nil
		})
	})
}

// LoadingVisitor runs every select it receives and accumulates the ids.
type LoadingVisitor struct {
	items []int64
}

func NewLoadingVisitor() *LoadingVisitor {
	return &LoadingVisitor{}
}

func (l *LoadingVisitor) VisitStarted(TransactionContext) error {
	return nil
}

func (l *LoadingVisitor) VisitSQL(ctx TransactionContext, b *sqlbuild.SelectBuilder) error {
	items, err := ctx.LoadItems(b)
	if err != nil {
		return err
	}
	l.items = sqlbuild.Union(l.items, items)
	return nil
}

func (l *LoadingVisitor) VisitItems(_ TransactionContext, items []int64) error {
	l.items = sqlbuild.Union(l.items, sqlbuild.SortedUnique(items))
	return nil
}

func (l *LoadingVisitor) VisitFinished(TransactionContext) error {
	return nil
}

// Items returns the sorted distinct ids loaded so far.
func (l *LoadingVisitor) Items() []int64 {
	if l.items == nil {
		return []int64{}
	}
	return l.items
}
