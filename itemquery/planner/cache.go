package planner

import (
	"container/list"
	"sync"

	"github.com/krew-solutions/itemquery/itemquery/extraction"
	"github.com/krew-solutions/itemquery/itemquery/predicate"
)

type lruEntry struct {
	key   predicate.Expr
	value extraction.Operator
}

// operatorCache keeps the most recently compiled operators. Entries are
// found by expression hash and confirmed with Equal.
type operatorCache struct {
	mu    sync.Mutex
	items map[uint64][]*list.Element
	order *list.List
	size  int
}

func newOperatorCache(size int) *operatorCache {
	return &operatorCache{
		items: make(map[uint64][]*list.Element, size),
		order: list.New(),
		size:  size,
	}
}

func (c *operatorCache) find(key predicate.Expr) (*list.Element, int) {
	for i, elem := range c.items[key.Hash()] {
		if elem.Value.(lruEntry).key.Equal(key) {
			return elem, i
		}
	}
	return nil, -1
}

func (c *operatorCache) add(key predicate.Expr, value extraction.Operator) {
	if c.size <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, _ := c.find(key); elem != nil {
		elem.Value = lruEntry{key: key, value: value}
		c.order.MoveToBack(elem)
		return
	}
	elem := c.order.PushBack(lruEntry{key: key, value: value})
	h := key.Hash()
	c.items[h] = append(c.items[h], elem)
	if c.order.Len() > c.size {
		c.removeElement(c.order.Front())
	}
}

func (c *operatorCache) get(key predicate.Expr) (extraction.Operator, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, _ := c.find(key)
	if elem == nil {
		return nil, false
	}
	c.order.MoveToBack(elem)
	return elem.Value.(lruEntry).value, true
}

func (c *operatorCache) removeElement(elem *list.Element) {
	key := elem.Value.(lruEntry).key
	if _, i := c.find(key); i >= 0 {
		h := key.Hash()
		bucket := c.items[h]
		bucket = append(bucket[:i], bucket[i+1:]...)
		if len(bucket) == 0 {
			delete(c.items, h)
		} else {
			c.items[h] = bucket
		}
	}
	c.order.Remove(elem)
}

func (c *operatorCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
