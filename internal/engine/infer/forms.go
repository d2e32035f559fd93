// # internal/engine/infer/forms.go
package infer

import (
	"container/list"

	"rtinfer/internal/engine/cfg"
	"rtinfer/internal/engine/registry"
	"rtinfer/internal/engine/ssa"
	"rtinfer/internal/engine/syntax"
)

// formCache holds the SSA form of recently analysed methods, keyed by method
// id. When full the least-recently-used form is evicted and rebuilt on the
// next request; method bodies never change, so a rebuilt form is identical.
type formCache struct {
	capacity int
	items    map[int]*list.Element
	order    *list.List // front = most-recently used
	onEvict  func(m *registry.Method)
}

type formEntry struct {
	method *registry.Method
	form   *ssa.Form
	err    error
}

func newFormCache(capacity int) *formCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &formCache{
		capacity: capacity,
		items:    make(map[int]*list.Element, capacity),
		order:    list.New(),
	}
}

// get returns the form for m, building and caching it on a miss. A build
// error is cached too.
func (c *formCache) get(tree *syntax.Tree, m *registry.Method) (*ssa.Form, error) {
	if el, ok := c.items[m.ID]; ok {
		c.order.MoveToFront(el)
		e := el.Value.(*formEntry)
		return e.form, e.err
	}

	entry := &formEntry{method: m}
	g, err := cfg.Build(tree, m)
	if err != nil {
		entry.err = err
	} else {
		entry.form = ssa.Convert(g)
	}

	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}
	c.items[m.ID] = c.order.PushFront(entry)
	return entry.form, entry.err
}

// peek reports whether m's form is cached without touching recency.
func (c *formCache) peek(m *registry.Method) bool {
	_, ok := c.items[m.ID]
	return ok
}

func (c *formCache) len() int {
	return c.order.Len()
}

func (c *formCache) clear() {
	c.order.Init()
	c.items = make(map[int]*list.Element, c.capacity)
}

func (c *formCache) evictOldest() {
	back := c.order.Back()
	if back == nil {
		return
	}
	c.order.Remove(back)
	e := back.Value.(*formEntry)
	delete(c.items, e.method.ID)
	if c.onEvict != nil {
		c.onEvict(e.method)
	}
}
