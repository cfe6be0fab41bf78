package document

import (
	"container/list"
	"sync"

	"github.com/antchfx/xpath"
)

// maxCachedExprs bounds the number of distinct expressions kept in memory.
const maxCachedExprs = 1024

// exprPool hands out compiled copies of one expression. xpath.Expr keeps
// iteration state, so a copy is used by one evaluation at a time.
type exprPool struct {
	pool sync.Pool
}

func newExprPool(first *xpath.Expr, expr string) *exprPool {
	p := &exprPool{}
	p.pool.New = func() any {
		// expr compiled once already, so this cannot fail
		return xpath.MustCompile(expr)
	}
	p.pool.Put(first)
	return p
}

func (p *exprPool) get() *xpath.Expr {
	return p.pool.Get().(*xpath.Expr)
}

func (p *exprPool) put(e *xpath.Expr) {
	p.pool.Put(e)
}

type exprEntry struct {
	key  string
	pool *exprPool
}

// exprCache is a least-recently-used cache of compiled expressions.
type exprCache struct {
	capacity int
	items    map[string]*list.Element
	eviction *list.List
	mu       sync.Mutex
}

func newExprCache(capacity int) *exprCache {
	if capacity <= 0 {
		panic("expression cache capacity must be positive")
	}
	return &exprCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
}

func (c *exprCache) get(key string) (*exprPool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		return elem.Value.(*exprEntry).pool, true
	}
	return nil, false
}

func (c *exprCache) put(key string, pool *exprPool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		elem.Value.(*exprEntry).pool = pool
		return
	}

	c.items[key] = c.eviction.PushFront(&exprEntry{key: key, pool: pool})
	if c.eviction.Len() > c.capacity {
		oldest := c.eviction.Back()
		c.eviction.Remove(oldest)
		delete(c.items, oldest.Value.(*exprEntry).key)
	}
}

func (c *exprCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eviction.Len()
}
