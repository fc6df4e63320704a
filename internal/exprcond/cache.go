package exprcond

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/expr-lang/expr/vm"
)

// DefaultCacheSize bounds the shared program cache.
const DefaultCacheSize = 1000

// shared is used by Compile unless WithCache says otherwise.
var shared = NewCache(DefaultCacheSize)

// SetCacheSize resizes the shared cache, evicting the least recently used
// programs if it shrinks.
func SetCacheSize(size int) { shared.Resize(size) }

// SharedCache returns the cache used by Compile by default.
func SharedCache() *Cache { return shared }

// Cache is a bounded LRU of compiled programs, keyed by source. It is safe for
// concurrent use, so trees on different goroutines may share it.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	maxSize int
	hits    int64
	misses  int64
}

type cacheEntry struct {
	src     string
	program *vm.Program
	keys    []string
}

// NewCache creates a cache holding at most maxSize programs.
func NewCache(maxSize int) *Cache {
	if maxSize < 1 {
		maxSize = DefaultCacheSize
	}
	return &Cache{
		entries: make(map[string]*list.Element, maxSize),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

func (c *Cache) get(src string) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[src]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.lru.MoveToFront(elem)
	return elem.Value.(*cacheEntry), true
}

func (c *Cache) put(e *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[e.src]; ok {
		c.lru.MoveToFront(elem)
		elem.Value = e
		return
	}
	c.entries[e.src] = c.lru.PushFront(e)
	c.evict()
}

func (c *Cache) evict() {
	for c.lru.Len() > c.maxSize {
		elem := c.lru.Back()
		delete(c.entries, elem.Value.(*cacheEntry).src)
		c.lru.Remove(elem)
	}
}

// Resize changes the capacity, evicting immediately if needed.
func (c *Cache) Resize(maxSize int) {
	if maxSize < 1 {
		maxSize = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxSize = maxSize
	c.evict()
}

// Clear drops every program.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
}

// Len returns the number of cached programs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns the cache's size, hit and miss counters.
func (c *Cache) Stats() (size int, hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len(), c.hits, c.misses
}

func (c *Cache) String() string {
	size, hits, misses := c.Stats()
	return fmt.Sprintf("Cache{size=%d, hits=%d, misses=%d}", size, hits, misses)
}
