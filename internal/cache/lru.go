package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/steparena/internal/resource"
)

// LRUBlockCache is a byte-capacity bounded LRU BlockCache.
//
// When a resource.Controller is attached, every cached byte is also charged
// against the controller's memory limit; a Set that the controller refuses
// is dropped rather than blocking.
type LRUBlockCache struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[Key]*list.Element
	evictList *list.List
	rc        *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	key   Key
	value []byte
}

// NewLRUBlockCache creates a new LRU cache with the given capacity in bytes.
func NewLRUBlockCache(capacity int64, rc *resource.Controller) *LRUBlockCache {
	return &LRUBlockCache{
		capacity:  capacity,
		items:     make(map[Key]*list.Element),
		evictList: list.New(),
		rc:        rc,
	}
}

func (c *LRUBlockCache) Get(_ context.Context, key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(el)
		return el.Value.(*entry).value, true
	}
	c.misses.Add(1)
	return nil, false
}

func (c *LRUBlockCache) Set(_ context.Context, key Key, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := int64(len(b))
	if n > c.capacity {
		return
	}

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry)
		delta := n - int64(len(ent.value))
		if delta > 0 && !c.rc.ReserveMemory(delta) {
			return
		}
		if delta < 0 {
			c.rc.ReleaseMemory(-delta)
		}
		ent.value = b
		c.size += delta
		c.evictList.MoveToFront(el)
		c.evictLocked()
		return
	}

	for c.size+n > c.capacity {
		back := c.evictList.Back()
		if back == nil {
			break
		}
		c.removeLocked(back)
	}

	if !c.rc.ReserveMemory(n) {
		return
	}

	c.items[key] = c.evictList.PushFront(&entry{key: key, value: b})
	c.size += n
}

func (c *LRUBlockCache) Invalidate(predicate func(key Key) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var doomed []*list.Element
	for key, el := range c.items {
		if predicate(key) {
			doomed = append(doomed, el)
		}
	}
	for _, el := range doomed {
		c.removeLocked(el)
	}
}

// Close drops every entry and returns its memory to the controller.
func (c *LRUBlockCache) Close() error {
	c.Invalidate(func(Key) bool { return true })
	return nil
}

func (c *LRUBlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the current size of the cache in bytes.
func (c *LRUBlockCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of cached blocks.
func (c *LRUBlockCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRUBlockCache) evictLocked() {
	for c.size > c.capacity {
		back := c.evictList.Back()
		if back == nil {
			return
		}
		c.removeLocked(back)
	}
}

func (c *LRUBlockCache) removeLocked(el *list.Element) {
	c.evictList.Remove(el)
	ent := el.Value.(*entry)
	delete(c.items, ent.key)
	n := int64(len(ent.value))
	c.size -= n
	c.rc.ReleaseMemory(n)
}
