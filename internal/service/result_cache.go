package service

import "sync"

// lruEntry is a doubly-linked list node for the LRU cache.
type lruEntry struct {
	key      uint64
	decision Decision
	prev     *lruEntry
	next     *lruEntry
}

// resultCache provides bounded LRU caching for authorization decisions.
// Authorization is a pure function of its inputs, so a decision can be
// replayed for a byte-identical request. Thread-safe with a Mutex (both
// Get and Put mutate LRU order).
type resultCache struct {
	mu      sync.Mutex
	entries map[uint64]*lruEntry
	head    *lruEntry // most recently used
	tail    *lruEntry // least recently used
	maxSize int
}

func newResultCache(maxSize int) *resultCache {
	return &resultCache{
		entries: make(map[uint64]*lruEntry, maxSize),
		maxSize: maxSize,
	}
}

// Get retrieves a cached decision and promotes it to most recently used.
func (c *resultCache) Get(key uint64) (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.moveToHeadLocked(e)
		return e.decision, true
	}
	return Decision{}, false
}

// Put stores a decision, evicting the least recently used entry if full.
func (c *resultCache) Put(key uint64, d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.decision = d
		c.moveToHeadLocked(e)
		return
	}

	e := &lruEntry{key: key, decision: d}
	c.entries[key] = e
	c.pushHeadLocked(e)

	if len(c.entries) > c.maxSize {
		evict := c.tail
		c.removeLocked(evict)
		delete(c.entries, evict.key)
	}
}

// Len returns the number of cached decisions.
func (c *resultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *resultCache) pushHeadLocked(e *lruEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *resultCache) removeLocked(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *resultCache) moveToHeadLocked(e *lruEntry) {
	if c.head == e {
		return
	}
	c.removeLocked(e)
	c.pushHeadLocked(e)
}
