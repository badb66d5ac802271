package domain

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

// CacheEntry is a cached aggregate together with the highest position already folded into it.
type CacheEntry[A any] struct {
	Aggregate Aggregate[A]
	Position  eventstore.Position
}

// Cache holds process-local aggregate snapshots keyed by aggregate id.
//
// Implementations must be safe for concurrent use and must not replace an entry by one with a lower version.
// A Cache can be shared by several Domains over different streams only if aggregate ids are unique across them.
type Cache[A any] interface {
	Get(aggregateID string) (CacheEntry[A], bool)
	Put(aggregateID string, entry CacheEntry[A])
	Delete(aggregateID string)
	Len() int
}

// MapCache is an unbounded Cache.
type MapCache[A any] struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry[A]
}

// NewMapCache creates an empty MapCache.
func NewMapCache[A any]() *MapCache[A] {
	return &MapCache[A]{entries: make(map[string]CacheEntry[A])}
}

// Get returns the cached entry of an aggregate.
func (c *MapCache[A]) Get(aggregateID string) (CacheEntry[A], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[aggregateID]

	return entry, ok
}

// Put stores entry unless a newer version of the aggregate is already cached.
func (c *MapCache[A]) Put(aggregateID string, entry CacheEntry[A]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[aggregateID]; ok && existing.Aggregate.Version > entry.Aggregate.Version {
		return
	}

	c.entries[aggregateID] = entry
}

// Delete evicts an aggregate.
func (c *MapCache[A]) Delete(aggregateID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, aggregateID)
}

// Len returns the number of cached aggregates.
func (c *MapCache[A]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// LRUCache is a size-bounded Cache which evicts the least recently used aggregate.
type LRUCache[A any] struct {
	mu      sync.Mutex
	entries *lru.Cache[string, CacheEntry[A]]
}

// NewLRUCache creates an LRUCache holding at most size aggregates.
func NewLRUCache[A any](size int) (*LRUCache[A], error) {
	entries, err := lru.New[string, CacheEntry[A]](size)
	if err != nil {
		return nil, err
	}

	return &LRUCache[A]{entries: entries}, nil
}

// Get returns the cached entry of an aggregate and marks it as recently used.
func (c *LRUCache[A]) Get(aggregateID string) (CacheEntry[A], bool) {
	return c.entries.Get(aggregateID)
}

// Put stores entry unless a newer version of the aggregate is already cached.
func (c *LRUCache[A]) Put(aggregateID string, entry CacheEntry[A]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries.Peek(aggregateID); ok && existing.Aggregate.Version > entry.Aggregate.Version {
		return
	}

	c.entries.Add(aggregateID, entry)
}

// Delete evicts an aggregate.
func (c *LRUCache[A]) Delete(aggregateID string) {
	c.entries.Remove(aggregateID)
}

// Len returns the number of cached aggregates.
func (c *LRUCache[A]) Len() int {
	return c.entries.Len()
}
