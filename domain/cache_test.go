package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/catchup-eventstore-go/domain"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

func givenCacheEntry(id string, version eventstore.Version, position eventstore.Position) domain.CacheEntry[int] {
	return domain.CacheEntry[int]{
		Aggregate: domain.Aggregate[int]{AggregateID: id, Version: version, State: int(version) * 10},
		Position:  position,
	}
}

func Test_Caches(t *testing.T) {
	lruCache, err := domain.NewLRUCache[int](8)
	require.NoError(t, err)

	caches := map[string]domain.Cache[int]{
		"map": domain.NewMapCache[int](),
		"lru": lruCache,
	}

	for name, cache := range caches {
		t.Run(name, func(t *testing.T) {
			// miss
			_, hit := cache.Get("a")
			assert.False(t, hit)

			// put and get
			cache.Put("a", givenCacheEntry("a", 2, 7))
			entry, hit := cache.Get("a")
			require.True(t, hit)
			assert.Equal(t, eventstore.Version(2), entry.Aggregate.Version)
			assert.Equal(t, eventstore.Position(7), entry.Position)

			// a lower version never replaces a higher one
			cache.Put("a", givenCacheEntry("a", 1, 3))
			entry, _ = cache.Get("a")
			assert.Equal(t, eventstore.Version(2), entry.Aggregate.Version)

			// a higher version does
			cache.Put("a", givenCacheEntry("a", 3, 9))
			entry, _ = cache.Get("a")
			assert.Equal(t, eventstore.Version(3), entry.Aggregate.Version)
			assert.Equal(t, 30, entry.Aggregate.State)

			cache.Put("b", givenCacheEntry("b", 1, 10))
			assert.Equal(t, 2, cache.Len())

			cache.Delete("a")
			_, hit = cache.Get("a")
			assert.False(t, hit)
			assert.Equal(t, 1, cache.Len())
		})
	}
}

func Test_LRUCache_Evicts_Least_Recently_Used(t *testing.T) {
	// setup
	cache, err := domain.NewLRUCache[int](2)
	require.NoError(t, err)

	// arrange
	cache.Put("a", givenCacheEntry("a", 1, 1))
	cache.Put("b", givenCacheEntry("b", 1, 2))
	_, _ = cache.Get("a")

	// act
	cache.Put("c", givenCacheEntry("c", 1, 3))

	// assert
	_, hitA := cache.Get("a")
	_, hitB := cache.Get("b")
	_, hitC := cache.Get("c")
	assert.True(t, hitA)
	assert.False(t, hitB)
	assert.True(t, hitC)
	assert.Equal(t, 2, cache.Len())
}

func Test_NewLRUCache_Rejects_Invalid_Size(t *testing.T) {
	_, err := domain.NewLRUCache[int](0)

	assert.Error(t, err)
}
