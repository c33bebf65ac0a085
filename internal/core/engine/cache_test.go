package engine

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseCacheEvictsOldestOverCeiling(t *testing.T) {
	cache := NewResponseCache(3)
	for i := 0; i < 4; i++ {
		cache.Set(fmt.Sprintf("key-%d", i), json.RawMessage(`{}`), time.Hour)
		time.Sleep(time.Millisecond)
	}

	assert.Equal(t, 3, cache.Len())
	_, ok := cache.Get("key-0")
	assert.False(t, ok)
	_, ok = cache.Get("key-3")
	assert.True(t, ok)
}

func TestResponseCachePurgesExpiredBeforeEvicting(t *testing.T) {
	cache := NewResponseCache(2)
	cache.Set("stale", json.RawMessage(`1`), 5*time.Millisecond)
	cache.Set("fresh", json.RawMessage(`2`), time.Hour)
	time.Sleep(20 * time.Millisecond)
	cache.Set("newest", json.RawMessage(`3`), time.Hour)

	require.Equal(t, 2, cache.Len())
	_, ok := cache.Get("fresh")
	assert.True(t, ok)
	_, ok = cache.Get("newest")
	assert.True(t, ok)
}

func TestResponseCacheLazyPurge(t *testing.T) {
	cache := NewResponseCache(10)
	cache.Set("k", json.RawMessage(`{}`), 5*time.Millisecond)
	require.Equal(t, 1, cache.Len())

	time.Sleep(20 * time.Millisecond)
	_, ok := cache.Get("k")
	assert.False(t, ok)
	assert.Zero(t, cache.Len())
}

func TestResponseCacheIgnoresEmptyKey(t *testing.T) {
	cache := NewResponseCache(0)
	cache.Set("", json.RawMessage(`{}`), time.Hour)
	assert.Zero(t, cache.Len())

	cache.Set("k", json.RawMessage(`{}`), time.Hour)
	cache.Clear()
	assert.Zero(t, cache.Len())
}
