package ttlcache_test

import (
	"testing"
	"time"

	"github.com/fairlabs/stms-dashboard/internal/ttlcache"
	"github.com/stretchr/testify/require"
)

func TestCacheStoresValue(t *testing.T) {
	cache := ttlcache.New[[]byte](10, time.Minute)
	_, ok := cache.Get("alpha")
	require.False(t, ok)

	cache.Set("alpha", []byte("a,b\n"))
	got, ok := cache.Get("alpha")
	require.True(t, ok)
	require.Equal(t, []byte("a,b\n"), got)
	require.True(t, cache.Contains("alpha"))
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := ttlcache.New[struct{}](10, 20*time.Millisecond)
	cache.Set("beta", struct{}{})
	require.True(t, cache.Contains("beta"))
	time.Sleep(25 * time.Millisecond)
	require.False(t, cache.Contains("beta"))
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	cache := ttlcache.New[int](1, time.Minute)
	cache.Set("first", 1)
	cache.Set("second", 2)

	require.False(t, cache.Contains("first"))
	got, ok := cache.Get("second")
	require.True(t, ok)
	require.Equal(t, 2, got)
	require.Equal(t, 1, cache.Len())
}

func TestCacheOverwriteKeepsLatest(t *testing.T) {
	cache := ttlcache.New[string](2, time.Minute)
	cache.Set("k", "old")
	cache.Set("k", "new")
	cache.Set("other", "x")

	got, ok := cache.Get("k")
	require.True(t, ok)
	require.Equal(t, "new", got)
}
