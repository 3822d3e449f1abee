/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	_, err := New[string, int](0, nil)
	require.EqualError(t, err, "maxEntries must be greater than 0")

	cache, err := New[string, int](1, nil)
	require.NoError(t, err)
	require.Equal(t, 0, cache.Len())
}

func TestLRUCache(t *testing.T) {
	metrics := NewPrometheusMetrics()
	cache, err := New[string, int](2, metrics)
	require.NoError(t, err)

	cache.Add("a", 1)
	cache.Add("b", 2)

	v, ok := cache.Get("a") // "b" becomes the least recently used
	require.True(t, ok)
	require.Equal(t, 1, v)

	cache.Add("c", 3)
	require.Equal(t, 2, cache.Len())
	_, ok = cache.Get("b")
	require.False(t, ok)

	cache.Add("a", 10)
	v, _ = cache.Get("a")
	require.Equal(t, 10, v)

	v, exists := cache.GetOrAdd("c", func() int { return 100 })
	require.True(t, exists)
	require.Equal(t, 3, v)

	v, exists = cache.GetOrAdd("d", func() int { return 4 })
	require.False(t, exists)
	require.Equal(t, 4, v)

	require.True(t, cache.Remove("d"))
	require.False(t, cache.Remove("d"))
	require.Equal(t, 1, cache.Len())

	require.Equal(t, 2, int(testutil.ToFloat64(metrics.EvictionsTotal)))
	require.Equal(t, 1, int(testutil.ToFloat64(metrics.EntriesAmount)))
	require.Equal(t, 2, int(testutil.ToFloat64(metrics.MissesTotal)))
	require.Equal(t, 3, int(testutil.ToFloat64(metrics.HitsTotal)))

	cache.Purge()
	require.Equal(t, 0, cache.Len())
	require.Equal(t, 0, int(testutil.ToFloat64(metrics.EntriesAmount)))
}

func TestLRUCache_RemoveIf(t *testing.T) {
	cache, err := New[string, int](10, nil)
	require.NoError(t, err)
	for i, k := range []string{"user-1", "user-2", "chat-1", "chat-2", "chat-3"} {
		cache.Add(k, i)
	}

	removed := cache.RemoveIf(func(key string, _ int) bool {
		return strings.HasPrefix(key, "chat-")
	})
	require.Equal(t, 3, removed)
	require.Equal(t, 2, cache.Len())
	_, ok := cache.Get("user-2")
	require.True(t, ok)

	require.Equal(t, 0, cache.RemoveIf(func(string, int) bool { return false }))
}

func TestLRUCache_OnEvict(t *testing.T) {
	var evicted []string
	cache, err := NewWithOpts[string, int](2, Opts[string, int]{
		OnEvict: func(key string, value int) {
			evicted = append(evicted, key+"="+strconv.Itoa(value))
		},
	})
	require.NoError(t, err)

	cache.Add("a", 1)
	cache.Add("b", 2)
	_, _ = cache.Get("a")
	cache.Add("c", 3) // "b" is the least recently used
	_, exists := cache.GetOrAdd("d", func() int { return 4 })
	require.False(t, exists)
	require.True(t, cache.Remove("c"))
	cache.RemoveIf(func(string, int) bool { return true })

	require.Equal(t, []string{"b=2", "a=1"}, evicted, "only evictions on overflow are reported")
}

func TestPrometheusMetrics_MustCurryWith(t *testing.T) {
	metrics := NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{
		Namespace:         "msglimit",
		CurriedLabelNames: []string{"zone"},
	})
	curried := metrics.MustCurryWith(map[string]string{"zone": "chat"})

	cache, err := New[string, int](1, curried)
	require.NoError(t, err)
	cache.Add("a", 1)
	cache.Add("b", 2)

	require.Equal(t, 1, int(testutil.ToFloat64(metrics.EvictionsTotal.WithLabelValues("chat"))))
}
