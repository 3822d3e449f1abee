/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package msglimit

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-msglimit/config"
	"github.com/acronis/go-msglimit/lrucache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func makeConfig(maxMessages int, countDuration time.Duration) Config {
	return Config{MaxMessages: maxMessages, CountDuration: config.TimeDuration(countDuration)}
}

func TestNewKeyedLimiter(t *testing.T) {
	_, err := NewKeyedLimiter(makeConfig(-1, time.Second), KeyedLimiterOpts{})
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewKeyedLimiter(makeConfig(1, time.Second), KeyedLimiterOpts{MaxKeys: -1})
	require.EqualError(t, err, "max keys should not be negative, got -1")

	l, err := NewKeyedLimiter(makeConfig(1, time.Second), KeyedLimiterOpts{MaxKeys: 10})
	require.NoError(t, err)
	require.Equal(t, 0, l.KeysCount())
}

func TestKeyedLimiter_PerKeyWindows(t *testing.T) {
	clock := newFakeClock()
	l, err := NewKeyedLimiter(makeConfig(2, time.Minute), KeyedLimiterOpts{MaxKeys: 100, Now: clock.Now})
	require.NoError(t, err)

	for _, key := range []string{"alice", "bob"} {
		require.False(t, l.CheckAndRegister(key), key)
		require.False(t, l.CheckAndRegister(key), key)
		require.True(t, l.CheckAndRegister(key), key)
	}
	require.Equal(t, 2, l.KeysCount())

	clock.Advance(30 * time.Second)
	allow, retryAfter, err := l.Allow(context.Background(), "alice")
	require.NoError(t, err)
	require.False(t, allow)
	require.Equal(t, 30*time.Second+time.Nanosecond, retryAfter)

	clock.Advance(30*time.Second + time.Nanosecond)
	allow, retryAfter, err = l.Allow(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, allow)
	require.Zero(t, retryAfter)
}

func TestKeyedLimiter_SharedWindow(t *testing.T) {
	clock := newFakeClock()
	l, err := NewKeyedLimiter(makeConfig(3, time.Minute), KeyedLimiterOpts{Now: clock.Now})
	require.NoError(t, err)

	require.False(t, l.CheckAndRegister("a"))
	require.False(t, l.CheckAndRegister("b"))
	require.False(t, l.CheckAndRegister("c"))
	require.True(t, l.CheckAndRegister("d"))
	require.True(t, l.CheckAndRegister("a"))
	require.Equal(t, 0, l.KeysCount())
	require.Equal(t, 0, l.Sweep(clock.Now().Add(time.Hour)))
}

func TestKeyedLimiter_LeastRecentlyUsedKeyIsForgotten(t *testing.T) {
	clock := newFakeClock()
	cacheMetrics := lrucache.NewPrometheusMetrics()
	l, err := NewKeyedLimiter(makeConfig(1, time.Minute), KeyedLimiterOpts{
		MaxKeys: 2, Now: clock.Now, CacheMetricsCollector: cacheMetrics})
	require.NoError(t, err)

	require.False(t, l.CheckAndRegister("a"))
	require.False(t, l.CheckAndRegister("b"))
	require.False(t, l.CheckAndRegister("c")) // "a" is evicted
	require.Equal(t, 2, l.KeysCount())
	require.Equal(t, 1.0, testutil.ToFloat64(cacheMetrics.EvictionsTotal))

	require.True(t, l.CheckAndRegister("c"))
	require.False(t, l.CheckAndRegister("a")) // forgotten window starts empty, "b" is evicted
	require.False(t, l.CheckAndRegister("b"))
	require.Equal(t, 2, l.KeysCount())
}

func TestKeyedLimiter_Sweep(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	l, err := NewKeyedLimiter(makeConfig(1, 10*time.Second), KeyedLimiterOpts{MaxKeys: 10, Now: clock.Now})
	require.NoError(t, err)

	require.False(t, l.CheckAndRegister("a"))
	clock.Advance(5 * time.Second)
	require.False(t, l.CheckAndRegister("b"))

	require.Equal(t, 0, l.Sweep(start.Add(10*time.Second)), "instant on the window boundary is still inside")
	require.Equal(t, 1, l.Sweep(start.Add(10*time.Second+time.Nanosecond)))
	require.Equal(t, 1, l.KeysCount())

	clock.Advance(time.Second)
	require.True(t, l.CheckAndRegister("b"), "active window must survive the sweep")
	require.False(t, l.CheckAndRegister("a"))

	require.Equal(t, 2, l.Sweep(start.Add(time.Minute)))
	require.Equal(t, 0, l.KeysCount())
}

func TestKeyedLimiter_RunPeriodicSweep(t *testing.T) {
	clock := newFakeClock()
	l, err := NewKeyedLimiter(makeConfig(1, time.Second), KeyedLimiterOpts{MaxKeys: 10, Now: clock.Now})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.False(t, l.CheckAndRegister("key-"+strconv.Itoa(i)))
	}
	require.Equal(t, 5, l.KeysCount())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- l.RunPeriodicSweep(ctx, 10*time.Millisecond)
	}()

	clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return l.KeysCount() == 0 }, time.Second*5, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	for _, interval := range []time.Duration{0, -time.Second} {
		require.EqualError(t, l.RunPeriodicSweep(context.Background(), interval),
			"sweep interval should be positive, got "+interval.String())
	}
}

func TestKeyedLimiter_CheckDoesNotCountDecisions(t *testing.T) {
	clock := newFakeClock()
	metrics := NewPrometheusMetrics()
	l, err := NewKeyedLimiter(makeConfig(1, time.Second), KeyedLimiterOpts{
		MaxKeys: 10, Now: clock.Now, MetricsCollector: metrics,
	})
	require.NoError(t, err)
	require.False(t, l.NeverAdmits())

	allow, retryAfter, err := l.Check(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, allow)
	require.Zero(t, retryAfter)

	for i := 0; i < 3; i++ {
		allow, retryAfter, err = l.Check(context.Background(), "a")
		require.NoError(t, err)
		require.False(t, allow)
		require.Equal(t, time.Second+time.Nanosecond, retryAfter)
	}
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.AdmittedTotal))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.RejectedTotal))

	l.Record(true)
	l.Record(false)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.AdmittedTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.RejectedTotal))

	never, err := NewKeyedLimiter(makeConfig(0, 0), KeyedLimiterOpts{})
	require.NoError(t, err)
	require.True(t, never.NeverAdmits())
	require.True(t, never.CheckAndRegister("a"))
}

func TestKeyedLimiter_EvictedWindowIsMarkedRemoved(t *testing.T) {
	clock := newFakeClock()
	l, err := NewKeyedLimiter(makeConfig(1, time.Minute), KeyedLimiterOpts{MaxKeys: 1, Now: clock.Now})
	require.NoError(t, err)

	require.False(t, l.CheckAndRegister("a"))
	evicted := l.getWindow("a")
	require.False(t, evicted.removed)

	// The eviction waits for the check that holds the window lock, then marks the window removed.
	evicted.mu.Lock()
	finished := atomic.NewBool(false)
	done := make(chan bool)
	go func() {
		limited := l.CheckAndRegister("b") // evicts "a"
		finished.Store(true)
		done <- limited
	}()
	require.Never(t, finished.Load, 50*time.Millisecond, 5*time.Millisecond)
	require.False(t, evicted.removed)
	evicted.mu.Unlock()
	require.False(t, <-done)

	evicted.mu.Lock()
	require.True(t, evicted.removed, "eviction must mark the window removed")
	evicted.mu.Unlock()

	// "a" starts with a fresh window, the stale one is never used again.
	require.False(t, l.CheckAndRegister("a"))
	require.True(t, l.CheckAndRegister("a"))
	require.Equal(t, 1, evicted.limiter.Len())
}

func TestKeyedLimiter_Metrics(t *testing.T) {
	clock := newFakeClock()
	metrics := NewPrometheusMetrics()
	l, err := NewKeyedLimiter(makeConfig(2, time.Minute), KeyedLimiterOpts{
		MaxKeys: 10, Now: clock.Now, MetricsCollector: metrics})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		l.CheckAndRegister("key")
	}
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.AdmittedTotal))
	require.Equal(t, 3.0, testutil.ToFloat64(metrics.RejectedTotal))
}

func TestKeyedLimiter_Concurrency(t *testing.T) {
	const (
		maxMessages = 50
		keys        = 4
		workers     = 8
		perWorker   = 100
	)
	l, err := NewKeyedLimiter(makeConfig(maxMessages, time.Hour), KeyedLimiterOpts{MaxKeys: keys})
	require.NoError(t, err)

	var admitted, rejected atomic.Int32
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if l.CheckAndRegister("key-" + strconv.Itoa((w+i)%keys)) {
					rejected.Inc()
				} else {
					admitted.Inc()
				}
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, int32(maxMessages*keys), admitted.Load())
	require.Equal(t, int32(workers*perWorker-maxMessages*keys), rejected.Load())
}

func TestKeyedLimiter_ConcurrentSweep(t *testing.T) {
	clock := newFakeClock()
	l, err := NewKeyedLimiter(makeConfig(1000, time.Millisecond), KeyedLimiterOpts{MaxKeys: 100, Now: clock.Now})
	require.NoError(t, err)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				l.Sweep(clock.Now().Add(time.Second))
			}
		}
	}()
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if !l.CheckAndRegister("key") {
					admitted.Inc()
				}
			}
		}()
	}
	wg.Wait()
	close(stop)

	require.Equal(t, int32(800), admitted.Load())
}
