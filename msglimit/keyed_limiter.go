/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package msglimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/acronis/go-msglimit/lrucache"
)

// KeyedLimiterOpts represents options for KeyedLimiter.
type KeyedLimiterOpts struct {
	// MaxKeys is the maximum number of keys with own windows.
	// When exceeded, the window of the least recently used key is forgotten together with its history,
	// so the next message of that key starts a new empty window.
	// A check that is in progress for the evicted key finishes before the eviction completes,
	// later checks of the key use the new window only.
	// Zero means that all keys share a single window.
	MaxKeys int

	// Now returns the current time. time.Now is used by default.
	Now func() time.Time

	// MetricsCollector receives admitted and rejected decisions. Metrics are disabled if nil.
	MetricsCollector MetricsCollector

	// CacheMetricsCollector collects the metrics of the keys store. Metrics are disabled if nil.
	CacheMetricsCollector lrucache.MetricsCollector
}

type keyedWindow struct {
	mu      sync.Mutex
	limiter *WindowLimiter
	removed bool // by Sweep or LRU eviction
}

// KeyedLimiter limits messages in a separate sliding window for every key.
// It is safe for concurrent use: calls for the same key are serialized.
type KeyedLimiter struct {
	cfg              Config
	now              func() time.Time
	metricsCollector MetricsCollector

	single *keyedWindow
	store  *lrucache.LRUCache[string, *keyedWindow]
}

// NewKeyedLimiter creates a new KeyedLimiter.
func NewKeyedLimiter(cfg Config, opts KeyedLimiterOpts) (*KeyedLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxKeys < 0 {
		return nil, fmt.Errorf("max keys should not be negative, got %d", opts.MaxKeys)
	}

	l := &KeyedLimiter{cfg: cfg, now: opts.Now, metricsCollector: opts.MetricsCollector}
	if l.now == nil {
		l.now = time.Now
	}
	if l.metricsCollector == nil {
		l.metricsCollector = disabledMetrics{}
	}

	if opts.MaxKeys == 0 {
		l.single = l.newWindow()
		return l, nil
	}
	store, err := lrucache.NewWithOpts[string, *keyedWindow](opts.MaxKeys, lrucache.Opts[string, *keyedWindow]{
		MetricsCollector: opts.CacheMetricsCollector,
		OnEvict: func(_ string, w *keyedWindow) {
			w.mu.Lock()
			w.removed = true
			w.mu.Unlock()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for keys: %w", err)
	}
	l.store = store
	return l, nil
}

// Allow registers a message for the key if it fits into the key's window and counts the decision in metrics.
// If the message is rejected, retryAfter estimates when the next one will be admitted.
// It never returns an error, the signature follows the limiter contract of the middleware.
func (l *KeyedLimiter) Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	allow, retryAfter, _ = l.Check(ctx, key)
	l.Record(allow)
	return allow, retryAfter, nil
}

// Check is Allow that doesn't touch metrics.
// It's used when a message may be checked several times (e.g. while it waits in a backlog),
// the final decision about the message is then counted once with Record.
func (l *KeyedLimiter) Check(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	limited, retryAfter := l.checkAndRegister(key)
	if limited {
		return false, retryAfter, nil
	}
	return true, 0, nil
}

// Record counts the final decision about a message in metrics.
func (l *KeyedLimiter) Record(admitted bool) {
	if admitted {
		l.metricsCollector.IncAdmitted()
		return
	}
	l.metricsCollector.IncRejected()
}

// NeverAdmits reports whether the limiter rejects every message (MaxMessages is zero),
// so waiting for the window capacity is pointless.
func (l *KeyedLimiter) NeverAdmits() bool {
	return l.cfg.MaxMessages == 0
}

// CheckAndRegister is a concurrency-safe version of WindowLimiter.CheckAndRegister for the key's window.
// The current time is taken from the configured clock.
func (l *KeyedLimiter) CheckAndRegister(key string) (limited bool) {
	allow, _, _ := l.Allow(context.Background(), key)
	return !allow
}

func (l *KeyedLimiter) checkAndRegister(key string) (limited bool, retryAfter time.Duration) {
	for {
		w := l.getWindow(key)
		w.mu.Lock()
		if w.removed {
			// Removed after it was fetched, the store already has (or will create) a fresh one.
			w.mu.Unlock()
			continue
		}
		// The time is taken under the lock so instants are registered in non-decreasing order.
		now := l.now()
		if limited = w.limiter.CheckAndRegister(now); limited {
			retryAfter = w.limiter.RetryAfter(now)
		}
		w.mu.Unlock()
		return limited, retryAfter
	}
}

// Sweep forgets the windows that have no messages inside [now-CountDuration, now].
// Such windows behave exactly as new ones, so only memory is reclaimed.
// It returns the number of forgotten keys.
func (l *KeyedLimiter) Sweep(now time.Time) int {
	if l.store == nil {
		return 0
	}
	return l.store.RemoveIf(func(_ string, w *keyedWindow) bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.limiter.idle(now) {
			w.removed = true
		}
		return w.removed
	})
}

// RunPeriodicSweep calls Sweep with the given interval until ctx is done.
// It's supposed to be run in a separate goroutine. The interval should be positive,
// otherwise an error is returned right away.
func (l *KeyedLimiter) RunPeriodicSweep(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sweep interval should be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Sweep(l.now())
		}
	}
}

// KeysCount returns the number of keys that have own windows.
func (l *KeyedLimiter) KeysCount() int {
	if l.store == nil {
		return 0
	}
	return l.store.Len()
}

func (l *KeyedLimiter) getWindow(key string) *keyedWindow {
	if l.store == nil {
		return l.single
	}
	w, _ := l.store.GetOrAdd(key, l.newWindow)
	return w
}

func (l *KeyedLimiter) newWindow() *keyedWindow {
	return &keyedWindow{limiter: MustNewWindowLimiter(l.cfg)} // cfg is validated in the constructor
}
