/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether one more message for the key may be delivered now.
// If not, retryAfter estimates when the next message will be admitted.
type Limiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}

// LimiterFunc is an adapter to allow the use of ordinary functions as Limiter.
type LimiterFunc func(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)

// Allow calls f(ctx, key).
func (f LimiterFunc) Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	return f(ctx, key)
}

// RecordingLimiter is a Limiter that counts its decisions (e.g. in metrics).
// Processor checks messages with Check, which doesn't count anything, and reports
// the final decision about every message exactly once with Record, even if the message
// was checked several times while waiting in the backlog.
type RecordingLimiter interface {
	Limiter
	Check(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
	Record(admitted bool)
}

// NeverAdmitter is implemented by limiters that may be configured to reject every message.
// Processor doesn't backlog messages for such limiters.
type NeverAdmitter interface {
	NeverAdmits() bool
}
