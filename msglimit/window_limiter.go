/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package msglimit

import (
	"time"

	"github.com/acronis/go-msglimit/config"
)

// WindowLimiter is a strict sliding-window rate limiter for messages.
// It is not safe for concurrent use, callers must serialize access (see KeyedLimiter).
type WindowLimiter struct {
	maxMessages   int
	countDuration time.Duration

	// Instants of admitted messages, oldest first.
	admitted timeRing
}

// NewWindowLimiter creates a new WindowLimiter.
// MaxMessages = 0 is valid and makes the limiter reject every message.
// Negative values return an error that wraps ErrInvalidConfiguration.
func NewWindowLimiter(cfg Config) (*WindowLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &WindowLimiter{
		maxMessages:   cfg.MaxMessages,
		countDuration: time.Duration(cfg.CountDuration),
		admitted:      newTimeRing(cfg.MaxMessages),
	}, nil
}

// MustNewWindowLimiter is a version of NewWindowLimiter that panics if an error occurs.
func MustNewWindowLimiter(cfg Config) *WindowLimiter {
	l, err := NewWindowLimiter(cfg)
	if err != nil {
		panic(err)
	}
	return l
}

// CheckAndRegister reports whether a message at now would exceed the rate (limited = true).
// If it would not, the message is registered as admitted.
//
// Instants older than now-CountDuration are pruned first. An instant equal to now-CountDuration
// is still inside the window. Calls must observe a non-decreasing clock.
func (l *WindowLimiter) CheckAndRegister(now time.Time) (limited bool) {
	l.admitted.dropFront(l.countStale(now))
	if l.admitted.len() < l.maxMessages {
		l.admitted.pushBack(now)
		return false
	}
	return true
}

// CheckNewMessage is CheckAndRegister for the current time.
func (l *WindowLimiter) CheckNewMessage() (limited bool) {
	return l.CheckAndRegister(time.Now())
}

// RetryAfter estimates how long after now one more message will be admitted.
// It returns 0 if a message at now would be admitted. The limiter is not modified.
// For MaxMessages = 0 nothing is ever admitted, CountDuration is returned as an advisory value.
func (l *WindowLimiter) RetryAfter(now time.Time) time.Duration {
	if l.maxMessages == 0 {
		return l.countDuration
	}
	n := l.admitted.len()
	if n-l.countStale(now) < l.maxMessages {
		return 0
	}
	// This instant has to become strictly older than the cutoff to free a slot.
	blocking := l.admitted.at(n - l.maxMessages)
	return blocking.Add(l.countDuration).Sub(now) + time.Nanosecond
}

// Len returns the number of registered instants, including the ones that are not pruned yet.
func (l *WindowLimiter) Len() int {
	return l.admitted.len()
}

// Config returns the configuration the limiter was created with.
func (l *WindowLimiter) Config() Config {
	return Config{MaxMessages: l.maxMessages, CountDuration: config.TimeDuration(l.countDuration)}
}

// idle reports whether no registered instant is inside the window at now,
// i.e. the limiter behaves exactly as a new one.
func (l *WindowLimiter) idle(now time.Time) bool {
	n := l.admitted.len()
	return n == 0 || l.admitted.at(n-1).Before(now.Add(-l.countDuration))
}

// countStale returns the number of leading instants strictly older than now-CountDuration.
// The scan stops at the first instant inside the window since the ring is time-ordered.
func (l *WindowLimiter) countStale(now time.Time) int {
	cutoff := now.Add(-l.countDuration)
	stale := 0
	for stale < l.admitted.len() && l.admitted.at(stale).Before(cutoff) {
		stale++
	}
	return stale
}
