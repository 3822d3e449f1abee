/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/acronis/go-msglimit/lrucache"
)

// DefaultBacklogTimeout is how long a message may wait in the backlog by default.
const DefaultBacklogTimeout = time.Second * 5

// MinBacklogRetryDelay is the lower bound of the delay between checks of a backlogged message.
const MinBacklogRetryDelay = time.Millisecond * 10

// Params describes the rate limiting decision for a message.
type Params struct {
	Key                 string
	Backlogged          bool
	EstimatedRetryAfter time.Duration
}

// Handler abstracts a message (e.g. an HTTP request) that goes through the rate limiting.
type Handler interface {
	// Context returns the message context. Waiting in the backlog is interrupted when it's done.
	Context() context.Context

	// Key returns the rate limiting key of the message.
	// If bypass is true, the message is delivered without consulting the limiter.
	Key() (key string, bypass bool, err error)

	// Deliver processes the admitted message.
	Deliver() error

	// OnReject is called when the message exceeds the rate.
	OnReject(params Params) error

	// OnError is called when the rate limiting itself fails.
	OnError(params Params, err error) error
}

// BacklogParams configures the backlog of rejected messages.
type BacklogParams struct {
	// MaxKeys is the maximum number of keys with own backlogs. Zero means a single shared backlog.
	MaxKeys int
	// Limit is the backlog capacity per key. Zero disables backlogging.
	// Backlogging is disabled as well if the limiter is a NeverAdmitter that never admits.
	Limit int
	// Timeout is the maximum waiting time in the backlog. DefaultBacklogTimeout is used if zero.
	Timeout time.Duration
}

// Processor applies a Limiter to messages.
type Processor struct {
	check          func(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
	record         func(admitted bool)
	backlogs       func(key string) chan struct{}
	backlogTimeout time.Duration
}

// NewProcessor creates a new Processor.
func NewProcessor(limiter Limiter, backlogParams BacklogParams) (*Processor, error) {
	if backlogParams.Limit < 0 {
		return nil, fmt.Errorf("backlog limit should not be negative, got %d", backlogParams.Limit)
	}
	if backlogParams.MaxKeys < 0 {
		return nil, fmt.Errorf("max keys for backlog should not be negative, got %d", backlogParams.MaxKeys)
	}
	if backlogParams.Timeout < 0 {
		return nil, fmt.Errorf("backlog timeout should not be negative, got %s", backlogParams.Timeout)
	}

	p := &Processor{check: limiter.Allow, record: func(bool) {}, backlogTimeout: backlogParams.Timeout}
	if rl, ok := limiter.(RecordingLimiter); ok {
		p.check, p.record = rl.Check, rl.Record
	}
	if p.backlogTimeout == 0 {
		p.backlogTimeout = DefaultBacklogTimeout
	}
	if na, ok := limiter.(NeverAdmitter); ok && na.NeverAdmits() {
		backlogParams.Limit = 0
	}
	if backlogParams.Limit > 0 {
		backlogs, err := newBacklogs(backlogParams.Limit, backlogParams.MaxKeys)
		if err != nil {
			return nil, err
		}
		p.backlogs = backlogs
	}
	return p, nil
}

// Process delivers the message if the limiter admits it (possibly after waiting in the backlog)
// and calls the handler's OnReject or OnError otherwise.
func (p *Processor) Process(h Handler) error {
	key, bypass, err := h.Key()
	if err != nil {
		return h.OnError(Params{Key: key}, fmt.Errorf("get key for rate limit: %w", err))
	}
	if bypass {
		return h.Deliver()
	}

	allow, retryAfter, err := p.check(h.Context(), key)
	if err != nil {
		return h.OnError(Params{Key: key}, fmt.Errorf("rate limit: %w", err))
	}
	if allow {
		p.record(true)
		return h.Deliver()
	}
	if p.backlogs == nil {
		p.record(false)
		return h.OnReject(Params{Key: key, EstimatedRetryAfter: retryAfter})
	}
	return p.wait(h, key, retryAfter)
}

func (p *Processor) wait(h Handler, key string, retryAfter time.Duration) error {
	slots := p.backlogs(key)
	select {
	case slots <- struct{}{}:
	default:
		p.record(false)
		return h.OnReject(Params{Key: key, EstimatedRetryAfter: retryAfter})
	}

	// The slot is released before calling the handler, so its duration doesn't hold the backlog.
	occupied := true
	release := func() {
		if occupied {
			<-slots
			occupied = false
		}
	}
	defer release()

	ctx := h.Context()
	deadline := time.NewTimer(p.backlogTimeout)
	defer deadline.Stop()
	retry := time.NewTimer(backlogRetryDelay(retryAfter))
	defer retry.Stop()

	for {
		select {
		case <-deadline.C:
			release()
			p.record(false)
			return h.OnReject(Params{Key: key, Backlogged: true, EstimatedRetryAfter: retryAfter})
		case <-ctx.Done():
			release()
			p.record(false)
			return h.OnError(Params{Key: key, Backlogged: true, EstimatedRetryAfter: retryAfter}, ctx.Err())
		case <-retry.C:
		}

		allow, nextRetryAfter, err := p.check(ctx, key)
		if err != nil {
			release()
			return h.OnError(Params{Key: key, Backlogged: true, EstimatedRetryAfter: retryAfter},
				fmt.Errorf("rate limit: %w", err))
		}
		if allow {
			release()
			p.record(true)
			return h.Deliver()
		}
		retryAfter = nextRetryAfter
		retry.Reset(backlogRetryDelay(retryAfter)) // retry.C is drained, so Reset is safe.
	}
}

func backlogRetryDelay(retryAfter time.Duration) time.Duration {
	if retryAfter < MinBacklogRetryDelay {
		return MinBacklogRetryDelay
	}
	return retryAfter
}

func newBacklogs(limit, maxKeys int) (func(key string) chan struct{}, error) {
	if maxKeys == 0 {
		shared := make(chan struct{}, limit)
		return func(string) chan struct{} { return shared }, nil
	}
	store, err := lrucache.New[string, chan struct{}](maxKeys, nil)
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for backlogs: %w", err)
	}
	return func(key string) chan struct{} {
		slots, _ := store.GetOrAdd(key, func() chan struct{} { return make(chan struct{}, limit) })
		return slots
	}, nil
}
