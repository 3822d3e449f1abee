/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-msglimit/log"
)

// PeriodicUnit is a Unit that runs a task with a fixed interval (e.g. sweeping idle rate limiting windows).
// Errors of the task are logged and don't stop the unit.
type PeriodicUnit struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context) error
	logger   log.FieldLogger

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	done    chan struct{}
}

var _ Unit = (*PeriodicUnit)(nil)

// NewPeriodicUnit creates a new PeriodicUnit.
func NewPeriodicUnit(name string, interval time.Duration, task func(ctx context.Context) error, logger log.FieldLogger) (*PeriodicUnit, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval of periodic unit %q should be positive, got %s", name, interval)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PeriodicUnit{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger.With(log.String("unit", name)),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// Start runs the task every interval until the unit is stopped.
func (u *PeriodicUnit) Start(_ chan<- error) {
	if !u.started.CompareAndSwap(false, true) {
		return
	}
	defer close(u.done)
	defer func() {
		if p := recover(); p != nil {
			stack := make([]byte, 8192)
			stack = stack[:runtime.Stack(stack, false)]
			u.logger.Error(fmt.Sprintf("panic: %+v", p), log.Bytes("stack", stack))
			panic(p)
		}
	}()

	u.logger.Info("periodic unit started", log.Duration("interval", u.interval))
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		select {
		case <-u.ctx.Done():
			u.logger.Info("periodic unit stopped")
			return
		case <-ticker.C:
		}
		if u.ctx.Err() != nil {
			u.logger.Info("periodic unit stopped")
			return
		}
		if err := u.task(u.ctx); err != nil {
			u.logger.Error("periodic task failed", log.Error(err))
		}
	}
}

// Stop stops the unit. If gracefully is true, it waits for the running task to finish.
func (u *PeriodicUnit) Stop(gracefully bool) error {
	u.cancel()
	if gracefully && u.started.Load() {
		<-u.done
	}
	return nil
}
