/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-msglimit/log/logtest"
)

func TestNewPeriodicUnit(t *testing.T) {
	_, err := NewPeriodicUnit("sweeper", 0, func(context.Context) error { return nil }, logtest.NewRecorder())
	require.EqualError(t, err, `interval of periodic unit "sweeper" should be positive, got 0s`)
}

func TestPeriodicUnit(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	var calls atomic.Int32
	u, err := NewPeriodicUnit("sweeper", 10*time.Millisecond, func(ctx context.Context) error {
		if calls.Inc() == 2 {
			return errors.New("sweep failed")
		}
		return nil
	}, logRecorder)
	require.NoError(t, err)

	started := make(chan struct{})
	go func() {
		u.Start(nil)
		close(started)
	}()
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, u.Stop(true))
	<-started
	callsAfterStop := calls.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, callsAfterStop, calls.Load())

	entry, found := logRecorder.FindEntry("periodic task failed")
	require.True(t, found)
	_, found = entry.FindField("unit")
	require.True(t, found)
}

func TestPeriodicUnit_StopBeforeStart(t *testing.T) {
	var calls atomic.Int32
	u, err := NewPeriodicUnit("sweeper", time.Millisecond, func(context.Context) error {
		calls.Inc()
		return nil
	}, logtest.NewRecorder())
	require.NoError(t, err)

	require.NoError(t, u.Stop(true))
	u.Start(nil) // returns immediately since the unit is already stopped
	require.Equal(t, int32(0), calls.Load())
}
