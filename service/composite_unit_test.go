/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCompositeUnit_StartAndStop(t *testing.T) {
	units := []*mockUnit{newMockUnit("a"), newMockUnit("b"), newMockUnit("c")}
	units[1].stopErr = errors.New("b: stop error")
	cu := NewCompositeUnit(units[0], units[1], units[2])

	fatalErr := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		cu.Start(fatalErr)
		close(started)
	}()
	require.Eventually(t, func() bool {
		for _, u := range units {
			if u.running.Load() != 1 {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond)

	cu.MustRegisterMetrics()
	err := cu.Stop(true)
	require.EqualError(t, err, "b: stop error")
	<-started
	require.Empty(t, fatalErr)

	cu.UnregisterMetrics()
	for _, u := range units {
		require.Equal(t, int32(1), u.gracefulStops.Load(), u.name)
		require.Equal(t, int32(1), u.registerCalls.Load(), u.name)
		require.Equal(t, int32(1), u.unregisterCalls.Load(), u.name)
	}
}

func TestCompositeUnit_UnitFails(t *testing.T) {
	ok := newMockUnit("ok")
	failing := newMockUnit("failing")
	failing.startErr = errors.New("failing: cannot listen")
	cu := NewCompositeUnit(ok, failing)

	fatalErr := make(chan error, 1)
	cu.Start(fatalErr)

	err := <-fatalErr
	require.EqualError(t, err, "failing: cannot listen")
	require.Equal(t, int32(1), ok.stopCalls.Load())
	require.Equal(t, int32(0), ok.gracefulStops.Load())
	require.Equal(t, int32(0), ok.running.Load())
}
