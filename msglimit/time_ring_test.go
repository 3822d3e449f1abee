/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package msglimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimeRing(t *testing.T) {
	base := time.Unix(0, 0)
	instant := func(i int) time.Time { return base.Add(time.Duration(i)) }

	ringItems := func(r *timeRing) []time.Time {
		items := make([]time.Time, 0, r.len())
		for i := 0; i < r.len(); i++ {
			items = append(items, r.at(i))
		}
		return items
	}

	t.Run("push and drop without growth", func(t *testing.T) {
		r := newTimeRing(3)
		r.pushBack(instant(1))
		r.pushBack(instant(2))
		r.pushBack(instant(3))
		r.dropFront(2)
		r.pushBack(instant(4))
		r.pushBack(instant(5)) // wraps around
		require.Equal(t, []time.Time{instant(3), instant(4), instant(5)}, ringItems(&r))
		require.Len(t, r.buf, 3)
	})

	t.Run("grow keeps order after wrap", func(t *testing.T) {
		r := newTimeRing(2)
		r.pushBack(instant(1))
		r.pushBack(instant(2))
		r.dropFront(1)
		r.pushBack(instant(3))
		r.pushBack(instant(4))
		require.Equal(t, []time.Time{instant(2), instant(3), instant(4)}, ringItems(&r))
		require.Len(t, r.buf, 4)
	})

	t.Run("zero capacity", func(t *testing.T) {
		r := newTimeRing(0)
		r.dropFront(1)
		require.Equal(t, 0, r.len())
		r.pushBack(instant(7))
		require.Equal(t, []time.Time{instant(7)}, ringItems(&r))
	})

	t.Run("drop more than len", func(t *testing.T) {
		r := newTimeRing(4)
		r.pushBack(instant(1))
		r.dropFront(10)
		require.Equal(t, 0, r.len())
		r.dropFront(0)
		require.Equal(t, 0, r.len())
	})
}
