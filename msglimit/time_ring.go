/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package msglimit

import "time"

// timeRing is a FIFO of instants stored in a circular buffer.
// Dropping from the front only advances the head index.
type timeRing struct {
	buf  []time.Time
	head int
	size int
}

func newTimeRing(capacity int) timeRing {
	return timeRing{buf: make([]time.Time, capacity)}
}

func (r *timeRing) len() int {
	return r.size
}

// at returns the i-th instant counting from the oldest one. i must be in [0, len).
func (r *timeRing) at(i int) time.Time {
	return r.buf[(r.head+i)%len(r.buf)]
}

func (r *timeRing) pushBack(t time.Time) {
	if r.size == len(r.buf) {
		r.grow()
	}
	r.buf[(r.head+r.size)%len(r.buf)] = t
	r.size++
}

func (r *timeRing) dropFront(n int) {
	if n <= 0 {
		return
	}
	if n >= r.size {
		r.head, r.size = 0, 0
		return
	}
	r.head = (r.head + n) % len(r.buf)
	r.size -= n
}

func (r *timeRing) grow() {
	newCap := 2 * len(r.buf)
	if newCap == 0 {
		newCap = 1
	}
	newBuf := make([]time.Time, newCap)
	for i := 0; i < r.size; i++ {
		newBuf[i] = r.at(i)
	}
	r.buf, r.head = newBuf, 0
}
