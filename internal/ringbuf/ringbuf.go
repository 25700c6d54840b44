// Package ringbuf provides a fixed-capacity ring of bars that overwrites its
// oldest entry when full. It backs the rolling analysis window of each
// instrument and is not safe for concurrent use; callers hold their own lock.
package ringbuf

import "trendsys/internal/model"

// Ring keeps the most recent Cap() bars in arrival order.
type Ring struct {
	buf   []model.Bar
	head  int // index of the oldest bar
	count int

	overwritten uint64
}

// New creates a ring holding up to capacity bars. Minimum capacity is 1.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]model.Bar, capacity)}
}

// Push appends a bar, evicting the oldest one when the ring is full.
// Returns true if a bar was evicted.
func (r *Ring) Push(b model.Bar) bool {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = b
		r.count++
		return false
	}
	r.buf[r.head] = b
	r.head = (r.head + 1) % len(r.buf)
	r.overwritten++
	return true
}

// Last returns the newest bar.
func (r *Ring) Last() (model.Bar, bool) {
	if r.count == 0 {
		return model.Bar{}, false
	}
	return r.buf[(r.head+r.count-1)%len(r.buf)], true
}

// Slice copies the bars out, oldest first.
func (r *Ring) Slice() []model.Bar {
	out := make([]model.Bar, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Reset drops every bar but keeps the capacity.
func (r *Ring) Reset() {
	r.head, r.count = 0, 0
}

// Len returns the current number of bars.
func (r *Ring) Len() int { return r.count }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Overwritten returns the total number of bars evicted by Push.
func (r *Ring) Overwritten() uint64 { return r.overwritten }
