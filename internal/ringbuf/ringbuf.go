// Package ringbuf provides a fixed-capacity, overwrite-oldest ring buffer of
// model.Bar used as the per-symbol bar history. It is not safe for concurrent
// use; the owner serializes access.
package ringbuf

import "charting-systemv1/internal/model"

// Ring keeps the newest Cap() bars in insertion order. Pushing onto a full
// ring overwrites the oldest element.
type Ring struct {
	buf   []model.Bar
	start int // index of the oldest element
	n     int

	// Evicted counts bars overwritten since creation (for metrics).
	evicted uint64
}

// New creates a ring holding at most capacity bars. Minimum capacity is 1.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]model.Bar, capacity)}
}

// Push appends b. If the ring was full the oldest bar is dropped and
// returned with evicted=true.
func (r *Ring) Push(b model.Bar) (old model.Bar, evicted bool) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = b
		r.n++
		return model.Bar{}, false
	}
	old = r.buf[r.start]
	r.buf[r.start] = b
	r.start = (r.start + 1) % len(r.buf)
	r.evicted++
	return old, true
}

// Last returns the newest bar, or false if the ring is empty.
func (r *Ring) Last() (model.Bar, bool) {
	if r.n == 0 {
		return model.Bar{}, false
	}
	return r.buf[(r.start+r.n-1)%len(r.buf)], true
}

// ReplaceLast overwrites the newest bar. Returns false on an empty ring.
func (r *Ring) ReplaceLast(b model.Bar) bool {
	if r.n == 0 {
		return false
	}
	r.buf[(r.start+r.n-1)%len(r.buf)] = b
	return true
}

// At returns the i-th oldest bar (0 = oldest). Panics when out of range,
// like a slice index.
func (r *Ring) At(i int) model.Bar {
	if i < 0 || i >= r.n {
		panic("ringbuf: index out of range")
	}
	return r.buf[(r.start+i)%len(r.buf)]
}

// Snapshot returns a freshly allocated, oldest-first copy of the contents.
func (r *Ring) Snapshot() []model.Bar {
	out := make([]model.Bar, r.n)
	first := r.buf[r.start:min(r.start+r.n, len(r.buf))]
	k := copy(out, first)
	copy(out[k:], r.buf[:r.n-k])
	return out
}

// Len returns the current number of bars.
func (r *Ring) Len() int { return r.n }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Evicted returns the total number of bars dropped by Push on a full ring.
func (r *Ring) Evicted() uint64 { return r.evicted }
