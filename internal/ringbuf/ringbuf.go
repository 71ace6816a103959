// Package ringbuf provides a fixed-capacity FIFO buffer that overwrites
// the oldest element when full.
//
// Every bounded history in the harness (recent compact events, recent
// errors, collection-get excerpts) is a Ring. Capacity is fixed at
// construction; Push never fails and never grows the buffer.
package ringbuf

import "sync"

// Ring is a fixed-capacity FIFO buffer. When a Push would exceed the
// capacity, the oldest element is evicted. Safe for concurrent use.
type Ring[T any] struct {
	mu    sync.Mutex
	items []T
	head  int // index of the oldest element
	size  int
}

// New creates a Ring with the given capacity. Panics if capacity < 1;
// a zero-capacity history is a configuration bug, not a runtime state.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		panic("ringbuf: capacity must be >= 1")
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends item, evicting the oldest element if the ring is full.
func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < len(r.items) {
		r.items[(r.head+r.size)%len(r.items)] = item
		r.size++
		return
	}
	// Full: overwrite the oldest slot and advance head.
	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
}

// Snapshot returns a copy of the buffered elements in insertion order,
// oldest first. The returned slice is owned by the caller.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}
