// Package ring provides a fixed capacity FIFO used as the scheduler's ready
// queue. It never grows and never allocates after construction.
package ring

import "errors"

// ErrFull is returned by Enqueue when the ring holds Cap items.
var ErrFull = errors.New("ring: full")

// Ring is a bounded circular FIFO. It is not safe for concurrent use.
type Ring[T any] struct {
	items []T
	head  int
	count int
}

// New creates a ring holding at most capacity items.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Enqueue appends item at the tail.
func (r *Ring[T]) Enqueue(item T) error {
	if r.count == len(r.items) {
		return ErrFull
	}
	r.items[(r.head+r.count)%len(r.items)] = item
	r.count++
	return nil
}

// Dequeue removes the head item; ok is false when the ring is empty.
func (r *Ring[T]) Dequeue() (item T, ok bool) {
	if r.count == 0 {
		return item, false
	}
	var zero T
	item = r.items[r.head]
	r.items[r.head] = zero
	r.head = (r.head + 1) % len(r.items)
	r.count--
	return item, true
}

// Count returns the number of queued items.
func (r *Ring[T]) Count() int { return r.count }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.items) }

// Items returns the queued items in FIFO order.
func (r *Ring[T]) Items() []T {
	result := make([]T, 0, r.count)
	for i := 0; i < r.count; i++ {
		result = append(result, r.items[(r.head+i)%len(r.items)])
	}
	return result
}

// Reset drops every queued item.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head, r.count = 0, 0
}
