// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

// Ring is a bounded FIFO buffer. Pushing onto a full ring evicts the oldest
// entry. Storage grows on demand up to the capacity.
type Ring[T any] struct {
	items    []T
	start    int
	capacity int
}

// NewRing creates a ring holding at most capacity entries (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{capacity: capacity}
}

// Push appends v and reports whether an old entry was evicted.
func (r *Ring[T]) Push(v T) bool {
	if len(r.items) < r.capacity {
		r.items = append(r.items, v)
		return false
	}
	r.items[r.start] = v
	r.start = (r.start + 1) % r.capacity
	return true
}

// Len returns the number of stored entries.
func (r *Ring[T]) Len() int {
	return len(r.items)
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return r.capacity
}

// At returns the i-th entry, oldest first. It panics if i is out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= len(r.items) {
		panic("monitor: ring index out of range")
	}
	return r.items[(r.start+i)%len(r.items)]
}

// Items returns a copy of the entries, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, 0, len(r.items))
	for i := 0; i < len(r.items); i++ {
		out = append(out, r.At(i))
	}
	return out
}

// Reverse calls fn on each entry from newest to oldest until fn returns false.
func (r *Ring[T]) Reverse(fn func(T) bool) {
	for i := len(r.items) - 1; i >= 0; i-- {
		if !fn(r.At(i)) {
			return
		}
	}
}

// Reset drops all entries.
func (r *Ring[T]) Reset() {
	clear(r.items)
	r.items = r.items[:0]
	r.start = 0
}
