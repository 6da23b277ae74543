// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package ringbuffer provides a fixed-capacity, index-addressable
// sequence with O(1) append and amortized O(1) positional insert and
// remove. It backs every capacity-bounded telemetry collection.
package ringbuffer // import "github.com/spyglasshq/spyglass/internal/ringbuffer"

import (
	"errors"
	"fmt"
	"iter"
)

var (
	// ErrInvalidCapacity is returned by New for capacities < 1.
	ErrInvalidCapacity = errors.New("capacity must be positive")
	// ErrIndexOutOfRange is returned for indexes outside the logical range.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// RingBuffer is a bounded sequence addressed by logical index, where
// logical index 0 is the oldest element. Once the buffer is full,
// adding or inserting keeps the newest Cap() elements by logical
// position: the element at logical index 0 after the mutation is the
// one dropped. It is not safe for concurrent use.
type RingBuffer[T any] struct {
	items []T
	start int
	count int
}

// New returns a buffer holding at most capacity elements.
func New[T any](capacity int) (*RingBuffer[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	return &RingBuffer[T]{items: make([]T, capacity)}, nil
}

// Len returns the number of live elements.
func (b *RingBuffer[T]) Len() int {
	return b.count
}

// Cap returns the fixed capacity.
func (b *RingBuffer[T]) Cap() int {
	return len(b.items)
}

func (b *RingBuffer[T]) physical(logical int) int {
	return (b.start + logical) % len(b.items)
}

func (b *RingBuffer[T]) get(logical int) T {
	return b.items[b.physical(logical)]
}

func (b *RingBuffer[T]) set(logical int, v T) {
	b.items[b.physical(logical)] = v
}

// Add appends v at the logical end. When the buffer is full the oldest
// element (logical index 0) is evicted.
func (b *RingBuffer[T]) Add(v T) {
	if b.count == len(b.items) {
		b.items[b.start] = v
		b.start = (b.start + 1) % len(b.items)
		return
	}
	b.set(b.count, v)
	b.count++
}

// Insert places v before logical index, which may equal Len. The
// shorter adjacent half is shifted so the cost is O(min(index,
// Len-index)). When the buffer is full the mutation behaves as an
// insert followed by eviction of the oldest element, so an Insert at
// index 0 of a full buffer drops v itself.
func (b *RingBuffer[T]) Insert(index int, v T) error {
	if index < 0 || index > b.count {
		return fmt.Errorf("%w: insert at %d with length %d", ErrIndexOutOfRange, index, b.count)
	}
	if b.count == len(b.items) {
		if index == 0 {
			// v would become the oldest element and the eviction victim.
			return nil
		}
		var zero T
		b.items[b.start] = zero
		b.start = (b.start + 1) % len(b.items)
		b.count--
		index--
	}
	if index >= b.count-index {
		// Shift the tail right.
		for i := b.count; i > index; i-- {
			b.set(i, b.get(i-1))
		}
	} else {
		// Grow toward the front and shift the head left.
		b.start = (b.start - 1 + len(b.items)) % len(b.items)
		for i := 0; i < index; i++ {
			b.set(i, b.get(i+1))
		}
	}
	b.set(index, v)
	b.count++
	return nil
}

// RemoveAt deletes the element at the logical index, shifting the
// shorter adjacent half.
func (b *RingBuffer[T]) RemoveAt(index int) error {
	if index < 0 || index >= b.count {
		return fmt.Errorf("%w: remove at %d with length %d", ErrIndexOutOfRange, index, b.count)
	}
	var zero T
	if index <= b.count-index-1 {
		for i := index; i > 0; i-- {
			b.set(i, b.get(i-1))
		}
		b.set(0, zero)
		b.start = (b.start + 1) % len(b.items)
	} else {
		for i := index; i < b.count-1; i++ {
			b.set(i, b.get(i+1))
		}
		b.set(b.count-1, zero)
	}
	b.count--
	return nil
}

// At returns the element at the logical index.
func (b *RingBuffer[T]) At(index int) (T, error) {
	if index < 0 || index >= b.count {
		var zero T
		return zero, fmt.Errorf("%w: index %d with length %d", ErrIndexOutOfRange, index, b.count)
	}
	return b.get(index), nil
}

// Items returns a snapshot of all elements in logical order,
// oldest first.
func (b *RingBuffer[T]) Items() []T {
	out := make([]T, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.get(i)
	}
	return out
}

// All iterates the elements in logical order, oldest first. The buffer
// must not be mutated during iteration.
func (b *RingBuffer[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := 0; i < b.count; i++ {
			if !yield(b.get(i)) {
				return
			}
		}
	}
}
