package progress

import (
	"fmt"
	"sync"
)

// node represents an internal linked list node of the queue.
type node[T any] struct {
	value T
	next  *node[T]
}

// FallOffQueue is a thread-safe fixed capacity FIFO queue. When the queue is
// full, adding a new entry discards the oldest unread one instead of blocking
// the producer, so memory use stays bounded however slow the consumer is.
type FallOffQueue[T any] struct {
	capacity int

	mu      sync.Mutex
	head    *node[T]
	tail    *node[T]
	size    int
	dropped uint64
}

// NewFallOffQueue creates a new queue holding at most capacity entries.
// Returns an error if capacity is not positive.
func NewFallOffQueue[T any](capacity int) (*FallOffQueue[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid queue capacity: %d", capacity)
	}
	return &FallOffQueue[T]{capacity: capacity}, nil
}

// Add appends the value to the tail of the queue, discarding the head entry
// when the queue is at capacity.
func (q *FallOffQueue[T]) Add(value T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := &node[T]{value: value}
	if q.tail == nil {
		q.head = n
		q.tail = n
	} else {
		q.tail.next = n
		q.tail = n
	}
	q.size++

	if q.size > q.capacity {
		q.head = q.head.next
		q.size--
		q.dropped++
	}
}

// Poll removes and returns the oldest entry. The second return value is false
// if the queue is empty.
func (q *FallOffQueue[T]) Poll() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.head == nil {
		return zero, false
	}

	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.size--
	return n.value, true
}

// Drain removes and returns all entries in insertion order.
// Returns nil if the queue is empty.
func (q *FallOffQueue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == nil {
		return nil
	}

	values := make([]T, 0, q.size)
	for n := q.head; n != nil; n = n.next {
		values = append(values, n.value)
	}

	q.head = nil
	q.tail = nil
	q.size = 0
	return values
}

// Len returns the current number of entries.
func (q *FallOffQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the capacity of the queue.
func (q *FallOffQueue[T]) Cap() int {
	return q.capacity
}

// Dropped returns the number of entries discarded because the queue was full.
func (q *FallOffQueue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Clear removes all entries.
func (q *FallOffQueue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.head = nil
	q.tail = nil
	q.size = 0
}
