// File: internal/concurrency/lock_free_queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded MPMC queue using per-cell sequence numbers (Vyukov).

package concurrency

import "sync/atomic"

const cacheLinePad = 64

type cell[T any] struct {
	sequence atomic.Uint64
	data     T
}

// LockFreeQueue is a bounded multi-producer multi-consumer queue.
type LockFreeQueue[T any] struct {
	head  atomic.Uint64
	_     [cacheLinePad]byte
	tail  atomic.Uint64
	_     [cacheLinePad]byte
	mask  uint64
	cells []cell[T]
}

// NewLockFreeQueue creates a queue with capacity rounded up to a power of two.
func NewLockFreeQueue[T any](capacity int) *LockFreeQueue[T] {
	size := 2
	for size < capacity {
		size <<= 1
	}
	q := &LockFreeQueue[T]{
		mask:  uint64(size - 1),
		cells: make([]cell[T], size),
	}
	for i := range q.cells {
		q.cells[i].sequence.Store(uint64(i))
	}
	return q
}

// Enqueue adds val; returns false if full.
func (q *LockFreeQueue[T]) Enqueue(val T) bool {
	for {
		pos := q.tail.Load()
		c := &q.cells[pos&q.mask]
		dif := int64(c.sequence.Load()) - int64(pos)
		switch {
		case dif == 0:
			if q.tail.CompareAndSwap(pos, pos+1) {
				c.data = val
				c.sequence.Store(pos + 1)
				return true
			}
		case dif < 0:
			return false
		}
	}
}

// Dequeue removes and returns an item; ok false if empty.
func (q *LockFreeQueue[T]) Dequeue() (item T, ok bool) {
	for {
		pos := q.head.Load()
		c := &q.cells[pos&q.mask]
		dif := int64(c.sequence.Load()) - int64(pos+1)
		switch {
		case dif == 0:
			if q.head.CompareAndSwap(pos, pos+1) {
				item = c.data
				var zero T
				c.data = zero
				c.sequence.Store(pos + q.mask + 1)
				return item, true
			}
		case dif < 0:
			return item, false
		}
	}
}

// Cap returns the fixed capacity.
func (q *LockFreeQueue[T]) Cap() int { return len(q.cells) }

// Len is a racy size estimate for metrics.
func (q *LockFreeQueue[T]) Len() int {
	n := int64(q.tail.Load()) - int64(q.head.Load())
	if n < 0 {
		return 0
	}
	return int(n)
}
