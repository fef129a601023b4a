// File: internal/concurrency/mailbox.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

// Waker interrupts the owner of a Mailbox while it is blocked.
type Waker interface {
	Wake() error
}

// Mailbox carries messages from any goroutine to a single owner. Every
// successful Post wakes the owner.
type Mailbox[T any] struct {
	q     *LockFreeQueue[T]
	waker Waker
}

// NewMailbox creates a mailbox of the given capacity.
func NewMailbox[T any](capacity int, w Waker) *Mailbox[T] {
	return &Mailbox[T]{q: NewLockFreeQueue[T](capacity), waker: w}
}

// Post enqueues msg and wakes the owner. It returns false when full.
func (m *Mailbox[T]) Post(msg T) bool {
	if !m.q.Enqueue(msg) {
		return false
	}
	if m.waker != nil {
		_ = m.waker.Wake()
	}
	return true
}

// Drain hands every queued message to fn on the calling goroutine and
// returns how many were delivered.
func (m *Mailbox[T]) Drain(fn func(T)) int {
	n := 0
	for {
		msg, ok := m.q.Dequeue()
		if !ok {
			return n
		}
		fn(msg)
		n++
	}
}

// Len is a racy size estimate.
func (m *Mailbox[T]) Len() int { return m.q.Len() }
