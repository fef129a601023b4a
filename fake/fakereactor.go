// File: fake/fakereactor.go
// Author: momentics <momentics@gmail.com>

package fake

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-nio/reactor"
)

// Reactor records interest changes instead of polling the kernel.
// Wait returns events queued with Inject.
type Reactor struct {
	mu       sync.Mutex
	interest map[int]reactor.Interest
	pending  []reactor.Event
	wakes    int
	closed   bool
}

// NewReactor creates an empty fake reactor.
func NewReactor() *Reactor {
	return &Reactor{interest: make(map[int]reactor.Interest)}
}

var _ reactor.EventReactor = (*Reactor)(nil)

func (r *Reactor) Register(fd int, ops reactor.Interest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.interest[fd]; ok {
		return fmt.Errorf("fd %d already registered", fd)
	}
	r.interest[fd] = ops
	return nil
}

func (r *Reactor) Modify(fd int, ops reactor.Interest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.interest[fd]; !ok {
		return fmt.Errorf("fd %d not registered", fd)
	}
	r.interest[fd] = ops
	return nil
}

func (r *Reactor) Unregister(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.interest, fd)
	return nil
}

// Inject queues an event for the next Wait.
func (r *Reactor) Inject(ev reactor.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, ev)
}

func (r *Reactor) Wait(events []reactor.Event, _ int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := copy(events, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *Reactor) Wake() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wakes++
	return nil
}

func (r *Reactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Interest returns the recorded interest of fd and whether it is registered.
func (r *Reactor) Interest(fd int) (reactor.Interest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops, ok := r.interest[fd]
	return ops, ok
}

// Wakes counts Wake calls.
func (r *Reactor) Wakes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wakes
}
