//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based reactor implementation and factory.

package reactor

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// linuxReactor is a level-triggered epoll reactor.
type linuxReactor struct {
	epfd    int
	wakefd  int
	woken   atomic.Bool
	mu      sync.RWMutex // guards wakefd against Close
	closed  bool
	raw     []unix.EpollEvent
	wakeBuf [8]byte
}

// NewReactor constructs a new platform-specific EventReactor for Linux.
func NewReactor() (EventReactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	r := &linuxReactor{epfd: epfd, wakefd: wakefd}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add eventfd: %w", err)
	}
	return r, nil
}

func toEpoll(ops Interest) uint32 {
	var ev uint32
	if ops.Has(OpRead) {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if ops.Has(OpWrite) {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Register adds file descriptor to epoll.
func (r *linuxReactor) Register(fd int, ops Interest) error {
	ev := unix.EpollEvent{Events: toEpoll(ops), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

// Modify replaces the interest set of fd.
func (r *linuxReactor) Modify(fd int, ops Interest) error {
	ev := unix.EpollEvent{Events: toEpoll(ops), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// Unregister removes a file descriptor from the epoll watch list.
func (r *linuxReactor) Unregister(fd int) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Wait waits for epoll events and fills the result into events slice.
func (r *linuxReactor) Wait(events []Event, timeoutMs int) (int, error) {
	if len(r.raw) < len(events) {
		r.raw = make([]unix.EpollEvent, len(events))
	}
	if timeoutMs < 0 {
		timeoutMs = -1
	}
	n, err := unix.EpollWait(r.epfd, r.raw[:len(events)], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	out := 0
	for i := 0; i < n; i++ {
		raw := r.raw[i]
		if int(raw.Fd) == r.wakefd {
			r.drainWake()
			continue
		}
		var ready Ready
		if raw.Events&unix.EPOLLIN != 0 {
			ready |= ReadyRead
		}
		if raw.Events&unix.EPOLLOUT != 0 {
			ready |= ReadyWrite
		}
		if raw.Events&unix.EPOLLERR != 0 {
			ready |= ReadyError
		}
		if raw.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
			ready |= ReadyHangup
		}
		events[out] = Event{Fd: int(raw.Fd), Ready: ready}
		out++
	}
	return out, nil
}

// drainWake empties the eventfd before re-arming Wake. A Wake that
// lands in between is absorbed; its poster enqueued before waking, so the
// caller sees the message on this cycle.
func (r *linuxReactor) drainWake() {
	for {
		_, err := unix.Read(r.wakefd, r.wakeBuf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			break
		}
	}
	r.woken.Store(false)
}

// Wake interrupts a blocked Wait. Concurrent wakes coalesce into one
// eventfd write.
func (r *linuxReactor) Wake() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil
	}
	if !r.woken.CompareAndSwap(false, true) {
		return nil
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(r.wakefd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil
		}
		return err
	}
}

// Close closes the epoll instance and the wake descriptor.
func (r *linuxReactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	err1 := unix.Close(r.wakefd)
	err2 := unix.Close(r.epfd)
	if err1 != nil {
		return err1
	}
	return err2
}
