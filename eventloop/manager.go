// File: eventloop/manager.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package eventloop

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/momentics/hioload-nio/api"
)

// sessionManager is the fixed slot table of one role.
type sessionManager struct {
	loop   *EventLoop
	role   api.Role
	name   string
	slots  []*Session
	active int
	nextID uint64
	init   Initializer
	log    hclog.Logger
}

func newSessionManager(l *EventLoop, role api.Role, maxConns int, init Initializer) *sessionManager {
	name := fmt.Sprintf("%s-%s", l.name, role)
	return &sessionManager{
		loop:  l,
		role:  role,
		name:  name,
		slots: make([]*Session, maxConns),
		init:  init,
		log:   l.log.Named("session-manager." + role.String()),
	}
}

// allocate admits c as a new session. A non-nil cause, a failed socket
// setup or a full table routes an error through the new session's cause
// pipeline and closes it. The session is returned either way, or nil
// when it could not be built at all.
func (m *sessionManager) allocate(c conn, cause error) *Session {
	m.nextID++
	s, err := newSession(m, m.nextID, c)
	if err != nil {
		m.log.Error("session setup failed", "error", err)
		_ = c.Close()
		return nil
	}
	s.idle = NewIdleStateHandler(m.loop.readTimeout, m.loop.writeTimeout)
	s.AddHandler(s.idle)

	if m.init != nil {
		if err := guard(func() error { return m.init(s) }); err != nil {
			s.log.Error("session initializer failed", "error", err)
			s.Close()
			return nil
		}
	}
	if cause != nil {
		s.fireCause(cause)
		s.Close()
		return s
	}
	if err := c.SetOptions(); err != nil {
		s.fireCause(fmt.Errorf("socket options: %w", err))
		s.Close()
		return s
	}

	slot := m.freeSlot()
	if slot < 0 {
		m.loop.metrics.SessionRejected(m.role.String())
		s.log.Debug("session table full", "max_conns", len(m.slots))
		s.fireCause(api.Wrap(api.ErrCodeSessionExhausted, api.ErrSessionExhausted).
			WithContext("role", m.role.String()).
			WithContext("max_conns", len(m.slots)))
		s.Close()
		return s
	}
	m.slots[slot] = s
	s.slot = slot
	m.active++
	m.loop.metrics.SessionOpened(m.role.String())

	s.wantRead = m.loop.cfg.AutoRead
	if err := s.register(); err != nil {
		s.fireCause(err)
		s.Close()
		return s
	}
	s.log.Debug("session opened", "remote", s.RemoteAddr())
	s.fireConnected()
	return s
}

func (m *sessionManager) freeSlot() int {
	for i, s := range m.slots {
		if s == nil || s.closed {
			return i
		}
	}
	return -1
}

// release frees the slot only while it still holds s.
func (m *sessionManager) release(s *Session) {
	if s.slot < 0 || s.slot >= len(m.slots) || m.slots[s.slot] != s {
		return
	}
	m.slots[s.slot] = nil
	s.slot = -1
	m.active--
	m.loop.metrics.SessionClosed(m.role.String())
}

// Active returns the number of occupied slots.
func (m *sessionManager) Active() int { return m.active }

func (m *sessionManager) allClosed() bool { return m.active == 0 }

func (m *sessionManager) closeAll() {
	for _, s := range m.slots {
		if s != nil {
			s.Close()
		}
	}
}

func (m *sessionManager) each(fn func(*Session)) {
	for _, s := range m.slots {
		if s != nil && !s.closed {
			fn(s)
		}
	}
}
