// File: eventloop/idle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package eventloop

import (
	"time"

	"github.com/momentics/hioload-nio/api"
)

// IdleStateHandler fires api.ReadIdle and api.WriteIdle user events when a
// session sees no completed read or flush for the configured time. It is
// installed first in every pipeline.
type IdleStateHandler struct {
	HandlerAdapter
	ctx       *HandlerContext
	readIdle  time.Duration
	writeIdle time.Duration
	readTask  *TimeTask
	writeTask *TimeTask
}

// NewIdleStateHandler creates a handler; zero or negative times disable
// the matching check.
func NewIdleStateHandler(readIdle, writeIdle time.Duration) *IdleStateHandler {
	return &IdleStateHandler{readIdle: readIdle, writeIdle: writeIdle}
}

func (h *IdleStateHandler) OnConnected(ctx *HandlerContext) error {
	if h.ctx == nil {
		h.ctx = ctx
		h.schedule(api.ReadIdle)
		h.schedule(api.WriteIdle)
	}
	return ctx.FireConnected()
}

func (h *IdleStateHandler) OnReadComplete(ctx *HandlerContext) error {
	h.refresh(h.readTask, h.readIdle)
	return ctx.FireReadComplete()
}

func (h *IdleStateHandler) OnFlushed(ctx *HandlerContext) error {
	h.refresh(h.writeTask, h.writeIdle)
	return ctx.FireFlushed()
}

func (h *IdleStateHandler) ReadIdleTime() time.Duration  { return h.readIdle }
func (h *IdleStateHandler) WriteIdleTime() time.Duration { return h.writeIdle }

// SetReadIdleTime restarts the read check with d, or cancels it when d
// is zero or less.
func (h *IdleStateHandler) SetReadIdleTime(d time.Duration) {
	h.readIdle = d
	h.schedule(api.ReadIdle)
}

// SetWriteIdleTime restarts the write check with d, or cancels it when d
// is zero or less.
func (h *IdleStateHandler) SetWriteIdleTime(d time.Duration) {
	h.writeIdle = d
	h.schedule(api.WriteIdle)
}

func (h *IdleStateHandler) refresh(t *TimeTask, d time.Duration) {
	if t == nil || d <= 0 {
		return
	}
	t.SetExecuteTime(h.ctx.session.loop.clock.Now().Add(d))
}

// schedule is a no-op until the session is connected.
func (h *IdleStateHandler) schedule(state api.IdleState) {
	if h.ctx == nil {
		return
	}
	task, idle := &h.readTask, h.readIdle
	if state == api.WriteIdle {
		task, idle = &h.writeTask, h.writeIdle
	}
	s := h.ctx.session
	switch {
	case idle <= 0:
		if *task != nil {
			s.Cancel(*task)
			*task = nil
		}
	case *task == nil:
		t := NewTimeTask(idle, idle, func() { h.fire(state) })
		if err := s.Schedule(t); err == nil {
			*task = t
		}
	default:
		(*task).period = idle
		(*task).SetExecuteTime(s.loop.clock.Now().Add(idle))
	}
}

func (h *IdleStateHandler) fire(state api.IdleState) {
	s := h.ctx.session
	s.dispatch(func() error { return h.OnUserEvent(h.ctx, state) })
}
