// File: eventloop/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package eventloop

// Handler receives session events. Each method either forwards through
// ctx or returns to end propagation. A returned error or a panic is
// turned into a cause event fired from the pipeline head.
type Handler interface {
	OnConnected(ctx *HandlerContext) error
	OnRead(ctx *HandlerContext, msg any) error
	OnReadComplete(ctx *HandlerContext) error
	OnWrite(ctx *HandlerContext, msg any) error
	OnFlushed(ctx *HandlerContext) error
	OnUserEvent(ctx *HandlerContext, ev any) error
	OnCause(ctx *HandlerContext, cause error) error
}

// HandlerAdapter forwards every event unchanged. Embed it and override
// the events a handler cares about.
type HandlerAdapter struct{}

func (HandlerAdapter) OnConnected(ctx *HandlerContext) error { return ctx.FireConnected() }

func (HandlerAdapter) OnRead(ctx *HandlerContext, msg any) error { return ctx.FireRead(msg) }

func (HandlerAdapter) OnReadComplete(ctx *HandlerContext) error { return ctx.FireReadComplete() }

func (HandlerAdapter) OnWrite(ctx *HandlerContext, msg any) error { return ctx.Write(msg) }

func (HandlerAdapter) OnFlushed(ctx *HandlerContext) error { return ctx.FireFlushed() }

func (HandlerAdapter) OnUserEvent(ctx *HandlerContext, ev any) error { return ctx.FireUserEvent(ev) }

func (HandlerAdapter) OnCause(ctx *HandlerContext, cause error) error { return ctx.FireCause(cause) }

var _ Handler = HandlerAdapter{}

// Initializer installs handlers on a freshly admitted session. It runs
// once per session, before the connected event. An error or panic closes
// the session.
type Initializer func(s *Session) error

// EventLoopListener observes the loop goroutine lifecycle. Init runs on
// the loop goroutine before the first cycle, Destroy after cleanup.
type EventLoopListener interface {
	Init(l *EventLoop)
	Destroy(l *EventLoop)
}

// ListenerFuncs adapts plain functions to EventLoopListener. Nil fields
// are skipped.
type ListenerFuncs struct {
	OnInit    func(l *EventLoop)
	OnDestroy func(l *EventLoop)
}

func (f ListenerFuncs) Init(l *EventLoop) {
	if f.OnInit != nil {
		f.OnInit(l)
	}
}

func (f ListenerFuncs) Destroy(l *EventLoop) {
	if f.OnDestroy != nil {
		f.OnDestroy(l)
	}
}
