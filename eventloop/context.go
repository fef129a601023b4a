// File: eventloop/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handler contexts live in an index-addressed slice per session. The
// head sits at index 0 and the tail at the last index; user handlers are
// spliced in between.

package eventloop

import (
	"fmt"
	"io"

	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/stream"
)

// HandlerContext binds one handler to its position in a session pipeline.
type HandlerContext struct {
	session *Session
	handler Handler
	index   int
	removed bool
}

// Session returns the owning session.
func (c *HandlerContext) Session() *Session { return c.session }

// Handler returns the bound handler.
func (c *HandlerContext) Handler() Handler { return c.handler }

// Removed reports whether the context was spliced out of its pipeline.
func (c *HandlerContext) Removed() bool { return c.removed }

// next resolves the following context. A removed context keeps its last
// index, which now addresses the handler that followed it.
func (c *HandlerContext) next() *HandlerContext {
	p := c.session.pipeline
	i := c.index + 1
	if c.removed {
		i = c.index
	}
	if i < 0 || i >= len(p) {
		return nil
	}
	return p[i]
}

func (c *HandlerContext) prev() *HandlerContext {
	p := c.session.pipeline
	i := c.index - 1
	if i < 0 || i >= len(p) {
		return nil
	}
	return p[i]
}

// FireConnected forwards the connected event towards the tail.
func (c *HandlerContext) FireConnected() error {
	if n := c.next(); n != nil {
		return n.handler.OnConnected(n)
	}
	return nil
}

// FireRead forwards msg towards the tail.
func (c *HandlerContext) FireRead(msg any) error {
	if n := c.next(); n != nil {
		return n.handler.OnRead(n, msg)
	}
	return nil
}

// FireReadComplete forwards the read-complete event towards the tail.
func (c *HandlerContext) FireReadComplete() error {
	if n := c.next(); n != nil {
		return n.handler.OnReadComplete(n)
	}
	return nil
}

// FireFlushed forwards the flushed event towards the tail.
func (c *HandlerContext) FireFlushed() error {
	if n := c.next(); n != nil {
		return n.handler.OnFlushed(n)
	}
	return nil
}

// FireUserEvent forwards ev towards the tail.
func (c *HandlerContext) FireUserEvent(ev any) error {
	if n := c.next(); n != nil {
		return n.handler.OnUserEvent(n, ev)
	}
	return nil
}

// FireCause forwards cause towards the tail.
func (c *HandlerContext) FireCause(cause error) error {
	if n := c.next(); n != nil {
		return n.handler.OnCause(n, cause)
	}
	return nil
}

// Write passes msg towards the head. The head accepts []byte and string
// and appends them to the session output stream.
func (c *HandlerContext) Write(msg any) error {
	if p := c.prev(); p != nil {
		return p.handler.OnWrite(p, msg)
	}
	return nil
}

// Flush drains the session output stream.
func (c *HandlerContext) Flush() error { return c.session.Flush() }

// Close closes the session.
func (c *HandlerContext) Close() { c.session.Close() }

// Remove splices this context out of its pipeline.
func (c *HandlerContext) Remove() error { return c.session.RemoveHandler(c) }

// headHandler terminates the write direction.
type headHandler struct {
	HandlerAdapter
}

func (headHandler) OnWrite(ctx *HandlerContext, msg any) error {
	s := ctx.session
	if s.closed {
		return fmt.Errorf("write: %w", api.ErrClosed)
	}
	switch m := msg.(type) {
	case []byte:
		_, err := s.out.Write(m)
		return err
	case string:
		_, err := s.out.WriteString(m)
		return err
	case io.WriterTo:
		_, err := m.WriteTo(s.out)
		return err
	case *stream.OutputStream:
		// already buffered by an encoder
		return nil
	}
	return fmt.Errorf("write: unsupported message type %T", msg)
}

// tailHandler is the safety net of the read direction.
type tailHandler struct{}

func (tailHandler) OnConnected(*HandlerContext) error    { return nil }
func (tailHandler) OnReadComplete(*HandlerContext) error { return nil }
func (tailHandler) OnFlushed(*HandlerContext) error      { return nil }

func (tailHandler) OnRead(ctx *HandlerContext, msg any) error {
	if _, ok := msg.(*stream.InputStream); !ok {
		ctx.session.log.Trace("unhandled read message dropped", "type", fmt.Sprintf("%T", msg))
	}
	return nil
}

func (tailHandler) OnWrite(ctx *HandlerContext, msg any) error { return ctx.Write(msg) }

func (tailHandler) OnUserEvent(ctx *HandlerContext, ev any) error {
	ctx.session.log.Trace("unhandled user event", "event", ev)
	return nil
}

func (tailHandler) OnCause(ctx *HandlerContext, cause error) error {
	ctx.session.log.Warn("unhandled cause, closing session", "error", cause)
	ctx.session.Close()
	return nil
}
