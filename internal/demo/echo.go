// File: internal/demo/echo.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package demo

import (
	"errors"
	"io"

	"github.com/hashicorp/go-hclog"
	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/eventloop"
	"github.com/momentics/hioload-nio/stream"
)

const copyChunk = 4096

// drain moves every readable byte of in to fn. It reports whether the
// peer has finished sending.
func drain(in *stream.InputStream, fn func([]byte) error) (bool, error) {
	var buf [copyChunk]byte
	for {
		n, err := in.Read(buf[:])
		if n > 0 {
			if werr := fn(buf[:n]); werr != nil {
				return false, werr
			}
		}
		switch {
		case errors.Is(err, api.ErrPending):
			return false, nil
		case errors.Is(err, io.EOF):
			return true, nil
		case err != nil:
			return false, err
		}
	}
}

// closeAfterFlush closes a session once its output stream has drained.
type closeAfterFlush struct {
	closing bool
}

func (c *closeAfterFlush) close(ctx *eventloop.HandlerContext) {
	if !ctx.Session().Out().HasRemaining() {
		ctx.Close()
		return
	}
	c.closing = true
}

func (c *closeAfterFlush) flushed(ctx *eventloop.HandlerContext) bool {
	if c.closing {
		ctx.Close()
		return true
	}
	return false
}

// Echo writes back every byte it reads and closes the session once the
// peer has finished sending and the echo has been flushed. Use one Echo
// per session.
type Echo struct {
	eventloop.HandlerAdapter
	Log  hclog.Logger
	done closeAfterFlush
}

func (e *Echo) OnConnected(ctx *eventloop.HandlerContext) error {
	if e.Log != nil {
		e.Log.Debug("echo connected", "session", ctx.Session().Name(), "remote", ctx.Session().RemoteAddr())
	}
	return ctx.FireConnected()
}

func (e *Echo) OnRead(ctx *eventloop.HandlerContext, msg any) error {
	in, ok := msg.(*stream.InputStream)
	if !ok {
		return ctx.FireRead(msg)
	}
	eof, err := drain(in, func(p []byte) error { return ctx.Write(p) })
	if err != nil {
		return err
	}
	if err := ctx.Flush(); err != nil {
		return err
	}
	if eof {
		e.done.close(ctx)
	}
	return nil
}

func (e *Echo) OnFlushed(ctx *eventloop.HandlerContext) error {
	if e.done.flushed(ctx) {
		return nil
	}
	return ctx.FireFlushed()
}

// EchoPipeline installs an echo handler.
func EchoPipeline(s *eventloop.Session) error {
	s.AddHandler(&Echo{Log: s.Loop().Logger()})
	return nil
}

// EchoClient sends Payload once connected and collects the reply. Done
// receives the reply when Payload has fully come back; the session is
// closed afterwards.
type EchoClient struct {
	eventloop.HandlerAdapter
	Payload []byte
	Done    chan<- []byte
	got     []byte
}

func (c *EchoClient) OnConnected(ctx *eventloop.HandlerContext) error {
	if err := ctx.Write(c.Payload); err != nil {
		return err
	}
	if err := ctx.Flush(); err != nil {
		return err
	}
	return ctx.FireConnected()
}

func (c *EchoClient) OnRead(ctx *eventloop.HandlerContext, msg any) error {
	in, ok := msg.(*stream.InputStream)
	if !ok {
		return ctx.FireRead(msg)
	}
	eof, err := drain(in, func(p []byte) error {
		c.got = append(c.got, p...)
		return nil
	})
	if err != nil {
		return err
	}
	if len(c.got) >= len(c.Payload) || eof {
		if c.Done != nil {
			c.Done <- c.got
		}
		ctx.Close()
	}
	return nil
}
