// File: internal/demo/heartbeat.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package demo

import (
	"bytes"

	"github.com/hashicorp/go-hclog"
	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/eventloop"
	"github.com/momentics/hioload-nio/stream"
)

var (
	ping = []byte("ping")
	pong = []byte("pong")
)

// HeartbeatServer answers each ping with a pong and closes on anything
// else. Use one HeartbeatServer per session.
type HeartbeatServer struct {
	eventloop.HandlerAdapter
	done closeAfterFlush
}

func (h *HeartbeatServer) OnRead(ctx *eventloop.HandlerContext, msg any) error {
	in, ok := msg.(*stream.InputStream)
	if !ok {
		return ctx.FireRead(msg)
	}
	var word [4]byte
	for in.Buffered() >= len(word) {
		if _, err := in.Read(word[:]); err != nil {
			return err
		}
		if !bytes.EqualFold(word[:], ping) {
			ctx.Close()
			return nil
		}
		if err := ctx.Write(pong); err != nil {
			return err
		}
	}
	if err := ctx.Flush(); err != nil {
		return err
	}
	if in.EOF() {
		h.done.close(ctx)
	}
	return nil
}

func (h *HeartbeatServer) OnFlushed(ctx *eventloop.HandlerContext) error {
	if h.done.flushed(ctx) {
		return nil
	}
	return ctx.FireFlushed()
}

// HeartbeatClient pings whenever the peer has been silent for the read
// idle time and gives up once nothing could be written for the write
// idle time. OnPong, if set, runs for every pong received.
type HeartbeatClient struct {
	eventloop.HandlerAdapter
	Log    hclog.Logger
	OnPong func(s *eventloop.Session)
}

func (c *HeartbeatClient) OnRead(ctx *eventloop.HandlerContext, msg any) error {
	in, ok := msg.(*stream.InputStream)
	if !ok {
		return ctx.FireRead(msg)
	}
	var word [4]byte
	for in.Buffered() >= len(word) {
		if _, err := in.Read(word[:]); err != nil {
			return err
		}
		if c.Log != nil {
			c.Log.Info("heartbeat received", "session", ctx.Session().Name(), "msg", string(word[:]))
		}
		if c.OnPong != nil && bytes.Equal(word[:], pong) {
			c.OnPong(ctx.Session())
		}
	}
	return nil
}

func (c *HeartbeatClient) OnUserEvent(ctx *eventloop.HandlerContext, ev any) error {
	state, ok := ev.(api.IdleState)
	if !ok {
		return ctx.FireUserEvent(ev)
	}
	if state == api.WriteIdle {
		if c.Log != nil {
			c.Log.Info("write idle, closing", "session", ctx.Session().Name())
		}
		ctx.Close()
		return nil
	}
	if err := ctx.Write(ping); err != nil {
		return err
	}
	return ctx.Flush()
}

func (c *HeartbeatClient) OnCause(ctx *eventloop.HandlerContext, cause error) error {
	if c.Log != nil {
		c.Log.Warn("uncaught error", "session", ctx.Session().Name(), "error", cause)
	}
	ctx.Close()
	return nil
}

// HeartbeatPipeline installs the server side of the heartbeat protocol.
func HeartbeatPipeline(s *eventloop.Session) error {
	s.AddHandler(&HeartbeatServer{})
	return nil
}
