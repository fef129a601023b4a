// File: internal/demo/adder.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package demo

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/hioload-nio/eventloop"
	"github.com/momentics/hioload-nio/stream"
)

const operandSize = 8

// EndOfInput is decoded once the peer has finished sending. Trailing
// bytes short of a frame are dropped.
type EndOfInput struct{}

// AdderCodec frames big-endian int64 operands and sums.
type AdderCodec struct {
	frame [operandSize]byte
}

var _ eventloop.Codec = (*AdderCodec)(nil)

func (c *AdderCodec) Decode(_ *eventloop.HandlerContext, in *stream.InputStream, msgs []any) ([]any, error) {
	for in.Buffered() >= operandSize {
		if _, err := in.Read(c.frame[:]); err != nil {
			return msgs, err
		}
		msgs = append(msgs, int64(binary.BigEndian.Uint64(c.frame[:])))
	}
	if in.EOF() {
		msgs = append(msgs, EndOfInput{})
	}
	return msgs, nil
}

func (c *AdderCodec) Encode(_ *eventloop.HandlerContext, msg any, out *stream.OutputStream) error {
	v, ok := msg.(int64)
	if !ok {
		return fmt.Errorf("adder: cannot encode %T", msg)
	}
	binary.BigEndian.PutUint64(c.frame[:], uint64(v))
	_, err := out.Write(c.frame[:])
	return err
}

// Adder answers every pair of operands with their sum. Use one Adder per
// session.
type Adder struct {
	eventloop.HandlerAdapter
	first   int64
	pending bool
	done    closeAfterFlush
}

func (a *Adder) OnRead(ctx *eventloop.HandlerContext, msg any) error {
	switch v := msg.(type) {
	case EndOfInput:
		a.done.close(ctx)
		return nil
	case int64:
		if !a.pending {
			a.first, a.pending = v, true
			return nil
		}
		a.pending = false
		if err := ctx.Write(a.first + v); err != nil {
			return err
		}
		return ctx.Flush()
	}
	return ctx.FireRead(msg)
}

func (a *Adder) OnFlushed(ctx *eventloop.HandlerContext) error {
	if a.done.flushed(ctx) {
		return nil
	}
	return ctx.FireFlushed()
}

func (a *Adder) OnCause(ctx *eventloop.HandlerContext, _ error) error {
	ctx.Close()
	return nil
}

// AdderPipeline installs the server side of the adder protocol.
func AdderPipeline(s *eventloop.Session) error {
	s.AddHandler(eventloop.NewMessageCodec(&AdderCodec{}))
	s.AddHandler(&Adder{})
	return nil
}
