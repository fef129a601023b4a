// File: eventloop/codec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package eventloop

import (
	"fmt"

	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/stream"
)

// Codec converts between the byte streams of a session and messages.
type Codec interface {
	// Decode appends every complete message readable from in to msgs.
	// Partial input must be left in the stream.
	Decode(ctx *HandlerContext, in *stream.InputStream, msgs []any) ([]any, error)
	// Encode writes msg to out.
	Encode(ctx *HandlerContext, msg any, out *stream.OutputStream) error
}

// MessageCodec is a pipeline stage driving a Codec. Inbound input streams
// are decoded and each message is forwarded as its own read event;
// outbound messages are encoded straight into the session output stream.
type MessageCodec struct {
	HandlerAdapter
	codec Codec
	msgs  []any
}

func NewMessageCodec(c Codec) *MessageCodec {
	return &MessageCodec{codec: c}
}

func (m *MessageCodec) OnRead(ctx *HandlerContext, msg any) error {
	in, ok := msg.(*stream.InputStream)
	if !ok {
		return ctx.FireRead(msg)
	}
	msgs, err := m.codec.Decode(ctx, in, m.msgs[:0])
	defer func() {
		clear(msgs)
		m.msgs = msgs[:0]
	}()
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	for _, decoded := range msgs {
		if err := ctx.FireRead(decoded); err != nil {
			return err
		}
	}
	return nil
}

func (m *MessageCodec) OnWrite(ctx *HandlerContext, msg any) error {
	if _, ok := msg.(*stream.OutputStream); ok {
		return ctx.Write(msg)
	}
	s := ctx.Session()
	if !s.IsOpen() {
		return fmt.Errorf("encode: %w", api.ErrClosed)
	}
	if err := m.codec.Encode(ctx, msg, s.Out()); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}
