// File: api/channel.go
// Author: momentics <momentics@gmail.com>
//
// Byte channel contract consumed by the buffered streams.

package api

// Channel is a non-blocking, half-closable byte stream.
//
// Read returns (0, nil) when no bytes are ready and io.EOF once the peer
// has shut down its side. Write returns (0, nil) when the kernel buffer is
// full. Neither call ever blocks.
type Channel interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ShutdownInput() error
	ShutdownOutput() error
	Close() error
}

// FdChannel is implemented by channels backed by a kernel descriptor.
// The file store uses it for zero-copy sendfile transfers.
type FdChannel interface {
	Channel
	Fd() int
}
