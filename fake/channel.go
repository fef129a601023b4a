// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the core interfaces.

package fake

import (
	"bytes"
	"io"
	"sync"

	"github.com/momentics/hioload-nio/api"
)

// Channel is an in-memory api.Channel. Input is fed by the test, output
// is captured. A per-call write limit simulates a slow peer.
type Channel struct {
	mu         sync.Mutex
	in         bytes.Buffer
	out        bytes.Buffer
	eof        bool
	writeLimit int
	readErr    error
	writeErr   error
	writes     int
	inShut     bool
	outShut    bool
	closed     bool
}

// NewChannel creates a channel accepting unlimited writes.
func NewChannel() *Channel {
	return &Channel{writeLimit: -1}
}

var _ api.Channel = (*Channel)(nil)

// Feed appends bytes for the reader.
func (c *Channel) Feed(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.in.Write(p)
}

// FeedEOF makes reads return io.EOF once pending input is drained.
func (c *Channel) FeedEOF() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eof = true
}

// SetWriteLimit caps bytes accepted per Write call; 0 blocks all writes,
// negative removes the cap.
func (c *Channel) SetWriteLimit(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeLimit = n
}

// SetReadError makes the next reads fail.
func (c *Channel) SetReadError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// SetWriteError makes the next writes fail.
func (c *Channel) SetWriteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Read implements api.Channel.
func (c *Channel) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.inShut {
		return 0, api.ErrClosed
	}
	if c.readErr != nil {
		return 0, c.readErr
	}
	if c.in.Len() == 0 {
		if c.eof {
			return 0, io.EOF
		}
		return 0, nil
	}
	return c.in.Read(p)
}

// Write implements api.Channel.
func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.outShut {
		return 0, api.ErrClosed
	}
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	n := len(p)
	if c.writeLimit >= 0 && n > c.writeLimit {
		n = c.writeLimit
	}
	c.out.Write(p[:n])
	if n > 0 {
		c.writes++
	}
	return n, nil
}

// Written returns a copy of everything written so far.
func (c *Channel) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.out.Bytes()...)
}

// Discard drops captured output.
func (c *Channel) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out.Reset()
}

// Writes counts non-empty Write calls.
func (c *Channel) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// Pending returns unread input bytes.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.in.Len()
}

func (c *Channel) ShutdownInput() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inShut = true
	return nil
}

func (c *Channel) ShutdownOutput() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outShut = true
	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// InputShutdown reports whether ShutdownInput was called.
func (c *Channel) InputShutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inShut
}

// OutputShutdown reports whether ShutdownOutput was called.
func (c *Channel) OutputShutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outShut
}

// Closed reports whether Close was called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
