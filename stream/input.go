// File: stream/input.go
// Package stream
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Channel-backed input stream over pooled buffers with a bounded read
// window.

package stream

import (
	"errors"
	"fmt"
	"io"

	"github.com/eapache/queue"
	"github.com/hashicorp/go-hclog"
	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/pool"
)

// InputStream buffers bytes read from a channel. At most maxBuffers pool
// buffers are held; once they are full the channel is not read again
// until the consumer frees one.
type InputStream struct {
	ch         api.Channel
	pool       *pool.Pool
	bufs       *queue.Queue // *pool.Buffer, oldest first
	buffered   int
	maxBuffers int
	eof        bool
	closed     bool

	markBuf   *pool.Buffer
	markIdx   int
	markLimit int
	markLeft  int

	onReadComplete func() error
	onWindowOpen   func()
	log            hclog.Logger
}

// NewInputStream creates a stream reading from ch into buffers from p.
func NewInputStream(ch api.Channel, p *pool.Pool, maxBuffers int, logger hclog.Logger) (*InputStream, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := &InputStream{
		ch:   ch,
		pool: p,
		bufs: queue.New(),
		log:  logger,
	}
	if err := s.SetMaxBuffers(maxBuffers); err != nil {
		return nil, err
	}
	return s, nil
}

// OnReadComplete installs the hook run after an Available pass changed
// the buffered byte count. Its error is returned by Available.
func (s *InputStream) OnReadComplete(fn func() error) { s.onReadComplete = fn }

// OnWindowOpen installs the hook run when consuming bytes frees a slot
// in a saturated read window.
func (s *InputStream) OnWindowOpen(fn func()) { s.onWindowOpen = fn }

// MaxBuffers returns the read window size in buffers.
func (s *InputStream) MaxBuffers() int { return s.maxBuffers }

// SetMaxBuffers resizes the read window. Buffers already queued are kept.
func (s *InputStream) SetMaxBuffers(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: max read buffers %d must be positive", api.ErrInvalidConfig, n)
	}
	s.maxBuffers = n
	return nil
}

func (s *InputStream) head() *pool.Buffer { return s.bufs.Peek().(*pool.Buffer) }
func (s *InputStream) tail() *pool.Buffer { return s.bufs.Get(-1).(*pool.Buffer) }

// Saturated reports whether the read window is full.
func (s *InputStream) Saturated() bool {
	return s.bufs.Length() >= s.maxBuffers && s.tail().Full()
}

// Buffered returns readable bytes without touching the channel.
func (s *InputStream) Buffered() int { return s.buffered }

// EOF reports whether the peer finished sending. It never resets.
func (s *InputStream) EOF() bool { return s.eof }

// Available reads from the channel until it has nothing more, reaches
// end of stream, or the read window fills, and returns the buffered
// byte count.
func (s *InputStream) Available() (int, error) {
	if s.closed {
		return 0, fmt.Errorf("input: %w", api.ErrClosed)
	}
	if s.eof {
		return s.buffered, nil
	}
	before := s.buffered
	err := s.fill()
	if s.buffered != before && s.onReadComplete != nil {
		if herr := s.onReadComplete(); herr != nil && err == nil {
			err = herr
		}
	}
	return s.buffered, err
}

func (s *InputStream) fill() error {
	for {
		var dst *pool.Buffer
		fresh := false
		if s.bufs.Length() > 0 && !s.tail().Full() {
			dst = s.tail()
		} else {
			if s.bufs.Length() >= s.maxBuffers && s.dropMarkedHead() {
				continue
			}
			if s.bufs.Length() >= s.maxBuffers {
				s.log.Trace("read window full", "buffers", s.bufs.Length(), "buffered", s.buffered)
				return nil
			}
			b, err := s.pool.Allocate()
			if err != nil {
				if errors.Is(err, api.ErrBufferExhausted) && s.buffered > 0 {
					// let the consumer drain what is already queued
					s.log.Debug("pool exhausted, read deferred", "buffered", s.buffered)
					return nil
				}
				return err
			}
			dst, fresh = b, true
		}
		n, err := s.ch.Read(dst.Writable())
		if n > 0 {
			dst.Advance(n)
			s.buffered += n
		}
		if fresh {
			if n > 0 {
				s.bufs.Add(dst)
			} else {
				dst.Release()
			}
		}
		switch {
		case errors.Is(err, io.EOF):
			s.eof = true
			return nil
		case err != nil:
			return err
		case n == 0:
			return nil
		}
	}
}

// Read drains buffered bytes into p. With nothing buffered it polls the
// channel once; it returns api.ErrPending if still nothing is readable
// and io.EOF at end of stream.
func (s *InputStream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("input: %w", api.ErrClosed)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.buffered == 0 {
		if _, err := s.Available(); err != nil {
			return 0, err
		}
		if s.buffered == 0 {
			if s.eof {
				return 0, io.EOF
			}
			return 0, api.ErrPending
		}
	}
	wasSaturated := s.Saturated()
	n := 0
	for n < len(p) && s.buffered > 0 {
		h := s.head()
		if h.Len() == 0 {
			s.dropHead()
			continue
		}
		m := h.Read(p[n:])
		n += m
		s.buffered -= m
		s.consumeMark(m)
	}
	s.releaseDrained()
	s.windowCheck(wasSaturated)
	return n, nil
}

// ReadByte implements io.ByteReader with the same pending semantics as Read.
func (s *InputStream) ReadByte() (byte, error) {
	var one [1]byte
	if _, err := s.Read(one[:]); err != nil {
		return 0, err
	}
	return one[0], nil
}

// Next reads one byte, telling "nothing yet" apart from end of stream.
func (s *InputStream) Next() api.Result[byte] {
	b, err := s.ReadByte()
	switch {
	case err == nil:
		return api.Ready(b)
	case errors.Is(err, api.ErrPending):
		return api.Pending[byte]()
	case errors.Is(err, io.EOF):
		return api.EOF[byte]()
	}
	return api.Failed[byte](err)
}

// Skip discards up to n buffered bytes and returns how many were skipped.
func (s *InputStream) Skip(n int) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("input: %w", api.ErrClosed)
	}
	if n <= 0 {
		return 0, nil
	}
	if _, err := s.Available(); err != nil {
		return 0, err
	}
	wasSaturated := s.Saturated()
	done := 0
	for done < n && s.buffered > 0 {
		h := s.head()
		if h.Len() == 0 {
			s.dropHead()
			continue
		}
		m := min(h.Len(), n-done)
		h.Skip(m)
		done += m
		s.buffered -= m
		s.consumeMark(m)
	}
	s.releaseDrained()
	s.windowCheck(wasSaturated)
	return done, nil
}

// Mark remembers the current position in the head buffer. Reset may
// rewind to it while at most limit bytes have been consumed and the
// head buffer is still the same.
func (s *InputStream) Mark(limit int) {
	s.markBuf = nil
	if s.bufs.Length() == 0 {
		return
	}
	h := s.head()
	s.markBuf = h
	s.markIdx = h.ReadIndex()
	s.markLimit = limit
	s.markLeft = limit
}

// Reset rewinds to the last mark or fails with api.ErrInvalidMark.
func (s *InputStream) Reset() error {
	if s.markBuf == nil || s.bufs.Length() == 0 || s.head() != s.markBuf {
		s.markBuf = nil
		return api.ErrInvalidMark
	}
	h := s.head()
	s.buffered += h.ReadIndex() - s.markIdx
	h.SetReadIndex(s.markIdx)
	s.markLeft = s.markLimit
	return nil
}

func (s *InputStream) consumeMark(n int) {
	if s.markBuf == nil {
		return
	}
	s.markLeft -= n
	if s.markLeft < 0 {
		s.markBuf = nil
	}
}

func (s *InputStream) dropHead() {
	h := s.bufs.Remove().(*pool.Buffer)
	if h == s.markBuf {
		s.markBuf = nil
	}
	h.Release()
}

// releaseDrained returns fully consumed head buffers to the pool. A
// drained head holding a live mark is kept only while the window has a
// free slot besides it.
func (s *InputStream) releaseDrained() {
	for s.bufs.Length() > 0 {
		h := s.head()
		if h.Len() > 0 {
			return
		}
		if h == s.markBuf && s.bufs.Length() < s.maxBuffers {
			return
		}
		s.dropHead()
	}
}

// dropMarkedHead frees a drained head kept for a mark, invalidating the
// mark. It reports whether a slot was freed.
func (s *InputStream) dropMarkedHead() bool {
	h := s.head()
	if h.Len() > 0 || h != s.markBuf {
		return false
	}
	s.log.Trace("mark dropped to reopen read window")
	s.dropHead()
	return true
}

func (s *InputStream) windowCheck(wasSaturated bool) {
	if wasSaturated && s.onWindowOpen != nil && !s.Saturated() {
		s.onWindowOpen()
	}
}

// Close releases all buffers and half-closes the channel for reading.
// It is idempotent.
func (s *InputStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	for s.bufs.Length() > 0 {
		s.bufs.Remove().(*pool.Buffer).Release()
	}
	s.buffered = 0
	s.markBuf = nil
	return s.ch.ShutdownInput()
}
