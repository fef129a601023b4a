// File: stream/output.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Channel-backed output stream. Memory buffering is capped per stream;
// the excess spills into file store regions until the backlog drains.

package stream

import (
	"fmt"

	"github.com/eapache/queue"
	"github.com/hashicorp/go-hclog"
	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/pool"
	"github.com/momentics/hioload-nio/store"
)

// OutputConfig bounds an OutputStream.
type OutputConfig struct {
	// MaxBuffers is the high-water mark: MaxBuffers-1 memory buffers plus
	// one overflow buffer. Must be at least 2 when a store is set.
	MaxBuffers int
	// SpinCount caps non-empty channel writes per Flush call.
	SpinCount int
}

// OutputStream queues written bytes in FIFO order across memory buffers,
// store regions and an overflow buffer, and drains them on Flush.
//
// While overflowing, new bytes go to the overflow buffer, which spills
// into regions when full. Flush drains memory first, then regions, then
// the overflow buffer, and leaves overflow mode once regions and the
// overflow buffer are both empty.
type OutputStream struct {
	ch         api.Channel
	pool       *pool.Pool
	store      *store.Store
	bufs       *queue.Queue // *pool.Buffer
	regions    *queue.Queue // *store.Region
	ovBuf      *pool.Buffer
	overflow   bool
	remaining  int64
	maxBuffers int
	spinCount  int
	closed     bool
	log        hclog.Logger
}

// NewOutputStream creates a stream writing to ch. st may be nil, in which
// case memory buffering is bounded only by the pool.
func NewOutputStream(ch api.Channel, p *pool.Pool, st *store.Store, cfg OutputConfig, logger hclog.Logger) (*OutputStream, error) {
	if st != nil && cfg.MaxBuffers < 2 {
		return nil, fmt.Errorf("%w: max write buffers %d must be at least 2", api.ErrInvalidConfig, cfg.MaxBuffers)
	}
	if cfg.SpinCount < 1 {
		return nil, fmt.Errorf("%w: write spin count %d must be positive", api.ErrInvalidConfig, cfg.SpinCount)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &OutputStream{
		ch:         ch,
		pool:       p,
		store:      st,
		bufs:       queue.New(),
		regions:    queue.New(),
		maxBuffers: cfg.MaxBuffers,
		spinCount:  cfg.SpinCount,
		log:        logger,
	}, nil
}

// Remaining returns unflushed bytes across memory and overflow storage.
func (s *OutputStream) Remaining() int64 { return s.remaining }

// HasRemaining reports whether Flush has work to do.
func (s *OutputStream) HasRemaining() bool { return s.remaining > 0 }

// Overflowing reports whether writes currently spill to the store.
func (s *OutputStream) Overflowing() bool { return s.overflow }

// MemoryBuffers returns the number of queued memory buffers, excluding
// the overflow buffer.
func (s *OutputStream) MemoryBuffers() int { return s.bufs.Length() }

// Regions returns the number of queued store regions.
func (s *OutputStream) Regions() int { return s.regions.Length() }

// Write queues p. It never touches the channel.
func (s *OutputStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("output: %w", api.ErrClosed)
	}
	written := 0
	for written < len(p) {
		var (
			n   int
			err error
		)
		if s.overflow {
			n, err = s.writeOverflow(p[written:])
		} else {
			n, err = s.writeMemory(p[written:])
		}
		written += n
		s.remaining += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// WriteByte implements io.ByteWriter.
func (s *OutputStream) WriteByte(c byte) error {
	_, err := s.Write([]byte{c})
	return err
}

// WriteString writes the bytes of str.
func (s *OutputStream) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

func (s *OutputStream) writeMemory(p []byte) (int, error) {
	var tail *pool.Buffer
	if n := s.bufs.Length(); n > 0 {
		tail = s.bufs.Get(-1).(*pool.Buffer)
	}
	if tail == nil || tail.Full() {
		if s.store != nil && s.bufs.Length() >= s.maxBuffers-1 {
			s.overflow = true
			s.log.Debug("entering overflow", "buffers", s.bufs.Length(), "remaining", s.remaining)
			return 0, nil
		}
		b, err := s.pool.Allocate()
		if err != nil {
			return 0, err
		}
		s.bufs.Add(b)
		tail = b
	}
	return tail.Write(p), nil
}

func (s *OutputStream) writeOverflow(p []byte) (int, error) {
	if s.ovBuf == nil {
		b, err := s.pool.Allocate()
		if err != nil {
			return 0, err
		}
		s.ovBuf = b
	}
	n := s.ovBuf.Write(p)
	if s.ovBuf.Full() {
		if err := s.spill(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// spill moves the overflow buffer into the tail region, allocating
// regions as they fill.
func (s *OutputStream) spill() error {
	for s.ovBuf.Len() > 0 {
		var r *store.Region
		if n := s.regions.Length(); n > 0 {
			r = s.regions.Get(-1).(*store.Region)
		}
		if r == nil || r.WriteRemaining() == 0 {
			nr, err := s.store.Allocate()
			if err != nil {
				return err
			}
			s.regions.Add(nr)
			r = nr
		}
		n, err := s.store.Write(r, s.ovBuf.Bytes())
		s.ovBuf.Skip(n)
		if err != nil {
			return err
		}
	}
	s.ovBuf.Clear()
	return nil
}

// Flush writes queued bytes to the channel and returns how many were
// written. It stops when the channel accepts nothing more or after
// SpinCount non-empty writes.
func (s *OutputStream) Flush() (int64, error) {
	if s.closed {
		return 0, fmt.Errorf("output: %w", api.ErrClosed)
	}
	var total int64
	spins := 0
	for spins < s.spinCount && s.bufs.Length() > 0 {
		h := s.bufs.Peek().(*pool.Buffer)
		n, err := s.ch.Write(h.Bytes())
		if n > 0 {
			h.Skip(n)
			total += int64(n)
			s.remaining -= int64(n)
			spins++
		}
		if h.Len() == 0 {
			s.bufs.Remove()
			h.Release()
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
	if s.bufs.Length() > 0 {
		s.bufs.Peek().(*pool.Buffer).Compact()
		return total, nil
	}
	if !s.overflow {
		return total, nil
	}

	for spins < s.spinCount && s.regions.Length() > 0 {
		r := s.regions.Peek().(*store.Region)
		n, err := s.store.TransferTo(r, r.ReadRemaining(), s.ch)
		if n > 0 {
			total += n
			s.remaining -= n
			spins++
		}
		if r.ReadRemaining() == 0 {
			s.regions.Remove()
			s.store.Release(r)
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
	if s.regions.Length() > 0 {
		return total, nil
	}

	for spins < s.spinCount && s.ovBuf != nil && s.ovBuf.Len() > 0 {
		n, err := s.ch.Write(s.ovBuf.Bytes())
		if n > 0 {
			s.ovBuf.Skip(n)
			total += int64(n)
			s.remaining -= int64(n)
			spins++
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	if s.ovBuf != nil && s.ovBuf.Len() > 0 {
		s.ovBuf.Compact()
		return total, nil
	}
	s.leaveOverflow()
	return total, nil
}

func (s *OutputStream) leaveOverflow() {
	if s.ovBuf != nil {
		s.ovBuf.Release()
		s.ovBuf = nil
	}
	s.overflow = false
	s.log.Debug("left overflow")
}

// Close releases all buffers and regions and half-closes the channel for
// writing. Unflushed bytes are dropped. It is idempotent.
func (s *OutputStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	for s.bufs.Length() > 0 {
		s.bufs.Remove().(*pool.Buffer).Release()
	}
	for s.regions.Length() > 0 {
		s.store.Release(s.regions.Remove().(*store.Region))
	}
	if s.ovBuf != nil {
		s.ovBuf.Release()
		s.ovBuf = nil
	}
	s.remaining = 0
	s.overflow = false
	return s.ch.ShutdownOutput()
}
