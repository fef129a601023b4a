// File: eventloop/session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package eventloop

import (
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/reactor"
	"github.com/momentics/hioload-nio/stream"
)

// conn is the socket surface a session needs.
type conn interface {
	api.Channel
	Fd() int
	SetOptions() error
	FinishConnect() error
	LocalAddr() *net.TCPAddr
	RemoteAddr() *net.TCPAddr
}

// Session is the runtime state of one connection. All methods must be
// called on the loop goroutine, normally from inside a handler or a time
// task.
type Session struct {
	id      uint64
	name    string
	role    api.Role
	conn    conn
	loop    *EventLoop
	manager *sessionManager
	slot    int

	interest   reactor.Interest
	registered bool
	wantRead   bool
	wantWrite  bool
	readPaused bool

	in       *stream.InputStream
	out      *stream.OutputStream
	pipeline []*HandlerContext
	idle     *IdleStateHandler
	tasks    map[*TimeTask]struct{}
	closed   bool
	log      hclog.Logger
}

func newSession(m *sessionManager, id uint64, c conn) (*Session, error) {
	l := m.loop
	s := &Session{
		id:      id,
		name:    fmt.Sprintf("%s-%d", m.name, id),
		role:    m.role,
		conn:    c,
		loop:    l,
		manager: m,
		slot:    -1,
		tasks:   make(map[*TimeTask]struct{}),
	}
	s.log = m.log.With("session", s.name)

	in, err := stream.NewInputStream(c, l.pool, l.cfg.MaxReadBuffers, s.log.Named("stream"))
	if err != nil {
		return nil, err
	}
	out, err := stream.NewOutputStream(c, l.pool, l.store, stream.OutputConfig{
		MaxBuffers: l.cfg.MaxWriteBuffers,
		SpinCount:  l.cfg.WriteSpinCount,
	}, s.log.Named("stream"))
	if err != nil {
		return nil, err
	}
	in.OnReadComplete(func() error {
		s.fireReadComplete()
		return nil
	})
	in.OnWindowOpen(s.resumeRead)
	s.in, s.out = in, out

	head := &HandlerContext{session: s, handler: headHandler{}, index: 0}
	tail := &HandlerContext{session: s, handler: tailHandler{}, index: 1}
	s.pipeline = []*HandlerContext{head, tail}
	return s, nil
}

func (s *Session) ID() uint64       { return s.id }
func (s *Session) Name() string     { return s.name }
func (s *Session) Role() api.Role   { return s.role }
func (s *Session) Loop() *EventLoop { return s.loop }

// In returns the input stream handed to read handlers.
func (s *Session) In() *stream.InputStream { return s.in }

// Out returns the output stream fed by the pipeline head.
func (s *Session) Out() *stream.OutputStream { return s.out }

func (s *Session) LocalAddr() *net.TCPAddr  { return s.conn.LocalAddr() }
func (s *Session) RemoteAddr() *net.TCPAddr { return s.conn.RemoteAddr() }

// IsOpen reports whether the session has not been closed.
func (s *Session) IsOpen() bool { return !s.closed }

// IsShutdown reports whether the owning loop is shutting down.
func (s *Session) IsShutdown() bool { return s.loop.IsShutdown() }

// AddHandler appends h in front of the tail and returns its context.
func (s *Session) AddHandler(h Handler) *HandlerContext {
	at := len(s.pipeline) - 1
	ctx := &HandlerContext{session: s, handler: h}
	s.pipeline = append(s.pipeline, nil)
	copy(s.pipeline[at+1:], s.pipeline[at:])
	s.pipeline[at] = ctx
	s.reindex(at)
	return ctx
}

// RemoveHandler splices ctx out. The head and tail cannot be removed.
func (s *Session) RemoveHandler(ctx *HandlerContext) error {
	if ctx == nil || ctx.session != s || ctx.removed {
		return errors.New("handler context not in this pipeline")
	}
	if ctx.index <= 0 || ctx.index >= len(s.pipeline)-1 {
		return errors.New("pipeline head and tail cannot be removed")
	}
	at := ctx.index
	s.pipeline = append(s.pipeline[:at], s.pipeline[at+1:]...)
	ctx.removed = true
	s.reindex(at)
	return nil
}

// Handlers lists user handlers in pipeline order.
func (s *Session) Handlers() []Handler {
	hs := make([]Handler, 0, len(s.pipeline)-2)
	for _, c := range s.pipeline[1 : len(s.pipeline)-1] {
		hs = append(hs, c.handler)
	}
	return hs
}

func (s *Session) reindex(from int) {
	for i := from; i < len(s.pipeline); i++ {
		s.pipeline[i].index = i
	}
}

func (s *Session) head() *HandlerContext { return s.pipeline[0] }
func (s *Session) tail() *HandlerContext { return s.pipeline[len(s.pipeline)-1] }

// Write sends msg through the pipeline from the tail towards the head.
// Bytes are only buffered; call Flush to send them.
func (s *Session) Write(msg any) error {
	if s.closed {
		return fmt.Errorf("write: %w", api.ErrClosed)
	}
	return s.tail().Write(msg)
}

// Flush drains the output stream as far as the socket allows. Leftover
// bytes keep write interest on so the loop resumes flushing when the
// socket drains. A complete flush fires the flushed event.
func (s *Session) Flush() error {
	if s.closed {
		return fmt.Errorf("flush: %w", api.ErrClosed)
	}
	if s.out.HasRemaining() {
		if _, err := s.out.Flush(); err != nil {
			s.wantWrite = false
			_ = s.updateInterest()
			return err
		}
		if s.out.HasRemaining() {
			s.wantWrite = true
			return s.updateInterest()
		}
	}
	s.wantWrite = false
	if err := s.updateInterest(); err != nil {
		return err
	}
	s.fireFlushed()
	return nil
}

func (s *Session) EnableRead() error {
	s.wantRead = true
	s.readPaused = false
	return s.updateInterest()
}

func (s *Session) DisableRead() error {
	s.wantRead = false
	return s.updateInterest()
}

func (s *Session) EnableWrite() error {
	s.wantWrite = true
	return s.updateInterest()
}

func (s *Session) DisableWrite() error {
	s.wantWrite = false
	return s.updateInterest()
}

// Interest returns the interest set currently registered with the reactor.
func (s *Session) Interest() reactor.Interest { return s.interest }

func (s *Session) desired() reactor.Interest {
	var ops reactor.Interest
	if s.wantRead && !s.readPaused {
		ops = ops.Set(reactor.OpRead)
	}
	if s.wantWrite {
		ops = ops.Set(reactor.OpWrite)
	}
	return ops
}

func (s *Session) updateInterest() error {
	if s.closed {
		return nil
	}
	ops := s.desired()
	if !s.registered {
		s.interest = ops
		return nil
	}
	if ops == s.interest {
		return nil
	}
	if err := s.loop.reactor.Modify(s.conn.Fd(), ops); err != nil {
		return fmt.Errorf("modify interest: %w", err)
	}
	s.interest = ops
	return nil
}

func (s *Session) register() error {
	ops := s.desired()
	if err := s.loop.reactor.Register(s.conn.Fd(), ops); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	s.interest = ops
	s.registered = true
	s.loop.sessions[s.conn.Fd()] = s
	return nil
}

// resumeRead runs when the consumer frees a slot in a saturated read
// window.
func (s *Session) resumeRead() {
	if !s.readPaused || s.in.EOF() {
		return
	}
	s.readPaused = false
	if err := s.updateInterest(); err != nil {
		s.fireCause(err)
	}
}

// Schedule queues task on the loop and ties it to the session lifetime.
func (s *Session) Schedule(task *TimeTask) error {
	if s.closed {
		return fmt.Errorf("schedule: %w", api.ErrClosed)
	}
	task.owner = s
	s.tasks[task] = struct{}{}
	s.loop.schedule(task)
	return nil
}

// Cancel cancels a task scheduled through this session.
func (s *Session) Cancel(task *TimeTask) {
	task.Cancel()
	delete(s.tasks, task)
}

// SetReadTimeout changes the read idle timeout; zero or less disables it.
func (s *Session) SetReadTimeout(d time.Duration) { s.idle.SetReadIdleTime(d) }

// SetWriteTimeout changes the write idle timeout; zero or less disables it.
func (s *Session) SetWriteTimeout(d time.Duration) { s.idle.SetWriteIdleTime(d) }

func (s *Session) ReadTimeout() time.Duration  { return s.idle.ReadIdleTime() }
func (s *Session) WriteTimeout() time.Duration { return s.idle.WriteIdleTime() }

// Close releases everything the session owns. It is idempotent; secondary
// errors are logged, never returned.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	for t := range s.tasks {
		t.Cancel()
		t.owner = nil
	}
	clear(s.tasks)

	var result *multierror.Error
	if err := s.in.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("input: %w", err))
	}
	if err := s.out.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("output: %w", err))
	}
	if s.registered {
		fd := s.conn.Fd()
		if err := s.loop.reactor.Unregister(fd); err != nil {
			result = multierror.Append(result, fmt.Errorf("unregister: %w", err))
		}
		if s.loop.sessions[fd] == s {
			delete(s.loop.sessions, fd)
		}
		s.registered = false
	}
	if err := s.conn.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close: %w", err))
	}
	s.manager.release(s)
	if err := result.ErrorOrNil(); err != nil {
		s.log.Debug("session closed with errors", "error", err)
		return
	}
	s.log.Debug("session closed")
}

// guard runs fn and converts a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// PanicError carries a panic recovered from a handler or task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }

// dispatch is the root of every inbound event: failures become a cause.
func (s *Session) dispatch(fn func() error) {
	if s.closed {
		return
	}
	if err := guard(fn); err != nil {
		s.fireCause(err)
	}
}

func (s *Session) fireConnected() {
	s.dispatch(func() error { return s.head().handler.OnConnected(s.head()) })
}

func (s *Session) fireRead(msg any) {
	s.dispatch(func() error { return s.head().handler.OnRead(s.head(), msg) })
}

func (s *Session) fireReadComplete() {
	s.dispatch(func() error { return s.head().handler.OnReadComplete(s.head()) })
}

func (s *Session) fireFlushed() {
	s.dispatch(func() error { return s.head().handler.OnFlushed(s.head()) })
}

// FireUserEvent sends ev through the pipeline from the head.
func (s *Session) FireUserEvent(ev any) {
	s.dispatch(func() error { return s.head().handler.OnUserEvent(s.head(), ev) })
}

// fireCause runs the cause pipeline. A cause handler that fails itself
// closes the session instead of re-entering the pipeline.
func (s *Session) fireCause(cause error) {
	if s.closed {
		s.log.Debug("cause on closed session", "error", cause)
		return
	}
	s.loop.metrics.DispatchError()
	if pe, ok := cause.(*PanicError); ok {
		s.log.Trace("handler panic stack", "stack", string(pe.Stack))
	}
	err := guard(func() error { return s.head().handler.OnCause(s.head(), cause) })
	if err != nil {
		s.log.Warn("cause handler failed, closing session", "cause", cause, "error", err)
		s.Close()
	}
}

// onReadable fills the input window and hands the stream to the pipeline.
// Reads pause while the window stays saturated or the peer has finished,
// so level-triggered readiness cannot spin.
func (s *Session) onReadable() {
	if _, err := s.in.Available(); err != nil {
		s.fireCause(fmt.Errorf("read: %w", err))
		return
	}
	if s.closed {
		return
	}
	if s.in.Buffered() > 0 || s.in.EOF() {
		s.fireRead(s.in)
	}
	if s.closed {
		return
	}
	if s.in.Saturated() || s.in.EOF() {
		s.readPaused = true
	}
	if err := s.updateInterest(); err != nil {
		s.fireCause(err)
	}
}

func (s *Session) onWritable() {
	if !s.out.HasRemaining() {
		if err := s.DisableWrite(); err != nil {
			s.fireCause(err)
		}
		return
	}
	if err := s.Flush(); err != nil {
		s.fireCause(fmt.Errorf("flush: %w", err))
	}
}

// onHangup handles error or hangup readiness reported while reads are off.
func (s *Session) onHangup() {
	s.fireCause(fmt.Errorf("connection hung up: %w", io.ErrUnexpectedEOF))
}
