// File: eventloop/eventloop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package eventloop

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/momentics/hioload-nio/affinity"
	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/control"
	"github.com/momentics/hioload-nio/internal/concurrency"
	"github.com/momentics/hioload-nio/internal/transport"
	"github.com/momentics/hioload-nio/pool"
	"github.com/momentics/hioload-nio/reactor"
	"github.com/momentics/hioload-nio/store"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	inboxCapacity = 4096
	maxEvents     = 1024
)

// inboxMsg is a cross-goroutine request. Exactly one field is set.
type inboxMsg struct {
	req  *connRequest
	task *TimeTask
}

// EventLoop is a single-goroutine reactor. Create it with New, then call
// Start or Run.
type EventLoop struct {
	id   uuid.UUID
	name string
	cfg  control.Config
	log  hclog.Logger

	clock      clock.Clock
	reactor    reactor.EventReactor
	pool       *pool.Pool
	store      *store.Store
	registerer prometheus.Registerer
	metrics    *control.Metrics
	probes     *control.DebugProbes
	listeners  []EventLoopListener
	dial       dialFunc

	serverInit Initializer
	clientInit Initializer
	servers    *sessionManager
	clients    *sessionManager

	listener   *transport.Listener
	addr       *net.TCPAddr
	sessions   map[int]*Session
	connecting map[int]*connRequest
	inbox      *concurrency.Mailbox[inboxMsg]
	timers     timeQueue
	events     []reactor.Event

	readTimeout  time.Duration
	writeTimeout time.Duration

	started    atomic.Bool
	shutdown   atomic.Bool
	terminated atomic.Bool
	done       chan struct{}
	runErr     error
	closeOnce  sync.Once
}

// New builds a loop from cfg. Resources not supplied through options are
// created here: the reactor, the buffer pool and, unless disabled, the
// overflow store.
func New(cfg *control.Config, opts ...Option) (*EventLoop, error) {
	if cfg == nil {
		cfg = control.DefaultConfig()
	}
	l := &EventLoop{
		id:         uuid.New(),
		cfg:        *cfg,
		sessions:   make(map[int]*Session),
		connecting: make(map[int]*connRequest),
		events:     make([]reactor.Event, maxEvents),
		dial:       dialTCP,
		done:       make(chan struct{}),
	}
	l.cfg.ApplyDefaults()
	if err := l.cfg.Validate(); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(l)
	}
	l.name = l.cfg.Name
	if l.log == nil {
		l.log = hclog.NewNullLogger()
	}
	l.log = l.log.Named("eventloop").With("loop", l.name, "loop_id", l.id.String())
	if l.clock == nil {
		l.clock = clock.New()
	}
	l.readTimeout = l.cfg.ReadTimeout
	l.writeTimeout = l.cfg.WriteTimeout

	if err := l.openResources(); err != nil {
		l.releaseResources()
		return nil, err
	}
	l.inbox = concurrency.NewMailbox[inboxMsg](inboxCapacity, l.reactor)
	l.servers = newSessionManager(l, api.RoleServer, l.cfg.MaxServerConns, l.serverInit)
	l.clients = newSessionManager(l, api.RoleClient, l.cfg.MaxClientConns, l.clientInit)
	l.metrics = control.NewMetrics(l.registerer, l.name)
	l.registerProbes()
	return l, nil
}

func (l *EventLoop) openResources() error {
	var err error
	if l.reactor == nil {
		if l.reactor, err = reactor.NewReactor(); err != nil {
			return err
		}
	}
	if l.pool == nil {
		l.pool, err = pool.New(pool.Config{
			PoolSize:   l.cfg.PoolSize,
			BufferSize: l.cfg.BufferSize,
			Direct:     l.cfg.BufferDirect,
			Strategy:   l.cfg.PoolStrategy,
			Logger:     l.log,
		})
		if err != nil {
			return err
		}
	}
	if l.store == nil && !l.cfg.DisableStore {
		l.store, err = store.Open(store.Config{
			Dir:        l.cfg.StoreDir,
			RegionSize: l.cfg.RegionSize,
			StoreSize:  l.cfg.StoreSize,
			Logger:     l.log,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *EventLoop) releaseResources() error {
	var result *multierror.Error
	if l.store != nil {
		if err := l.store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("store: %w", err))
		}
	}
	if l.pool != nil {
		if err := l.pool.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("pool: %w", err))
		}
	}
	if l.reactor != nil {
		if err := l.reactor.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("reactor: %w", err))
		}
	}
	return result.ErrorOrNil()
}

func (l *EventLoop) registerProbes() {
	l.probes = control.NewDebugProbes()
	l.probes.RegisterProbe("loop.id", func() any { return l.id.String() })
	l.probes.RegisterProbe("pool", func() any { return l.pool.Stats() })
	if l.store != nil {
		l.probes.RegisterProbe("store", func() any { return l.store.Stats() })
	}
	l.probes.RegisterProbe("sessions.server", func() any { return l.servers.Active() })
	l.probes.RegisterProbe("sessions.client", func() any { return l.clients.Active() })
	l.probes.RegisterProbe("connecting", func() any { return len(l.connecting) })
	l.probes.RegisterProbe("time_tasks", func() any { return l.timers.len() })
	control.RegisterPlatformProbes(l.probes)
}

func (l *EventLoop) ID() uuid.UUID        { return l.id }
func (l *EventLoop) Name() string         { return l.name }
func (l *EventLoop) Logger() hclog.Logger { return l.log }

// Clock returns the clock driving time tasks.
func (l *EventLoop) Clock() clock.Clock { return l.clock }

// Pool returns the shared buffer pool. Loop goroutine only.
func (l *EventLoop) Pool() *pool.Pool { return l.pool }

// Store returns the overflow store, or nil when disabled. Loop goroutine
// only.
func (l *EventLoop) Store() *store.Store { return l.store }

// Addr returns the listening address once Start or Run has bound it.
func (l *EventLoop) Addr() *net.TCPAddr { return l.addr }

// Start binds the listener, if any, and runs the loop on a new goroutine.
func (l *EventLoop) Start() error {
	if err := l.prepare(); err != nil {
		return err
	}
	go l.loop()
	return nil
}

// Run binds the listener, if any, and runs the loop on the calling
// goroutine until it terminates.
func (l *EventLoop) Run() error {
	if err := l.prepare(); err != nil {
		return err
	}
	l.loop()
	return l.runErr
}

func (l *EventLoop) prepare() error {
	if !l.started.CompareAndSwap(false, true) {
		return errors.New("eventloop: already started")
	}
	if l.serverInit == nil {
		return nil
	}
	ln, err := transport.Listen(l.cfg.Host, l.cfg.Port, l.cfg.Backlog)
	if err != nil {
		l.terminate()
		return fmt.Errorf("listen: %w", err)
	}
	if err := l.reactor.Register(ln.Fd(), reactor.OpRead); err != nil {
		_ = ln.Close()
		l.terminate()
		return fmt.Errorf("register listener: %w", err)
	}
	l.listener = ln
	l.addr = ln.Addr()
	l.log.Info("listening", "addr", ln.Addr().String())
	return nil
}

// terminate releases resources of a loop that never ran.
func (l *EventLoop) terminate() {
	l.shutdown.Store(true)
	if err := l.releaseResources(); err != nil {
		l.log.Debug("release resources", "error", err)
	}
	l.terminated.Store(true)
	close(l.done)
}

func (l *EventLoop) loop() {
	defer close(l.done)
	defer l.cleanup()
	if cpu := l.cfg.CPUAffinity; cpu >= 0 {
		defer l.pin(cpu)()
	}
	for _, ls := range l.listeners {
		ls.Init(l)
	}
	l.log.Debug("loop started")
	for {
		exit, err := l.cycle()
		if err != nil {
			l.runErr = err
			l.log.Error("reactor failed, stopping loop", "error", err)
			return
		}
		if exit {
			return
		}
	}
}

// pin locks the loop to its OS thread and the thread to cpu. The returned
// func restores the previous mask and unlocks the thread.
func (l *EventLoop) pin(cpu int) func() {
	runtime.LockOSThread()
	prev, err := affinity.Current()
	if err == nil {
		err = affinity.SetAffinity(cpu)
	}
	if err != nil {
		l.log.Warn("cpu pinning failed, running unpinned", "cpu", cpu, "error", err)
		return runtime.UnlockOSThread
	}
	l.log.Debug("loop pinned", "cpu", cpu)
	return func() {
		if err := affinity.Set(prev); err != nil {
			// keep the thread locked so the pin dies with the goroutine
			l.log.Debug("restore cpu mask", "error", err)
			return
		}
		runtime.UnlockOSThread()
	}
}

// cycle runs one reactor pass and reports whether the loop should exit.
func (l *EventLoop) cycle() (bool, error) {
	// 0. shutdown: stop accepting and wait for sessions to close
	if l.shutdown.Load() {
		l.closeListener()
		if l.servers.allClosed() && l.clients.allClosed() && len(l.connecting) == 0 {
			return true, nil
		}
	}

	// 1. cross-goroutine requests
	l.inbox.Drain(l.handleInbox)

	// 2. wait for readiness until the nearest task deadline
	n, err := l.reactor.Wait(l.events, l.waitTimeout())
	if err != nil {
		return false, fmt.Errorf("reactor wait: %w", err)
	}

	// 3. dispatch
	for i := 0; i < n; i++ {
		l.dispatch(l.events[i])
	}

	// 4. due time tasks
	l.metrics.TasksExecuted(l.timers.run(l.clock.Now, l.execTask))

	l.metrics.Iteration()
	ps := l.pool.Stats()
	l.metrics.ObservePool(ps.CurSize-ps.PooledSize, ps.PooledSize, ps.Available)
	if l.store != nil {
		l.metrics.ObserveStore(l.store.Size())
	}
	return false, nil
}

func (l *EventLoop) handleInbox(msg inboxMsg) {
	switch {
	case msg.req != nil:
		if l.shutdown.Load() {
			l.log.Debug("connect request dropped during shutdown", "addr", msg.req.addr)
			return
		}
		l.openConnect(msg.req)
	case msg.task != nil:
		l.schedule(msg.task)
	}
}

// waitTimeout returns the reactor timeout in milliseconds: -1 blocks,
// 0 polls.
func (l *EventLoop) waitTimeout() int {
	if l.inbox.Len() > 0 || l.shutdown.Load() && l.listener != nil {
		return 0
	}
	at, ok := l.timers.next()
	if !ok {
		return -1
	}
	d := at.Sub(l.clock.Now())
	if d <= 0 {
		return 0
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > 1<<30 {
		ms = 1 << 30
	}
	return int(ms)
}

func (l *EventLoop) dispatch(ev reactor.Event) {
	if l.listener != nil && ev.Fd == l.listener.Fd() {
		l.acceptAll()
		return
	}
	if req, ok := l.connecting[ev.Fd]; ok {
		l.finishConnect(req)
		return
	}
	s, ok := l.sessions[ev.Fd]
	if !ok {
		return
	}
	l.dispatchSession(s, ev.Ready)
}

func (l *EventLoop) dispatchSession(s *Session, ready reactor.Ready) {
	defer func() {
		if r := recover(); r != nil {
			s.fireCause(&PanicError{Value: r})
		}
	}()
	const readable = reactor.ReadyRead | reactor.ReadyError | reactor.ReadyHangup
	if ready&readable != 0 {
		switch {
		case s.interest.Has(reactor.OpRead):
			s.onReadable()
		case ready&(reactor.ReadyError|reactor.ReadyHangup) != 0:
			s.onHangup()
		}
	}
	if !s.closed && ready&reactor.ReadyWrite != 0 {
		s.onWritable()
	}
}

func (l *EventLoop) acceptAll() {
	for !l.shutdown.Load() {
		c, err := l.listener.Accept()
		if err != nil {
			l.log.Warn("accept failed", "error", err)
			return
		}
		if c == nil {
			return
		}
		l.servers.allocate(c, nil)
	}
}

func (l *EventLoop) closeListener() {
	if l.listener == nil {
		return
	}
	if err := l.reactor.Unregister(l.listener.Fd()); err != nil {
		l.log.Debug("unregister listener", "error", err)
	}
	if err := l.listener.Close(); err != nil {
		l.log.Debug("close listener", "error", err)
	}
	l.listener = nil
	l.log.Debug("listener closed")
}

// schedule resolves the task delay against the loop clock and queues it.
func (l *EventLoop) schedule(t *TimeTask) {
	t.executeTime = l.clock.Now().Add(t.delay)
	l.timers.add(t)
}

func (l *EventLoop) execTask(t *TimeTask) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("time task panicked", "panic", r)
		}
	}()
	t.fn()
}

func (l *EventLoop) cleanup() {
	l.shutdown.Store(true)
	l.closeListener()
	l.servers.closeAll()
	l.clients.closeAll()
	for _, req := range l.connecting {
		l.endConnect(req)
		_ = req.conn.Close()
	}
	l.timers.cancelAll()
	dropped := l.inbox.Drain(func(inboxMsg) {})
	if err := l.releaseResources(); err != nil {
		l.log.Warn("cleanup finished with errors", "error", err)
	}
	l.terminated.Store(true)
	for _, ls := range l.listeners {
		ls.Destroy(l)
	}
	l.log.Debug("loop stopped", "dropped_requests", dropped)
}

// Connect asks the loop to open a client connection to addr. A positive
// timeout fails the attempt with api.ErrConnectTimeout; zero uses the
// configured connect timeout, negative waits forever.
func (l *EventLoop) Connect(addr string, timeout time.Duration) error {
	if l.shutdown.Load() {
		return fmt.Errorf("connect: %w", api.ErrClosed)
	}
	if timeout == 0 {
		timeout = l.cfg.ConnectTimeout
	}
	if !l.inbox.Post(inboxMsg{req: &connRequest{addr: addr, timeout: timeout}}) {
		return api.ErrInboxFull
	}
	return nil
}

// Execute runs fn on the loop goroutine during its next cycle.
func (l *EventLoop) Execute(fn func()) error {
	_, err := l.Schedule(0, 0, fn)
	return err
}

// Schedule queues fn to run on the loop after delay, repeating every
// period when period is positive. The returned task may be cancelled
// from any goroutine.
func (l *EventLoop) Schedule(delay, period time.Duration, fn func()) (*TimeTask, error) {
	if l.terminated.Load() {
		return nil, fmt.Errorf("schedule: %w", api.ErrClosed)
	}
	t := NewTimeTask(delay, period, fn)
	if !l.inbox.Post(inboxMsg{task: t}) {
		return nil, api.ErrInboxFull
	}
	return t, nil
}

// SetIdleTimeouts changes the idle timeouts of new and open sessions.
func (l *EventLoop) SetIdleTimeouts(read, write time.Duration) error {
	return l.Execute(func() {
		l.readTimeout, l.writeTimeout = read, write
		apply := func(s *Session) {
			s.SetReadTimeout(read)
			s.SetWriteTimeout(write)
		}
		l.servers.each(apply)
		l.clients.each(apply)
	})
}

// Shutdown stops accepting connections and lets the loop exit once every
// session has closed.
func (l *EventLoop) Shutdown() {
	if l.shutdown.CompareAndSwap(false, true) {
		l.log.Info("shutting down")
	}
	_ = l.reactor.Wake()
}

// ShutdownNow shuts down and closes every open session.
func (l *EventLoop) ShutdownNow() {
	l.closeOnce.Do(func() {
		if err := l.Execute(func() {
			l.servers.closeAll()
			l.clients.closeAll()
		}); err != nil {
			l.log.Debug("close sessions", "error", err)
		}
	})
	l.Shutdown()
}

func (l *EventLoop) IsShutdown() bool   { return l.shutdown.Load() }
func (l *EventLoop) IsTerminated() bool { return l.terminated.Load() }

// Done is closed once the loop has terminated.
func (l *EventLoop) Done() <-chan struct{} { return l.done }

// AwaitTermination blocks until the loop has terminated or ctx ends.
func (l *EventLoop) AwaitTermination(ctx context.Context) error {
	select {
	case <-l.done:
		return l.runErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats evaluates the debug probes on the loop goroutine.
func (l *EventLoop) Stats(ctx context.Context) (map[string]any, error) {
	ch := make(chan map[string]any, 1)
	if err := l.Execute(func() { ch <- l.probes.DumpState() }); err != nil {
		return nil, err
	}
	select {
	case st := <-ch:
		return st, nil
	case <-l.done:
		return nil, fmt.Errorf("stats: %w", api.ErrClosed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
