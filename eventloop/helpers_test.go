package eventloop

import (
	"net"
	"sync/atomic"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/momentics/hioload-nio/control"
	"github.com/momentics/hioload-nio/fake"
	"github.com/momentics/hioload-nio/reactor"
	"github.com/stretchr/testify/require"
)

var nextFd atomic.Int64

func init() { nextFd.Store(1000) }

// testConn is a fake channel with a made-up descriptor.
type testConn struct {
	*fake.Channel
	fd         int
	optsErr    error
	connectErr error
}

func newTestConn() *testConn {
	return &testConn{Channel: fake.NewChannel(), fd: int(nextFd.Add(1))}
}

func (c *testConn) Fd() int                  { return c.fd }
func (c *testConn) SetOptions() error        { return c.optsErr }
func (c *testConn) FinishConnect() error     { return c.connectErr }
func (c *testConn) LocalAddr() *net.TCPAddr  { return nil }
func (c *testConn) RemoteAddr() *net.TCPAddr { return nil }

type harness struct {
	loop    *EventLoop
	reactor *fake.Reactor
	clock   *clock.Mock
}

func testConfig(t *testing.T) *control.Config {
	cfg := control.DefaultConfig()
	cfg.Name = "test"
	cfg.MaxConns = 4
	cfg.BufferSize = 64
	cfg.PoolSize = 1 << 20
	cfg.BufferDirect = false
	cfg.MaxReadBuffers = 4
	cfg.MaxWriteBuffers = 4
	cfg.StoreDir = t.TempDir()
	cfg.RegionSize = 256
	return cfg
}

func newHarness(t *testing.T, cfg *control.Config, opts ...Option) *harness {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t)
	}
	h := &harness{reactor: fake.NewReactor(), clock: clock.NewMock()}
	opts = append([]Option{WithReactor(h.reactor), WithClock(h.clock)}, opts...)
	l, err := New(cfg, opts...)
	require.NoError(t, err)
	h.loop = l
	t.Cleanup(l.cleanup)
	return h
}

// step runs one reactor cycle.
func (h *harness) step(t *testing.T) bool {
	t.Helper()
	exit, err := h.loop.cycle()
	require.NoError(t, err)
	return exit
}

func (h *harness) inject(fd int, ready reactor.Ready) {
	h.reactor.Inject(reactor.Event{Fd: fd, Ready: ready})
}

// events records handler callbacks in order.
type events struct {
	log []string
}

func (e *events) add(s string) { e.log = append(e.log, s) }

// probe records what reaches it and stops propagation of causes.
type probe struct {
	HandlerAdapter
	name       string
	ev         *events
	causes     []error
	userEvents []any
	connected  int
	flushed    int
	reads      []any
}

func (p *probe) OnConnected(ctx *HandlerContext) error {
	p.connected++
	p.ev.add("connected:" + p.name)
	return ctx.FireConnected()
}

func (p *probe) OnRead(ctx *HandlerContext, msg any) error {
	p.reads = append(p.reads, msg)
	p.ev.add("read:" + p.name)
	return ctx.FireRead(msg)
}

func (p *probe) OnWrite(ctx *HandlerContext, msg any) error {
	p.ev.add("write:" + p.name)
	return ctx.Write(msg)
}

func (p *probe) OnFlushed(ctx *HandlerContext) error {
	p.flushed++
	return ctx.FireFlushed()
}

func (p *probe) OnUserEvent(ctx *HandlerContext, ev any) error {
	p.userEvents = append(p.userEvents, ev)
	return ctx.FireUserEvent(ev)
}

func (p *probe) OnCause(_ *HandlerContext, cause error) error {
	p.causes = append(p.causes, cause)
	p.ev.add("cause:" + p.name)
	return nil
}
