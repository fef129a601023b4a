package eventloop

import (
	"errors"
	"testing"
	"time"

	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dialer struct {
	conn      *testConn
	connected bool
	err       error
	addrs     []string
}

func (d *dialer) dial(addr string) (conn, bool, error) {
	d.addrs = append(d.addrs, addr)
	if d.err != nil {
		return nil, false, d.err
	}
	return d.conn, d.connected, nil
}

func clientHarness(t *testing.T, d *dialer) (*harness, *probe) {
	h := newHarness(t, nil)
	h.loop.dial = d.dial
	p := &probe{name: "client", ev: &events{}}
	h.loop.clients.init = func(s *Session) error {
		s.AddHandler(p)
		return nil
	}
	return h, p
}

func TestConnectCompletesOnWritable(t *testing.T) {
	d := &dialer{conn: newTestConn()}
	h, p := clientHarness(t, d)

	require.NoError(t, h.loop.Connect("10.0.0.1:80", time.Second))
	h.step(t)
	assert.Equal(t, []string{"10.0.0.1:80"}, d.addrs)
	ops, ok := h.reactor.Interest(d.conn.Fd())
	require.True(t, ok)
	assert.Equal(t, reactor.OpWrite, ops)
	assert.Equal(t, 0, p.connected)

	h.inject(d.conn.Fd(), reactor.ReadyWrite)
	h.step(t)
	assert.Equal(t, 1, p.connected)
	assert.Equal(t, 1, h.loop.clients.Active())
	assert.Empty(t, h.loop.connecting)
	ops, _ = h.reactor.Interest(d.conn.Fd())
	assert.Equal(t, reactor.OpRead, ops)

	// the cancelled timeout must stay silent
	h.clock.Add(2 * time.Second)
	h.step(t)
	assert.Empty(t, p.causes)
}

func TestConnectImmediate(t *testing.T) {
	d := &dialer{conn: newTestConn(), connected: true}
	h, p := clientHarness(t, d)

	require.NoError(t, h.loop.Connect("10.0.0.1:80", 0))
	h.step(t)
	assert.Equal(t, 1, p.connected)
	s := h.loop.sessions[d.conn.Fd()]
	require.NotNil(t, s)
	assert.Equal(t, api.RoleClient, s.Role())
	assert.Equal(t, "test-client-1", s.Name())
}

func TestConnectTimeout(t *testing.T) {
	d := &dialer{conn: newTestConn()}
	h, p := clientHarness(t, d)

	require.NoError(t, h.loop.Connect("10.0.0.1:80", 200*time.Millisecond))
	h.step(t)
	h.clock.Add(200 * time.Millisecond)
	h.step(t)

	require.Len(t, p.causes, 1)
	assert.ErrorIs(t, p.causes[0], api.ErrConnectTimeout)
	assert.Equal(t, api.ErrCodeTimeout, api.CodeOf(p.causes[0]))
	assert.Equal(t, 0, p.connected)
	assert.True(t, d.conn.Closed())
	assert.Empty(t, h.loop.connecting)
	_, registered := h.reactor.Interest(d.conn.Fd())
	assert.False(t, registered)
}

func TestConnectRefused(t *testing.T) {
	d := &dialer{conn: newTestConn()}
	d.conn.connectErr = errors.New("connection refused")
	h, p := clientHarness(t, d)

	require.NoError(t, h.loop.Connect("10.0.0.1:80", 0))
	h.step(t)
	h.inject(d.conn.Fd(), reactor.ReadyWrite|reactor.ReadyError)
	h.step(t)

	require.Len(t, p.causes, 1)
	assert.ErrorIs(t, p.causes[0], d.conn.connectErr)
	assert.True(t, d.conn.Closed())
	assert.Equal(t, 0, h.loop.clients.Active())
}

func TestDialFailureReachesClientPipeline(t *testing.T) {
	d := &dialer{err: errors.New("no route")}
	h, p := clientHarness(t, d)

	require.NoError(t, h.loop.Connect("10.0.0.9:80", 0))
	h.step(t)
	require.Len(t, p.causes, 1)
	assert.ErrorIs(t, p.causes[0], d.err)
	assert.ErrorContains(t, p.causes[0], "10.0.0.9:80")
}

func TestShutdownWaitsForConnecting(t *testing.T) {
	d := &dialer{conn: newTestConn()}
	h, _ := clientHarness(t, d)
	require.NoError(t, h.loop.Connect("10.0.0.1:80", -1))
	h.step(t)

	h.loop.Shutdown()
	assert.False(t, h.step(t))

	h.inject(d.conn.Fd(), reactor.ReadyWrite)
	h.step(t)
	require.Len(t, h.loop.sessions, 1)
	h.loop.clients.closeAll()
	assert.True(t, h.step(t))
}

func TestFailedConnRemoteAddr(t *testing.T) {
	assert.Equal(t, "10.1.2.3:8080", (&failedConn{addr: "10.1.2.3:8080"}).RemoteAddr().String())
	assert.Nil(t, (&failedConn{addr: "example.com:80"}).RemoteAddr())
}
