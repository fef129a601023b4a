// File: eventloop/connect.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package eventloop

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/internal/transport"
	"github.com/momentics/hioload-nio/reactor"
)

// connRequest is an outbound connection in flight.
type connRequest struct {
	addr    string
	timeout time.Duration
	conn    conn
	task    *TimeTask
	done    bool
}

type dialFunc func(addr string) (conn, bool, error)

func dialTCP(addr string) (conn, bool, error) {
	c, connected, err := transport.Dial(addr)
	if err != nil {
		return nil, false, err
	}
	return c, connected, nil
}

// openConnect starts a non-blocking connect. Immediate completion admits
// the session at once; otherwise the socket waits for writability under
// an optional timeout.
func (l *EventLoop) openConnect(req *connRequest) {
	c, connected, err := l.dial(req.addr)
	if err != nil {
		l.log.Debug("connect failed", "addr", req.addr, "error", err)
		l.clients.allocate(&failedConn{addr: req.addr}, fmt.Errorf("connect %s: %w", req.addr, err))
		return
	}
	req.conn = c
	if connected {
		l.clients.allocate(c, nil)
		return
	}
	if err := l.reactor.Register(c.Fd(), reactor.OpWrite); err != nil {
		l.clients.allocate(c, fmt.Errorf("connect %s: register: %w", req.addr, err))
		return
	}
	l.connecting[c.Fd()] = req
	if req.timeout > 0 {
		req.task = NewTimeTask(req.timeout, 0, func() { l.connectTimedOut(req) })
		l.schedule(req.task)
	}
}

func (l *EventLoop) finishConnect(req *connRequest) {
	if req.done {
		return
	}
	l.endConnect(req)
	if err := req.conn.FinishConnect(); err != nil {
		l.clients.allocate(req.conn, fmt.Errorf("connect %s: %w", req.addr, err))
		return
	}
	l.clients.allocate(req.conn, nil)
}

func (l *EventLoop) connectTimedOut(req *connRequest) {
	if req.done {
		return
	}
	l.endConnect(req)
	err := api.Wrap(api.ErrCodeTimeout, api.ErrConnectTimeout).
		WithContext("addr", req.addr).
		WithContext("timeout", req.timeout.String())
	l.clients.allocate(req.conn, err)
}

// endConnect detaches req from the reactor and cancels its timeout.
func (l *EventLoop) endConnect(req *connRequest) {
	req.done = true
	if req.task != nil {
		req.task.Cancel()
	}
	fd := req.conn.Fd()
	delete(l.connecting, fd)
	if err := l.reactor.Unregister(fd); err != nil {
		l.log.Debug("unregister connecting socket", "addr", req.addr, "error", err)
	}
}

// failedConn stands in for a socket that could not be created so the
// failure can still travel through a client pipeline.
type failedConn struct {
	addr string
}

func (c *failedConn) Fd() int                   { return -1 }
func (c *failedConn) Read([]byte) (int, error)  { return 0, api.ErrClosed }
func (c *failedConn) Write([]byte) (int, error) { return 0, api.ErrClosed }
func (c *failedConn) ShutdownInput() error      { return nil }
func (c *failedConn) ShutdownOutput() error     { return nil }
func (c *failedConn) Close() error              { return nil }
func (c *failedConn) SetOptions() error         { return api.ErrClosed }
func (c *failedConn) FinishConnect() error      { return api.ErrClosed }
func (c *failedConn) LocalAddr() *net.TCPAddr   { return nil }
func (c *failedConn) RemoteAddr() *net.TCPAddr {
	ap, err := netip.ParseAddrPort(c.addr)
	if err != nil {
		return nil
	}
	return net.TCPAddrFromAddrPort(ap)
}
