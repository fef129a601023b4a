//go:build linux
// +build linux

// File: internal/transport/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// Conn is a non-blocking TCP socket.
type Conn struct {
	fd     int
	remote *net.TCPAddr
	closed bool
}

func newConn(fd int, remote *net.TCPAddr) *Conn {
	return &Conn{fd: fd, remote: remote}
}

// Fd returns the socket descriptor.
func (c *Conn) Fd() int { return c.fd }

// Read returns (0, nil) when nothing is ready and io.EOF once the peer
// shut down its write side.
func (c *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(c.fd, p)
		switch err {
		case nil:
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, nil
		default:
			return 0, fmt.Errorf("read: %w", err)
		}
	}
}

// Write returns (0, nil) when the send buffer is full.
func (c *Conn) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.SendmsgN(c.fd, p, nil, nil, unix.MSG_NOSIGNAL)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, nil
		default:
			return 0, fmt.Errorf("write: %w", err)
		}
	}
}

// ShutdownInput half-closes the read side.
func (c *Conn) ShutdownInput() error { return c.shutdown(unix.SHUT_RD) }

// ShutdownOutput half-closes the write side.
func (c *Conn) ShutdownOutput() error { return c.shutdown(unix.SHUT_WR) }

func (c *Conn) shutdown(how int) error {
	if c.closed {
		return nil
	}
	if err := unix.Shutdown(c.fd, how); err != nil && err != unix.ENOTCONN {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases the descriptor. It is idempotent.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return unix.Close(c.fd)
}

// SetOptions applies the session socket options: TCP_NODELAY,
// SO_KEEPALIVE and SO_REUSEADDR.
func (c *Conn) SetOptions() error {
	if err := unix.SetsockoptInt(c.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return fmt.Errorf("TCP_NODELAY: %w", err)
	}
	if err := unix.SetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return fmt.Errorf("SO_KEEPALIVE: %w", err)
	}
	if err := unix.SetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("SO_REUSEADDR: %w", err)
	}
	return nil
}

// FinishConnect reports the outcome of a non-blocking connect once the
// socket turns writable.
func (c *Conn) FinishConnect() error {
	soerr, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if soerr != 0 {
		return fmt.Errorf("connect %s: %w", c.remote, unix.Errno(soerr))
	}
	return nil
}

// LocalAddr returns the bound address.
func (c *Conn) LocalAddr() *net.TCPAddr {
	sa, err := unix.Getsockname(c.fd)
	if err != nil {
		return nil
	}
	return sockaddrToTCP(sa)
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() *net.TCPAddr {
	if c.remote != nil {
		return c.remote
	}
	if sa, err := unix.Getpeername(c.fd); err == nil {
		c.remote = sockaddrToTCP(sa)
	}
	return c.remote
}

// Listener is a non-blocking listening socket.
type Listener struct {
	fd     int
	addr   *net.TCPAddr
	closed bool
}

// Listen binds host:port with SO_REUSEADDR and starts listening.
func Listen(host string, port, backlog int) (*Listener, error) {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	sa, family := tcpToSockaddr(addr)
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket create: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	l := &Listener{fd: fd, addr: addr}
	if bound, err := unix.Getsockname(fd); err == nil {
		l.addr = sockaddrToTCP(bound)
	}
	return l, nil
}

// Fd returns the listening descriptor.
func (l *Listener) Fd() int { return l.fd }

// Addr returns the bound address, with the kernel-chosen port if 0 was
// requested.
func (l *Listener) Addr() *net.TCPAddr { return l.addr }

// Accept returns (nil, nil) when no connection is pending.
func (l *Listener) Accept() (*Conn, error) {
	for {
		nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch err {
		case nil:
			return newConn(nfd, sockaddrToTCP(sa)), nil
		case unix.EINTR, unix.ECONNABORTED:
			continue
		case unix.EAGAIN:
			return nil, nil
		default:
			return nil, fmt.Errorf("accept: %w", err)
		}
	}
}

// Close stops listening. It is idempotent.
func (l *Listener) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return unix.Close(l.fd)
}

// Dial starts a non-blocking connect. connected is true when the
// connection completed immediately; otherwise wait for writability and
// call FinishConnect.
func Dial(addr string) (c *Conn, connected bool, err error) {
	raddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, false, err
	}
	sa, family := tcpToSockaddr(raddr)
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, false, fmt.Errorf("socket create: %w", err)
	}
	conn := newConn(fd, raddr)
	for {
		err = unix.Connect(fd, sa)
		switch err {
		case nil:
			return conn, true, nil
		case unix.EINTR:
			continue
		case unix.EINPROGRESS:
			return conn, false, nil
		default:
			_ = conn.Close()
			return nil, false, fmt.Errorf("connect %s: %w", raddr, err)
		}
	}
}

func tcpToSockaddr(addr *net.TCPAddr) (unix.Sockaddr, int) {
	if ip4 := addr.IP.To4(); ip4 != nil || addr.IP == nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	return sa, unix.AF_INET6
}

func sockaddrToTCP(sa unix.Sockaddr) *net.TCPAddr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), a.Addr[:]...)), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), a.Addr[:]...)), Port: a.Port}
	}
	return nil
}
