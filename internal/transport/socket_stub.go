//go:build !linux
// +build !linux

// File: internal/transport/socket_stub.go
// Author: momentics <momentics@gmail.com>

package transport

import (
	"fmt"
	"net"

	"github.com/momentics/hioload-nio/api"
)

var errUnsupported = fmt.Errorf("transport: %w on this platform", api.ErrNotSupported)

type Conn struct{}

func (c *Conn) Fd() int                   { return -1 }
func (c *Conn) Read([]byte) (int, error)  { return 0, errUnsupported }
func (c *Conn) Write([]byte) (int, error) { return 0, errUnsupported }
func (c *Conn) ShutdownInput() error      { return errUnsupported }
func (c *Conn) ShutdownOutput() error     { return errUnsupported }
func (c *Conn) Close() error              { return nil }
func (c *Conn) SetOptions() error         { return errUnsupported }
func (c *Conn) FinishConnect() error      { return errUnsupported }
func (c *Conn) LocalAddr() *net.TCPAddr   { return nil }
func (c *Conn) RemoteAddr() *net.TCPAddr  { return nil }

type Listener struct{}

func Listen(string, int, int) (*Listener, error) { return nil, errUnsupported }
func (l *Listener) Fd() int                      { return -1 }
func (l *Listener) Addr() *net.TCPAddr           { return nil }
func (l *Listener) Accept() (*Conn, error)       { return nil, errUnsupported }
func (l *Listener) Close() error                 { return nil }

func Dial(string) (*Conn, bool, error) { return nil, false, errUnsupported }
