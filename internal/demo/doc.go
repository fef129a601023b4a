// Package demo
// Author: momentics <momentics@gmail.com>
//
// Small protocol handlers used by the command line tool and the end-to-end
// tests: a byte echo, a big-endian adder protocol and a ping/pong
// heartbeat driven by idle events.
package demo
