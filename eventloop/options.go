// File: eventloop/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package eventloop

import (
	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-hclog"
	"github.com/momentics/hioload-nio/pool"
	"github.com/momentics/hioload-nio/reactor"
	"github.com/momentics/hioload-nio/store"
	"github.com/prometheus/client_golang/prometheus"
)

// Option customises an EventLoop.
type Option func(*EventLoop)

// WithServerInitializer enables listening and installs handlers on every
// accepted session.
func WithServerInitializer(fn Initializer) Option {
	return func(l *EventLoop) { l.serverInit = fn }
}

// WithClientInitializer installs handlers on every session opened by
// Connect.
func WithClientInitializer(fn Initializer) Option {
	return func(l *EventLoop) { l.clientInit = fn }
}

func WithLogger(logger hclog.Logger) Option {
	return func(l *EventLoop) { l.log = logger }
}

// WithClock replaces the wall clock driving time tasks.
func WithClock(c clock.Clock) Option {
	return func(l *EventLoop) { l.clock = c }
}

// WithRegisterer enables Prometheus metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(l *EventLoop) { l.registerer = reg }
}

// WithBufferPool hands an existing pool to the loop. The loop closes it
// on exit.
func WithBufferPool(p *pool.Pool) Option {
	return func(l *EventLoop) { l.pool = p }
}

// WithFileStore hands an existing overflow store to the loop. The loop
// closes it on exit.
func WithFileStore(s *store.Store) Option {
	return func(l *EventLoop) { l.store = s }
}

// WithListener observes loop start and exit.
func WithListener(ls EventLoopListener) Option {
	return func(l *EventLoop) { l.listeners = append(l.listeners, ls) }
}

// WithReactor replaces the platform reactor. The loop closes it on exit.
func WithReactor(r reactor.EventReactor) Option {
	return func(l *EventLoop) { l.reactor = r }
}
