// Package eventloop
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Single-goroutine TCP reactor. An EventLoop owns a readiness reactor, an
// optional listening socket, two session tables (server-accepted and
// client-initiated), a time task queue and the buffer pool and overflow
// store shared by its sessions.
//
// Every session carries a handler pipeline. Inbound events (connected,
// read, read-complete, flushed, user-event, cause) travel from the head
// towards the tail; write messages travel from the tail towards the head,
// where they land in the session output stream. Handlers end propagation
// by not forwarding. A returned error or a panic becomes a cause event.
//
// All session, pipeline, pool and store state is confined to the loop
// goroutine. Other goroutines reach the loop only through Connect,
// Execute, Schedule, Stats and the shutdown calls, which hand off through
// a lock-free mailbox and wake the reactor.
package eventloop
