// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the level-triggered readiness multiplexer used by
// the event loop: epoll on Linux with an eventfd for cross-thread wake-ups.
package reactor
