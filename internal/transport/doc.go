// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking TCP sockets driven by the event loop. Listeners accept,
// connections read, write and half-close without ever blocking the
// calling goroutine. Linux only; other platforms get stubs returning
// api.ErrNotSupported.

package transport
