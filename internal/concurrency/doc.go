// File: internal/concurrency/doc.go
// Package concurrency
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Lock-free hand-off primitives between arbitrary goroutines and the
// single goroutine that owns an event loop.

package concurrency
