// Package pool
// Author: momentics <momentics@gmail.com>
//
// Bounded pool of fixed-size, power-of-two buffers. Three reuse
// strategies share one byte accounting: a ring sized to the pool
// capacity, an unbounded linked FIFO, and no reuse at all. Memory comes
// from the Go heap or, with Direct set, from anonymous mappings.
//
// A Pool and its Buffers belong to one event loop goroutine.
package pool
