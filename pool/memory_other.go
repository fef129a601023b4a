//go:build !linux

// File: pool/memory_other.go
// Author: momentics <momentics@gmail.com>
//
// Non-Linux builds keep direct buffers on the Go heap.

package pool

type directAllocator struct{ heapAllocator }
