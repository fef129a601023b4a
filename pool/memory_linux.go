//go:build linux

// File: pool/memory_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Direct buffers are anonymous private mappings outside the Go heap.
// Falls back to the Go heap if the mapping fails.

package pool

import "golang.org/x/sys/unix"

type directAllocator struct{}

func (directAllocator) alloc(size int) []byte {
	data, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if err != nil {
		return make([]byte, size)
	}
	return data
}

func (directAllocator) free(mem []byte) {
	// heap fallbacks fail Munmap with EINVAL and are left to the GC
	_ = unix.Munmap(mem)
}
