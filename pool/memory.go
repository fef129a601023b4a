// File: pool/memory.go
// Author: momentics <momentics@gmail.com>

package pool

// allocator provides raw memory blocks for buffers.
type allocator interface {
	alloc(size int) []byte
	free(mem []byte)
}

type heapAllocator struct{}

func (heapAllocator) alloc(size int) []byte { return make([]byte, size) }
func (heapAllocator) free([]byte)           {}

func newAllocator(direct bool) allocator {
	if direct {
		return directAllocator{}
	}
	return heapAllocator{}
}
