// File: pool/buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed-size pooled byte block with independent read and write indices.

package pool

import "fmt"

// Buffer wraps one fixed-size memory block owned by a Pool.
//
// Bytes in [readIndex, writeIndex) are readable, bytes in
// [writeIndex, Cap) are writable. A Buffer is confined to the goroutine
// that owns its pool.
type Buffer struct {
	pool      *Pool
	mem       []byte
	readIdx   int
	writeIdx  int
	allocated bool
}

// acquire marks the buffer allocated. Allocating twice is a programming
// error and panics.
func (b *Buffer) acquire() {
	if b.allocated {
		panic(fmt.Sprintf("pool: buffer %p allocated twice", b))
	}
	b.allocated = true
}

// Allocated reports whether the buffer is currently handed out.
func (b *Buffer) Allocated() bool { return b.allocated }

// Pool returns the owning pool.
func (b *Buffer) Pool() *Pool { return b.pool }

// Cap returns the fixed block size.
func (b *Buffer) Cap() int { return len(b.mem) }

// Len returns the number of readable bytes.
func (b *Buffer) Len() int { return b.writeIdx - b.readIdx }

// Free returns the number of writable bytes at the tail.
func (b *Buffer) Free() int { return len(b.mem) - b.writeIdx }

// Full reports whether nothing more can be written.
func (b *Buffer) Full() bool { return b.writeIdx == len(b.mem) }

// Bytes returns the readable window. The slice aliases pooled memory.
func (b *Buffer) Bytes() []byte { return b.mem[b.readIdx:b.writeIdx] }

// Writable returns the writable window. Call Advance after filling it.
func (b *Buffer) Writable() []byte { return b.mem[b.writeIdx:] }

// Advance moves the write index after n bytes were written into Writable.
func (b *Buffer) Advance(n int) {
	if n < 0 || b.writeIdx+n > len(b.mem) {
		panic("pool: advance out of range")
	}
	b.writeIdx += n
}

// Skip consumes n readable bytes.
func (b *Buffer) Skip(n int) {
	if n < 0 || b.readIdx+n > b.writeIdx {
		panic("pool: skip out of range")
	}
	b.readIdx += n
}

// ReadIndex returns the current read position.
func (b *Buffer) ReadIndex() int { return b.readIdx }

// SetReadIndex rewinds or advances the read position within the written range.
func (b *Buffer) SetReadIndex(i int) {
	if i < 0 || i > b.writeIdx {
		panic("pool: read index out of range")
	}
	b.readIdx = i
}

// WriteIndex returns the current write position.
func (b *Buffer) WriteIndex() int { return b.writeIdx }

// Write appends as much of p as fits and returns the count copied.
func (b *Buffer) Write(p []byte) int {
	n := copy(b.mem[b.writeIdx:], p)
	b.writeIdx += n
	return n
}

// Read drains up to len(p) readable bytes into p.
func (b *Buffer) Read(p []byte) int {
	n := copy(p, b.mem[b.readIdx:b.writeIdx])
	b.readIdx += n
	return n
}

// Compact moves unread bytes to the front of the block.
func (b *Buffer) Compact() {
	if b.readIdx == 0 {
		return
	}
	n := copy(b.mem, b.mem[b.readIdx:b.writeIdx])
	b.readIdx = 0
	b.writeIdx = n
}

// Clear resets both indices without touching the memory.
func (b *Buffer) Clear() {
	b.readIdx = 0
	b.writeIdx = 0
}

// Release hands the buffer back to its pool.
func (b *Buffer) Release() {
	if b.pool == nil {
		return
	}
	b.pool.Release(b)
}
