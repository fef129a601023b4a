// File: store/region.go
// Author: momentics <momentics@gmail.com>

package store

import (
	"fmt"

	"github.com/momentics/hioload-nio/api"
)

// Region is one fixed-size slice of the backing file.
//
//	0 <= readIndex <= writeIndex <= regionSize
type Region struct {
	store     *Store
	id        int
	offset    int64
	readIdx   int64
	writeIdx  int64
	allocated bool
}

func (r *Region) ID() int           { return r.id }
func (r *Region) Allocated() bool   { return r.allocated }
func (r *Region) ReadIndex() int64  { return r.readIdx }
func (r *Region) WriteIndex() int64 { return r.writeIdx }

// ReadRemaining returns the unread byte count.
func (r *Region) ReadRemaining() int64 { return r.writeIdx - r.readIdx }

// WriteRemaining returns free space at the tail.
func (r *Region) WriteRemaining() int64 { return r.store.regionSize - r.writeIdx }

// Clear discards unread bytes and rewinds both indices.
func (r *Region) Clear() error {
	if !r.allocated {
		return api.ErrRegionReleased
	}
	r.store.size.Add(-r.ReadRemaining())
	r.readIdx, r.writeIdx = 0, 0
	return nil
}

// Skip discards n unread bytes.
func (r *Region) Skip(n int64) error {
	if !r.allocated {
		return api.ErrRegionReleased
	}
	if n < 0 || n > r.ReadRemaining() {
		return fmt.Errorf("store: skip %d of %d unread bytes", n, r.ReadRemaining())
	}
	r.readIdx += n
	r.store.size.Add(-n)
	return nil
}

// Release returns the region to its store.
func (r *Region) Release() { r.store.Release(r) }

func (r *Region) String() string {
	return fmt.Sprintf("region#%d[r=%d w=%d]", r.id, r.readIdx, r.writeIdx)
}
