// File: pool/pool.go
// Package pool
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded allocator of fixed-size, power-of-two buffers.

package pool

import (
	"fmt"
	"math/bits"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/momentics/hioload-nio/api"
)

// Config describes a Pool.
type Config struct {
	// PoolSize is the hard cap in bytes over all outstanding buffers.
	PoolSize int64
	// BufferSize is the block size; must be a power of two.
	BufferSize int
	// Direct selects off-heap memory.
	Direct   bool
	Strategy Strategy
	Logger   hclog.Logger
}

// accounting tracks byte counters shared by every strategy.
//
//	available == poolSize - curSize
//	pooledSize <= curSize
type accounting struct {
	poolSize   int64
	curSize    atomic.Int64
	pooledSize atomic.Int64
}

func (a *accounting) reserve(n int64) bool {
	if a.curSize.Load()+n > a.poolSize {
		return false
	}
	a.curSize.Add(n)
	return true
}

func (a *accounting) available() int64 { return a.poolSize - a.curSize.Load() }

// Pool hands out Buffers of one fixed size.
type Pool struct {
	acct       accounting
	bufferSize int
	shift      uint
	strategy   Strategy
	idle       idleStore
	mem        allocator
	log        hclog.Logger
	closed     bool
}

// New validates cfg and builds a pool.
func New(cfg Config) (*Pool, error) {
	if cfg.PoolSize <= 0 {
		return nil, fmt.Errorf("%w: pool size %d must be positive", api.ErrInvalidConfig, cfg.PoolSize)
	}
	if cfg.BufferSize <= 0 || cfg.BufferSize&(cfg.BufferSize-1) != 0 {
		return nil, fmt.Errorf("%w: buffer size %d must be a positive power of two", api.ErrInvalidConfig, cfg.BufferSize)
	}
	if cfg.Strategy < StrategyArray || cfg.Strategy > StrategyNone {
		return nil, fmt.Errorf("%w: %s", api.ErrInvalidConfig, cfg.Strategy)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	bs := int64(cfg.BufferSize)
	slots := uint64((cfg.PoolSize + bs - 1) / bs)
	p := &Pool{
		bufferSize: cfg.BufferSize,
		shift:      uint(bits.TrailingZeros(uint(cfg.BufferSize))),
		strategy:   cfg.Strategy,
		idle:       newIdleStore(cfg.Strategy, slots),
		mem:        newAllocator(cfg.Direct),
		log:        logger.Named("pool"),
	}
	p.acct.poolSize = cfg.PoolSize
	return p, nil
}

// Allocate returns an idle buffer if one exists, otherwise fresh memory
// while the byte cap allows.
func (p *Pool) Allocate() (*Buffer, error) {
	if p.closed {
		return nil, fmt.Errorf("pool: %w", api.ErrClosed)
	}
	bs := int64(p.bufferSize)
	if b, ok := p.idle.pop(); ok {
		p.acct.pooledSize.Add(-bs)
		b.acquire()
		return b, nil
	}
	if !p.acct.reserve(bs) {
		return nil, api.Wrap(api.ErrCodeBufferExhausted, api.ErrBufferExhausted).
			WithContext("pool_size", p.acct.poolSize).
			WithContext("cur_size", p.acct.curSize.Load())
	}
	b := &Buffer{pool: p, mem: p.mem.alloc(p.bufferSize)}
	b.acquire()
	return b, nil
}

// Release returns b for reuse or frees it. Foreign or already released
// buffers are logged and ignored.
func (p *Pool) Release(b *Buffer) {
	if b == nil {
		return
	}
	if b.pool != p {
		p.log.Warn("release of foreign buffer ignored", "buffer", fmt.Sprintf("%p", b))
		return
	}
	if !b.allocated {
		p.log.Warn("release of idle buffer ignored", "buffer", fmt.Sprintf("%p", b))
		return
	}
	b.allocated = false
	b.Clear()
	if !p.closed && p.idle.push(b) {
		p.acct.pooledSize.Add(int64(p.bufferSize))
		return
	}
	p.free(b)
}

func (p *Pool) free(b *Buffer) {
	p.mem.free(b.mem)
	b.mem = nil
	p.acct.curSize.Add(-int64(p.bufferSize))
}

// Available returns poolSize minus outstanding bytes.
func (p *Pool) Available() int64 { return p.acct.available() }

// PooledSize returns bytes idle in the pool.
func (p *Pool) PooledSize() int64 { return p.acct.pooledSize.Load() }

// CurSize returns bytes outstanding, idle or in use.
func (p *Pool) CurSize() int64 { return p.acct.curSize.Load() }

// PoolSize returns the configured cap.
func (p *Pool) PoolSize() int64 { return p.acct.poolSize }

// BufferSize returns the fixed block size.
func (p *Pool) BufferSize() int { return p.bufferSize }

// BufferSizeShift returns log2(BufferSize).
func (p *Pool) BufferSizeShift() uint { return p.shift }

// Strategy returns the reuse strategy.
func (p *Pool) Strategy() Strategy { return p.strategy }

// Stats is a point-in-time snapshot for probes.
type Stats struct {
	PoolSize   int64 `json:"pool_size"`
	CurSize    int64 `json:"cur_size"`
	PooledSize int64 `json:"pooled_size"`
	Available  int64 `json:"available"`
	IdleCount  int   `json:"idle_count"`
}

// Stats snapshots the counters.
func (p *Pool) Stats() Stats {
	return Stats{
		PoolSize:   p.acct.poolSize,
		CurSize:    p.acct.curSize.Load(),
		PooledSize: p.acct.pooledSize.Load(),
		Available:  p.acct.available(),
		IdleCount:  p.idle.len(),
	}
}

// Close frees all idle memory. Buffers still in use are freed when
// released. Close is idempotent.
func (p *Pool) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	for {
		b, ok := p.idle.pop()
		if !ok {
			break
		}
		p.acct.pooledSize.Add(-int64(p.bufferSize))
		p.free(b)
	}
	return nil
}
