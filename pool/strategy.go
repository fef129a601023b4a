// File: pool/strategy.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Idle-buffer backing stores selectable at pool construction.

package pool

import (
	"fmt"
	"strings"

	"github.com/eapache/queue"
)

// Strategy selects how released buffers are kept for reuse.
type Strategy int

const (
	// StrategyArray keeps idle buffers in a ring sized to the pool's
	// buffer capacity.
	StrategyArray Strategy = iota
	// StrategyLinked keeps idle buffers in an unbounded FIFO list.
	StrategyLinked
	// StrategyNone never reuses memory.
	StrategyNone
)

func (s Strategy) String() string {
	switch s {
	case StrategyArray:
		return "array"
	case StrategyLinked:
		return "linked"
	case StrategyNone:
		return "none"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy maps a configuration name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "array":
		return StrategyArray, nil
	case "linked":
		return StrategyLinked, nil
	case "none", "simple":
		return StrategyNone, nil
	}
	return 0, fmt.Errorf("unknown pool strategy %q", name)
}

// idleStore holds released buffers until they are reused.
type idleStore interface {
	push(b *Buffer) bool
	pop() (*Buffer, bool)
	len() int
}

func newIdleStore(s Strategy, capacity uint64) idleStore {
	switch s {
	case StrategyLinked:
		return &linkedIdle{q: queue.New()}
	case StrategyNone:
		return noIdle{}
	default:
		return &ringIdle{r: NewRingBuffer[*Buffer](capacity)}
	}
}

type ringIdle struct{ r *RingBuffer[*Buffer] }

func (i *ringIdle) push(b *Buffer) bool  { return i.r.Enqueue(b) }
func (i *ringIdle) pop() (*Buffer, bool) { return i.r.Dequeue() }
func (i *ringIdle) len() int             { return i.r.Len() }

type linkedIdle struct{ q *queue.Queue }

func (i *linkedIdle) push(b *Buffer) bool {
	i.q.Add(b)
	return true
}

func (i *linkedIdle) pop() (*Buffer, bool) {
	if i.q.Length() == 0 {
		return nil, false
	}
	return i.q.Remove().(*Buffer), true
}

func (i *linkedIdle) len() int { return i.q.Length() }

type noIdle struct{}

func (noIdle) push(*Buffer) bool    { return false }
func (noIdle) pop() (*Buffer, bool) { return nil, false }
func (noIdle) len() int             { return 0 }
