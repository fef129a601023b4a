package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAcquireTwicePanics(t *testing.T) {
	b := &Buffer{mem: make([]byte, 8)}
	b.acquire()
	assert.Panics(t, b.acquire)
}
