//go:build linux

package affinity_test

import (
	"runtime"
	"testing"

	"github.com/momentics/hioload-nio/affinity"
	"github.com/stretchr/testify/assert"
)

func TestPinCurrentThread(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		// a locked thread is discarded when its goroutine exits
		runtime.LockOSThread()

		allowed, err := affinity.Current()
		if !assert.NoError(t, err) || !assert.NotEmpty(t, allowed) {
			return
		}
		cpu := allowed[len(allowed)-1]
		if !assert.NoError(t, affinity.SetAffinity(cpu)) {
			return
		}
		got, err := affinity.Current()
		assert.NoError(t, err)
		assert.Equal(t, []int{cpu}, got)
	}()
	<-done
}

func TestInvalidCPU(t *testing.T) {
	assert.Error(t, affinity.SetAffinity(-1))
}
