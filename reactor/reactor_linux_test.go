//go:build linux

package reactor_test

import (
	"testing"
	"time"

	"github.com/momentics/hioload-nio/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func newReactor(t *testing.T) reactor.EventReactor {
	t.Helper()
	r, err := reactor.NewReactor()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestReadReadiness(t *testing.T) {
	r := newReactor(t)
	a, b := socketPair(t)
	require.NoError(t, r.Register(a, reactor.OpRead))

	events := make([]reactor.Event, 8)
	n, err := r.Wait(events, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)
	n, err = r.Wait(events, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, a, events[0].Fd)
	assert.NotZero(t, events[0].Ready&reactor.ReadyRead)

	// level-triggered: still readable until drained
	n, err = r.Wait(events, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestModifyInterest(t *testing.T) {
	r := newReactor(t)
	a, _ := socketPair(t)
	require.NoError(t, r.Register(a, 0))

	events := make([]reactor.Event, 8)
	n, err := r.Wait(events, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, r.Modify(a, reactor.OpWrite))
	n, err = r.Wait(events, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.NotZero(t, events[0].Ready&reactor.ReadyWrite)

	require.NoError(t, r.Unregister(a))
	n, err = r.Wait(events, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWakeInterruptsWait(t *testing.T) {
	r := newReactor(t)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = r.Wake()
		_ = r.Wake()
	}()
	start := time.Now()
	n, err := r.Wait(make([]reactor.Event, 4), 5000)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestHangup(t *testing.T) {
	r := newReactor(t)
	a, b := socketPair(t)
	require.NoError(t, r.Register(a, reactor.OpRead))
	require.NoError(t, unix.Shutdown(b, unix.SHUT_WR))

	events := make([]reactor.Event, 4)
	n, err := r.Wait(events, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.NotZero(t, events[0].Ready&reactor.ReadyHangup)
}

func TestInterestBits(t *testing.T) {
	i := reactor.Interest(0).Set(reactor.OpRead | reactor.OpWrite)
	assert.True(t, i.Has(reactor.OpWrite))
	i = i.Clear(reactor.OpWrite)
	assert.True(t, i.Has(reactor.OpRead))
	assert.False(t, i.Has(reactor.OpWrite))
}
