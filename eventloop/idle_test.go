package eventloop

import (
	"testing"
	"time"

	"github.com/momentics/hioload-nio/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idleHarness(t *testing.T, write time.Duration) (*harness, *Session, *probe) {
	cfg := testConfig(t)
	cfg.WriteTimeout = write
	h := newHarness(t, cfg)
	p := &probe{name: "p", ev: &events{}}
	s, _ := admit(t, h, p)
	return h, s, p
}

func TestWriteIdleFires(t *testing.T) {
	h, s, p := idleHarness(t, 100*time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, s.WriteTimeout())
	assert.Equal(t, time.Duration(0), s.ReadTimeout())

	h.clock.Add(99 * time.Millisecond)
	h.step(t)
	assert.Empty(t, p.userEvents)

	h.clock.Add(time.Millisecond)
	h.step(t)
	assert.Equal(t, []any{api.WriteIdle}, p.userEvents)

	h.clock.Add(100 * time.Millisecond)
	h.step(t)
	assert.Equal(t, []any{api.WriteIdle, api.WriteIdle}, p.userEvents)
}

func TestFlushPostponesWriteIdle(t *testing.T) {
	h, s, p := idleHarness(t, 100*time.Millisecond)

	h.clock.Add(50 * time.Millisecond)
	require.NoError(t, s.Write([]byte("x")))
	require.NoError(t, s.Flush())

	h.clock.Add(50 * time.Millisecond)
	h.step(t)
	assert.Empty(t, p.userEvents)

	h.clock.Add(50 * time.Millisecond)
	h.step(t)
	assert.Equal(t, []any{api.WriteIdle}, p.userEvents)
}

func TestDisableWriteIdle(t *testing.T) {
	h, s, p := idleHarness(t, 100*time.Millisecond)
	s.SetWriteTimeout(0)

	h.clock.Add(time.Second)
	h.step(t)
	assert.Empty(t, p.userEvents)
	assert.Equal(t, 0, h.loop.timers.len())
}

func TestSetIdleTimeoutsReachesOpenSessions(t *testing.T) {
	h, s, p := idleHarness(t, 0)
	require.NoError(t, h.loop.SetIdleTimeouts(30*time.Millisecond, 0))
	h.step(t)
	assert.Equal(t, 30*time.Millisecond, s.ReadTimeout())

	h.clock.Add(30 * time.Millisecond)
	h.step(t)
	assert.Equal(t, []any{api.ReadIdle}, p.userEvents)
}
