//go:build linux

package eventloop_test

import (
	"bytes"
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/momentics/hioload-nio/affinity"
	"github.com/momentics/hioload-nio/control"
	"github.com/momentics/hioload-nio/eventloop"
	"github.com/momentics/hioload-nio/internal/demo"
	"github.com/momentics/hioload-nio/pool"
	"github.com/momentics/hioload-nio/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func loopbackConfig(t *testing.T) *control.Config {
	cfg := control.DefaultConfig()
	cfg.Name = "echo"
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.BufferSize = 1024
	cfg.PoolSize = 8 << 20
	cfg.MaxReadBuffers = 4
	cfg.MaxWriteBuffers = 4
	cfg.RegionSize = 4096
	cfg.StoreDir = t.TempDir()
	return cfg
}

func stop(t *testing.T, l *eventloop.EventLoop) {
	t.Helper()
	l.ShutdownNow()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.AwaitTermination(ctx))
	assert.True(t, l.IsTerminated())
}

func TestEchoOverLoopback(t *testing.T) {
	defer goleak.VerifyNone(t)

	payload := make([]byte, 300<<10)
	rand.New(rand.NewSource(7)).Read(payload)
	done := make(chan []byte, 1)
	reg := prometheus.NewRegistry()

	l, err := eventloop.New(loopbackConfig(t),
		eventloop.WithServerInitializer(demo.EchoPipeline),
		eventloop.WithClientInitializer(func(s *eventloop.Session) error {
			s.AddHandler(&demo.EchoClient{Payload: payload, Done: done})
			return nil
		}),
		eventloop.WithRegisterer(reg),
	)
	require.NoError(t, err)
	require.NoError(t, l.Start())
	require.NotNil(t, l.Addr())
	require.NotZero(t, l.Addr().Port)

	require.NoError(t, l.Connect(l.Addr().String(), time.Second))

	select {
	case got := <-done:
		require.Len(t, got, len(payload))
		assert.True(t, bytes.Equal(payload, got), "echo must be byte-for-byte")
	case <-time.After(10 * time.Second):
		t.Fatal("echo did not complete")
	}

	require.Eventually(t, func() bool {
		st, err := l.Stats(context.Background())
		if err != nil {
			return false
		}
		ps := st["pool"].(pool.Stats)
		ss := st["store"].(store.Stats)
		return st["sessions.server"] == 0 && st["sessions.client"] == 0 &&
			ps.CurSize == ps.PooledSize && ss.Size == 0
	}, 5*time.Second, 10*time.Millisecond)

	n, err := testutil.GatherAndCount(reg, "hioload_nio_sessions_opened_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per role")

	stop(t, l)
}

func TestConnectRefusedOverLoopback(t *testing.T) {
	defer goleak.VerifyNone(t)

	causes := make(chan error, 1)
	l, err := eventloop.New(loopbackConfig(t),
		eventloop.WithClientInitializer(func(s *eventloop.Session) error {
			s.AddHandler(&causeSink{ch: causes})
			return nil
		}),
	)
	require.NoError(t, err)
	require.NoError(t, l.Start())
	assert.Nil(t, l.Addr(), "client-only loops do not listen")

	// port 1 on loopback is closed on any sane test host
	require.NoError(t, l.Connect("127.0.0.1:1", time.Second))
	select {
	case cause := <-causes:
		assert.Error(t, cause)
	case <-time.After(5 * time.Second):
		t.Fatal("no cause delivered")
	}
	stop(t, l)
}

func TestListenerHooks(t *testing.T) {
	defer goleak.VerifyNone(t)

	var inits, destroys int
	l, err := eventloop.New(loopbackConfig(t), eventloop.WithListener(eventloop.ListenerFuncs{
		OnInit:    func(*eventloop.EventLoop) { inits++ },
		OnDestroy: func(*eventloop.EventLoop) { destroys++ },
	}))
	require.NoError(t, err)
	require.NoError(t, l.Start())
	require.Error(t, l.Start())
	stop(t, l)
	assert.Equal(t, 1, inits)
	assert.Equal(t, 1, destroys)

	_, err = l.Schedule(0, 0, func() {})
	assert.Error(t, err)
}

type causeSink struct {
	eventloop.HandlerAdapter
	ch chan<- error
}

func (c *causeSink) OnCause(ctx *eventloop.HandlerContext, cause error) error {
	select {
	case c.ch <- cause:
	default:
	}
	ctx.Close()
	return nil
}

func TestLoopPinnedToCPU(t *testing.T) {
	defer goleak.VerifyNone(t)

	allowed, err := affinity.Current()
	require.NoError(t, err)
	cfg := loopbackConfig(t)
	cfg.CPUAffinity = allowed[0]

	l, err := eventloop.New(cfg)
	require.NoError(t, err)
	require.NoError(t, l.Start())

	seen := make(chan []int, 1)
	require.NoError(t, l.Execute(func() {
		cpus, _ := affinity.Current()
		seen <- cpus
	}))
	select {
	case cpus := <-seen:
		assert.Equal(t, []int{allowed[0]}, cpus)
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run")
	}
	stop(t, l)
}
