package control_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/control"
	"github.com/momentics/hioload-nio/pool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := control.Load("")
	require.NoError(t, err)
	assert.Equal(t, "hioload-nio", cfg.Name)
	assert.Equal(t, 9696, cfg.Port)
	assert.Equal(t, 10240, cfg.MaxServerConns)
	assert.Equal(t, 10240, cfg.MaxClientConns)
	assert.Equal(t, pool.StrategyArray, cfg.PoolStrategy)
	assert.True(t, cfg.AutoRead)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
port: 7000
max_conns: 10
max_client_conns: 2
read_timeout: 30s
pool_strategy: linked
buffer_size: 4096
`)
	t.Setenv("HIOLOAD_NIO_PORT", "7001")
	t.Setenv("HIOLOAD_NIO_WRITE_TIMEOUT", "1500ms")

	cfg, err := control.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Port)
	assert.Equal(t, 10, cfg.MaxServerConns)
	assert.Equal(t, 2, cfg.MaxClientConns)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.WriteTimeout)
	assert.Equal(t, pool.StrategyLinked, cfg.PoolStrategy)
	assert.Equal(t, 4096, cfg.BufferSize)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := control.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9696, cfg.Port)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *control.Config){
		"buffer not power of two": func(c *control.Config) { c.BufferSize = 1000 },
		"one write buffer":        func(c *control.Config) { c.MaxWriteBuffers = 1 },
		"no read buffers":         func(c *control.Config) { c.MaxReadBuffers = 0 },
		"zero spin":               func(c *control.Config) { c.WriteSpinCount = 0 },
		"zero region":             func(c *control.Config) { c.RegionSize = 0 },
		"pool below buffer":       func(c *control.Config) { c.PoolSize = 1 },
		"cpu below -1":            func(c *control.Config) { c.CPUAffinity = -2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := control.DefaultConfig()
			cfg.ApplyDefaults()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), api.ErrInvalidConfig)
		})
	}

	cfg := control.DefaultConfig()
	cfg.ApplyDefaults()
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadStrategy(t *testing.T) {
	path := writeConfig(t, "pool_strategy: ring\n")
	_, err := control.Load(path)
	assert.Error(t, err)
}

func TestReloader(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")
	r, err := control.NewReloader(path)
	require.NoError(t, err)
	assert.Equal(t, "info", r.Config().LogLevel)

	var seen []string
	r.OnReload(func(old, cur *control.Config) {
		seen = append(seen, old.LogLevel+"->"+cur.LogLevel)
	})

	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o600))
	require.NoError(t, r.Reload())
	assert.Equal(t, []string{"info->debug"}, seen)
	assert.Equal(t, "debug", r.Config().LogLevel)

	require.NoError(t, os.WriteFile(path, []byte("buffer_size: 3\n"), 0o600))
	assert.Error(t, r.Reload())
	assert.Equal(t, "debug", r.Config().LogLevel)
	assert.Len(t, seen, 1)
}

func TestNewLogger(t *testing.T) {
	var out bytes.Buffer
	cfg := control.DefaultConfig()
	cfg.LogJSON = true
	log := control.NewLogger(cfg, &out)
	log.Info("hello", "k", 1)
	assert.Contains(t, out.String(), `"@message":"hello"`)
	log.Debug("hidden")
	assert.NotContains(t, out.String(), "hidden")
}

func TestMetrics(t *testing.T) {
	var nilMetrics *control.Metrics
	assert.NotPanics(t, func() {
		nilMetrics.SessionOpened("server")
		nilMetrics.ObservePool(1, 2, 3)
		nilMetrics.Iteration()
	})
	assert.Nil(t, control.NewMetrics(nil, "x"))

	reg := prometheus.NewPedanticRegistry()
	m := control.NewMetrics(reg, "test")
	m.SessionOpened("server")
	m.SessionOpened("server")
	m.SessionClosed("server")
	m.SessionRejected("client")
	m.TasksExecuted(3)

	n, err := testutil.GatherAndCount(reg, "hioload_nio_sessions_active", "hioload_nio_sessions_rejected_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("b", func() any { return 2 })
	dp.RegisterProbe("a", func() any { return 1 })
	control.RegisterPlatformProbes(dp)
	assert.Equal(t, 1, dp.DumpState()["a"])
	assert.Contains(t, dp.Names(), "platform.cpus")
	assert.Equal(t, []string{"a", "b"}, dp.Names()[:2])

	// re-registering replaces the probe
	dp.RegisterProbe("a", func() any { return 3 })
	assert.Equal(t, 3, dp.DumpState()["a"])
}
