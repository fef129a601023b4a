package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/momentics/hioload-nio/control"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		cfgFile, logLevel = "", ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	Version, Commit = "1.2.3", "abc"
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hioload-nio 1.2.3 (commit abc")
}

func TestPipelineFor(t *testing.T) {
	for _, name := range []string{"echo", "adder", "heartbeat"} {
		fn, err := pipelineFor(name)
		require.NoError(t, err, name)
		assert.NotNil(t, fn)
	}
	_, err := pipelineFor("smtp")
	assert.ErrorContains(t, err, "unknown protocol")
}

func TestServeRejectsUnknownProtocol(t *testing.T) {
	_, err := run(t, "serve", "--protocol", "gopher")
	assert.ErrorContains(t, err, "unknown protocol")
	protocol = "echo"
}

func TestApplyFlags(t *testing.T) {
	base := control.DefaultConfig()
	logLevel = "trace"
	t.Cleanup(func() { logLevel = "" })
	got := applyFlags(base)
	assert.Equal(t, "trace", got.LogLevel)
	assert.Equal(t, "info", base.LogLevel, "the loaded config is not mutated")
}

func TestEchoRequiresArgs(t *testing.T) {
	_, err := run(t, "echo", "127.0.0.1:1")
	assert.Error(t, err)
}

func TestEchoBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("buffer_size: 1000\n"), 0o600))
	_, err := run(t, "--config", path, "echo", "127.0.0.1:1", "hi")
	assert.ErrorContains(t, err, "buffer_size")
}
