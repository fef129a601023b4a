package stream_test

import (
	"math/rand"
	"testing"

	"github.com/momentics/hioload-nio/pool"
	"github.com/momentics/hioload-nio/store"
	"github.com/stretchr/testify/require"
)

const bufSize = 16

func newPool(t *testing.T) *pool.Pool {
	t.Helper()
	p, err := pool.New(pool.Config{PoolSize: 1 << 16, BufferSize: bufSize, Strategy: pool.StrategyArray})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func newStore(t *testing.T, regionSize int) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Dir: t.TempDir(), RegionSize: regionSize})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	return b
}
