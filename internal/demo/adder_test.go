package demo_test

import (
	"encoding/binary"
	"testing"

	"github.com/momentics/hioload-nio/fake"
	"github.com/momentics/hioload-nio/internal/demo"
	"github.com/momentics/hioload-nio/pool"
	"github.com/momentics/hioload-nio/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T) *pool.Pool {
	p, err := pool.New(pool.Config{PoolSize: 1 << 12, BufferSize: 16, Strategy: pool.StrategyLinked})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func operands(vs ...int64) []byte {
	var b []byte
	for _, v := range vs {
		b = binary.BigEndian.AppendUint64(b, uint64(v))
	}
	return b
}

func TestAdderCodecDecode(t *testing.T) {
	ch := fake.NewChannel()
	in, err := stream.NewInputStream(ch, newPool(t), 4, nil)
	require.NoError(t, err)

	data := operands(3, -5, 1<<40)
	ch.Feed(data[:20])
	_, err = in.Available()
	require.NoError(t, err)

	var c demo.AdderCodec
	msgs, err := c.Decode(nil, in, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(3), int64(-5)}, msgs)
	assert.Equal(t, 4, in.Buffered())

	ch.Feed(data[20:])
	ch.FeedEOF()
	_, err = in.Available()
	require.NoError(t, err)
	msgs, err = c.Decode(nil, in, msgs[:0])
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1 << 40), demo.EndOfInput{}}, msgs)
}

func TestAdderCodecEncode(t *testing.T) {
	ch := fake.NewChannel()
	out, err := stream.NewOutputStream(ch, newPool(t), nil, stream.OutputConfig{MaxBuffers: 4, SpinCount: 4}, nil)
	require.NoError(t, err)

	var c demo.AdderCodec
	require.NoError(t, c.Encode(nil, int64(-2), out))
	require.Error(t, c.Encode(nil, "two", out))
	_, err = out.Flush()
	require.NoError(t, err)
	assert.Equal(t, operands(-2), ch.Written())
}
