package stream_test

import (
	"errors"
	"io"
	"testing"

	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/fake"
	"github.com/momentics/hioload-nio/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInput(t *testing.T, ch *fake.Channel, maxBuffers int) *stream.InputStream {
	t.Helper()
	in, err := stream.NewInputStream(ch, newPool(t), maxBuffers, nil)
	require.NoError(t, err)
	return in
}

func TestInputReadWindow(t *testing.T) {
	const k = 3
	ch := fake.NewChannel()
	ch.Feed(randomBytes(10 * bufSize))
	in := newInput(t, ch, k)

	n, err := in.Available()
	require.NoError(t, err)
	assert.Equal(t, k*bufSize, n)
	assert.True(t, in.Saturated())

	// more data is ready but the window is full
	n, err = in.Available()
	require.NoError(t, err)
	assert.Equal(t, k*bufSize, n)
	assert.Equal(t, 10*bufSize-k*bufSize, ch.Pending())

	// consuming one whole buffer opens one slot
	p := make([]byte, bufSize)
	got, err := in.Read(p)
	require.NoError(t, err)
	assert.Equal(t, bufSize, got)
	assert.False(t, in.Saturated())

	n, err = in.Available()
	require.NoError(t, err)
	assert.Equal(t, k*bufSize, n)
	assert.Equal(t, 10*bufSize-(k+1)*bufSize, ch.Pending())
}

func TestInputPreservesBytes(t *testing.T) {
	data := randomBytes(7*bufSize + 5)
	ch := fake.NewChannel()
	ch.Feed(data)
	ch.FeedEOF()
	in := newInput(t, ch, 2)

	var out []byte
	buf := make([]byte, 5)
	for {
		n, err := in.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, data, out)
	assert.True(t, in.EOF())
	assert.Equal(t, 0, in.Buffered())
}

func TestInputPendingIsNotEOF(t *testing.T) {
	ch := fake.NewChannel()
	in := newInput(t, ch, 4)

	_, err := in.Read(make([]byte, 4))
	assert.ErrorIs(t, err, api.ErrPending)
	r := in.Next()
	assert.True(t, r.IsPending())
	assert.False(t, r.IsEOF())
	assert.False(t, in.EOF())

	ch.Feed([]byte{42})
	r = in.Next()
	require.True(t, r.Ok())
	assert.Equal(t, byte(42), r.Value)

	ch.FeedEOF()
	r = in.Next()
	assert.True(t, r.IsEOF())
	assert.Equal(t, api.StatusEOF, r.Status)
	assert.True(t, in.EOF())
}

func TestInputReadError(t *testing.T) {
	ch := fake.NewChannel()
	boom := errors.New("boom")
	ch.SetReadError(boom)
	in := newInput(t, ch, 4)
	_, err := in.Available()
	assert.ErrorIs(t, err, boom)
	r := in.Next()
	assert.Equal(t, api.StatusError, r.Status)
}

func TestInputReadCompleteHook(t *testing.T) {
	ch := fake.NewChannel()
	in := newInput(t, ch, 4)
	calls := 0
	in.OnReadComplete(func() error {
		calls++
		return nil
	})

	_, err := in.Available()
	require.NoError(t, err)
	assert.Equal(t, 0, calls)

	ch.Feed([]byte("abc"))
	_, err = in.Available()
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = in.Available()
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestInputWindowOpenHook(t *testing.T) {
	ch := fake.NewChannel()
	ch.Feed(randomBytes(4 * bufSize))
	in := newInput(t, ch, 1)
	opened := 0
	in.OnWindowOpen(func() { opened++ })

	_, err := in.Available()
	require.NoError(t, err)
	require.True(t, in.Saturated())

	_, err = in.Read(make([]byte, 3))
	require.NoError(t, err)
	assert.Equal(t, 0, opened)
	_, err = in.Read(make([]byte, bufSize))
	require.NoError(t, err)
	assert.Equal(t, 1, opened)
}

func TestInputMarkReset(t *testing.T) {
	ch := fake.NewChannel()
	ch.Feed([]byte("0123456789"))
	in := newInput(t, ch, 4)
	_, err := in.Available()
	require.NoError(t, err)

	in.Mark(4)
	p := make([]byte, 3)
	_, err = in.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "012", string(p))
	require.NoError(t, in.Reset())
	assert.Equal(t, 10, in.Buffered())

	_, err = in.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "012", string(p))

	// exceeding the limit invalidates the mark
	in.Mark(2)
	_, err = in.Read(p)
	require.NoError(t, err)
	assert.ErrorIs(t, in.Reset(), api.ErrInvalidMark)
}

func TestInputMarkWithoutBuffer(t *testing.T) {
	in := newInput(t, fake.NewChannel(), 4)
	in.Mark(10)
	assert.ErrorIs(t, in.Reset(), api.ErrInvalidMark)
}

func TestInputMarkLostAcrossBuffers(t *testing.T) {
	ch := fake.NewChannel()
	ch.Feed(randomBytes(2 * bufSize))
	in := newInput(t, ch, 4)
	_, err := in.Available()
	require.NoError(t, err)

	in.Mark(100)
	_, err = in.Read(make([]byte, bufSize+1))
	require.NoError(t, err)
	assert.ErrorIs(t, in.Reset(), api.ErrInvalidMark)
}

func TestInputMarkDoesNotPinFullWindow(t *testing.T) {
	ch := fake.NewChannel()
	data := randomBytes(2 * bufSize)
	ch.Feed(data)
	in := newInput(t, ch, 1)
	opened := 0
	in.OnWindowOpen(func() { opened++ })

	_, err := in.Available()
	require.NoError(t, err)
	require.True(t, in.Saturated())

	in.Mark(4 * bufSize)
	p := make([]byte, bufSize)
	n, err := in.Read(p)
	require.NoError(t, err)
	assert.Equal(t, bufSize, n)
	assert.False(t, in.Saturated())
	assert.Equal(t, 1, opened)

	n, err = in.Read(p)
	require.NoError(t, err)
	require.Equal(t, bufSize, n)
	assert.Equal(t, data[bufSize:], p)
	assert.Equal(t, 0, ch.Pending())
	assert.ErrorIs(t, in.Reset(), api.ErrInvalidMark)
}

func TestInputMarkKeptWhileWindowHasRoom(t *testing.T) {
	ch := fake.NewChannel()
	data := randomBytes(bufSize)
	ch.Feed(data)
	in := newInput(t, ch, 2)
	_, err := in.Available()
	require.NoError(t, err)

	in.Mark(2 * bufSize)
	_, err = in.Read(make([]byte, bufSize))
	require.NoError(t, err)
	require.NoError(t, in.Reset())
	assert.Equal(t, bufSize, in.Buffered())
}

func TestInputSkip(t *testing.T) {
	ch := fake.NewChannel()
	ch.Feed([]byte("abcdefgh"))
	in := newInput(t, ch, 4)
	n, err := in.Skip(5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	b, err := in.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('f'), b)
	n, err = in.Skip(100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInputCloseReleasesBuffers(t *testing.T) {
	ch := fake.NewChannel()
	ch.Feed(randomBytes(3 * bufSize))
	p := newPool(t)
	in, err := stream.NewInputStream(ch, p, 4, nil)
	require.NoError(t, err)
	_, err = in.Available()
	require.NoError(t, err)
	assert.Equal(t, int64(3*bufSize), p.CurSize()-p.PooledSize())

	require.NoError(t, in.Close())
	assert.Equal(t, p.CurSize(), p.PooledSize())
	assert.True(t, ch.InputShutdown())
	require.NoError(t, in.Close())

	_, err = in.Read(make([]byte, 1))
	assert.ErrorIs(t, err, api.ErrClosed)
}

func TestInputDrainReleasesEagerly(t *testing.T) {
	ch := fake.NewChannel()
	ch.Feed(randomBytes(2 * bufSize))
	p := newPool(t)
	in, err := stream.NewInputStream(ch, p, 4, nil)
	require.NoError(t, err)
	_, err = in.Read(make([]byte, 2*bufSize))
	require.NoError(t, err)
	assert.Equal(t, p.CurSize(), p.PooledSize())
}

func TestInputRejectsBadWindow(t *testing.T) {
	_, err := stream.NewInputStream(fake.NewChannel(), newPool(t), 0, nil)
	assert.ErrorIs(t, err, api.ErrInvalidConfig)
}
