package memdev_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/loopback"
	"github.com/gen2brain/loopback/memdev"
)

var params = loopback.StreamParams{SampleRate: 48000, Channels: 1, BitDepth: 16}

func TestLoopbackLine(t *testing.T) {
	b := memdev.New()
	b.LatencySamples = 2

	in, err := b.OpenInput(params)
	require.NoError(t, err)
	out, err := b.OpenOutput(params)
	require.NoError(t, err)

	assert.Equal(t, memdev.DefaultBufferBytes, in.BufferBytes())

	// Paused output accepts nothing.
	n, err := out.Write([]byte{1, 2})
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, out.Play())
	require.NoError(t, in.Start())

	n, err = out.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 8, b.Queued())

	buf := make([]byte, 10)
	n, err = in.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 4, 0, 0}, buf)
	assert.Zero(t, b.Queued())
}

func TestInjectAndFlush(t *testing.T) {
	b := memdev.New()
	b.Inject([]int16{1, -1})
	assert.Equal(t, 4, b.Queued())

	out, err := b.OpenOutput(params)
	require.NoError(t, err)

	in, err := b.OpenInput(params)
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = in.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 0xff, 0xff}, buf)

	b.Inject([]int16{7})
	require.NoError(t, out.Flush())
	assert.Zero(t, b.Queued())
}

func TestClosedDevices(t *testing.T) {
	b := memdev.New()

	in, err := b.OpenInput(params)
	require.NoError(t, err)
	require.NoError(t, in.Close())
	require.NoError(t, in.Close())

	_, err = in.Read(make([]byte, 2))
	assert.ErrorIs(t, err, memdev.ErrClosed)
	assert.ErrorIs(t, in.Start(), memdev.ErrClosed)

	out, err := b.OpenOutput(params)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	_, err = out.Write([]byte{0, 0})
	assert.ErrorIs(t, err, memdev.ErrClosed)

	counts := b.Counts()
	assert.Equal(t, 1, counts.InputsClosed)
	assert.Equal(t, 1, counts.OutputsClosed)
}

func TestUnsupportedParams(t *testing.T) {
	b := memdev.New()

	_, err := b.OpenInput(loopback.StreamParams{SampleRate: 48000, Channels: 2, BitDepth: 16})
	assert.Error(t, err)

	_, err = b.OpenOutput(loopback.StreamParams{SampleRate: 48000, Channels: 1, BitDepth: 24})
	assert.Error(t, err)

	out, err := b.OpenOutput(loopback.StreamParams{SampleRate: 8000, Channels: 1, BitDepth: 16, BufferBytes: 320})
	require.NoError(t, err)
	assert.Equal(t, 320, out.BufferBytes())
}

func TestOutputDelay(t *testing.T) {
	b := memdev.New()

	out, err := b.OpenOutput(params)
	require.NoError(t, err)

	b.Inject(make([]int16, 480))

	d, err := out.(loopback.DelayReporter).Delay()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, d)
}

func TestWriteHook(t *testing.T) {
	errFull := errors.New("full")

	b := memdev.New()
	b.WriteHook = func(p []byte) (int, error) {
		if len(p) > 2 {
			return 2, errFull
		}

		return len(p) + 5, nil
	}

	out, err := b.OpenOutput(params)
	require.NoError(t, err)

	// Paused output never reaches the hook.
	n, err := out.Write([]byte{9, 9, 9})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, b.Queued())

	require.NoError(t, out.Play())

	n, err = out.Write([]byte{1, 2, 3, 4})
	assert.ErrorIs(t, err, errFull)
	assert.Equal(t, 2, n)

	// Counts beyond len(p) are clamped.
	n, err = out.Write([]byte{3, 4})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 4, b.Queued())

	in, err := b.OpenInput(params)
	require.NoError(t, err)
	require.NoError(t, in.Start())

	buf := make([]byte, 4)
	_, err = in.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf)
}
