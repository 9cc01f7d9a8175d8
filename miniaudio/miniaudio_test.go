package miniaudio_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/loopback"
	"github.com/gen2brain/loopback/miniaudio"
)

var params = loopback.StreamParams{SampleRate: 48000, Channels: 1, BitDepth: 16}

// nullBackend uses the miniaudio null devices, which need no sound hardware.
func nullBackend(t *testing.T) *miniaudio.Backend {
	t.Helper()

	b, err := miniaudio.New(log.New(io.Discard, "", 0), malgo.BackendNull)
	if err != nil {
		t.Skipf("miniaudio null backend unavailable: %v", err)
	}

	t.Cleanup(func() { _ = b.Close() })

	return b
}

func TestInput(t *testing.T) {
	b := nullBackend(t)

	in, err := b.OpenInput(params)
	require.NoError(t, err)
	assert.Equal(t, 48*miniaudio.DefaultPeriodMillis*miniaudio.DefaultPeriods*2, in.BufferBytes())

	require.NoError(t, in.Start())

	buf := make([]byte, in.BufferBytes()/2)
	n, err := in.Read(buf)
	require.NoError(t, err)
	assert.Positive(t, n)

	require.NoError(t, in.Stop())
	require.NoError(t, in.Close())
	require.NoError(t, in.Close())

	_, err = in.Read(buf)
	assert.ErrorIs(t, err, miniaudio.ErrClosed)
}

func TestInputTimeout(t *testing.T) {
	b := nullBackend(t)
	b.Timeout = 20 * time.Millisecond

	in, err := b.OpenInput(params)
	require.NoError(t, err)
	defer in.Close()

	// Never started, so nothing arrives.
	_, err = in.Read(make([]byte, 64))
	assert.ErrorIs(t, err, miniaudio.ErrTimeout)
}

func TestOutput(t *testing.T) {
	b := nullBackend(t)

	out, err := b.OpenOutput(params)
	require.NoError(t, err)

	size := out.BufferBytes()
	block := make([]byte, size)

	// A paused device queues up to one buffer.
	n, err := out.Write(block)
	require.NoError(t, err)
	assert.Equal(t, size, n)

	dr, ok := out.(loopback.DelayReporter)
	require.True(t, ok)
	delay, err := dr.Delay()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(miniaudio.DefaultPeriodMillis*miniaudio.DefaultPeriods)*time.Millisecond, delay)

	require.NoError(t, out.Flush())
	delay, err = dr.Delay()
	require.NoError(t, err)
	assert.Zero(t, delay)

	require.NoError(t, out.Play())
	require.NoError(t, out.Play())
	assert.Error(t, out.Flush(), "flush while playing")

	for i := 0; i < 4; i++ {
		n, err := out.Write(block)
		require.NoError(t, err)
		require.Equal(t, size, n)
	}

	require.NoError(t, out.Pause())
	require.NoError(t, out.Pause())
	require.NoError(t, out.Flush())
	require.NoError(t, out.Close())

	_, err = out.Write(block)
	assert.ErrorIs(t, err, miniaudio.ErrClosed)

	_, err = dr.Delay()
	assert.ErrorIs(t, err, miniaudio.ErrClosed)
}

func TestOutputTimeout(t *testing.T) {
	b := nullBackend(t)
	b.Timeout = 20 * time.Millisecond

	out, err := b.OpenOutput(params)
	require.NoError(t, err)
	defer out.Close()

	// Paused, so the second buffer never fits.
	n, err := out.Write(make([]byte, 2*out.BufferBytes()))
	assert.ErrorIs(t, err, miniaudio.ErrTimeout)
	assert.Equal(t, out.BufferBytes(), n)
}

func TestOpenErrors(t *testing.T) {
	b := nullBackend(t)

	p := params
	p.BitDepth = 24
	_, err := b.OpenInput(p)
	assert.Error(t, err)

	b.PlaybackDevice = "no such device"
	_, err = b.OpenOutput(params)
	assert.Error(t, err)
}

func TestDevices(t *testing.T) {
	b := nullBackend(t)

	names, err := b.Devices(malgo.Playback)
	require.NoError(t, err)
	assert.NotEmpty(t, names)
}

func TestEngine(t *testing.T) {
	b := nullBackend(t)

	cfg := loopback.DefaultConfig()
	cfg.TestSeconds = 1

	events := loopback.NewChanNotifier(4)
	e, err := loopback.New(cfg, b,
		loopback.WithLogger(log.New(io.Discard, "", 0)),
		loopback.WithNotifier(events),
		loopback.WithRealtimePriority(false),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.Start(ctx))
	defer e.Finish()

	require.NoError(t, e.RunTest(ctx))

	for _, want := range []loopback.EventKind{loopback.RecordingStarted, loopback.RecordingComplete} {
		select {
		case ev := <-events.C():
			require.Equal(t, want, ev.Kind)
		case <-time.After(10 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	res, ok := e.LastResult()
	require.True(t, ok)
	assert.True(t, res.Complete())

	tone := loopback.GenerateTone(cfg.ToneSamples, cfg.ToneFrequency, cfg.SampleRate, cfg.ToneAmplitude, true)
	for i, v := range tone {
		require.Equal(t, loopback.Normalize(v), res.Samples[cfg.TonePreRoll+i])
	}
}
