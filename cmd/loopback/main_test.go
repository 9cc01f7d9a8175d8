package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/loopback"
)

func defaultOptions(t *testing.T) options {
	return options{
		envFile:        filepath.Join(t.TempDir(), "missing.env"),
		backend:        "mem",
		runs:           1,
		recordBuffer:   -1,
		playbackBuffer: -1,
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(defaultOptions(t))
	require.NoError(t, err)
	assert.Equal(t, loopback.DefaultConfig(), cfg)
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "loopback.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sample_rate: 44100\ntest_seconds: 3\nring_capacity: 8192\n"), 0o644))

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LOOPBACK_TONE_SAMPLES=200\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("LOOPBACK_TONE_SAMPLES") })

	t.Setenv("LOOPBACK_RING_CAPACITY", "16384")

	o := defaultOptions(t)
	o.configPath = path
	o.envFile = envFile
	o.seconds = 1
	o.recordBuffer = 0
	o.playbackBuffer = 4096

	cfg, err := loadConfig(o)
	require.NoError(t, err)
	assert.Equal(t, 44100, cfg.SampleRate)
	assert.Equal(t, 1, cfg.TestSeconds, "flag wins over yaml")
	assert.Equal(t, 16384, cfg.RingCapacity, "environment wins over yaml")
	assert.Equal(t, 200, cfg.ToneSamples, "from .env file")
	assert.Equal(t, 0, cfg.RecordBufferBytes)
	assert.Equal(t, 4096, cfg.PlaybackBufferBytes)
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Setenv("LOOPBACK_SAMPLE_RATE", "fast")

	_, err := loadConfig(defaultOptions(t))
	assert.Error(t, err)

	t.Setenv("LOOPBACK_SAMPLE_RATE", "-5")

	_, err = loadConfig(defaultOptions(t))
	assert.ErrorIs(t, err, loopback.ErrInvalidConfig)
}

func TestRunMem(t *testing.T) {
	o := defaultOptions(t)
	o.seconds = 1
	o.runs = 2
	o.realtime = false
	o.out = filepath.Join(t.TempDir(), "capture")

	require.NoError(t, run(o))

	for _, name := range []string{"capture-1.wav", "capture-2.wav"} {
		path := filepath.Join(filepath.Dir(o.out), name)

		f, err := os.Open(path)
		require.NoError(t, err)

		samples, rate, err := loopback.ReadWAV(f)
		_ = f.Close()
		require.NoError(t, err)
		assert.Equal(t, 48000, rate)
		assert.Len(t, samples, 48000)

		require.NoError(t, inspect(path))
	}
}

func TestUnknownBackend(t *testing.T) {
	o := defaultOptions(t)
	o.backend = "pulse"

	assert.Error(t, run(o))
	assert.Error(t, listDevices("pulse"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00:02.000", formatDuration(2*time.Second))
	assert.Equal(t, "01:02:03.450", formatDuration(time.Hour+2*time.Minute+3*time.Second+450*time.Millisecond))
}
