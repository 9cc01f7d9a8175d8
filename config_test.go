package loopback_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/loopback"
)

func TestDefaultConfig(t *testing.T) {
	cfg := loopback.DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 48000, cfg.SampleRate)
	assert.Equal(t, 65536, cfg.RingCapacity)
	assert.Equal(t, 96000, cfg.CaptureSamples())
	assert.Equal(t, 300, cfg.ToneSamples)
	assert.Equal(t, 100, cfg.TonePreRoll)
	assert.Equal(t, 20*time.Millisecond, cfg.StopGrace)
	assert.Equal(t, time.Second, cfg.JoinTimeout)
}

func TestConfigValidate(t *testing.T) {
	testCases := map[string]func(*loopback.Config){
		"zero sample rate":    func(c *loopback.Config) { c.SampleRate = 0 },
		"negative playback":   func(c *loopback.Config) { c.PlaybackBufferBytes = -1 },
		"negative record":     func(c *loopback.Config) { c.RecordBufferBytes = -2 },
		"tiny ring":           func(c *loopback.Config) { c.RingCapacity = 1 },
		"odd ring":            func(c *loopback.Config) { c.RingCapacity = 65535 },
		"no test window":      func(c *loopback.Config) { c.TestSeconds = 0 },
		"tone above nyquist":  func(c *loopback.Config) { c.ToneFrequency = 24000 },
		"negative tone":       func(c *loopback.Config) { c.ToneSamples = -1 },
		"negative preroll":    func(c *loopback.Config) { c.TonePreRoll = -1 },
		"amplitude too large": func(c *loopback.Config) { c.ToneAmplitude = 40000 },
		"negative timeout":    func(c *loopback.Config) { c.JoinTimeout = -time.Second },
	}

	for name, mutate := range testCases {
		t.Run(name, func(t *testing.T) {
			cfg := loopback.DefaultConfig()
			mutate(&cfg)

			assert.ErrorIs(t, cfg.Validate(), loopback.ErrInvalidConfig)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loopback.yaml")
	data := []byte(`sample_rate: 44100
record_buffer_bytes: 1764
test_seconds: 3
tone_frequency: 440.5
join_timeout: 250ms
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := loopback.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 44100, cfg.SampleRate)
	assert.Equal(t, 1764, cfg.RecordBufferBytes)
	assert.Equal(t, 3, cfg.TestSeconds)
	assert.Equal(t, 440.5, cfg.ToneFrequency)
	assert.Equal(t, 250*time.Millisecond, cfg.JoinTimeout)

	// Keys not in the file keep their defaults.
	assert.Equal(t, 65536, cfg.RingCapacity)
	assert.Equal(t, 20*time.Millisecond, cfg.StopGrace)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loopback.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sample_rate: [1, 2"), 0o644))

	_, err = loopback.LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigApplyEnv(t *testing.T) {
	t.Setenv("LOOPBACK_SAMPLE_RATE", "16000")
	t.Setenv("LOOPBACK_PLAYBACK_BUFFER_BYTES", "640")
	t.Setenv("LOOPBACK_TONE_AMPLITUDE", "2000")
	t.Setenv("LOOPBACK_STOP_GRACE", "5ms")

	cfg := loopback.DefaultConfig()
	require.NoError(t, cfg.ApplyEnv("LOOPBACK_"))

	assert.Equal(t, 16000, cfg.SampleRate)
	assert.Equal(t, 640, cfg.PlaybackBufferBytes)
	assert.Equal(t, 2000.0, cfg.ToneAmplitude)
	assert.Equal(t, 5*time.Millisecond, cfg.StopGrace)
	assert.Equal(t, 2, cfg.TestSeconds)
}

func TestConfigApplyEnvInvalid(t *testing.T) {
	t.Setenv("LOOPBACK_TEST_SECONDS", "two")

	cfg := loopback.DefaultConfig()
	err := cfg.ApplyEnv("LOOPBACK_")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOOPBACK_TEST_SECONDS")
}
