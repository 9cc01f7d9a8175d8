package loopback

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the parameters of a loopback test. It is read before the
// workers start and is not changed while they run.
type Config struct {
	// SampleRate of both devices in Hz.
	SampleRate int `yaml:"sample_rate"`
	// PlaybackBufferBytes is the requested output device buffer, 0 for the device minimum.
	PlaybackBufferBytes int `yaml:"playback_buffer_bytes"`
	// RecordBufferBytes is the requested input device buffer, 0 for the device minimum.
	RecordBufferBytes int `yaml:"record_buffer_bytes"`
	// RingCapacity is the size of the producer/consumer ring in bytes.
	RingCapacity int `yaml:"ring_capacity"`
	// TestSeconds is the length of the capture window.
	TestSeconds int `yaml:"test_seconds"`

	ToneFrequency float64 `yaml:"tone_frequency"`
	ToneSamples   int     `yaml:"tone_samples"`
	// TonePreRoll is the number of captured samples left untouched before the tone starts.
	TonePreRoll   int     `yaml:"tone_preroll"`
	ToneAmplitude float64 `yaml:"tone_amplitude"`

	// StopGrace is how long Finish waits for the playback worker to notice the stop.
	StopGrace time.Duration `yaml:"stop_grace"`
	// JoinTimeout bounds the wait for the capture worker during Finish.
	JoinTimeout time.Duration `yaml:"join_timeout"`
}

// DefaultConfig returns the default test parameters.
func DefaultConfig() Config {
	return Config{
		SampleRate:          48000,
		PlaybackBufferBytes: 0,
		RecordBufferBytes:   0,
		RingCapacity:        65536,
		TestSeconds:         2,
		ToneFrequency:       1000,
		ToneSamples:         300,
		TonePreRoll:         100,
		ToneAmplitude:       DefaultToneAmplitude,
		StopGrace:           20 * time.Millisecond,
		JoinTimeout:         time.Second,
	}
}

// CaptureSamples returns the capacity of the capture window.
func (c Config) CaptureSamples() int {
	return c.SampleRate * c.TestSeconds
}

// Validate checks the config for values the workers cannot run with.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample_rate must be positive, got %d", ErrInvalidConfig, c.SampleRate)
	case c.PlaybackBufferBytes < 0:
		return fmt.Errorf("%w: playback_buffer_bytes must not be negative, got %d", ErrInvalidConfig, c.PlaybackBufferBytes)
	case c.RecordBufferBytes < 0:
		return fmt.Errorf("%w: record_buffer_bytes must not be negative, got %d", ErrInvalidConfig, c.RecordBufferBytes)
	case c.RingCapacity < bytesPerSample:
		return fmt.Errorf("%w: ring_capacity must hold at least one sample, got %d", ErrInvalidConfig, c.RingCapacity)
	case c.RingCapacity%bytesPerSample != 0:
		return fmt.Errorf("%w: ring_capacity must be a whole number of samples, got %d", ErrInvalidConfig, c.RingCapacity)
	case c.TestSeconds <= 0:
		return fmt.Errorf("%w: test_seconds must be positive, got %d", ErrInvalidConfig, c.TestSeconds)
	case c.ToneFrequency <= 0 || c.ToneFrequency >= float64(c.SampleRate)/2:
		return fmt.Errorf("%w: tone_frequency %.1f outside (0, %d)", ErrInvalidConfig, c.ToneFrequency, c.SampleRate/2)
	case c.ToneSamples < 0:
		return fmt.Errorf("%w: tone_samples must not be negative, got %d", ErrInvalidConfig, c.ToneSamples)
	case c.TonePreRoll < 0:
		return fmt.Errorf("%w: tone_preroll must not be negative, got %d", ErrInvalidConfig, c.TonePreRoll)
	case c.ToneAmplitude < 0 || c.ToneAmplitude > 32767:
		return fmt.Errorf("%w: tone_amplitude %.0f outside [0, 32767]", ErrInvalidConfig, c.ToneAmplitude)
	case c.StopGrace < 0 || c.JoinTimeout < 0:
		return fmt.Errorf("%w: shutdown timeouts must not be negative", ErrInvalidConfig)
	}

	return nil
}

// LoadConfig reads a YAML config file. Keys missing from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from environment variables named prefix + upper-case yaml key,
// e.g. LOOPBACK_SAMPLE_RATE. Unset variables are ignored.
func (c *Config) ApplyEnv(prefix string) error {
	ints := map[string]*int{
		"SAMPLE_RATE":           &c.SampleRate,
		"PLAYBACK_BUFFER_BYTES": &c.PlaybackBufferBytes,
		"RECORD_BUFFER_BYTES":   &c.RecordBufferBytes,
		"RING_CAPACITY":         &c.RingCapacity,
		"TEST_SECONDS":          &c.TestSeconds,
		"TONE_SAMPLES":          &c.ToneSamples,
		"TONE_PREROLL":          &c.TonePreRoll,
	}

	for key, dst := range ints {
		s, ok := os.LookupEnv(prefix + key)
		if !ok {
			continue
		}

		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid %s%s '%s': %w", prefix, key, s, err)
		}

		*dst = v
	}

	floats := map[string]*float64{
		"TONE_FREQUENCY": &c.ToneFrequency,
		"TONE_AMPLITUDE": &c.ToneAmplitude,
	}

	for key, dst := range floats {
		s, ok := os.LookupEnv(prefix + key)
		if !ok {
			continue
		}

		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid %s%s '%s': %w", prefix, key, s, err)
		}

		*dst = v
	}

	durations := map[string]*time.Duration{
		"STOP_GRACE":   &c.StopGrace,
		"JOIN_TIMEOUT": &c.JoinTimeout,
	}

	for key, dst := range durations {
		s, ok := os.LookupEnv(prefix + key)
		if !ok {
			continue
		}

		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid %s%s '%s': %w", prefix, key, s, err)
		}

		*dst = v
	}

	return nil
}

func (c Config) inputParams() StreamParams {
	return StreamParams{SampleRate: c.SampleRate, Channels: 1, BitDepth: 16, BufferBytes: c.RecordBufferBytes}
}

func (c Config) outputParams() StreamParams {
	return StreamParams{SampleRate: c.SampleRate, Channels: 1, BitDepth: 16, BufferBytes: c.PlaybackBufferBytes}
}
