package loopback_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/loopback"
)

func TestTaper(t *testing.T) {
	testCases := map[int][]float64{
		1: {0},
		2: {0, 0},
		3: {0, 1, 0},
		5: {0, 0.5, 1, 0.5, 0},
	}

	for n, want := range testCases {
		for i, w := range want {
			assert.InDelta(t, w, loopback.Taper(i, n), 1e-12, "Taper(%d, %d)", i, n)
		}
	}

	assert.Equal(t, 0.0, loopback.Taper(-1, 10), "index before the block")
	assert.Equal(t, 0.0, loopback.Taper(10, 10), "index past the block")
}

func TestTaperDividesByLastIndex(t *testing.T) {
	const n = 300

	assert.InDelta(t, 2.0/(n-1), loopback.Taper(1, n), 1e-15)
	assert.NotEqual(t, 2.0/n, loopback.Taper(1, n))
	assert.Zero(t, loopback.Taper(n-1, n))
}

func TestTaperSymmetric(t *testing.T) {
	for _, n := range []int{2, 3, 4, 99, 300, 301} {
		for i := 0; i < n; i++ {
			v := loopback.Taper(i, n)
			require.Equal(t, v, loopback.Taper(n-1-i, n), "Taper(%d, %d) is not symmetric", i, n)
			require.GreaterOrEqual(t, v, 0.0)
			require.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestGenerateToneDefault(t *testing.T) {
	tone := loopback.GenerateTone(300, 1000, 48000, loopback.DefaultToneAmplitude, true)
	require.Equal(t, 300, tone.Len())

	// The fade starts and ends in silence.
	assert.Equal(t, int16(0), tone[0])
	assert.Equal(t, int16(0), tone[len(tone)-1])

	peak := 0
	for i, v := range tone {
		if a := int(math.Abs(float64(v))); a > peak {
			peak = a
		}

		bound := loopback.Taper(i, tone.Len()) * loopback.DefaultToneAmplitude
		require.LessOrEqual(t, math.Abs(float64(v)), bound+1e-9, "sample %d exceeds the envelope", i)
	}

	assert.Greater(t, peak, 9000, "tone never reaches its amplitude")
	assert.LessOrEqual(t, peak, loopback.DefaultToneAmplitude)
}

func TestGenerateToneDeterministic(t *testing.T) {
	a := loopback.GenerateTone(300, 1000, 48000, loopback.DefaultToneAmplitude, true)
	b := loopback.GenerateTone(300, 1000, 48000, loopback.DefaultToneAmplitude, true)
	assert.Equal(t, a, b)
}

func TestGenerateToneWithoutTaper(t *testing.T) {
	// A quarter-period step puts the sine on 0, 1, 0, -1.
	tone := loopback.GenerateTone(8, 12000, 48000, 1000, false)
	want := loopback.Tone{0, 1000, 0, -1000, 0, 1000, 0, -1000}

	require.Equal(t, len(want), tone.Len())
	for i := range want {
		assert.InDelta(t, want[i], tone[i], 1, "sample %d", i)
	}
}

func TestGenerateToneTruncates(t *testing.T) {
	// sin(pi/2) * 1.9 truncates to 1, not 2.
	tone := loopback.GenerateTone(2, 12000, 48000, 1.9, false)
	assert.Equal(t, int16(1), tone[1])

	tone = loopback.GenerateTone(4, 12000, 48000, 1.9, false)
	assert.Equal(t, int16(-1), tone[3])
}

func TestGenerateToneEmpty(t *testing.T) {
	assert.Equal(t, 0, loopback.GenerateTone(0, 1000, 48000, 10000, true).Len())
	assert.Equal(t, 0, loopback.GenerateTone(10, 1000, 0, 10000, true).Len())
}

func TestToneAt(t *testing.T) {
	tone := loopback.Tone{5, 6, 7}

	v, ok := tone.At(1)
	assert.True(t, ok)
	assert.Equal(t, int16(6), v)

	_, ok = tone.At(-1)
	assert.False(t, ok)

	_, ok = tone.At(3)
	assert.False(t, ok)
}
