package loopback

import (
	"math"
)

// DefaultToneAmplitude is the peak value of the calibration tone.
const DefaultToneAmplitude = 10000

// Tone is an immutable block of signed 16-bit calibration samples.
type Tone []int16

// Taper returns the linear fade-in/fade-out envelope value for sample i of n.
// The envelope rises from 0 to 1 over the first half and falls back to 0 over
// the second half, and taper(i) == taper(n-1-i).
func Taper(i, n int) float64 {
	if n <= 1 || i < 0 || i >= n {
		return 0
	}

	last := float64(n - 1)
	if 2*i <= n-1 {
		return 2 * float64(i) / last
	}

	return 2 * float64(n-1-i) / last
}

// GenerateTone synthesizes a sine block of n samples at frequency Hz.
// With taper set the amplitude follows Taper, otherwise it is constant.
// Taper normalizes by n-1 rather than n so both edge samples are exactly zero;
// tapered samples therefore differ slightly from an envelope computed as 2i/n.
// The phase accumulates 2*pi*frequency/sampleRate per sample without being wrapped.
func GenerateTone(n int, frequency float64, sampleRate int, amplitude float64, taper bool) Tone {
	if n <= 0 || sampleRate <= 0 {
		return Tone{}
	}

	tone := make(Tone, n)
	step := 2 * math.Pi * frequency / float64(sampleRate)

	phase := 0.0
	for i := range tone {
		factor := 1.0
		if taper {
			factor = Taper(i, n)
		}

		v := factor * math.Sin(phase) * amplitude
		tone[i] = clamp16(v)

		phase += step
	}

	return tone
}

// clamp16 truncates toward zero and saturates to the int16 range.
func clamp16(v float64) int16 {
	switch {
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}

	return int16(v)
}

// Len returns the number of samples in the tone.
func (t Tone) Len() int {
	return len(t)
}

// At returns the sample at index i and whether i falls inside the tone.
func (t Tone) At(i int) (int16, bool) {
	if i < 0 || i >= len(t) {
		return 0, false
	}

	return t[i], true
}
