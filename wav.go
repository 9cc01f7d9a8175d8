package loopback

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Audio format 1 is PCM.
const wavFormatPCM = 1

// Denormalize converts a normalized sample back to 16 bits, saturating out-of-range values.
func Denormalize(v float64) int16 {
	return clamp16(math.Round(v * sampleScale))
}

// WriteWAV encodes samples as a 16-bit mono WAV stream at sampleRate.
func WriteWAV(w io.WriteSeeker, samples []float64, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	encoder := wav.NewEncoder(w, sampleRate, 16, 1, wavFormatPCM)

	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(Denormalize(v))
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := encoder.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}

	return nil
}

// ReadWAV decodes a 16-bit mono WAV stream into normalized samples and returns them with the sample rate.
func ReadWAV(r io.ReadSeeker) ([]float64, int, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, 0, errors.New("invalid wav file")
	}

	if decoder.NumChans != 1 || decoder.BitDepth != 16 || decoder.WavAudioFormat != wavFormatPCM {
		return nil, 0, fmt.Errorf("unsupported wav: %d channels, %d bits, format %d",
			decoder.NumChans, decoder.BitDepth, decoder.WavAudioFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}

	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = Normalize(int16(v))
	}

	return samples, int(decoder.SampleRate), nil
}

// WriteWAV encodes the captured samples of the result as a WAV stream.
func (r Result) WriteWAV(w io.WriteSeeker) error {
	return WriteWAV(w, r.Samples, r.SampleRate)
}
