package audio

import (
	"math"
	"slices"
	"time"
)

// Buffer is the canonical sample buffer: mono float32 samples in [-1, 1] at
// SampleRate.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the buffer. It is zero when the
// sample rate is unset.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Clone returns a buffer with its own copy of the samples.
func (b Buffer) Clone() Buffer {
	b.Samples = slices.Clone(b.Samples)
	return b
}

// Peak returns the largest absolute sample value.
func Peak(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// RMS returns the root-mean-square energy of samples, or 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// NormalizeSamples scales samples in place so that the peak equals
// targetPeak. Silent input is left untouched.
func NormalizeSamples(samples []float32, targetPeak float32) {
	peak := Peak(samples)
	if peak == 0 {
		return
	}
	gain := targetPeak / peak
	for i := range samples {
		samples[i] *= gain
	}
}
