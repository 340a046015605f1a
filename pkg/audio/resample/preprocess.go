package resample

import (
	"math"
	"time"

	"github.com/MrWong99/speechprep/pkg/audio"
)

// DefaultPreemphasis is the first-order high-pass coefficient used for
// speech.
const DefaultPreemphasis = 0.97

// rmsTargetRatio is the fraction of the target peak that NormalizeVolume aims
// for in RMS terms.
const rmsTargetRatio = 0.3

// Preemphasis applies y[n] = x[n] - alpha*x[n-1] in place. The first sample
// is passed through. An alpha of zero leaves the buffer untouched.
func Preemphasis(samples []float32, alpha float32) {
	if alpha == 0 {
		return
	}
	// Walk backwards so every step still sees the original x[n-1].
	for i := len(samples) - 1; i > 0; i-- {
		samples[i] -= alpha * samples[i-1]
	}
}

// NormalizeVolume applies a gain in place. Quiet buffers whose RMS is below
// minRMS are scaled to targetPeak by their peak; everything else is scaled
// towards an RMS of 0.3*targetPeak, capped so that the peak never exceeds
// targetPeak. Silent buffers are left untouched.
func NormalizeVolume(samples []float32, targetPeak float32, minRMS float64) {
	peak := audio.Peak(samples)
	if peak == 0 {
		return
	}
	rms := audio.RMS(samples)

	var gain float64
	if rms < minRMS {
		gain = float64(targetPeak) / float64(peak)
	} else {
		gain = rmsTargetRatio * float64(targetPeak) / rms
		if limit := float64(targetPeak) / float64(peak); gain > limit {
			gain = limit
		}
	}
	g := float32(gain)
	for i := range samples {
		samples[i] *= g
	}
}

// RemoveDC subtracts the buffer mean in place.
func RemoveDC(samples []float32) {
	if len(samples) == 0 {
		return
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	mean := float32(sum / float64(len(samples)))
	if mean == 0 {
		return
	}
	for i := range samples {
		samples[i] -= mean
	}
}

// Clip hard-limits samples in place to [-1, 1]. NaN becomes silence.
func Clip(samples []float32) {
	for i, s := range samples {
		switch {
		case math.IsNaN(float64(s)):
			samples[i] = 0
		case s > 1:
			samples[i] = 1
		case s < -1:
			samples[i] = -1
		}
	}
}

// OptimalChunkSize returns the power-of-two sample count nearest to
// durationMs at sampleRate. Ties go to the smaller power.
func OptimalChunkSize(sampleRate, durationMs int) int {
	target := sampleRate * durationMs / 1000
	if target <= 1 {
		return 1
	}
	lower := 1
	for lower*2 <= target {
		lower *= 2
	}
	upper := lower * 2
	if lower == target {
		return lower
	}
	if upper-target < target-lower {
		return upper
	}
	return lower
}

// Chunk is one window produced by OverlappingChunks. EndSample is exclusive
// and refers to the source buffer, so the final chunk may cover fewer real
// samples than len(Samples).
type Chunk struct {
	Samples     []float32
	StartSample int
	EndSample   int
	StartTime   time.Duration
	EndTime     time.Duration
}

// OverlappingChunks slices samples into windows of chunkMs advancing by
// chunkMs-overlapMs. The last window is zero-padded to full length. It
// returns nil when the parameters cannot produce a forward step.
func OverlappingChunks(samples []float32, sampleRate, chunkMs, overlapMs int) []Chunk {
	if len(samples) == 0 || sampleRate <= 0 || chunkMs <= 0 || overlapMs < 0 || overlapMs >= chunkMs {
		return nil
	}
	size := sampleRate * chunkMs / 1000
	step := size - sampleRate*overlapMs/1000
	if size <= 0 || step <= 0 {
		return nil
	}

	at := func(i int) time.Duration {
		return time.Duration(i) * time.Second / time.Duration(sampleRate)
	}

	var chunks []Chunk
	for start := 0; start < len(samples); start += step {
		end := min(start+size, len(samples))
		buf := make([]float32, size)
		copy(buf, samples[start:end])
		chunks = append(chunks, Chunk{
			Samples:     buf,
			StartSample: start,
			EndSample:   end,
			StartTime:   at(start),
			EndTime:     at(end),
		})
		if end == len(samples) {
			break
		}
	}
	return chunks
}
