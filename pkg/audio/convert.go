package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// Decode converts encoded bytes to canonical mono samples. Interleaved
// multi-channel input is down-mixed by averaging. The byte length must be a
// whole number of frames (sample width × channels).
func Decode(data []byte, f Format, channels int) ([]float32, error) {
	c, err := lookup(f)
	if err != nil {
		return nil, err
	}
	if channels < 1 {
		return nil, &ParamError{Name: "channels", Value: channels, Want: ">= 1"}
	}
	width := f.SampleWidth()
	if len(data)%(width*channels) != 0 {
		return nil, malformed(f, len(data), width*channels)
	}

	samples := make([]float32, len(data)/width)
	c.decode(data, samples)
	if channels > 1 {
		samples = Downmix(samples, channels)
	}
	return samples, nil
}

// Encode converts canonical samples to f. Integer and companded formats clamp
// to their range; float formats store the values as they are.
func Encode(samples []float32, f Format) ([]byte, error) {
	c, err := lookup(f)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(samples)*f.SampleWidth())
	c.encode(samples, out)
	return out, nil
}

// Convert re-encodes data from one format to another via the canonical form.
// When from equals to, a byte-identical copy is returned without decoding.
// Multi-channel input produces mono output.
func Convert(data []byte, from, to Format, channels int) ([]byte, error) {
	if from == to && channels == 1 {
		if _, err := lookup(from); err != nil {
			return nil, err
		}
		if len(data)%from.SampleWidth() != 0 {
			return nil, malformed(from, len(data), from.SampleWidth())
		}
		return bytes.Clone(data), nil
	}
	if _, err := lookup(to); err != nil {
		return nil, err
	}
	samples, err := Decode(data, from, channels)
	if err != nil {
		return nil, err
	}
	return Encode(samples, to)
}

// Downmix averages interleaved channels into one.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += interleaved[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// canonicalName labels the float buffer side of Decode and Encode in [Stats].
const canonicalName = "canonical"

// Converter is the stateful front end to the codec table. It tracks
// [Stats] for every call and is safe for concurrent use; the numeric work
// itself is stateless per call. The zero value is ready to use.
type Converter struct {
	mu    sync.Mutex
	stats Stats

	warnedDownmix sync.Once
}

// NewConverter returns a ready-to-use [Converter].
func NewConverter() *Converter {
	return &Converter{}
}

// Convert is [Convert] with statistics.
func (c *Converter) Convert(data []byte, from, to Format, channels int) ([]byte, error) {
	c.noteChannels(channels)
	out, err := Convert(data, from, to, channels)
	if err != nil {
		c.recordError()
		return nil, err
	}
	c.record(from.String(), to.String(), len(out)/to.SampleWidth())
	return out, nil
}

// Decode is [Decode] with statistics. The returned buffer carries
// sampleRate unchanged; down-mixing does not alter the rate.
func (c *Converter) Decode(data []byte, f Format, sampleRate, channels int) (Buffer, error) {
	c.noteChannels(channels)
	samples, err := Decode(data, f, channels)
	if err != nil {
		c.recordError()
		return Buffer{}, err
	}
	c.record(f.String(), canonicalName, len(samples))
	return Buffer{Samples: samples, SampleRate: sampleRate}, nil
}

// Encode is [Encode] with statistics.
func (c *Converter) Encode(samples []float32, f Format) ([]byte, error) {
	out, err := Encode(samples, f)
	if err != nil {
		c.recordError()
		return nil, err
	}
	c.record(canonicalName, f.String(), len(samples))
	return out, nil
}

// Normalize rescales data so that its largest absolute sample equals
// targetPeak, which must lie in (0, 1]. Silent input is returned unchanged.
func (c *Converter) Normalize(data []byte, f Format, targetPeak float32) ([]byte, error) {
	if !(targetPeak > 0 && targetPeak <= 1) {
		c.recordError()
		return nil, &ParamError{Name: "target_peak", Value: targetPeak, Want: "(0, 1]"}
	}
	samples, err := Decode(data, f, 1)
	if err != nil {
		c.recordError()
		return nil, err
	}
	if Peak(samples) == 0 {
		return bytes.Clone(data), nil
	}
	NormalizeSamples(samples, targetPeak)
	out, err := Encode(samples, f)
	if err != nil {
		c.recordError()
		return nil, err
	}
	c.record(f.String(), f.String(), len(samples))
	return out, nil
}

// BatchConvert converts each chunk independently. The first failing chunk
// aborts the whole batch; no partial result is returned.
func (c *Converter) BatchConvert(chunks [][]byte, from, to Format, channels int) ([][]byte, error) {
	out := make([][]byte, len(chunks))
	for i, chunk := range chunks {
		converted, err := c.Convert(chunk, from, to, channels)
		if err != nil {
			return nil, fmt.Errorf("audio: batch item %d of %d: %w", i, len(chunks), err)
		}
		out[i] = converted
	}
	return out, nil
}

// Stats returns a snapshot of the counters.
func (c *Converter) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.Clone()
}

// ResetStats zeroes all counters.
func (c *Converter) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = Stats{}
}

func (c *Converter) record(from, to string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.RecordConversion(from, to, n)
}

func (c *Converter) recordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.RecordError()
}

func (c *Converter) noteChannels(channels int) {
	if channels > 1 {
		c.warnedDownmix.Do(func() {
			slog.Warn("audio converter: multi-channel input, down-mixing to mono", "channels", channels)
		})
	}
}

// PCM16ToInt16 reinterprets little-endian 16-bit PCM as samples. A trailing
// odd byte is ignored.
func PCM16ToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// Int16ToPCM16 serialises samples as little-endian 16-bit PCM.
func Int16ToPCM16(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}
