// Package resample converts canonical audio buffers between sample rates and
// prepares them for speech recognition.
//
// Rate conversion is done by a chain of [Strategy] implementations tried in
// preference order. Sinc and Polyphase design Kaiser-windowed kernels that
// are kept in a [FilterCache]; Linear needs no kernel and is always the last
// entry, so a [Resampler] only reports an error when its inputs are invalid
// or every strategy including Linear failed.
package resample

import (
	"fmt"
	"math"

	"github.com/MrWong99/speechprep/internal/resilience"
	"github.com/MrWong99/speechprep/pkg/audio"
)

// Strategy names accepted in [Config.Strategies].
const (
	StrategySinc      = "sinc"
	StrategyPolyphase = "polyphase"
	StrategyLinear    = "linear"
)

const (
	// maxOutputSamples guards against absurd rate pairs.
	maxOutputSamples = 1 << 28

	// maxPolyphaseFactor bounds the reduced up/down factors a polyphase bank
	// is built for. Rate pairs with larger factors fall through to the next
	// strategy.
	maxPolyphaseFactor = 1024

	// sincTableResolution is the number of kernel samples per zero crossing.
	sincTableResolution = 128
)

// Strategy is one interchangeable way to change the sample rate of a mono
// canonical buffer. Implementations must be safe for concurrent use and must
// not modify the input slice. A strategy that does not handle a rate pair
// returns an error wrapping [resilience.ErrNotApplicable], which passes the
// call on without counting as a failure.
type Strategy interface {
	Name() string
	Resample(samples []float32, from, to int) ([]float32, error)
}

// Linear interpolates between neighbouring samples. It has no kernel, no
// anti-aliasing, and never fails, which makes it the last resort of every
// chain.
type Linear struct{}

// Name implements [Strategy].
func (Linear) Name() string { return StrategyLinear }

// Resample implements [Strategy].
func (Linear) Resample(samples []float32, from, to int) ([]float32, error) {
	if len(samples) == 0 || from <= 0 || to <= 0 {
		return []float32{}, nil
	}
	n := outputLength(len(samples), from, to)
	out := make([]float32, n)
	ratio := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out, nil
}

// Sinc performs bandlimited interpolation: every output sample is a
// Kaiser-windowed sinc sum over the input evaluated at its exact fractional
// position, so any rate ratio is supported. The kernel table depends only on
// the quality tier and is cached.
type Sinc struct {
	Quality Quality
	Cache   *FilterCache
}

// Name implements [Strategy].
func (s *Sinc) Name() string { return StrategySinc }

type sincKernel struct {
	table         []float64
	zeroCrossings int
}

func (s *Sinc) kernel(from, to int) (*sincKernel, error) {
	key := filterKey{kind: StrategySinc, from: from, to: to, quality: s.Quality}
	return cached(s.Cache, key, func() (*sincKernel, error) {
		zc, beta := s.Quality.KaiserParams()
		n := zc*sincTableResolution + 1
		table := make([]float64, n+1) // trailing zero simplifies interpolation
		for k := range n {
			x := float64(k) / sincTableResolution
			table[k] = sinc(x) * kaiser(x/float64(zc), beta)
		}
		return &sincKernel{table: table, zeroCrossings: zc}, nil
	})
}

// Resample implements [Strategy].
func (s *Sinc) Resample(samples []float32, from, to int) ([]float32, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("sinc: %w: rates %d -> %d", audio.ErrConversionFailure, from, to)
	}
	n := outputLength(len(samples), from, to)
	if n > maxOutputSamples {
		return nil, fmt.Errorf("sinc: %w: %d output samples exceeds limit", audio.ErrConversionFailure, n)
	}
	k, err := s.kernel(from, to)
	if err != nil {
		return nil, err
	}

	// Lower the cutoff when downsampling so the kernel also anti-aliases.
	cutoff := math.Min(1, float64(to)/float64(from))
	halfWidth := float64(k.zeroCrossings) / cutoff
	step := float64(from) / float64(to)
	scale := cutoff * sincTableResolution
	limit := len(k.table) - 2

	out := make([]float32, n)
	for i := range out {
		t := float64(i) * step
		lo := max(int(math.Ceil(t-halfWidth)), 0)
		hi := min(int(math.Floor(t+halfWidth)), len(samples)-1)

		var acc float64
		for j := lo; j <= hi; j++ {
			u := math.Abs(t-float64(j)) * scale
			idx := int(u)
			if idx > limit {
				continue
			}
			frac := u - float64(idx)
			w := k.table[idx] + frac*(k.table[idx+1]-k.table[idx])
			acc += float64(samples[j]) * w
		}
		v := acc * cutoff
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("sinc: %w: non-finite output at sample %d", audio.ErrConversionFailure, i)
		}
		out[i] = float32(v)
	}
	return out, nil
}

// Polyphase performs rational up/down conversion by L/M through a bank of
// Kaiser-windowed sinc sub-filters, one per output phase. It is exact for
// rate pairs with small reduced factors (8000→16000 is 2/1, 44100→16000 is
// 160/441) and refuses pairs whose factors exceed an internal bound.
type Polyphase struct {
	Quality Quality
	Cache   *FilterCache
}

// Name implements [Strategy].
func (p *Polyphase) Name() string { return StrategyPolyphase }

type polyphaseBank struct {
	up, down int
	half     int
	phases   [][]float64
}

func (p *Polyphase) bank(from, to int) (*polyphaseBank, error) {
	g := gcd(from, to)
	up, down := to/g, from/g
	if up > maxPolyphaseFactor || down > maxPolyphaseFactor {
		return nil, fmt.Errorf("polyphase: %w: ratio %d/%d too complex: %w",
			audio.ErrConversionFailure, up, down, resilience.ErrNotApplicable)
	}

	key := filterKey{kind: StrategyPolyphase, from: from, to: to, quality: p.Quality}
	return cached(p.Cache, key, func() (*polyphaseBank, error) {
		zc, beta := p.Quality.KaiserParams()
		factor := max(up, down)
		half := zc * factor
		fc := 1 / float64(factor)

		proto := make([]float64, 2*half+1)
		for n := range proto {
			d := float64(n - half)
			proto[n] = float64(up) * fc * sinc(fc*d) * kaiser(d/float64(half), beta)
		}

		phases := make([][]float64, up)
		for r := range up {
			for k := r; k < len(proto); k += up {
				phases[r] = append(phases[r], proto[k])
			}
		}
		return &polyphaseBank{up: up, down: down, half: half, phases: phases}, nil
	})
}

// Resample implements [Strategy].
func (p *Polyphase) Resample(samples []float32, from, to int) ([]float32, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("polyphase: %w: rates %d -> %d", audio.ErrConversionFailure, from, to)
	}
	b, err := p.bank(from, to)
	if err != nil {
		return nil, err
	}

	n := outputLength(len(samples), from, to)
	out := make([]float32, n)
	for m := range out {
		// Position of this output sample in the virtual upsampled stream,
		// shifted so the prototype filter is centred on it.
		pos := m*b.down + b.half
		r := pos % b.up
		base := pos / b.up

		var acc float64
		for i, h := range b.phases[r] {
			idx := base - i
			if idx < 0 {
				break
			}
			if idx >= len(samples) {
				continue
			}
			acc += h * float64(samples[idx])
		}
		out[m] = float32(acc)
	}
	return out, nil
}
