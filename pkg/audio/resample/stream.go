package resample

import (
	"time"

	"github.com/MrWong99/speechprep/pkg/audio"
)

// Stream resamples one continuous signal that arrives in chunks. It keeps
// enough source history and lookahead around every chunk boundary that the
// concatenated output matches a single [Resampler.Resample] call over the
// whole signal, instead of restarting the filter at each chunk edge.
//
// Output lags the input by the filter half-width; [Stream.Flush] releases
// the remainder. A Stream is not safe for concurrent use.
type Stream struct {
	r        *Resampler
	from, to int

	// step is the smallest source length that maps to a whole number of
	// output samples. The history buffer always starts on a multiple of it.
	step    int64
	context int64

	buf      []float32
	start    int64 // source index of buf[0]
	received int64
	emitted  int64
	base     time.Duration
}

// NewStream starts a stream converting sourceRate to the target rate. base
// is the timestamp of the first sample that will be written.
func (r *Resampler) NewStream(sourceRate int, base time.Duration) (*Stream, error) {
	if sourceRate <= 0 {
		return nil, &audio.ParamError{Name: "source_rate", Value: sourceRate, Want: "> 0"}
	}
	to := r.cfg.TargetRate
	zc, _ := r.cfg.Quality.KaiserParams()
	down := (sourceRate + to - 1) / to
	return &Stream{
		r:       r,
		from:    sourceRate,
		to:      to,
		step:    int64(sourceRate / gcd(sourceRate, to)),
		context: int64((zc + 2) * max(down, 1)),
		base:    base,
	}, nil
}

// SourceRate returns the rate the stream was created for.
func (s *Stream) SourceRate() int { return s.from }

// Write appends source samples and returns every output sample whose filter
// support is now complete, together with the timestamp of the first of them.
// The result may be empty. At matching rates samples is returned as is.
func (s *Stream) Write(samples []float32) ([]float32, time.Duration, error) {
	ts := s.timestamp()
	if s.from == s.to {
		s.received += int64(len(samples))
		s.emitted = s.received
		return samples, ts, nil
	}

	s.buf = append(s.buf, samples...)
	s.received += int64(len(samples))

	ready := s.received - 1 - s.context
	if ready < 0 {
		return nil, ts, nil
	}
	end := min(ready*int64(s.to)/int64(s.from)+1, s.total())
	if end <= s.emitted {
		return nil, ts, nil
	}

	out, err := s.convert(end)
	if err != nil {
		return nil, ts, err
	}
	s.trim()
	return out, ts, nil
}

// Flush converts everything still buffered, treating the signal as ended.
func (s *Stream) Flush() ([]float32, time.Duration, error) {
	ts := s.timestamp()
	if s.from == s.to || s.total() <= s.emitted {
		return nil, ts, nil
	}
	out, err := s.convert(s.total())
	if err != nil {
		return nil, ts, err
	}
	s.trim()
	return out, ts, nil
}

// Emitted returns the number of output samples produced so far.
func (s *Stream) Emitted() int64 { return s.emitted }

func (s *Stream) convert(end int64) ([]float32, error) {
	out, err := s.r.Resample(s.buf, s.from, s.to)
	if err != nil {
		return nil, err
	}
	off := s.start * int64(s.to) / int64(s.from)
	lo := s.emitted - off
	hi := min(end-off, int64(len(out)))
	if lo >= hi {
		return nil, nil
	}
	s.emitted = off + hi
	return out[lo:hi:hi], nil
}

// trim drops history the next output sample no longer needs.
func (s *Stream) trim() {
	keep := s.emitted*int64(s.from)/int64(s.to) - s.context
	if keep <= s.start {
		return
	}
	next := keep / s.step * s.step
	if next <= s.start {
		return
	}
	s.buf = append(s.buf[:0], s.buf[next-s.start:]...)
	s.start = next
}

func (s *Stream) total() int64 {
	return int64(outputLength(int(s.received), s.from, s.to))
}

func (s *Stream) timestamp() time.Duration {
	return s.base + time.Duration(s.emitted*int64(time.Second)/int64(s.to))
}
