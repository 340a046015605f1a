package resample

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/speechprep/pkg/audio"
)

// streamAll writes in in chunks of size chunk and flushes.
func streamAll(t *testing.T, s *Stream, in []float32, chunk int) []float32 {
	t.Helper()
	var out []float32
	for off := 0; off < len(in); off += chunk {
		got, _, err := s.Write(in[off:min(off+chunk, len(in))])
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		out = append(out, got...)
	}
	tail, _, err := s.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	return append(out, tail...)
}

func TestStream_MatchesOneShot(t *testing.T) {
	tests := []struct {
		rate       int
		strategies []string
		chunk      int
	}{
		{rate: 8000, strategies: []string{StrategySinc}, chunk: 160},
		{rate: 8000, strategies: []string{StrategyPolyphase}, chunk: 97},
		{rate: 11025, strategies: []string{StrategySinc}, chunk: 220},
		{rate: 44100, strategies: []string{StrategySinc}, chunk: 441},
		{rate: 44100, strategies: []string{StrategyPolyphase}, chunk: 1000},
		{rate: 48000, strategies: []string{StrategySinc}, chunk: 960},
		{rate: 22050, strategies: []string{StrategyLinear}, chunk: 333},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.Strategies = tt.strategies
		r, err := New(cfg)
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		in := sine(300, tt.rate, tt.rate/2, 0.4)
		for i, s := range sine(2100, tt.rate, len(in), 0.2) {
			in[i] += s
		}
		want, err := r.Resample(in, tt.rate, 16000)
		if err != nil {
			t.Fatalf("Resample: %v", err)
		}

		st, err := r.NewStream(tt.rate, 0)
		if err != nil {
			t.Fatalf("NewStream: %v", err)
		}
		got := streamAll(t, st, in, tt.chunk)
		if len(got) != len(want) {
			t.Fatalf("%d Hz %v: got %d samples, want %d", tt.rate, tt.strategies, len(got), len(want))
		}
		for i := range want {
			if d := math.Abs(float64(got[i] - want[i])); d > 1e-3 {
				t.Fatalf("%d Hz %v: sample %d differs by %g", tt.rate, tt.strategies, i, d)
			}
		}
		if st.Emitted() != int64(len(want)) {
			t.Errorf("got Emitted %d, want %d", st.Emitted(), len(want))
		}
	}
}

func TestStream_NoSeamAtChunkEdges(t *testing.T) {
	r := newTestResampler(t)
	in := sine(440, 8000, 8000, 0.5)

	st, err := r.NewStream(8000, 0)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	out := streamAll(t, st, in, 160)

	// A 440 Hz tone at 16 kHz moves by at most 2*pi*440/16000*0.5 per sample.
	limit := 2 * math.Pi * 440 / 16000 * 0.5 * 1.2
	for i := 40; i < len(out)-40; i++ {
		if d := math.Abs(float64(out[i] - out[i-1])); d > limit {
			t.Fatalf("jump of %g at sample %d, want <= %g", d, i, limit)
		}
	}
}

func TestStream_Timestamps(t *testing.T) {
	r := newTestResampler(t)
	st, err := r.NewStream(8000, 2*time.Second)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}

	var total int
	for i := range 10 {
		out, ts, err := st.Write(make([]float32, 160))
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		want := 2*time.Second + time.Duration(total)*time.Second/16000
		if ts != want {
			t.Errorf("chunk %d: got ts %v, want %v", i, ts, want)
		}
		total += len(out)
	}
	if total >= 3200 {
		t.Errorf("got %d samples before flush, want fewer than 3200", total)
	}

	tail, ts, err := st.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if want := 2*time.Second + time.Duration(total)*time.Second/16000; ts != want {
		t.Errorf("flush: got ts %v, want %v", ts, want)
	}
	if total+len(tail) != 3200 {
		t.Errorf("got %d samples in total, want 3200", total+len(tail))
	}
	if more, _, _ := st.Flush(); len(more) != 0 {
		t.Errorf("second flush returned %d samples", len(more))
	}
}

func TestStream_Passthrough(t *testing.T) {
	r := newTestResampler(t)
	st, err := r.NewStream(16000, time.Second)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	in := sine(440, 16000, 320, 0.5)

	out, ts, err := st.Write(in)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(out) != len(in) || &out[0] != &in[0] || ts != time.Second {
		t.Errorf("got %d samples at %v, want the input at 1s", len(out), ts)
	}
	if _, ts, _ = st.Write(in); ts != time.Second+20*time.Millisecond {
		t.Errorf("got ts %v, want 1.02s", ts)
	}
}

func TestNewStream_InvalidRate(t *testing.T) {
	r := newTestResampler(t)
	if _, err := r.NewStream(0, 0); !errors.Is(err, audio.ErrInvalidParameter) {
		t.Errorf("got %v, want ErrInvalidParameter", err)
	}
}

func TestCondition_NormalisesWholeSlice(t *testing.T) {
	r := newTestResampler(t)
	in := sine(440, 16000, 16000, 0.05)

	r.Condition(in)
	if rms := audio.RMS(in); rms < 0.27 || rms > 0.30 {
		t.Errorf("got RMS %f, want about 0.285", rms)
	}
	if p := audio.Peak(in); p > 1 {
		t.Errorf("got peak %f, want <= 1", p)
	}
}
