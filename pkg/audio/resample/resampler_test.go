package resample

import (
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/speechprep/internal/resilience"
	"github.com/MrWong99/speechprep/pkg/audio"
)

func sine(freq float64, rate, n int, amp float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = amp * float32(math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func newTestResampler(t *testing.T, opts ...Option) *Resampler {
	t.Helper()
	r, err := New(DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

type failingStrategy struct{ calls int }

func (f *failingStrategy) Name() string { return "broken" }

func (f *failingStrategy) Resample([]float32, int, int) ([]float32, error) {
	f.calls++
	return nil, errors.New("kernel exploded")
}

func TestResampleToTarget_Identity(t *testing.T) {
	r := newTestResampler(t)
	in := sine(440, 16000, 1600, 0.5)

	out, err := r.ResampleToTarget(in, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(in) || &out[0] != &in[0] {
		t.Fatal("expected the input slice to be returned unchanged")
	}
	if s := r.Stats(); s.Passthrough != 1 || s.Calls != 1 {
		t.Errorf("got passthrough=%d calls=%d, want 1/1", s.Passthrough, s.Calls)
	}
}

func TestStrategies_PreserveDuration(t *testing.T) {
	rates := []int{8000, 11025, 22050, 32000, 44100, 48000}
	strategies := []Strategy{
		Linear{},
		&Sinc{Quality: QualityHigh},
		&Polyphase{Quality: QualityMedium},
	}
	for _, s := range strategies {
		for _, rate := range rates {
			for _, n := range []int{1, 159, 4410, 8001} {
				in := sine(300, rate, n, 0.5)
				out, err := s.Resample(in, rate, 16000)
				if err != nil {
					t.Fatalf("%s %d: unexpected error: %v", s.Name(), rate, err)
				}
				want := int(math.Round(float64(n) * 16000 / float64(rate)))
				if d := len(out) - want; d < -1 || d > 1 {
					t.Errorf("%s %d Hz n=%d: got %d samples, want %d±1", s.Name(), rate, n, len(out), want)
				}
			}
		}
	}
}

func TestStrategies_TrackLowFrequencyTone(t *testing.T) {
	const freq = 300.0
	strategies := []Strategy{
		&Sinc{Quality: QualityHigh},
		&Polyphase{Quality: QualityHigh},
		Linear{},
	}
	for _, s := range strategies {
		for _, from := range []int{8000, 48000} {
			in := sine(freq, from, from/4, 0.5)
			out, err := s.Resample(in, from, 16000)
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", s.Name(), err)
			}
			want := sine(freq, 16000, len(out), 0.5)

			// Skip the edges where the kernel runs off the buffer.
			var worst float64
			for i := 200; i < len(out)-200; i++ {
				worst = math.Max(worst, math.Abs(float64(out[i]-want[i])))
			}
			if worst > 0.02 {
				t.Errorf("%s %d Hz: max deviation %.4f, want <= 0.02", s.Name(), from, worst)
			}
		}
	}
}

func TestSinc_AttenuatesAboveNewNyquist(t *testing.T) {
	// 7 kHz is legal at 48 kHz but aliases at 8 kHz.
	in := sine(7000, 48000, 4800, 0.8)
	s := &Sinc{Quality: QualityVeryHigh}
	out, err := s.Resample(in, 48000, 8000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rms := audio.RMS(out[100 : len(out)-100]); rms > 0.02 {
		t.Errorf("got rms %.4f after downsampling, want the tone removed", rms)
	}
}

func TestPolyphase_RejectsComplexRatio(t *testing.T) {
	p := &Polyphase{Quality: QualityLow}
	_, err := p.Resample(make([]float32, 100), 16001, 16000)
	if !errors.Is(err, audio.ErrConversionFailure) || !errors.Is(err, resilience.ErrNotApplicable) {
		t.Fatalf("got %v, want ErrConversionFailure and ErrNotApplicable", err)
	}
}

func TestResample_ComplexRatioKeepsPolyphaseAvailable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategies = []string{StrategyPolyphase, StrategyLinear}
	cfg.BreakerMaxFailures = 2
	var hooked []string
	r, err := New(cfg, WithFallbackHook(func(name string, err error) { hooked = append(hooked, name) }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// 44056/16000 reduces to 5507/2000, beyond the polyphase bound.
	for range 6 {
		if _, err := r.Resample(make([]float32, 881), 44056, 16000); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if st, _ := r.BreakerState(StrategyPolyphase); st != resilience.StateClosed {
		t.Errorf("got polyphase breaker %v, want closed", st)
	}
	if len(hooked) != 0 {
		t.Errorf("got fallback hooks %v, want none", hooked)
	}

	if _, err := r.Resample(make([]float32, 960), 48000, 16000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := r.Stats()
	if s.ServedBy[StrategyLinear] != 6 || s.ServedBy[StrategyPolyphase] != 1 {
		t.Errorf("got served=%v, want linear 6 and polyphase 1", s.ServedBy)
	}
}

func TestResample_FallsBackToLinear(t *testing.T) {
	broken := &failingStrategy{}
	var hooked []string
	r := newTestResampler(t,
		WithStrategies(broken),
		WithFallbackHook(func(name string, err error) { hooked = append(hooked, name) }),
	)

	if got := r.Strategies(); len(got) != 2 || got[1] != StrategyLinear {
		t.Fatalf("got strategies %v, want [broken linear]", got)
	}

	out, err := r.Resample(sine(440, 8000, 800, 0.5), 8000, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1600 {
		t.Errorf("got %d samples, want 1600", len(out))
	}
	if len(hooked) != 1 || hooked[0] != "broken" {
		t.Errorf("got hook calls %v, want [broken]", hooked)
	}

	s := r.Stats()
	if s.ServedBy[StrategyLinear] != 1 || s.Fallbacks["broken"] != 1 {
		t.Errorf("got served=%v fallbacks=%v", s.ServedBy, s.Fallbacks)
	}
}

func TestResample_BreakerSkipsBrokenStrategy(t *testing.T) {
	broken := &failingStrategy{}
	cfg := DefaultConfig()
	cfg.BreakerMaxFailures = 2
	r, err := New(cfg, WithStrategies(broken))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for range 5 {
		if _, err := r.Resample(make([]float32, 80), 8000, 16000); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if broken.calls != 2 {
		t.Errorf("got %d calls to broken strategy, want 2", broken.calls)
	}
	if st, _ := r.BreakerState("broken"); st != resilience.StateOpen {
		t.Errorf("got breaker %v, want open", st)
	}
}

func TestResample_InvalidRate(t *testing.T) {
	r := newTestResampler(t)
	if _, err := r.Resample([]float32{0}, 0, 16000); !errors.Is(err, audio.ErrInvalidParameter) {
		t.Fatalf("got %v, want ErrInvalidParameter", err)
	}
}

func TestResample_FilterCacheReused(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategies = []string{StrategyPolyphase}
	r, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for range 3 {
		if _, err := r.ResampleToTarget(make([]float32, 160), 8000); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	s := r.Stats()
	if s.CacheMisses != 1 || s.CacheHits != 2 {
		t.Errorf("got hits=%d misses=%d, want 2/1", s.CacheHits, s.CacheMisses)
	}
}

func TestPreprocessForTranscription(t *testing.T) {
	r := newTestResampler(t)
	in := sine(200, 8000, 8000, 0.1)
	for i := range in {
		in[i] += 0.05 // DC offset
	}
	orig := append([]float32(nil), in...)

	out, err := r.PreprocessForTranscription(in, 8000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 16000 {
		t.Fatalf("got %d samples, want 16000", len(out))
	}
	for i := range in {
		if in[i] != orig[i] {
			t.Fatalf("input modified at %d", i)
		}
	}

	var sum float64
	for _, s := range out {
		if s > 1 || s < -1 {
			t.Fatalf("sample %f outside [-1, 1]", s)
		}
		sum += float64(s)
	}
	if mean := sum / float64(len(out)); math.Abs(mean) > 1e-4 {
		t.Errorf("got mean %g, want ~0", mean)
	}
}

func TestPreprocessForTranscription_DoesNotAliasInputAtTargetRate(t *testing.T) {
	r := newTestResampler(t)
	in := sine(200, 16000, 1600, 0.5)
	orig := append([]float32(nil), in...)

	if _, err := r.PreprocessForTranscription(in, 16000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range in {
		if in[i] != orig[i] {
			t.Fatalf("input modified at %d", i)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero target rate", func(c *Config) { c.TargetRate = 0 }},
		{"bad quality", func(c *Config) { c.Quality = 9 }},
		{"unknown strategy", func(c *Config) { c.Strategies = []string{"soxr"} }},
		{"preemphasis one", func(c *Config) { c.Preemphasis = 1 }},
		{"peak above one", func(c *Config) { c.TargetPeak = 1.5 }},
		{"negative rms", func(c *Config) { c.MinRMS = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, audio.ErrInvalidParameter) {
				t.Fatalf("got %v, want ErrInvalidParameter", err)
			}
			if _, err := New(cfg); err == nil {
				t.Fatal("New accepted an invalid config")
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestParseQuality(t *testing.T) {
	for _, name := range []string{"low", "Medium", " high ", "very-high", "very_high"} {
		if _, err := ParseQuality(name); err != nil {
			t.Errorf("ParseQuality(%q): %v", name, err)
		}
	}
	if _, err := ParseQuality("ultra"); !errors.Is(err, audio.ErrInvalidParameter) {
		t.Errorf("got %v, want ErrInvalidParameter", err)
	}
}
