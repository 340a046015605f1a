package resample

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/speechprep/internal/resilience"
	"github.com/MrWong99/speechprep/pkg/audio"
)

// DefaultTargetRate is the rate speech recognisers expect.
const DefaultTargetRate = 16000

// Config describes a [Resampler]. Build it with [DefaultConfig] and override
// fields; zero values are not defaults.
type Config struct {
	TargetRate int
	Quality    Quality

	// Strategies lists strategy names in preference order. Linear is always
	// appended if missing.
	Strategies []string

	// Preemphasis is the high-pass coefficient. Zero disables the filter.
	Preemphasis float32

	TargetPeak float32
	MinRMS     float64

	CacheSize int

	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
}

// DefaultConfig returns the configuration used by the pipeline.
func DefaultConfig() Config {
	return Config{
		TargetRate:          DefaultTargetRate,
		Quality:             QualityHigh,
		Strategies:          []string{StrategySinc, StrategyPolyphase, StrategyLinear},
		Preemphasis:         DefaultPreemphasis,
		TargetPeak:          0.95,
		MinRMS:              0.001,
		CacheSize:           DefaultCacheSize,
		BreakerMaxFailures:  5,
		BreakerResetTimeout: 30 * time.Second,
	}
}

// Validate checks every field and returns all problems joined.
func (c Config) Validate() error {
	var errs []error
	if c.TargetRate <= 0 {
		errs = append(errs, &audio.ParamError{Name: "target_rate", Value: c.TargetRate, Want: "> 0"})
	}
	if !c.Quality.IsValid() {
		errs = append(errs, &audio.ParamError{Name: "quality", Value: c.Quality, Want: "one of low, medium, high, very_high"})
	}
	for _, name := range c.Strategies {
		if !slices.Contains(StrategyNames(), name) {
			errs = append(errs, &audio.ParamError{Name: "strategies", Value: name, Want: "one of sinc, polyphase, linear"})
		}
	}
	if c.Preemphasis < 0 || c.Preemphasis >= 1 {
		errs = append(errs, &audio.ParamError{Name: "preemphasis", Value: c.Preemphasis, Want: "in [0, 1)"})
	}
	if c.TargetPeak <= 0 || c.TargetPeak > 1 {
		errs = append(errs, &audio.ParamError{Name: "target_peak", Value: c.TargetPeak, Want: "in (0, 1]"})
	}
	if c.MinRMS < 0 {
		errs = append(errs, &audio.ParamError{Name: "min_rms", Value: c.MinRMS, Want: ">= 0"})
	}
	if c.CacheSize < 0 {
		errs = append(errs, &audio.ParamError{Name: "cache_size", Value: c.CacheSize, Want: ">= 0"})
	}
	if c.BreakerMaxFailures < 0 {
		errs = append(errs, &audio.ParamError{Name: "breaker.max_failures", Value: c.BreakerMaxFailures, Want: ">= 0"})
	}
	if c.BreakerResetTimeout < 0 {
		errs = append(errs, &audio.ParamError{Name: "breaker.reset_timeout", Value: c.BreakerResetTimeout, Want: ">= 0"})
	}
	return errors.Join(errs...)
}

// StrategyNames lists the built-in strategy names.
func StrategyNames() []string {
	return []string{StrategySinc, StrategyPolyphase, StrategyLinear}
}

// Stats is a snapshot of resampler activity.
type Stats struct {
	Calls       uint64            `json:"calls"`
	Passthrough uint64            `json:"passthrough"`
	ServedBy    map[string]uint64 `json:"served_by"`
	Fallbacks   map[string]uint64 `json:"fallbacks"`
	CacheHits   uint64            `json:"cache_hits"`
	CacheMisses uint64            `json:"cache_misses"`
}

// Option customises a [Resampler] beyond what [Config] covers.
type Option func(*Resampler)

// WithStrategies replaces the configured strategies with custom
// implementations, tried in the given order. Linear is still appended if
// none of them is named "linear".
func WithStrategies(s ...Strategy) Option {
	return func(r *Resampler) { r.custom = s }
}

// WithFallbackHook registers fn to be called whenever a strategy fails or
// is skipped.
func WithFallbackHook(fn func(strategy string, err error)) Option {
	return func(r *Resampler) { r.hook = fn }
}

// Resampler converts canonical buffers to a fixed target rate. Strategies
// are tried in preference order, each behind its own circuit breaker. It is
// safe for concurrent use.
type Resampler struct {
	cfg    Config
	cache  *FilterCache
	group  *resilience.FallbackGroup[Strategy]
	custom []Strategy
	hook   func(string, error)

	mu    sync.Mutex
	stats Stats
}

// New validates cfg and builds a resampler.
func New(cfg Config, opts ...Option) (*Resampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("resample: invalid config: %w", err)
	}
	cache, err := NewFilterCache(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("resample: create filter cache: %w", err)
	}
	r := &Resampler{
		cfg:   cfg,
		cache: cache,
		stats: Stats{ServedBy: map[string]uint64{}, Fallbacks: map[string]uint64{}},
	}
	for _, o := range opts {
		o(r)
	}

	strategies := r.custom
	if strategies == nil {
		for _, name := range cfg.Strategies {
			strategies = append(strategies, r.builtin(name))
		}
	}
	if !slices.ContainsFunc(strategies, func(s Strategy) bool { return s.Name() == StrategyLinear }) {
		strategies = append(strategies, Linear{})
	}

	r.group = resilience.NewFallbackGroup[Strategy](resilience.BreakerConfig{
		MaxFailures:  cfg.BreakerMaxFailures,
		ResetTimeout: cfg.BreakerResetTimeout,
	})
	for _, s := range strategies {
		r.group.Add(s.Name(), s)
	}
	r.group.OnFallback(r.onFallback)

	slog.Debug("resampler ready", "target_rate", cfg.TargetRate, "quality", cfg.Quality, "strategies", r.group.Names())
	return r, nil
}

func (r *Resampler) builtin(name string) Strategy {
	switch name {
	case StrategySinc:
		return &Sinc{Quality: r.cfg.Quality, Cache: r.cache}
	case StrategyPolyphase:
		return &Polyphase{Quality: r.cfg.Quality, Cache: r.cache}
	default:
		return Linear{}
	}
}

func (r *Resampler) onFallback(name string, err error) {
	r.mu.Lock()
	r.stats.Fallbacks[name]++
	r.mu.Unlock()
	if r.hook != nil {
		r.hook(name, err)
	}
}

// TargetRate returns the configured output rate.
func (r *Resampler) TargetRate() int { return r.cfg.TargetRate }

// Strategies returns the strategy names in the order they are tried.
func (r *Resampler) Strategies() []string { return r.group.Names() }

// ResampleToTarget converts samples from sourceRate to the target rate. When
// the rates already match the input slice itself is returned.
func (r *Resampler) ResampleToTarget(samples []float32, sourceRate int) ([]float32, error) {
	return r.Resample(samples, sourceRate, r.cfg.TargetRate)
}

// Resample converts samples between two arbitrary rates. The input is never
// modified. When every strategy fails the error wraps
// [audio.ErrConversionFailure].
func (r *Resampler) Resample(samples []float32, from, to int) ([]float32, error) {
	if from <= 0 {
		return nil, &audio.ParamError{Name: "source_rate", Value: from, Want: "> 0"}
	}
	if to <= 0 {
		return nil, &audio.ParamError{Name: "target_rate", Value: to, Want: "> 0"}
	}

	r.mu.Lock()
	r.stats.Calls++
	if from == to {
		r.stats.Passthrough++
		r.mu.Unlock()
		return samples, nil
	}
	r.mu.Unlock()

	if len(samples) == 0 {
		return []float32{}, nil
	}

	out, name, err := resilience.Execute(r.group, func(s Strategy) ([]float32, error) {
		return s.Resample(samples, from, to)
	})
	if err != nil {
		return nil, fmt.Errorf("resample %d -> %d: %w: %w", from, to, audio.ErrConversionFailure, err)
	}

	r.mu.Lock()
	r.stats.ServedBy[name]++
	r.mu.Unlock()
	return out, nil
}

// PreprocessForTranscription resamples to the target rate and then applies
// preemphasis, volume normalisation, DC removal and a final clip. The input
// is never modified.
func (r *Resampler) PreprocessForTranscription(samples []float32, sourceRate int) ([]float32, error) {
	out, err := r.ResampleToTarget(samples, sourceRate)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 && &out[0] == &samples[0] {
		out = slices.Clone(out)
	}

	r.Condition(out)
	return out, nil
}

// Condition applies preemphasis, volume normalisation, DC removal and a
// final clip to samples in place. Normalisation looks at the whole slice, so
// it should be given a complete utterance rather than a transport chunk.
func (r *Resampler) Condition(samples []float32) {
	Preemphasis(samples, r.cfg.Preemphasis)
	NormalizeVolume(samples, r.cfg.TargetPeak, r.cfg.MinRMS)
	RemoveDC(samples)
	Clip(samples)
}

// Stats returns a snapshot of resampler activity.
func (r *Resampler) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.ServedBy = maps.Clone(r.stats.ServedBy)
	s.Fallbacks = maps.Clone(r.stats.Fallbacks)
	s.CacheHits = r.cache.Hits()
	s.CacheMisses = r.cache.Misses()
	return s
}

// BreakerState reports the circuit state guarding the named strategy.
func (r *Resampler) BreakerState(name string) (resilience.State, bool) {
	return r.group.BreakerState(name)
}
