// Package config provides the configuration schema, loader, validation and
// file watcher for speechprep.
//
// A Config starts from [Default] and is overlaid with the YAML document, so
// omitted keys keep their defaults. Component settings are translated into
// the component's own config type ([Config.ResampleConfig],
// [Config.VADConfig]) and validated by that component.
package config

import (
	"time"

	"github.com/MrWong99/speechprep/pkg/audio/resample"
	"github.com/MrWong99/speechprep/pkg/vad"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	LogLevel  LogLevel        `yaml:"log_level"`
	Converter ConverterConfig `yaml:"converter"`
	Resample  ResampleConfig  `yaml:"resample"`
	VAD       VADConfig       `yaml:"vad"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ConverterConfig holds format conversion settings.
type ConverterConfig struct {
	// TargetPeak is used by the CLI's --normalize flag. Range (0, 1].
	TargetPeak float32 `yaml:"target_peak"`
}

// ResampleConfig mirrors [resample.Config] in YAML form.
type ResampleConfig struct {
	TargetRate int    `yaml:"target_rate"`
	Quality    string `yaml:"quality"`

	// Strategies in preference order. Linear is always appended.
	Strategies []string `yaml:"strategies"`

	// Preemphasis coefficient; 0 disables the filter.
	Preemphasis float32 `yaml:"preemphasis"`

	TargetPeak float32       `yaml:"target_peak"`
	MinRMS     float64       `yaml:"min_rms"`
	CacheSize  int           `yaml:"cache_size"`
	Breaker    BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker guarding each resampling strategy.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// VADConfig mirrors [vad.Config] in YAML form.
type VADConfig struct {
	SampleRate           int     `yaml:"sample_rate"`
	FrameDurationMs      int     `yaml:"frame_duration_ms"`
	Classifier           string  `yaml:"classifier"`
	EnergyThreshold      float64 `yaml:"energy_threshold"`
	Aggressiveness       int     `yaml:"aggressiveness"`
	PreSpeechPaddingMs   int     `yaml:"pre_speech_padding_ms"`
	PostSpeechPaddingMs  int     `yaml:"post_speech_padding_ms"`
	MinSpeechDurationMs  int     `yaml:"min_speech_duration_ms"`
	MaxSilenceDurationMs int     `yaml:"max_silence_duration_ms"`
}

// PipelineConfig controls batch processing.
type PipelineConfig struct {
	// Workers bounds how many sessions are processed concurrently by batch
	// operations. Zero means one per CPU.
	Workers int `yaml:"workers"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// ListenAddr is the address serving /metrics (e.g. ":9090"). Empty
	// disables the endpoint.
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns a fully populated configuration built from each
// component's defaults.
func Default() *Config {
	rc := resample.DefaultConfig()
	vc := vad.DefaultConfig()
	return &Config{
		LogLevel:  LogInfo,
		Converter: ConverterConfig{TargetPeak: 0.95},
		Resample: ResampleConfig{
			TargetRate:  rc.TargetRate,
			Quality:     rc.Quality.String(),
			Strategies:  rc.Strategies,
			Preemphasis: rc.Preemphasis,
			TargetPeak:  rc.TargetPeak,
			MinRMS:      rc.MinRMS,
			CacheSize:   rc.CacheSize,
			Breaker: BreakerConfig{
				MaxFailures:  rc.BreakerMaxFailures,
				ResetTimeout: rc.BreakerResetTimeout,
			},
		},
		VAD: VADConfig{
			SampleRate:           vc.SampleRate,
			FrameDurationMs:      vc.FrameDurationMs,
			Classifier:           vc.Classifier,
			EnergyThreshold:      vc.EnergyThreshold,
			Aggressiveness:       vc.Aggressiveness,
			PreSpeechPaddingMs:   vc.PreSpeechPaddingMs,
			PostSpeechPaddingMs:  vc.PostSpeechPaddingMs,
			MinSpeechDurationMs:  vc.MinSpeechDurationMs,
			MaxSilenceDurationMs: vc.MaxSilenceDurationMs,
		},
	}
}

// ResampleConfig converts the YAML section into a [resample.Config]. It
// fails only when the quality name is unknown; range checks are left to
// [resample.Config.Validate].
func (c *Config) ResampleConfig() (resample.Config, error) {
	q, err := resample.ParseQuality(c.Resample.Quality)
	if err != nil {
		return resample.Config{}, err
	}
	return resample.Config{
		TargetRate:          c.Resample.TargetRate,
		Quality:             q,
		Strategies:          c.Resample.Strategies,
		Preemphasis:         c.Resample.Preemphasis,
		TargetPeak:          c.Resample.TargetPeak,
		MinRMS:              c.Resample.MinRMS,
		CacheSize:           c.Resample.CacheSize,
		BreakerMaxFailures:  c.Resample.Breaker.MaxFailures,
		BreakerResetTimeout: c.Resample.Breaker.ResetTimeout,
	}, nil
}

// VADConfig converts the YAML section into a [vad.Config].
func (c *Config) VADConfig() vad.Config {
	v := c.VAD
	return vad.Config{
		SampleRate:           v.SampleRate,
		FrameDurationMs:      v.FrameDurationMs,
		Classifier:           v.Classifier,
		EnergyThreshold:      v.EnergyThreshold,
		Aggressiveness:       v.Aggressiveness,
		PreSpeechPaddingMs:   v.PreSpeechPaddingMs,
		PostSpeechPaddingMs:  v.PostSpeechPaddingMs,
		MinSpeechDurationMs:  v.MinSpeechDurationMs,
		MaxSilenceDurationMs: v.MaxSilenceDurationMs,
	}
}
