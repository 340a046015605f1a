package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/speechprep/pkg/vad"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over [Default] and validates the
// result. Unknown keys are rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every failure found. Suspicious but usable
// combinations are logged as warnings.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if p := cfg.Converter.TargetPeak; p <= 0 || p > 1 {
		errs = append(errs, fmt.Errorf("converter.target_peak %.3f is out of range (0, 1]", p))
	}

	rc, err := cfg.ResampleConfig()
	if err != nil {
		errs = append(errs, fmt.Errorf("resample: %w", err))
	} else if err := rc.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("resample: %w", err))
	}

	vc := cfg.VADConfig()
	if err := vc.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("vad: %w", err))
	}
	if cfg.VAD.SampleRate != cfg.Resample.TargetRate {
		errs = append(errs, fmt.Errorf("vad.sample_rate %d must equal resample.target_rate %d",
			cfg.VAD.SampleRate, cfg.Resample.TargetRate))
	}
	if cfg.VAD.MaxSilenceDurationMs < cfg.VAD.PostSpeechPaddingMs {
		slog.Warn("vad.max_silence_duration_ms is shorter than post_speech_padding_ms; trailing padding will be truncated",
			"max_silence_ms", cfg.VAD.MaxSilenceDurationMs,
			"post_padding_ms", cfg.VAD.PostSpeechPaddingMs,
		)
	}
	if cfg.VAD.Classifier == vad.ClassifierEnergy && cfg.VAD.Aggressiveness != Default().VAD.Aggressiveness {
		slog.Warn("vad.aggressiveness only affects the webrtc classifier", "classifier", cfg.VAD.Classifier)
	}

	if cfg.Pipeline.Workers < 0 {
		errs = append(errs, fmt.Errorf("pipeline.workers %d must not be negative", cfg.Pipeline.Workers))
	}

	return errors.Join(errs...)
}
