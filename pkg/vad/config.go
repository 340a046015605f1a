// Package vad turns a stream of fixed-size PCM frames into bounded speech
// segments.
//
// Each stream gets its own [Detector], a two-state machine (silent or
// speaking) that classifies every frame with a [Classifier], keeps a short
// window of leading silence as pre-speech padding, and finalises a segment
// once enough trailing silence has accumulated. Segments shorter than the
// configured minimum are discarded. A [Registry] maps session IDs to
// detectors for callers that handle many calls at once.
//
// Detectors do no I/O and keep no timers; timestamps passed to Process are
// treated purely as metadata.
package vad

import (
	"errors"
	"slices"
	"time"

	"github.com/MrWong99/speechprep/pkg/audio"
)

// Classifier names accepted in [Config.Classifier].
const (
	ClassifierEnergy = "energy"
	ClassifierWebRTC = "webrtc"
)

var (
	supportedRates     = []int{8000, 16000, 32000, 48000}
	supportedDurations = []int{10, 20, 30}
)

// Config holds the parameters for one detector. Start from [DefaultConfig];
// zero values are not defaults.
type Config struct {
	// SampleRate of the incoming 16-bit mono PCM. One of 8000, 16000, 32000,
	// 48000.
	SampleRate int

	// FrameDurationMs is the frame length. One of 10, 20, 30.
	FrameDurationMs int

	// Classifier selects the per-frame speech decision: "energy" or "webrtc".
	Classifier string

	// EnergyThreshold is the normalised RMS at or above which the energy
	// classifier calls a frame speech. It has no universal calibration and
	// should be tuned to the input level.
	EnergyThreshold float64

	// Aggressiveness is the WebRTC VAD mode, 0 (least) to 3 (most aggressive).
	Aggressiveness int

	PreSpeechPaddingMs   int
	PostSpeechPaddingMs  int
	MinSpeechDurationMs  int
	MaxSilenceDurationMs int
}

// DefaultConfig returns the detector settings used by the pipeline.
func DefaultConfig() Config {
	return Config{
		SampleRate:           16000,
		FrameDurationMs:      20,
		Classifier:           ClassifierEnergy,
		EnergyThreshold:      0.01,
		Aggressiveness:       2,
		PreSpeechPaddingMs:   100,
		PostSpeechPaddingMs:  200,
		MinSpeechDurationMs:  300,
		MaxSilenceDurationMs: 800,
	}
}

// Validate checks every field and returns all problems joined. Each problem
// matches [audio.ErrInvalidParameter].
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(supportedRates, c.SampleRate) {
		errs = append(errs, &audio.ParamError{Name: "sample_rate", Value: c.SampleRate, Want: "one of 8000, 16000, 32000, 48000"})
	}
	if !slices.Contains(supportedDurations, c.FrameDurationMs) {
		errs = append(errs, &audio.ParamError{Name: "frame_duration_ms", Value: c.FrameDurationMs, Want: "one of 10, 20, 30"})
	}
	switch c.Classifier {
	case ClassifierEnergy:
		if !(c.EnergyThreshold > 0) {
			errs = append(errs, &audio.ParamError{Name: "energy_threshold", Value: c.EnergyThreshold, Want: "> 0"})
		}
	case ClassifierWebRTC:
	default:
		errs = append(errs, &audio.ParamError{Name: "classifier", Value: c.Classifier, Want: "one of energy, webrtc"})
	}
	if c.Aggressiveness < 0 || c.Aggressiveness > 3 {
		errs = append(errs, &audio.ParamError{Name: "aggressiveness", Value: c.Aggressiveness, Want: "in [0, 3]"})
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"pre_speech_padding_ms", c.PreSpeechPaddingMs},
		{"post_speech_padding_ms", c.PostSpeechPaddingMs},
		{"min_speech_duration_ms", c.MinSpeechDurationMs},
	} {
		if f.v < 0 {
			errs = append(errs, &audio.ParamError{Name: f.name, Value: f.v, Want: ">= 0"})
		}
	}
	if c.MaxSilenceDurationMs <= 0 {
		errs = append(errs, &audio.ParamError{Name: "max_silence_duration_ms", Value: c.MaxSilenceDurationMs, Want: "> 0"})
	}
	return errors.Join(errs...)
}

// FrameSamples is the number of samples in one frame.
func (c Config) FrameSamples() int { return c.SampleRate * c.FrameDurationMs / 1000 }

// FrameBytes is the size of one 16-bit PCM frame.
func (c Config) FrameBytes() int { return 2 * c.FrameSamples() }

// FrameDuration is the length of one frame.
func (c Config) FrameDuration() time.Duration {
	return time.Duration(c.FrameDurationMs) * time.Millisecond
}

// frames converts a millisecond window to whole frames, rounding down.
func (c Config) frames(ms int) int { return ms / c.FrameDurationMs }
