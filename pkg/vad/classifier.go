package vad

import (
	"errors"
	"fmt"
	"math"
)

// ErrClassifierUnavailable is returned when a classifier was compiled out of
// the binary.
var ErrClassifierUnavailable = errors.New("vad: classifier unavailable")

// Classifier decides whether a single frame contains speech. A classifier
// belongs to one detector and is not shared between goroutines.
type Classifier interface {
	IsSpeech(frame []int16) (bool, error)
	Close() error
}

// EnergyClassifier marks a frame as speech when its normalised RMS reaches
// Threshold.
type EnergyClassifier struct {
	Threshold float64
}

// IsSpeech implements [Classifier].
func (e EnergyClassifier) IsSpeech(frame []int16) (bool, error) {
	return frameRMS(frame) >= e.Threshold, nil
}

// Close implements [Classifier].
func (EnergyClassifier) Close() error { return nil }

func frameRMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// NewClassifier builds the classifier named by cfg.Classifier.
func NewClassifier(cfg Config) (Classifier, error) {
	switch cfg.Classifier {
	case ClassifierEnergy:
		return EnergyClassifier{Threshold: cfg.EnergyThreshold}, nil
	case ClassifierWebRTC:
		return newWebRTCClassifier(cfg.SampleRate, cfg.Aggressiveness)
	default:
		return nil, fmt.Errorf("vad: unknown classifier %q", cfg.Classifier)
	}
}
