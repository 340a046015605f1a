//go:build cgo && !no_fvad

package vad

import (
	"fmt"

	"github.com/josharian/fvad"
)

// WebRTCClassifier wraps libfvad, the standalone build of the WebRTC voice
// activity detector.
type WebRTCClassifier struct {
	det *fvad.Detector
}

func newWebRTCClassifier(sampleRate, mode int) (Classifier, error) {
	det := fvad.NewDetector()
	if err := det.SetSampleRate(sampleRate); err != nil {
		det.Close()
		return nil, fmt.Errorf("vad: set fvad sample rate: %w", err)
	}
	if err := det.SetMode(mode); err != nil {
		det.Close()
		return nil, fmt.Errorf("vad: set fvad mode: %w", err)
	}
	return &WebRTCClassifier{det: det}, nil
}

// IsSpeech implements [Classifier]. Frames must be 10, 20 or 30 ms long.
func (w *WebRTCClassifier) IsSpeech(frame []int16) (bool, error) {
	if w.det == nil {
		return false, fmt.Errorf("vad: fvad classifier closed")
	}
	return w.det.Process(frame)
}

// Close releases the native detector. It is safe to call more than once.
func (w *WebRTCClassifier) Close() error {
	if w.det != nil {
		w.det.Close()
		w.det = nil
	}
	return nil
}
