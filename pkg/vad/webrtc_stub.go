//go:build !cgo || no_fvad

package vad

func newWebRTCClassifier(int, int) (Classifier, error) {
	return nil, ErrClassifierUnavailable
}
