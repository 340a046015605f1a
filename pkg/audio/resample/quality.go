package resample

import (
	"fmt"
	"strings"

	"github.com/MrWong99/speechprep/pkg/audio"
)

// Quality selects the shape of the windowed-sinc kernels.
type Quality int

const (
	QualityLow Quality = iota
	QualityMedium
	QualityHigh
	QualityVeryHigh
)

var qualityNames = [...]string{"low", "medium", "high", "very_high"}

// kaiserParams holds zero crossings per side and the Kaiser β for each
// quality tier.
var kaiserParams = [...]struct {
	zeroCrossings int
	beta          float64
}{
	QualityLow:      {5, 5.0},
	QualityMedium:   {7, 7.0},
	QualityHigh:     {9, 8.6},
	QualityVeryHigh: {13, 10.0},
}

// String returns the configuration name of q.
func (q Quality) String() string {
	if q.IsValid() {
		return qualityNames[q]
	}
	return fmt.Sprintf("Quality(%d)", int(q))
}

// IsValid reports whether q is a known tier.
func (q Quality) IsValid() bool { return q >= QualityLow && q <= QualityVeryHigh }

// KaiserParams returns the kernel half-length in zero crossings and the
// Kaiser window shape parameter.
func (q Quality) KaiserParams() (zeroCrossings int, beta float64) {
	p := kaiserParams[q]
	return p.zeroCrossings, p.beta
}

// ParseQuality resolves a tier name such as "high" or "very_high".
func ParseQuality(name string) (Quality, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for i, n := range qualityNames {
		if n == key {
			return Quality(i), nil
		}
	}
	return 0, &audio.ParamError{Name: "quality", Value: name, Want: "one of low, medium, high, very_high"}
}
