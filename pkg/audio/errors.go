package audio

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the converter, the resampler, and the VAD. Callers
// classify failures with errors.Is; the concrete wrappers below add context.
var (
	// ErrUnsupportedFormat is returned for unknown encodings or encoding and
	// bit depth pairings that have no codec.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrMalformedBuffer is returned when a byte buffer is not a whole number
	// of samples for its format.
	ErrMalformedBuffer = errors.New("malformed buffer")

	// ErrInvalidParameter is returned at construction time for configuration
	// values outside their supported set.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrConversionFailure is returned when a numeric path fails and no
	// fallback is left.
	ErrConversionFailure = errors.New("conversion failure")
)

// FormatError names the encoding that could not be handled.
type FormatError struct {
	// Format is the offending format name as given by the caller.
	Format string

	// BitDepth is set when the failure is about an encoding and bit depth
	// pairing rather than a format name.
	BitDepth int
}

func (e *FormatError) Error() string {
	if e.BitDepth > 0 {
		return fmt.Sprintf("%s: %q at %d bits", ErrUnsupportedFormat, e.Format, e.BitDepth)
	}
	return fmt.Sprintf("%s: %q", ErrUnsupportedFormat, e.Format)
}

// Unwrap lets errors.Is match [ErrUnsupportedFormat].
func (e *FormatError) Unwrap() error { return ErrUnsupportedFormat }

// ParamError describes a rejected configuration value.
type ParamError struct {
	// Name is the parameter's configuration key (e.g. "frame_duration_ms").
	Name string

	// Value is the rejected value.
	Value any

	// Want describes the accepted set or range.
	Want string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: %s = %v, want %s", ErrInvalidParameter, e.Name, e.Value, e.Want)
}

// Unwrap lets errors.Is match [ErrInvalidParameter].
func (e *ParamError) Unwrap() error { return ErrInvalidParameter }

func malformed(f Format, n, width int) error {
	return fmt.Errorf("audio: %w: %d bytes is not a multiple of the %s frame width %d", ErrMalformedBuffer, n, f, width)
}
