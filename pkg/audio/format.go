// Package audio converts raw sample encodings to and from the canonical
// representation used throughout speechprep: mono float32 samples in
// [-1.0, 1.0] at a stated sample rate.
//
// Every supported encoding is an entry in a fixed dispatch table holding a
// decode/encode pair. Conversions always route through the canonical form, so
// adding an encoding means adding one table entry.
package audio

import (
	"strings"
)

// Format identifies one of the supported sample encodings.
type Format int

const (
	FormatUnknown Format = iota
	FormatS8
	FormatU8
	FormatS16LE
	FormatS16BE
	FormatS24LE
	FormatS24BE
	FormatS32LE
	FormatS32BE
	FormatF32LE
	FormatF32BE
	FormatMuLaw
	FormatALaw
)

// Formats lists every supported format in table order.
var Formats = []Format{
	FormatS8, FormatU8,
	FormatS16LE, FormatS16BE,
	FormatS24LE, FormatS24BE,
	FormatS32LE, FormatS32BE,
	FormatF32LE, FormatF32BE,
	FormatMuLaw, FormatALaw,
}

var formatNames = map[Format]string{
	FormatS8:    "s8",
	FormatU8:    "u8",
	FormatS16LE: "s16le",
	FormatS16BE: "s16be",
	FormatS24LE: "s24le",
	FormatS24BE: "s24be",
	FormatS32LE: "s32le",
	FormatS32BE: "s32be",
	FormatF32LE: "f32le",
	FormatF32BE: "f32be",
	FormatMuLaw: "mulaw",
	FormatALaw:  "alaw",
}

// formatAliases maps the spellings used by media gateways and SDP to formats.
var formatAliases = map[string]Format{
	"pcm":    FormatS16LE,
	"pcm16":  FormatS16LE,
	"linear": FormatS16LE,
	"l16":    FormatS16BE,
	"float":  FormatF32LE,
	"ulaw":   FormatMuLaw,
	"pcmu":   FormatMuLaw,
	"mu-law": FormatMuLaw,
	"pcma":   FormatALaw,
	"a-law":  FormatALaw,
}

// String returns the canonical short name (e.g. "s16le").
func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

// IsValid reports whether f has a codec.
func (f Format) IsValid() bool {
	_, ok := formatNames[f]
	return ok
}

// SampleWidth returns the number of bytes per sample, or 0 for an unknown
// format.
func (f Format) SampleWidth() int {
	switch f {
	case FormatS8, FormatU8, FormatMuLaw, FormatALaw:
		return 1
	case FormatS16LE, FormatS16BE:
		return 2
	case FormatS24LE, FormatS24BE:
		return 3
	case FormatS32LE, FormatS32BE, FormatF32LE, FormatF32BE:
		return 4
	}
	return 0
}

// BitDepth returns the nominal bits per sample. Companded formats report 8.
func (f Format) BitDepth() int { return f.SampleWidth() * 8 }

// IsFloat reports whether f carries IEEE-754 samples.
func (f Format) IsFloat() bool { return f == FormatF32LE || f == FormatF32BE }

// IsCompanded reports whether f is one of the G.711 laws.
func (f Format) IsCompanded() bool { return f == FormatMuLaw || f == FormatALaw }

// ParseFormat resolves a format name or a common alias, case-insensitively.
func ParseFormat(name string) (Format, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for f, n := range formatNames {
		if n == key {
			return f, nil
		}
	}
	if f, ok := formatAliases[key]; ok {
		return f, nil
	}
	return FormatUnknown, &FormatError{Format: name}
}

// Encoding names as used by sox-style format descriptions.
const (
	EncodingSigned   = "signed-integer"
	EncodingUnsigned = "unsigned-integer"
	EncodingFloat    = "floating-point"
	EncodingMuLaw    = "mu-law"
	EncodingALaw     = "a-law"
)

// FormatFor resolves an (encoding, bit depth, endianness) description. Pairings
// without a codec, such as 16-bit float or 24-bit unsigned, fail with
// [ErrUnsupportedFormat] naming the encoding and bit depth.
func FormatFor(encoding string, bitDepth int, bigEndian bool) (Format, error) {
	pick := func(le, be Format) Format {
		if bigEndian {
			return be
		}
		return le
	}

	switch strings.ToLower(encoding) {
	case EncodingSigned:
		switch bitDepth {
		case 8:
			return FormatS8, nil
		case 16:
			return pick(FormatS16LE, FormatS16BE), nil
		case 24:
			return pick(FormatS24LE, FormatS24BE), nil
		case 32:
			return pick(FormatS32LE, FormatS32BE), nil
		}
	case EncodingUnsigned:
		if bitDepth == 8 {
			return FormatU8, nil
		}
	case EncodingFloat:
		if bitDepth == 32 {
			return pick(FormatF32LE, FormatF32BE), nil
		}
	case EncodingMuLaw:
		if bitDepth == 8 {
			return FormatMuLaw, nil
		}
	case EncodingALaw:
		if bitDepth == 8 {
			return FormatALaw, nil
		}
	default:
		return FormatUnknown, &FormatError{Format: encoding}
	}
	return FormatUnknown, &FormatError{Format: encoding, BitDepth: bitDepth}
}
