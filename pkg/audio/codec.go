package audio

import (
	"encoding/binary"
	"math"

	"github.com/MrWong99/speechprep/pkg/audio/g711"
)

// codec is one row of the dispatch table. decode fills dst (one float per
// sample in src); encode fills dst (one encoded sample per float in src).
type codec struct {
	decode func(src []byte, dst []float32)
	encode func(src []float32, dst []byte)
}

const (
	scale8  = 1 << 7
	scale16 = 1 << 15
	scale24 = 1 << 23
	scale32 = 1 << 31
)

var codecs = map[Format]codec{
	FormatS8: {
		decode: func(src []byte, dst []float32) {
			for i, b := range src {
				dst[i] = float32(int8(b)) / scale8
			}
		},
		encode: func(src []float32, dst []byte) {
			for i, s := range src {
				dst[i] = byte(int8(quantize(s, scale8, -128, 127)))
			}
		},
	},
	FormatU8: {
		decode: func(src []byte, dst []float32) {
			for i, b := range src {
				dst[i] = (float32(b) - 128) / 128
			}
		},
		encode: func(src []float32, dst []byte) {
			for i, s := range src {
				v := math.Round((float64(clampUnit(s)) + 1.0) * 127.5)
				dst[i] = byte(v)
			}
		},
	},
	FormatS16LE: int16Codec(binary.LittleEndian),
	FormatS16BE: int16Codec(binary.BigEndian),
	FormatS24LE: int24Codec(false),
	FormatS24BE: int24Codec(true),
	FormatS32LE: int32Codec(binary.LittleEndian),
	FormatS32BE: int32Codec(binary.BigEndian),
	FormatF32LE: float32Codec(binary.LittleEndian),
	FormatF32BE: float32Codec(binary.BigEndian),
	FormatMuLaw: companderCodec(g711.MuLawDecode, g711.MuLawEncode),
	FormatALaw:  companderCodec(g711.ALawDecode, g711.ALawEncode),
}

func lookup(f Format) (codec, error) {
	c, ok := codecs[f]
	if !ok {
		return codec{}, &FormatError{Format: f.String()}
	}
	return c, nil
}

func int16Codec(order binary.ByteOrder) codec {
	return codec{
		decode: func(src []byte, dst []float32) {
			for i := range dst {
				dst[i] = float32(int16(order.Uint16(src[i*2:]))) / scale16
			}
		},
		encode: func(src []float32, dst []byte) {
			for i, s := range src {
				order.PutUint16(dst[i*2:], uint16(int16(quantize(s, scale16, math.MinInt16, math.MaxInt16))))
			}
		},
	}
}

func int24Codec(bigEndian bool) codec {
	return codec{
		decode: func(src []byte, dst []float32) {
			for i := range dst {
				b := src[i*3 : i*3+3]
				var u int32
				if bigEndian {
					u = int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
				} else {
					u = int32(b[2])<<16 | int32(b[1])<<8 | int32(b[0])
				}
				// Sign-extend from bit 23.
				v := (u << 8) >> 8
				dst[i] = float32(v) / scale24
			}
		},
		encode: func(src []float32, dst []byte) {
			for i, s := range src {
				v := int32(quantize(s, scale24, -scale24, scale24-1))
				b := dst[i*3 : i*3+3]
				if bigEndian {
					b[0], b[1], b[2] = byte(v>>16), byte(v>>8), byte(v)
				} else {
					b[0], b[1], b[2] = byte(v), byte(v>>8), byte(v>>16)
				}
			}
		},
	}
}

func int32Codec(order binary.ByteOrder) codec {
	return codec{
		decode: func(src []byte, dst []float32) {
			for i := range dst {
				dst[i] = float32(float64(int32(order.Uint32(src[i*4:]))) / scale32)
			}
		},
		encode: func(src []float32, dst []byte) {
			for i, s := range src {
				order.PutUint32(dst[i*4:], uint32(int32(quantize(s, scale32, math.MinInt32, math.MaxInt32))))
			}
		},
	}
}

// float32Codec reinterprets bytes without scaling. Decoded values are clamped
// to the canonical range and NaN becomes silence.
func float32Codec(order binary.ByteOrder) codec {
	return codec{
		decode: func(src []byte, dst []float32) {
			for i := range dst {
				dst[i] = clampUnit(math.Float32frombits(order.Uint32(src[i*4:])))
			}
		},
		encode: func(src []float32, dst []byte) {
			for i, s := range src {
				order.PutUint32(dst[i*4:], math.Float32bits(s))
			}
		},
	}
}

func companderCodec(dec func(byte) int16, enc func(int16) byte) codec {
	return codec{
		decode: func(src []byte, dst []float32) {
			for i, b := range src {
				dst[i] = float32(dec(b)) / scale16
			}
		},
		encode: func(src []float32, dst []byte) {
			for i, s := range src {
				dst[i] = enc(int16(quantize(s, scale16, math.MinInt16, math.MaxInt16)))
			}
		},
	}
}

// quantize scales s to the integer domain, rounds to nearest, and clamps to
// [lo, hi].
func quantize(s float32, scale, lo, hi float64) int64 {
	v := math.Round(float64(s) * scale)
	switch {
	case math.IsNaN(v):
		return 0
	case v > hi:
		v = hi
	case v < lo:
		v = lo
	}
	return int64(v)
}

func clampUnit(s float32) float32 {
	switch {
	case math.IsNaN(float64(s)):
		return 0
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}
