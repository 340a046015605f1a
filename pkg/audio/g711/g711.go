// Package g711 implements the ITU-T G.711 companding laws used on narrowband
// telephony legs: μ-law (North America, Japan) and A-law (everywhere else).
//
// Both laws map a 16-bit linear sample to one byte and back. Encoding is
// computed per sample; decoding goes through 256-entry tables that are filled
// at init time from the same per-sample procedures, so the two paths can never
// disagree.
package g711

import "math/bits"

const (
	// muLawBias is added to the magnitude before segment search so that the
	// smallest segment has a leading one bit.
	muLawBias = 0x84

	// muLawClip is the largest magnitude that survives biasing without
	// overflowing 15 bits.
	muLawClip = 32635

	// aLawXOR toggles the even bits of every A-law code word.
	aLawXOR = 0x55
)

var (
	muLawTable [256]int16
	aLawTable  [256]int16
)

func init() {
	for i := range 256 {
		muLawTable[i] = muLawDecode(byte(i))
		aLawTable[i] = aLawDecode(byte(i))
	}
}

// MuLawDecode converts a μ-law code word to a 16-bit linear sample.
func MuLawDecode(b byte) int16 { return muLawTable[b] }

// ALawDecode converts an A-law code word to a 16-bit linear sample.
func ALawDecode(b byte) int16 { return aLawTable[b] }

func muLawDecode(b byte) int16 {
	u := ^b
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := int32(u & 0x0F)

	// The biased magnitude is ((mantissa<<3)+bias)<<exponent; removing the
	// bias leaves the midpoint of the quantization interval.
	magnitude := ((mantissa << 3) + muLawBias) << exponent
	magnitude -= muLawBias

	if sign != 0 {
		magnitude = -magnitude
	}
	return clamp16(magnitude)
}

// MuLawEncode converts a 16-bit linear sample to a μ-law code word.
func MuLawEncode(sample int16) byte {
	pcm := int32(sample)
	var sign byte
	if pcm < 0 {
		sign = 0x80
		pcm = -pcm
	}
	if pcm > muLawClip {
		pcm = muLawClip
	}
	pcm += muLawBias

	// Leading-bit search over the biased magnitude above the first segment.
	exponent := bits.Len32(uint32(pcm>>7)) - 1
	if exponent < 0 {
		exponent = 0
	}
	if exponent > 7 {
		exponent = 7
	}
	mantissa := byte((pcm >> (exponent + 3)) & 0x0F)

	return ^(sign | byte(exponent)<<4 | mantissa)
}

func aLawDecode(b byte) int16 {
	a := b ^ aLawXOR
	exponent := (a >> 4) & 0x07
	mantissa := int32(a & 0x0F)

	var magnitude int32
	if exponent == 0 {
		magnitude = (mantissa << 4) + 8
	} else {
		magnitude = ((mantissa << 4) + 0x108) << (exponent - 1)
	}

	// In A-law a set sign bit means a positive sample.
	if a&0x80 == 0 {
		magnitude = -magnitude
	}
	return clamp16(magnitude)
}

// aLawSegmentEnd holds the upper bound of each A-law segment on the 13-bit
// magnitude scale.
var aLawSegmentEnd = [8]int32{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}

// ALawEncode converts a 16-bit linear sample to an A-law code word.
func ALawEncode(sample int16) byte {
	pcm := int32(sample) >> 3

	var mask byte
	if pcm >= 0 {
		mask = aLawXOR | 0x80
	} else {
		mask = aLawXOR
		pcm = -pcm - 1
	}

	segment := len(aLawSegmentEnd)
	for i, end := range aLawSegmentEnd {
		if pcm <= end {
			segment = i
			break
		}
	}
	if segment >= len(aLawSegmentEnd) {
		return 0x7F ^ mask
	}

	code := byte(segment) << 4
	if segment < 2 {
		code |= byte(pcm>>1) & 0x0F
	} else {
		code |= byte(pcm>>segment) & 0x0F
	}
	return code ^ mask
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32767 {
		return -32767
	}
	return int16(v)
}
