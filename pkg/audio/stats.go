package audio

import "maps"

// Stats is a snapshot of conversion counters. It is a plain value so it can
// be logged or exported as JSON.
type Stats struct {
	// Conversions is the number of successful Convert, Decode, and Encode
	// calls.
	Conversions uint64 `json:"conversions"`

	// SamplesProcessed is the cumulative number of samples decoded or encoded.
	SamplesProcessed uint64 `json:"samples_processed"`

	// Errors counts failed calls.
	Errors uint64 `json:"errors"`

	// Pairs counts successful conversions per "from->to" format pair.
	Pairs map[string]uint64 `json:"pairs"`
}

// RecordConversion counts one successful conversion of n samples between
// the named formats.
func (s *Stats) RecordConversion(from, to string, n int) {
	s.Conversions++
	s.SamplesProcessed += uint64(n)
	if s.Pairs == nil {
		s.Pairs = make(map[string]uint64)
	}
	s.Pairs[from+"->"+to]++
}

// RecordError counts one failed call.
func (s *Stats) RecordError() { s.Errors++ }

// Clone returns a deep copy.
func (s Stats) Clone() Stats {
	s.Pairs = maps.Clone(s.Pairs)
	return s
}
