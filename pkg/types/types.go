// Package types defines the values that cross the boundary of the speechprep
// pipeline: raw frames coming in from telephony and browser capture, and
// finalized speech segments going out to a transcription consumer.
//
// They live in their own package so that the codec, resampler, and VAD
// packages can share them without importing each other.
package types

import "time"

// AudioFrame is a single chunk of raw audio as produced by a media gateway.
// Frames are treated as immutable once constructed.
type AudioFrame struct {
	// Data holds the encoded samples.
	Data []byte

	// Format names the sample encoding (e.g. "s16le", "mulaw"). It is
	// resolved by audio.ParseFormat.
	Format string

	// SampleRate in Hz (e.g. 8000 for G.711 telephony, 48000 for WebRTC).
	SampleRate int

	// Channels is the interleaved channel count. The pipeline assumes mono;
	// multi-channel input is down-mixed on decode.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// SpeechSegment is a bounded span of speech, padded and ready for
// transcription. Segments are created only by the VAD detector and are never
// modified after emission.
type SpeechSegment struct {
	// PCM is 16-bit signed little-endian mono audio.
	PCM []byte

	// SampleRate of PCM in Hz. Always 16000 when produced by the pipeline.
	SampleRate int

	// Start is the stream-relative timestamp of the first speech frame.
	Start time.Duration

	// Duration covers the whole of PCM, padding included.
	Duration time.Duration

	// SpeechDuration covers the speech frames only, excluding padding.
	SpeechDuration time.Duration

	// IsFinal is always true; the detector does not emit interim segments.
	IsFinal bool

	// SessionID identifies the call the segment belongs to. Empty when the
	// detector is used outside a registry.
	SessionID string

	// Index is the 1-based ordinal of the segment within its session.
	Index int
}
