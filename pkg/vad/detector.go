package vad

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/gammazero/deque"

	"github.com/MrWong99/speechprep/pkg/audio"
	"github.com/MrWong99/speechprep/pkg/types"
)

// State is the detector's position in its two-state machine.
type State int

const (
	StateSilent State = iota
	StateSpeaking
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateSilent:
		return "silent"
	case StateSpeaking:
		return "speaking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stats counts what a detector has seen since construction or the last
// Reset.
type Stats struct {
	Frames            uint64        `json:"frames"`
	SpeechFrames      uint64        `json:"speech_frames"`
	SilenceFrames     uint64        `json:"silence_frames"`
	SegmentsStarted   uint64        `json:"segments_started"`
	SegmentsEmitted   uint64        `json:"segments_emitted"`
	SegmentsDiscarded uint64        `json:"segments_discarded"`
	SpeechDuration    time.Duration `json:"speech_duration"`
	SilenceDuration   time.Duration `json:"silence_duration"`
}

// SpeechRatio is the fraction of frames classified as speech.
func (s Stats) SpeechRatio() float64 {
	if s.Frames == 0 {
		return 0
	}
	return float64(s.SpeechFrames) / float64(s.Frames)
}

// DetectorOption customises a [Detector].
type DetectorOption func(*Detector)

// WithClassifier injects a classifier in place of the one named by the
// config. The detector takes ownership and closes it.
func WithClassifier(c Classifier) DetectorOption {
	return func(d *Detector) { d.classifier = c }
}

// WithSessionID stamps emitted segments with id.
func WithSessionID(id string) DetectorOption {
	return func(d *Detector) { d.sessionID = id }
}

// Detector segments one stream. It is not safe for concurrent use.
type Detector struct {
	cfg        Config
	classifier Classifier
	sessionID  string

	frameBytes int
	preFrames  int
	postFrames int
	maxSilence time.Duration

	state State
	start time.Duration

	// preSpeech holds the most recent silent frames while silent.
	preSpeech deque.Deque[[]byte]
	// speech accumulates the open segment, pre-speech padding included.
	speech       []byte
	speechFrames int
	// tail holds silent frames seen since the last speech frame.
	tail [][]byte

	samples []int16
	stats   Stats
}

// NewDetector validates cfg and builds a detector.
func NewDetector(cfg Config, opts ...DetectorOption) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("vad: invalid config: %w", err)
	}
	d := &Detector{
		cfg:        cfg,
		frameBytes: cfg.FrameBytes(),
		preFrames:  cfg.frames(cfg.PreSpeechPaddingMs),
		postFrames: cfg.frames(cfg.PostSpeechPaddingMs),
		maxSilence: time.Duration(cfg.MaxSilenceDurationMs) * time.Millisecond,
		samples:    make([]int16, cfg.FrameSamples()),
	}
	for _, o := range opts {
		o(d)
	}
	if d.classifier == nil {
		c, err := NewClassifier(cfg)
		if err != nil {
			return nil, err
		}
		d.classifier = c
	}
	return d, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config { return d.cfg }

// State returns the current state.
func (d *Detector) State() State { return d.state }

// Stats returns the counters accumulated so far.
func (d *Detector) Stats() Stats { return d.stats }

// Process classifies one frame of 16-bit little-endian PCM captured at ts and
// advances the state machine. It returns a segment when this frame finalised
// one, and nil otherwise. A frame of the wrong size is rejected without
// touching any state. The detector keeps its own copy of frame.
func (d *Detector) Process(frame []byte, ts time.Duration) (*types.SpeechSegment, error) {
	if len(frame) != d.frameBytes {
		return nil, fmt.Errorf("vad: %w: got %d bytes, want %d", audio.ErrMalformedBuffer, len(frame), d.frameBytes)
	}
	for i := range d.samples {
		d.samples[i] = int16(binary.LittleEndian.Uint16(frame[2*i:]))
	}
	speech, err := d.classifier.IsSpeech(d.samples)
	if err != nil {
		return nil, fmt.Errorf("vad: classify frame: %w", err)
	}

	frameDur := d.cfg.FrameDuration()
	d.stats.Frames++
	if speech {
		d.stats.SpeechFrames++
		d.stats.SpeechDuration += frameDur
	} else {
		d.stats.SilenceFrames++
		d.stats.SilenceDuration += frameDur
	}

	switch {
	case d.state == StateSilent && speech:
		d.startSegment(frame, ts)
	case d.state == StateSilent:
		d.pushPreSpeech(frame)
	case speech:
		// Pauses inside an utterance stay in the audio.
		for _, f := range d.tail {
			d.speech = append(d.speech, f...)
		}
		d.tail = d.tail[:0]
		d.speech = append(d.speech, frame...)
		d.speechFrames++
	default:
		d.tail = append(d.tail, bytes.Clone(frame))
		if time.Duration(len(d.tail))*frameDur >= d.maxSilence {
			return d.finalize(), nil
		}
	}
	return nil, nil
}

// Flush finalises an open segment without waiting for trailing silence. It
// returns nil when the detector is silent or the segment was too short.
func (d *Detector) Flush() *types.SpeechSegment {
	if d.state != StateSpeaking {
		return nil
	}
	return d.finalize()
}

// Reset drops any open segment and buffered padding and clears the
// statistics. The classifier is kept.
func (d *Detector) Reset() {
	d.clear()
	d.stats = Stats{}
}

// Close releases the classifier.
func (d *Detector) Close() error {
	return d.classifier.Close()
}

func (d *Detector) startSegment(frame []byte, ts time.Duration) {
	d.state = StateSpeaking
	d.start = ts
	d.stats.SegmentsStarted++

	d.speech = d.speech[:0]
	for d.preSpeech.Len() > 0 {
		d.speech = append(d.speech, d.preSpeech.PopFront()...)
	}
	d.speech = append(d.speech, frame...)
	d.speechFrames = 1
}

func (d *Detector) pushPreSpeech(frame []byte) {
	if d.preFrames == 0 {
		return
	}
	if d.preSpeech.Len() == d.preFrames {
		d.preSpeech.PopFront()
	}
	d.preSpeech.PushBack(bytes.Clone(frame))
}

func (d *Detector) finalize() *types.SpeechSegment {
	defer d.clear()

	bufDur := d.bytesDuration(len(d.speech))
	minDur := time.Duration(d.cfg.MinSpeechDurationMs) * time.Millisecond
	if bufDur < minDur {
		d.stats.SegmentsDiscarded++
		slog.Debug("vad: segment discarded", "session", d.sessionID, "duration", bufDur, "min", minDur)
		return nil
	}

	pcm := make([]byte, 0, len(d.speech)+min(len(d.tail), d.postFrames)*d.frameBytes)
	pcm = append(pcm, d.speech...)
	for _, f := range d.tail[:min(len(d.tail), d.postFrames)] {
		pcm = append(pcm, f...)
	}

	d.stats.SegmentsEmitted++
	seg := &types.SpeechSegment{
		PCM:            pcm,
		SampleRate:     d.cfg.SampleRate,
		Start:          d.start,
		Duration:       d.bytesDuration(len(pcm)),
		SpeechDuration: time.Duration(d.speechFrames) * d.cfg.FrameDuration(),
		IsFinal:        true,
		SessionID:      d.sessionID,
		Index:          int(d.stats.SegmentsEmitted),
	}
	slog.Debug("vad: segment emitted", "session", d.sessionID, "index", seg.Index, "start", seg.Start, "duration", seg.Duration)
	return seg
}

func (d *Detector) clear() {
	d.state = StateSilent
	d.start = 0
	d.preSpeech.Clear()
	d.speech = nil
	d.speechFrames = 0
	d.tail = d.tail[:0]
}

func (d *Detector) bytesDuration(n int) time.Duration {
	return time.Duration(n/2) * time.Second / time.Duration(d.cfg.SampleRate)
}
