// Package pipeline chains format conversion, streaming resampling, voice
// activity segmentation and per-segment speech conditioning into one
// push-driven per-session flow.
//
// A [Pipeline] is built once and shared by every session. Frames for one
// session must be pushed in order from one goroutine at a time; different
// sessions may be pushed concurrently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/speechprep/internal/observe"
	"github.com/MrWong99/speechprep/pkg/audio"
	"github.com/MrWong99/speechprep/pkg/audio/resample"
	"github.com/MrWong99/speechprep/pkg/types"
	"github.com/MrWong99/speechprep/pkg/vad"
)

// Sink receives finalised segments in the order each session produces them.
// It is called from the goroutine that pushed the frame and must be safe for
// concurrent use when sessions run in parallel.
type Sink func(ctx context.Context, seg types.SpeechSegment)

// Config holds everything needed to build a [Pipeline].
type Config struct {
	Resample resample.Config
	VAD      vad.Config

	// Sink is required.
	Sink Sink

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Workers bounds ProcessParallel. Zero means runtime.NumCPU.
	Workers int
}

// Stats is a snapshot of pipeline-wide activity.
type Stats struct {
	Converter audio.Stats    `json:"converter"`
	Resampler resample.Stats `json:"resampler"`
	Sessions  int            `json:"sessions"`
}

// Pipeline converts, resamples and segments audio for many sessions.
type Pipeline struct {
	conv     *audio.Converter
	rs       *resample.Resampler
	registry *vad.Registry
	metrics  *observe.Metrics
	sink     Sink
	workers  int

	mu      sync.Mutex
	streams map[string]*resample.Stream
}

// New validates cfg and builds a pipeline. The VAD must run at the
// resampler's target rate.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Sink == nil {
		return nil, errors.New("pipeline: sink is required")
	}
	if cfg.VAD.SampleRate != cfg.Resample.TargetRate {
		return nil, fmt.Errorf("pipeline: %w", &audio.ParamError{
			Name:  "vad.sample_rate",
			Value: cfg.VAD.SampleRate,
			Want:  fmt.Sprintf("equal to resample target rate %d", cfg.Resample.TargetRate),
		})
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("pipeline: %w", &audio.ParamError{Name: "workers", Value: cfg.Workers, Want: ">= 0"})
	}

	p := &Pipeline{
		conv:    audio.NewConverter(),
		metrics: cfg.Metrics,
		sink:    cfg.Sink,
		workers: cfg.Workers,
		streams: make(map[string]*resample.Stream),
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.workers == 0 {
		p.workers = runtime.NumCPU()
	}

	rs, err := resample.New(cfg.Resample, resample.WithFallbackHook(func(name string, _ error) {
		p.metrics.RecordFallback(context.Background(), name)
	}))
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	reg, err := vad.NewRegistry(cfg.VAD)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	p.rs, p.registry = rs, reg
	return p, nil
}

// Push runs one captured frame through the session's chain and delivers any
// segments it completes to the sink. The session is created on its first
// frame. Input of any length is accepted: resampling carries filter history
// across pushes and bytes short of a VAD frame wait for the next push.
//
// Voice activity is decided on the resampled signal as captured. Gain and
// preemphasis are applied once per finalised segment, so a quiet noise floor
// is never boosted into speech.
func (p *Pipeline) Push(ctx context.Context, sessionID string, frame types.AudioFrame) error {
	f, err := audio.ParseFormat(frame.Format)
	if err != nil {
		p.metrics.RecordConversion(ctx, frame.Format, "canonical", 0, err)
		return fmt.Errorf("pipeline: session %q: %w", sessionID, err)
	}
	channels := max(frame.Channels, 1)

	buf, err := p.conv.Decode(frame.Data, f, frame.SampleRate, channels)
	p.metrics.RecordConversion(ctx, f.String(), "canonical", len(buf.Samples), err)
	if err != nil {
		return fmt.Errorf("pipeline: session %q: %w", sessionID, err)
	}

	sess, created, err := p.registry.GetOrCreate(sessionID)
	if err != nil {
		return fmt.Errorf("pipeline: session %q: %w", sessionID, err)
	}
	if created {
		p.metrics.ActiveSessions.Add(ctx, 1)
		observe.Logger(ctx).Debug("pipeline: session created", "session", sessionID)
	}

	st, err := p.streamFor(ctx, sess, frame.SampleRate, frame.Timestamp)
	if err != nil {
		return fmt.Errorf("pipeline: session %q: %w", sessionID, err)
	}

	start := time.Now()
	samples, ts, err := st.Write(buf.Samples)
	if err != nil {
		return fmt.Errorf("pipeline: session %q: %w", sessionID, err)
	}
	p.metrics.RecordResample(ctx, frame.SampleRate, time.Since(start))

	if err := p.feed(ctx, sess, samples, ts); err != nil {
		return fmt.Errorf("pipeline: session %q: %w", sessionID, err)
	}
	return nil
}

// streamFor returns the session's resampling stream, starting a new one at
// ts when the session has none or its source rate changed. The old stream's
// tail is fed to the session first.
func (p *Pipeline) streamFor(ctx context.Context, sess *vad.Session, rate int, ts time.Duration) (*resample.Stream, error) {
	p.mu.Lock()
	st := p.streams[sess.ID()]
	p.mu.Unlock()
	if st != nil && st.SourceRate() == rate {
		return st, nil
	}
	if st != nil {
		observe.Logger(ctx).Debug("pipeline: source rate changed",
			"session", sess.ID(), "from", st.SourceRate(), "to", rate)
		if err := p.drain(ctx, sess, st); err != nil {
			return nil, err
		}
	}

	st, err := p.rs.NewStream(rate, ts)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.streams[sess.ID()] = st
	p.mu.Unlock()
	return st, nil
}

// drain flushes the stream's buffered tail into the session.
func (p *Pipeline) drain(ctx context.Context, sess *vad.Session, st *resample.Stream) error {
	samples, ts, err := st.Flush()
	if err != nil {
		return err
	}
	return p.feed(ctx, sess, samples, ts)
}

// feed encodes resampled samples for the detector and emits every segment
// they complete.
func (p *Pipeline) feed(ctx context.Context, sess *vad.Session, samples []float32, ts time.Duration) error {
	if len(samples) == 0 {
		return nil
	}
	pcm, err := audio.Encode(samples, audio.FormatS16LE)
	if err != nil {
		return err
	}

	before := sess.Stats()
	segs, err := sess.Write(pcm, ts)
	p.recordVAD(ctx, before, sess.Stats())
	for _, seg := range segs {
		p.emit(ctx, seg)
	}
	return err
}

// EndSession flushes the session's buffered audio and open segment to the
// sink, removes the session and returns its final statistics.
func (p *Pipeline) EndSession(ctx context.Context, sessionID string) (stats vad.Stats, err error) {
	ctx, span := observe.StartSessionSpan(ctx, "pipeline.end_session", sessionID)
	defer func() { observe.EndSpan(span, err) }()

	sess, ok := p.registry.Get(sessionID)
	if !ok {
		return vad.Stats{}, fmt.Errorf("pipeline: %w: %q", vad.ErrSessionNotFound, sessionID)
	}

	p.mu.Lock()
	st := p.streams[sessionID]
	delete(p.streams, sessionID)
	p.mu.Unlock()
	var drainErr error
	if st != nil {
		if drainErr = p.drain(ctx, sess, st); drainErr != nil {
			observe.Logger(ctx).Warn("pipeline: dropping buffered audio", "session", sessionID, "err", drainErr)
		}
	}

	before := sess.Stats()
	if seg := sess.Flush(); seg != nil {
		p.emit(ctx, *seg)
	}
	stats, err = p.registry.Remove(sessionID)
	p.recordVAD(ctx, before, stats)
	if errors.Is(err, vad.ErrSessionNotFound) {
		// Removed concurrently by another caller.
		return stats, fmt.Errorf("pipeline: %w", err)
	}
	p.metrics.ActiveSessions.Add(ctx, -1)

	observe.Logger(ctx).Info("pipeline: session ended",
		"session", sessionID,
		"segments", stats.SegmentsEmitted,
		"discarded", stats.SegmentsDiscarded,
		"speech_ratio", stats.SpeechRatio(),
	)
	if err = errors.Join(drainErr, err); err != nil {
		return stats, fmt.Errorf("pipeline: %w", err)
	}
	return stats, nil
}

// Stream is one session's frames for [Pipeline.ProcessParallel].
type Stream struct {
	SessionID string
	Frames    []types.AudioFrame
}

// ProcessParallel pushes every stream through the pipeline, each in its own
// goroutine bounded by the configured worker count, and ends each session
// once its frames are exhausted. The first error cancels the remaining
// streams; sessions of failed or cancelled streams are still removed.
func (p *Pipeline) ProcessParallel(ctx context.Context, streams []Stream) (_ map[string]vad.Stats, err error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.process_parallel",
		trace.WithAttributes(attribute.Int("streams", len(streams))))
	defer func() { observe.EndSpan(span, err) }()

	results := make([]vad.Stats, len(streams))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, s := range streams {
		g.Go(func() error {
			stats, err := p.runStream(gctx, s)
			results[i] = stats
			return err
		})
	}
	err = g.Wait()

	out := make(map[string]vad.Stats, len(streams))
	for i, s := range streams {
		out[s.SessionID] = results[i]
	}
	return out, err
}

func (p *Pipeline) runStream(ctx context.Context, s Stream) (vad.Stats, error) {
	var pushErr error
	for _, f := range s.Frames {
		if pushErr = ctx.Err(); pushErr != nil {
			break
		}
		if pushErr = p.Push(ctx, s.SessionID, f); pushErr != nil {
			break
		}
	}
	if _, ok := p.registry.Get(s.SessionID); !ok {
		return vad.Stats{}, pushErr
	}
	stats, err := p.EndSession(context.WithoutCancel(ctx), s.SessionID)
	return stats, errors.Join(pushErr, err)
}

// Sessions returns the IDs of open sessions.
func (p *Pipeline) Sessions() []string { return p.registry.Sessions() }

// Converter exposes the pipeline's converter for stateless conversions that
// should count towards its statistics.
func (p *Pipeline) Converter() *audio.Converter { return p.conv }

// Resampler exposes the pipeline's resampler.
func (p *Pipeline) Resampler() *resample.Resampler { return p.rs }

// Stats returns a snapshot of pipeline-wide activity.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Converter: p.conv.Stats(),
		Resampler: p.rs.Stats(),
		Sessions:  p.registry.Len(),
	}
}

// emit conditions the segment for transcription and hands it to the sink.
// A segment that cannot be conditioned is delivered as detected.
func (p *Pipeline) emit(ctx context.Context, seg types.SpeechSegment) {
	if pcm, err := p.condition(seg.PCM); err != nil {
		observe.Logger(ctx).Warn("pipeline: segment left unconditioned", "session", seg.SessionID, "err", err)
	} else {
		seg.PCM = pcm
	}
	p.metrics.RecordSegment(ctx, seg.Duration)
	p.sink(ctx, seg)
}

func (p *Pipeline) condition(pcm []byte) ([]byte, error) {
	samples, err := audio.Decode(pcm, audio.FormatS16LE, 1)
	if err != nil {
		return nil, err
	}
	p.rs.Condition(samples)
	return audio.Encode(samples, audio.FormatS16LE)
}

func (p *Pipeline) recordVAD(ctx context.Context, before, after vad.Stats) {
	p.metrics.RecordFrames(ctx, after.SpeechFrames-before.SpeechFrames, after.SilenceFrames-before.SilenceFrames)
	p.metrics.RecordDiscarded(ctx, after.SegmentsDiscarded-before.SegmentsDiscarded)
}
