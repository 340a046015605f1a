// Package observe provides the observability primitives shared by the
// speechprep pipeline and CLI: OpenTelemetry metrics, tracing helpers,
// trace-aware structured logging, and HTTP middleware for the metrics
// endpoint.
//
// Instruments are created through the OpenTelemetry Metrics API and exported
// to Prometheus by [InitProvider]. Tests should build their own [Metrics]
// with [NewMetrics] and a ManualReader instead of using [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all speechprep metrics.
const meterName = "github.com/MrWong99/speechprep"

// Metrics holds every instrument the pipeline records to. All fields are
// safe for concurrent use.
type Metrics struct {
	// Conversions counts format conversions. Attributes: from, to, status.
	Conversions metric.Int64Counter

	// ConversionSamples counts canonical samples produced or consumed by
	// conversions. Attribute: from.
	ConversionSamples metric.Int64Counter

	// ResampleDuration tracks the time spent resampling and preprocessing
	// one chunk. Attribute: source_rate.
	ResampleDuration metric.Float64Histogram

	// ResampleFallbacks counts strategies that failed or were skipped by
	// their breaker. Attribute: strategy.
	ResampleFallbacks metric.Int64Counter

	// VADFrames counts classified frames. Attribute: kind (speech, silence).
	VADFrames metric.Int64Counter

	// VADSegments counts finalised segments. Attribute: outcome (emitted,
	// discarded).
	VADSegments metric.Int64Counter

	// SegmentDuration tracks the padded length of emitted segments.
	SegmentDuration metric.Float64Histogram

	// ActiveSessions tracks sessions registered with the pipeline.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks requests to the metrics server.
	// Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// processingBuckets are histogram boundaries (seconds) for per-chunk DSP work.
var processingBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// segmentBuckets are histogram boundaries (seconds) for utterance lengths.
var segmentBuckets = []float64{
	0.25, 0.5, 1, 2, 3, 5, 8, 13, 21, 34,
}

// NewMetrics creates every instrument on the given [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Conversions, err = m.Int64Counter("speechprep.conversions",
		metric.WithDescription("Format conversions by source, target and status."),
	); err != nil {
		return nil, err
	}
	if met.ConversionSamples, err = m.Int64Counter("speechprep.conversion.samples",
		metric.WithDescription("Canonical samples processed by format conversions."),
	); err != nil {
		return nil, err
	}
	if met.ResampleDuration, err = m.Float64Histogram("speechprep.resample.duration",
		metric.WithDescription("Time spent resampling and preprocessing one chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(processingBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ResampleFallbacks, err = m.Int64Counter("speechprep.resample.fallbacks",
		metric.WithDescription("Resampling strategies that failed or were skipped."),
	); err != nil {
		return nil, err
	}
	if met.VADFrames, err = m.Int64Counter("speechprep.vad.frames",
		metric.WithDescription("Frames classified by voice activity detection."),
	); err != nil {
		return nil, err
	}
	if met.VADSegments, err = m.Int64Counter("speechprep.vad.segments",
		metric.WithDescription("Speech segments finalised, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SegmentDuration, err = m.Float64Histogram("speechprep.vad.segment.duration",
		metric.WithDescription("Padded length of emitted speech segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(segmentBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("speechprep.active_sessions",
		metric.WithDescription("Number of sessions registered with the pipeline."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("speechprep.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level [Metrics] bound to the global
// meter provider, creating it on first call. It panics if instrument
// creation fails, which does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordConversion counts one conversion and the samples it touched.
func (m *Metrics) RecordConversion(ctx context.Context, from, to string, samples int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Conversions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("status", status),
	))
	if samples > 0 {
		m.ConversionSamples.Add(ctx, int64(samples), metric.WithAttributes(attribute.String("from", from)))
	}
}

// RecordResample records how long preprocessing a chunk captured at
// sourceRate took.
func (m *Metrics) RecordResample(ctx context.Context, sourceRate int, d time.Duration) {
	m.ResampleDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Int("source_rate", sourceRate)))
}

// RecordFallback counts one strategy failure or skip.
func (m *Metrics) RecordFallback(ctx context.Context, strategy string) {
	m.ResampleFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
}

// RecordFrames counts classified frames by kind.
func (m *Metrics) RecordFrames(ctx context.Context, speech, silence uint64) {
	if speech > 0 {
		m.VADFrames.Add(ctx, int64(speech), metric.WithAttributes(attribute.String("kind", "speech")))
	}
	if silence > 0 {
		m.VADFrames.Add(ctx, int64(silence), metric.WithAttributes(attribute.String("kind", "silence")))
	}
}

// RecordSegment counts an emitted segment and observes its length.
func (m *Metrics) RecordSegment(ctx context.Context, d time.Duration) {
	m.VADSegments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "emitted")))
	m.SegmentDuration.Record(ctx, d.Seconds())
}

// RecordDiscarded counts segments dropped for being too short.
func (m *Metrics) RecordDiscarded(ctx context.Context, n uint64) {
	if n > 0 {
		m.VADSegments.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", "discarded")))
	}
}
