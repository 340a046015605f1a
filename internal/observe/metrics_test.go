package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns Metrics backed by a ManualReader.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumByAttr returns the int64 sum data point whose attribute key equals
// value.
func sumByAttr(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want Sum[int64]", name, met.Data)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

func TestRecordConversion(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordConversion(ctx, "mulaw", "s16le", 160, nil)
	m.RecordConversion(ctx, "mulaw", "s16le", 160, nil)
	m.RecordConversion(ctx, "s24le", "s16le", 0, errors.New("malformed"))

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "speechprep.conversions", "status", "ok"); got != 2 {
		t.Errorf("ok conversions = %d, want 2", got)
	}
	if got := sumByAttr(t, rm, "speechprep.conversions", "status", "error"); got != 1 {
		t.Errorf("failed conversions = %d, want 1", got)
	}
	if got := sumByAttr(t, rm, "speechprep.conversion.samples", "from", "mulaw"); got != 320 {
		t.Errorf("samples = %d, want 320", got)
	}
}

func TestRecordResampleAndFallback(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordResample(ctx, 8000, 2*time.Millisecond)
	m.RecordResample(ctx, 8000, 3*time.Millisecond)
	m.RecordFallback(ctx, "polyphase")

	rm := collect(t, reader)
	met := findMetric(rm, "speechprep.resample.duration")
	if met == nil {
		t.Fatal("resample histogram not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("got %T with unexpected data points", met.Data)
	}
	if dp := hist.DataPoints[0]; dp.Count != 2 {
		t.Errorf("sample count = %d, want 2", dp.Count)
	}
	if got := sumByAttr(t, rm, "speechprep.resample.fallbacks", "strategy", "polyphase"); got != 1 {
		t.Errorf("fallbacks = %d, want 1", got)
	}
}

func TestRecordVAD(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFrames(ctx, 25, 75)
	m.RecordSegment(ctx, 800*time.Millisecond)
	m.RecordDiscarded(ctx, 2)
	m.RecordDiscarded(ctx, 0)

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "speechprep.vad.frames", "kind", "speech"); got != 25 {
		t.Errorf("speech frames = %d, want 25", got)
	}
	if got := sumByAttr(t, rm, "speechprep.vad.frames", "kind", "silence"); got != 75 {
		t.Errorf("silence frames = %d, want 75", got)
	}
	if got := sumByAttr(t, rm, "speechprep.vad.segments", "outcome", "emitted"); got != 1 {
		t.Errorf("emitted = %d, want 1", got)
	}
	if got := sumByAttr(t, rm, "speechprep.vad.segments", "outcome", "discarded"); got != 2 {
		t.Errorf("discarded = %d, want 2", got)
	}

	hist := findMetric(rm, "speechprep.vad.segment.duration").Data.(metricdata.Histogram[float64])
	if dp := hist.DataPoints[0]; dp.Sum != 0.8 {
		t.Errorf("segment duration sum = %v, want 0.8", dp.Sum)
	}
}

func TestActiveSessions(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 3)
	m.ActiveSessions.Add(ctx, -1)

	met := findMetric(collect(t, reader), "speechprep.active_sessions")
	if met == nil {
		t.Fatal("active sessions not found")
	}
	sum := met.Data.(metricdata.Sum[int64])
	if sum.IsMonotonic {
		t.Error("active sessions should not be monotonic")
	}
	if got := sum.DataPoints[0].Value; got != 2 {
		t.Errorf("active sessions = %d, want 2", got)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
