package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newTestTracerProvider installs an in-memory tracer provider as the global
// provider for the duration of the test.
func newTestTracerProvider(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}

	newTestTracerProvider(t)
	ctx, span := StartSpan(context.Background(), "convert")
	defer span.End()

	cid := CorrelationID(ctx)
	if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("got correlation ID %q, want 32 hex chars", cid)
	}
}

func TestStartSpan_Exported(t *testing.T) {
	exp := newTestTracerProvider(t)

	_, span := StartSpan(context.Background(), "pipeline.push")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "pipeline.push" {
		t.Fatalf("got spans %v, want one pipeline.push", spans)
	}
	if got := spans[0].InstrumentationScope.Name; got != tracerName {
		t.Errorf("got scope %q, want %q", got, tracerName)
	}
}

func TestLogger(t *testing.T) {
	newTestTracerProvider(t)
	buf := captureLogs(t)

	Logger(context.Background()).Info("no span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("unexpected trace_id without span: %s", buf)
	}

	ctx, span := StartSpan(context.Background(), "log-test")
	defer span.End()
	buf.Reset()
	Logger(ctx).Info("with span")
	if out := buf.String(); !strings.Contains(out, "trace_id=") || !strings.Contains(out, "span_id=") {
		t.Errorf("log output missing trace attributes: %s", out)
	}
}

func TestStartSessionSpan_Attributes(t *testing.T) {
	exp := newTestTracerProvider(t)

	_, span := StartSessionSpan(context.Background(), "pipeline.end_session", "call-7",
		attribute.Int("frames", 12))
	EndSpan(span, nil)

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	want := []attribute.KeyValue{AttrSession.String("call-7"), attribute.Int("frames", 12)}
	if diff := cmp.Diff(want, spans[0].Attributes, cmp.Comparer(func(a, b attribute.Value) bool {
		return a.Emit() == b.Emit()
	})); diff != "" {
		t.Errorf("attributes mismatch (-want +got):\n%s", diff)
	}
	if spans[0].Status.Code != codes.Unset {
		t.Errorf("got status %v, want unset", spans[0].Status.Code)
	}
}

func TestEndSpan_RecordsError(t *testing.T) {
	exp := newTestTracerProvider(t)

	_, span := StartSpan(context.Background(), "pipeline.process_parallel")
	EndSpan(span, errors.New("decode failed"))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Status.Code != codes.Error || s.Status.Description != "decode failed" {
		t.Errorf("got status %+v, want error %q", s.Status, "decode failed")
	}
	if len(s.Events) != 1 || s.Events[0].Name != "exception" {
		t.Errorf("got events %v, want one exception event", s.Events)
	}
}
