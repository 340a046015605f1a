package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func serve(t *testing.T, m *Metrics, path string, status int, header http.Header) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var cid string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid = CorrelationID(r.Context())
		w.WriteHeader(status)
	}))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, cid
}

func TestMiddleware_SpanAndCorrelationID(t *testing.T) {
	m, _ := newTestMetrics(t)
	exp := newTestTracerProvider(t)

	rec, cid := serve(t, m, "/metrics", http.StatusNotFound, nil)
	if len(cid) != 32 {
		t.Fatalf("got correlation ID %q, want 32 hex chars", cid)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != cid {
		t.Errorf("X-Correlation-ID = %q, want %q", got, cid)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "HTTP GET /metrics" {
		t.Fatalf("got spans %v, want one HTTP GET /metrics", spans)
	}
	var status int64
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusNotFound {
		t.Errorf("span status attribute = %d, want 404", status)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	m, _ := newTestMetrics(t)
	newTestTracerProvider(t)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	hdr := http.Header{"Traceparent": {"00-" + traceID + "-00f067aa0ba902b7-01"}}
	rec, cid := serve(t, m, "/healthz", http.StatusOK, hdr)
	if cid != traceID {
		t.Errorf("correlation ID = %q, want %q", cid, traceID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
}

func TestMiddleware_RecordsDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	newTestTracerProvider(t)

	serve(t, m, "/metrics", http.StatusOK, nil)

	met := findMetric(collect(t, reader), "speechprep.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Fatalf("got %d data points, want one with count 1", len(hist.DataPoints))
	}
	path, _ := hist.DataPoints[0].Attributes.Value("path")
	if path.AsString() != "/metrics" {
		t.Errorf("path attribute = %q, want /metrics", path.AsString())
	}
}
