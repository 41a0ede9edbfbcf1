package telemetry

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collect(t *testing.T, reader sdkmetric.Reader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := NewMetrics(provider.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	ctx := context.Background()
	m.RequestEnqueued(ctx)
	m.RequestEnqueued(ctx)
	m.RequestCompleted(ctx, OutcomeSucceeded, "", 300*time.Millisecond)
	m.RequestCompleted(ctx, OutcomeFailed, "transport", time.Second)
	m.AudioProduced(ctx, 4.8)

	got := collect(t, reader)

	enqueued, ok := got["ttsclient.requests.enqueued"].Data.(metricdata.Sum[int64])
	if !ok || len(enqueued.DataPoints) != 1 || enqueued.DataPoints[0].Value != 2 {
		t.Errorf("requests.enqueued = %+v, want 2", got["ttsclient.requests.enqueued"].Data)
	}

	completed, ok := got["ttsclient.requests.completed"].Data.(metricdata.Sum[int64])
	if !ok || len(completed.DataPoints) != 2 {
		t.Fatalf("requests.completed = %+v, want two attribute sets", got["ttsclient.requests.completed"].Data)
	}
	for _, dp := range completed.DataPoints {
		outcome, _ := dp.Attributes.Value("outcome")
		kind, _ := dp.Attributes.Value("error_kind")
		if outcome.AsString() == OutcomeFailed && kind.AsString() != "transport" {
			t.Errorf("failed completion error_kind = %q, want transport", kind.AsString())
		}
		if dp.Value != 1 {
			t.Errorf("completion count = %d, want 1", dp.Value)
		}
	}

	audio, ok := got["ttsclient.audio.duration"].Data.(metricdata.Histogram[float64])
	if !ok || len(audio.DataPoints) != 1 || audio.DataPoints[0].Sum != 4.8 {
		t.Errorf("audio.duration = %+v, want one 4.8s sample", got["ttsclient.audio.duration"].Data)
	}

	if _, ok := got["ttsclient.synthesis.duration"]; !ok {
		t.Error("synthesis.duration not recorded")
	}
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoopMetrics()
	if m == nil {
		t.Fatal("NewNoopMetrics() returned nil")
	}

	ctx := context.Background()
	m.RequestEnqueued(ctx)
	m.RequestCompleted(ctx, OutcomeSucceeded, "", time.Second)
	m.AudioProduced(ctx, 1)
}

func TestSetupPrometheus(t *testing.T) {
	ctx := context.Background()

	p, err := Setup(ctx, Options{ServiceName: "ttsclient-test", Environment: "test"}, testLogger())
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	defer p.Shutdown(ctx)

	if p.Tracer == nil {
		t.Fatal("expected a tracer")
	}
	_, span := p.Tracer.Start(ctx, "noop")
	span.End()

	p.Metrics.RequestEnqueued(ctx)

	rec := httptest.NewRecorder()
	p.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ttsclient_requests_enqueued") {
		t.Errorf("metrics output missing enqueued counter:\n%s", rec.Body.String())
	}
}

func TestSetupTwice(t *testing.T) {
	ctx := context.Background()

	// Each provider owns its registry, so repeated setup must not collide.
	for i := 0; i < 2; i++ {
		p, err := Setup(ctx, Options{ServiceName: "ttsclient-test"}, testLogger())
		if err != nil {
			t.Fatalf("Setup() #%d error = %v", i+1, err)
		}
		if err := p.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() #%d error = %v", i+1, err)
		}
	}
}
