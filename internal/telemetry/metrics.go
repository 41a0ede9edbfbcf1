package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Outcome labels for completed requests.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Metrics records request lifecycle instruments.
type Metrics struct {
	enqueued  metric.Int64Counter
	completed metric.Int64Counter
	synthesis metric.Float64Histogram
	audio     metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	enqueued, err1 := meter.Int64Counter("ttsclient.requests.enqueued",
		metric.WithDescription("Synthesis requests accepted into the queue"))
	completed, err2 := meter.Int64Counter("ttsclient.requests.completed",
		metric.WithDescription("Synthesis requests that reached a terminal state"))
	synthesis, err3 := meter.Float64Histogram("ttsclient.synthesis.duration",
		metric.WithDescription("Time from dequeue to terminal state"),
		metric.WithUnit("s"))
	audio, err4 := meter.Float64Histogram("ttsclient.audio.duration",
		metric.WithDescription("Length of synthesized clips after trimming"),
		metric.WithUnit("s"))

	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, err
	}

	return &Metrics{
		enqueued:  enqueued,
		completed: completed,
		synthesis: synthesis,
		audio:     audio,
	}, nil
}

// NewNoopMetrics returns metrics that record nothing.
func NewNoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	return m
}

// RequestEnqueued counts an accepted request.
func (m *Metrics) RequestEnqueued(ctx context.Context) {
	m.enqueued.Add(ctx, 1)
}

// RequestCompleted counts a terminal request and records its latency.
// errorKind is empty on success.
func (m *Metrics) RequestCompleted(ctx context.Context, outcome, errorKind string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("error_kind", errorKind),
	)
	m.completed.Add(ctx, 1, attrs)
	m.synthesis.Record(ctx, elapsed.Seconds(), attrs)
}

// AudioProduced records the length of a delivered clip.
func (m *Metrics) AudioProduced(ctx context.Context, seconds float64) {
	m.audio.Record(ctx, seconds)
}
