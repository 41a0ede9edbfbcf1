// Package telemetry sets up OpenTelemetry metrics and tracing.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/dgnsrekt/ttsclient"

// Options configures exporters.
type Options struct {
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	OTLPInsecure bool
	StdoutTraces bool
}

// Provider bundles the instruments handed to the rest of the program.
type Provider struct {
	Metrics *Metrics
	Tracer  trace.Tracer
	// Handler serves the Prometheus exposition format.
	Handler http.Handler

	shutdown []func(context.Context) error
}

// Setup builds a meter provider backed by a private Prometheus registry and,
// when configured, a trace provider exporting over OTLP or to stdout.
func Setup(ctx context.Context, opts Options, logger *slog.Logger) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			attribute.String("deployment.environment", opts.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	registry := promclient.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	metrics, err := NewMetrics(meterProvider.Meter(instrumentationName))
	if err != nil {
		return nil, errors.Join(err, meterProvider.Shutdown(ctx))
	}

	p := &Provider{
		Metrics:  metrics,
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		shutdown: []func(context.Context) error{meterProvider.Shutdown},
	}

	tracerProvider, err := newTracerProvider(ctx, opts, res, logger)
	if err != nil {
		return nil, errors.Join(err, p.Shutdown(ctx))
	}
	if tracerProvider != nil {
		p.Tracer = tracerProvider.Tracer(instrumentationName)
		p.shutdown = append(p.shutdown, tracerProvider.Shutdown)
	} else {
		p.Tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}

	return p, nil
}

// Shutdown flushes and stops all providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newTracerProvider returns nil when no trace exporter is configured.
func newTracerProvider(ctx context.Context, opts Options, res *resource.Resource, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	if endpoint := strings.TrimSpace(opts.OTLPEndpoint); endpoint != "" {
		clientOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if opts.OTLPInsecure {
			clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, clientOpts...)
		if err != nil {
			return nil, err
		}
		logger.Info("tracing initialized", "exporter", "otlp", "endpoint", endpoint)
		return sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		), nil
	}

	if opts.StdoutTraces {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		logger.Info("tracing initialized", "exporter", "stdout")
		return sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		), nil
	}

	return nil, nil
}
