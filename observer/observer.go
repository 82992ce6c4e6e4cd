// Package observer exports OpenTelemetry traces and metrics for edumesh.
//
// SyncObserver turns every state-sync report into a span with one span event
// per step plus counters and a duration histogram. RunObserver is a set of
// runner callbacks counting emitted events and failed runs. Both default to
// the global OTEL providers; Setup installs SDK providers with caller
// supplied span processors and metric readers.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/hupe1980/edumesh/observer"

// SetupOptions configures Setup.
type SetupOptions struct {
	SpanProcessors []sdktrace.SpanProcessor
	MetricReaders  []sdkmetric.Reader
	// Global installs the providers as OTEL globals. Defaults to true.
	Global bool
}

// Providers holds the SDK providers created by Setup.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Meter  *sdkmetric.MeterProvider
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	return errors.Join(p.Tracer.Shutdown(ctx), p.Meter.Shutdown(ctx))
}

// Setup creates trace and metric providers tagged with serviceName.
func Setup(ctx context.Context, serviceName string, optFns ...func(o *SetupOptions)) (*Providers, error) {
	opts := SetupOptions{Global: true}
	for _, fn := range optFns {
		fn(&opts)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", serviceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, err
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	for _, sp := range opts.SpanProcessors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sp))
	}
	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range opts.MetricReaders {
		mpOpts = append(mpOpts, sdkmetric.WithReader(r))
	}

	p := &Providers{
		Tracer: sdktrace.NewTracerProvider(tpOpts...),
		Meter:  sdkmetric.NewMeterProvider(mpOpts...),
	}
	if opts.Global {
		otel.SetTracerProvider(p.Tracer)
		otel.SetMeterProvider(p.Meter)
	}
	return p, nil
}

// Options selects the providers an observer reports to.
type Options struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func resolve(optFns []func(o *Options)) Options {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}
	return opts
}
