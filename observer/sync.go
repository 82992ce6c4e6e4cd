package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/edumesh/statesync"
)

var _ statesync.Observer = (*SyncObserver)(nil)

// SyncObserver reports state-sync passes to OpenTelemetry.
type SyncObserver struct {
	tracer   trace.Tracer
	passes   metric.Int64Counter
	steps    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewSyncObserver creates the instruments on the configured providers.
func NewSyncObserver(optFns ...func(o *Options)) (*SyncObserver, error) {
	opts := resolve(optFns)
	meter := opts.MeterProvider.Meter(scopeName)

	passes, err := meter.Int64Counter("statesync.passes",
		metric.WithDescription("State sync passes"),
		metric.WithUnit("{pass}"))
	if err != nil {
		return nil, err
	}

	steps, err := meter.Int64Counter("statesync.steps",
		metric.WithDescription("State sync steps by outcome"),
		metric.WithUnit("{step}"))
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("statesync.duration",
		metric.WithDescription("State sync pass duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &SyncObserver{
		tracer:   opts.TracerProvider.Tracer(scopeName),
		passes:   passes,
		steps:    steps,
		duration: duration,
	}, nil
}

// ObserveSync implements statesync.Observer. The pass has already finished,
// so the span is back-dated by the report's duration.
func (o *SyncObserver) ObserveSync(ctx context.Context, r statesync.Report) {
	end := time.Now()
	failed := r.Err() != nil

	_, span := o.tracer.Start(ctx, "statesync.sync",
		trace.WithTimestamp(end.Add(-r.Duration)),
		trace.WithAttributes(
			attribute.String("session.id", r.SessionID),
			attribute.String("run.id", r.RunID),
			attribute.StringSlice("statesync.changed_keys", r.ChangedKeys()),
			attribute.Bool("statesync.failed", failed),
		),
	)
	for _, s := range r.Steps {
		span.AddEvent(string(s.Step), trace.WithAttributes(
			attribute.String("status", s.Status.String()),
			attribute.String("reason", s.Reason),
		))
		o.steps.Add(ctx, 1, metric.WithAttributes(
			attribute.String("step", string(s.Step)),
			attribute.String("status", s.Status.String()),
		))
	}
	if failed {
		span.RecordError(r.Err())
		span.SetStatus(codes.Error, "state sync failed")
	}
	span.End(trace.WithTimestamp(end))

	attrs := metric.WithAttributes(
		attribute.Bool("changed", r.Changed()),
		attribute.Bool("failed", failed),
	)
	o.passes.Add(ctx, 1, attrs)
	o.duration.Record(ctx, float64(r.Duration.Microseconds())/1000, attrs)
}
