package observer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hupe1980/edumesh/runner"
)

// RunObserver counts runner events and failed runs.
type RunObserver struct {
	events metric.Int64Counter
	errors metric.Int64Counter
}

// NewRunObserver creates the instruments on the configured meter provider.
func NewRunObserver(optFns ...func(o *Options)) (*RunObserver, error) {
	meter := resolve(optFns).MeterProvider.Meter(scopeName)

	events, err := meter.Int64Counter("runner.events",
		metric.WithDescription("Events persisted by the runner"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, err
	}

	errs, err := meter.Int64Counter("runner.errors",
		metric.WithDescription("Runs that ended with an error"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}

	return &RunObserver{events: events, errors: errs}, nil
}

// Callbacks returns the runner callbacks to register.
func (o *RunObserver) Callbacks() []runner.Callback {
	return []runner.Callback{
		runner.NewFunctionCallback(runner.CallbackOnEvent, o.onEvent),
		runner.NewFunctionCallback(runner.CallbackOnError, o.onError),
	}
}

func (o *RunObserver) onEvent(ctx context.Context, c *runner.CallbackContext) error {
	if c.Event == nil {
		return nil
	}
	kind := "message"
	switch {
	case len(c.Event.GetFunctionCalls()) > 0:
		kind = "function_call"
	case len(c.Event.GetFunctionResponses()) > 0:
		kind = "function_response"
	}
	o.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("author", c.Event.Author),
		attribute.String("kind", kind),
	))
	return nil
}

func (o *RunObserver) onError(ctx context.Context, c *runner.CallbackContext) error {
	o.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", c.AgentName)))
	return nil
}
