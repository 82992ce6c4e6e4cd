package statesync

import (
	"context"

	"github.com/hupe1980/edumesh/logging"
)

// Observer receives the report of every sync pass.
type Observer interface {
	ObserveSync(ctx context.Context, r Report)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, r Report)

// ObserveSync implements Observer.
func (f ObserverFunc) ObserveSync(ctx context.Context, r Report) { f(ctx, r) }

// MultiObserver fans a report out to several observers in order.
type MultiObserver []Observer

// ObserveSync implements Observer.
func (m MultiObserver) ObserveSync(ctx context.Context, r Report) {
	for _, o := range m {
		if o != nil {
			o.ObserveSync(ctx, r)
		}
	}
}

// LogObserver writes one structured line per step plus a summary line.
type LogObserver struct {
	logger logging.Logger
}

// NewLogObserver returns an observer logging to l.
func NewLogObserver(l logging.Logger) *LogObserver {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return &LogObserver{logger: l}
}

// ObserveSync implements Observer.
func (o *LogObserver) ObserveSync(_ context.Context, r Report) {
	for _, s := range r.Steps {
		args := []any{"session_id", r.SessionID, "run_id", r.RunID, "step", string(s.Step), "reason", s.Reason}
		switch s.Status {
		case StepFailed:
			o.logger.Warn("statesync.step.failed", args...)
		case StepSkipped:
			o.logger.Debug("statesync.step.skipped", args...)
		default:
			o.logger.Debug("statesync.step.succeeded", args...)
		}
	}

	o.logger.Info(
		"statesync.complete",
		"session_id", r.SessionID,
		"run_id", r.RunID,
		"changed_keys", r.ChangedKeys(),
		"failed", r.Err() != nil,
		"duration_ms", r.Duration.Milliseconds(),
	)
}
