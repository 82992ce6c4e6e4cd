package statesync

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/logging"
	"github.com/hupe1980/edumesh/runner"
)

// Options configures a Syncer.
type Options struct {
	// Parser extracts student info. Defaults to NewRegexParser().
	Parser Parser
	// Retention selects summarized or raw retrieval retention.
	Retention RetentionMode
	// Source limits the events student info is extracted from. Nil means all events.
	Source EventFilter
	// MemoryStore receives the session after each pass. Nil disables mirroring.
	MemoryStore core.MemoryStore
	// Observers receive the report of every pass.
	Observers []Observer
	// Logger is used for panics and the default LogObserver.
	Logger logging.Logger
}

// Syncer runs the state synchronisation pass after each completed turn:
// load session, Transition, persist the delta, mirror to memory, report.
//
// Syncer implements runner.Callback for runner.CallbackAfterAgent. It never
// returns an error so the user-visible response is unaffected by sync failures.
type Syncer struct {
	store     core.SessionStore
	parser    Parser
	retention RetentionMode
	source    EventFilter
	memory    core.MemoryStore
	observer  Observer
	logger    logging.Logger
	now       func() time.Time
}

// NewSyncer creates a Syncer bound to store. Without explicit observers a
// LogObserver on the configured logger is installed.
func NewSyncer(store core.SessionStore, optFns ...func(o *Options)) *Syncer {
	opts := Options{
		Parser:    defaultParser,
		Retention: RetainSummary,
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	observers := opts.Observers
	if len(observers) == 0 {
		observers = []Observer{NewLogObserver(opts.Logger)}
	}

	return &Syncer{
		store:     store,
		parser:    opts.Parser,
		retention: opts.Retention,
		source:    opts.Source,
		memory:    opts.MemoryStore,
		observer:  MultiObserver(observers),
		logger:    opts.Logger,
		now:       time.Now,
	}
}

// Type implements runner.Callback.
func (s *Syncer) Type() runner.CallbackType { return runner.CallbackAfterAgent }

// Execute implements runner.Callback.
func (s *Syncer) Execute(ctx context.Context, cbCtx *runner.CallbackContext) error {
	if cbCtx == nil || cbCtx.RunContext == nil {
		return nil
	}
	s.Sync(ctx, cbCtx.RunContext.SessionID, cbCtx.RunContext.RunID)
	return nil
}

// Sync runs one pass for sessionID and returns its report. Failures of any
// step, including panics, are recorded in the report and never returned.
func (s *Syncer) Sync(ctx context.Context, sessionID, runID string) (report Report) {
	start := s.now()
	report = Report{SessionID: sessionID, RunID: runID, Delta: map[string]any{}}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("statesync.panic", "session_id", sessionID, "recover", r, "stack", string(debug.Stack()))
			report.Steps = append(report.Steps, failed(StepSync, fmt.Errorf("panic: %v", r)))
		}
		report.Duration = s.now().Sub(start)
		s.observe(ctx, report)
	}()

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		report.Steps = append(report.Steps, failed(StepLoadSession, fmt.Errorf("load session: %w", err)))
		return report
	}

	out := Transition(sess.StateSnapshot(), sess.GetEvents(), func(o *TransitionOptions) {
		o.Parser = s.parser
		o.Retention = s.retention
		o.Source = s.source
	})
	report.Steps = append(report.Steps, out.Steps...)

	if len(out.Delta) == 0 {
		report.Steps = append(report.Steps, skipped(StepPersistState, "no state changes"))
	} else if err := s.store.ApplyDelta(ctx, sessionID, out.Delta); err != nil {
		report.Steps = append(report.Steps, failed(StepPersistState, fmt.Errorf("apply delta: %w", err)))
	} else {
		sess.ApplyStateDelta(out.Delta)
		report.Delta = out.Delta
		report.Steps = append(report.Steps, succeeded(StepPersistState, "delta applied"))
	}

	report.Steps = append(report.Steps, MirrorToMemory(ctx, s.memory, sess))

	return report
}

// observe shields the pass from observer panics.
func (s *Syncer) observe(ctx context.Context, r Report) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("statesync.observer.panic", "session_id", r.SessionID, "recover", p)
		}
	}()
	s.observer.ObserveSync(ctx, r)
}
