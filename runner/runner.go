package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/logging"
	"github.com/hupe1980/edumesh/session"
)

// ErrTooManyRuns is returned by Run when MaxConcurrentInvocations runs are
// already in flight.
var ErrTooManyRuns = errors.New("too many concurrent runs")

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	// MaxConcurrentInvocations limits in-flight runs. Zero means unlimited.
	MaxConcurrentInvocations int
	// EventBufferSize sets channel buffering for events.
	EventBufferSize int
	// MaxModelCalls limits the number of model calls per run. Zero means unlimited.
	MaxModelCalls int
	// DefaultUserID owns sessions the runner creates on first use.
	DefaultUserID string
	SessionStore  core.SessionStore
	// MemoryStore is exposed to agents and tools for recall. Optional.
	MemoryStore core.MemoryStore
	Logger      logging.Logger
	// Callbacks are registered on the runner's CallbackManager.
	Callbacks []Callback
}

// Runner coordinates agent execution: it creates run contexts, streams
// events, applies state deltas, persists history and fires lifecycle
// callbacks. Public methods are safe for concurrent use.
type Runner struct {
	agent core.Agent

	eventBufferSize int
	maxModelCalls   int
	defaultUserID   string

	sessionStore core.SessionStore
	memoryStore  core.MemoryStore
	callbacks    *CallbackManager
	logger       logging.Logger

	slots      chan struct{}
	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

var _ core.Runner = (*Runner)(nil)

// New constructs a Runner for the root agent.
func New(agent core.Agent, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrentInvocations: 10,
		EventBufferSize:          100,
		MaxModelCalls:            100,
		DefaultUserID:            "anonymous",
		SessionStore:             session.NewInMemoryStore(),
		Logger:                   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	r := &Runner{
		agent:           agent,
		eventBufferSize: opts.EventBufferSize,
		maxModelCalls:   opts.MaxModelCalls,
		defaultUserID:   opts.DefaultUserID,
		sessionStore:    opts.SessionStore,
		memoryStore:     opts.MemoryStore,
		callbacks:       NewCallbackManager(),
		logger:          opts.Logger,
		activeRuns:      make(map[string]context.CancelFunc),
	}

	if opts.MaxConcurrentInvocations > 0 {
		r.slots = make(chan struct{}, opts.MaxConcurrentInvocations)
	}

	for _, cb := range opts.Callbacks {
		r.callbacks.RegisterCallback(cb)
	}

	return r
}

// RegisterCallback adds a lifecycle callback.
func (r *Runner) RegisterCallback(cb Callback) { r.callbacks.RegisterCallback(cb) }

// SessionStore returns the store the runner persists to.
func (r *Runner) SessionStore() core.SessionStore { return r.sessionStore }

// Run starts an asynchronous run. Unknown sessions are created for the
// default user. The events channel closes after all events are persisted and
// after-agent callbacks have completed.
func (r *Runner) Run(
	ctx context.Context,
	sessionID string,
	userContent core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	if !r.acquire() {
		return "", nil, nil, ErrTooManyRuns
	}

	sess, err := core.GetOrCreateSession(ctx, r.sessionStore, sessionID, r.defaultUserID)
	if err != nil {
		r.release()
		return "", nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	runID := core.NewID()

	userEvent := core.NewUserContentEvent(runID, &userContent)
	if err := r.sessionStore.AppendEvent(ctx, sessionID, userEvent); err != nil {
		r.release()
		return "", nil, nil, fmt.Errorf("failed to append user event: %w", err)
	}
	sess.AddEvent(userEvent)

	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, 1)
	agentEmit := make(chan core.Event, r.eventBufferSize)
	resumeCh := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	runCtx := core.NewRunContext(
		ctx,
		sessionID,
		runID,
		core.AgentInfo{Name: r.agent.Name(), Type: "root"},
		userContent,
		r.maxModelCalls,
		agentEmit,
		resumeCh,
		sess,
		r.sessionStore,
		r.memoryStore,
		r.logger,
	)

	r.logger.Info("runner.run.start", "session_id", sessionID, "run_id", runID, "agent", r.agent.Name())

	go func() {
		defer close(agentEmit)

		if err := r.runAgent(runCtx); err != nil {
			r.fail(runCtx, errorsCh, fmt.Errorf("agent execution failed: %w", err))
		}
	}()

	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.activeRuns, runID)
			r.mu.Unlock()

			cancel()
			r.release()

			close(eventsCh)
			close(errorsCh)
		}()

		completed := r.processEvents(runCtx, agentEmit, resumeCh, eventsCh, errorsCh)

		// Unblock the agent goroutine if processing stopped early.
		for range agentEmit {
		}

		if completed && runCtx.Err() == nil {
			r.afterAgent(runCtx)
		}

		r.logger.Info("runner.run.finish", "session_id", sessionID, "run_id", runID, "completed", completed)
	}()

	return runID, eventsCh, errorsCh, nil
}

// RunSync runs to completion and returns all delivered events.
func (r *Runner) RunSync(ctx context.Context, sessionID string, userContent core.Content) (string, []core.Event, error) {
	runID, eventsCh, errorsCh, err := r.Run(ctx, sessionID, userContent)
	if err != nil {
		return "", nil, err
	}

	var events []core.Event
	for ev := range eventsCh {
		events = append(events, ev)
	}

	if err := <-errorsCh; err != nil {
		return runID, events, err
	}

	return runID, events, ctx.Err()
}

// Cancel cancels a running run by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.RLock()
	cancel, exists := r.activeRuns[runID]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()

	return nil
}

func (r *Runner) acquire() bool {
	if r.slots == nil {
		return true
	}
	select {
	case r.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (r *Runner) release() {
	if r.slots != nil {
		<-r.slots
	}
}

func (r *Runner) runAgent(runCtx *core.RunContext) error {
	cbCtx := &CallbackContext{RunContext: runCtx, AgentName: r.agent.Name()}
	if err := r.callbacks.ExecuteCallbacks(runCtx.Context, CallbackBeforeAgent, cbCtx); err != nil {
		return fmt.Errorf("before agent callback: %w", err)
	}

	if err := r.agent.Start(runCtx); err != nil {
		return err
	}

	defer func() {
		if err := r.agent.Stop(runCtx); err != nil {
			r.logger.Warn("runner.agent.stop_failed", "agent", r.agent.Name(), "error", err)
		}
	}()

	return r.agent.Run(runCtx)
}

// fail records the first terminal error of a run and fires error callbacks.
func (r *Runner) fail(runCtx *core.RunContext, errorsCh chan<- error, err error) {
	r.logger.Error("runner.run.failed", "session_id", runCtx.SessionID, "run_id", runCtx.RunID, "error", err)

	cbCtx := &CallbackContext{RunContext: runCtx, AgentName: r.agent.Name(), Err: err}
	if cbErr := r.callbacks.ExecuteCallbacks(context.WithoutCancel(runCtx.Context), CallbackOnError, cbCtx); cbErr != nil {
		r.logger.Warn("runner.callback.failed", "callback", string(CallbackOnError), "error", cbErr)
	}

	select {
	case errorsCh <- err:
	default:
	}
}

func (r *Runner) afterAgent(runCtx *core.RunContext) {
	cbCtx := &CallbackContext{RunContext: runCtx, AgentName: r.agent.Name()}
	if err := r.callbacks.ExecuteCallbacks(runCtx.Context, CallbackAfterAgent, cbCtx); err != nil {
		r.logger.Warn("runner.callback.failed", "callback", string(CallbackAfterAgent), "error", err)
	}
}

// processEvents persists and forwards agent events. It reports whether the
// agent finished without the run being aborted.
func (r *Runner) processEvents(
	runCtx *core.RunContext,
	agentEmit <-chan core.Event,
	resumeCh chan<- struct{},
	eventsCh chan<- core.Event,
	errorsCh chan<- error,
) bool {
	for {
		select {
		case <-runCtx.Done():
			return false
		case ev, ok := <-agentEmit:
			if !ok {
				return true
			}

			if !ev.IsPartial() {
				if err := r.persist(runCtx, ev); err != nil {
					r.fail(runCtx, errorsCh, err)
					r.abort(runCtx.RunID)
					return false
				}
			}

			select {
			case <-runCtx.Done():
				return false
			case eventsCh <- ev:
				r.logger.Debug("runner.event.delivered", "event_id", ev.ID, "session_id", runCtx.SessionID)
			}

			if !ev.IsPartial() {
				select {
				case resumeCh <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (r *Runner) persist(runCtx *core.RunContext, ev core.Event) error {
	ctx := runCtx.Context

	if len(ev.Actions.StateDelta) > 0 {
		cbCtx := &CallbackContext{RunContext: runCtx, Event: &ev, AgentName: r.agent.Name()}
		if err := r.callbacks.ExecuteCallbacks(ctx, CallbackOnStateChange, cbCtx); err != nil {
			return fmt.Errorf("state change rejected: %w", err)
		}

		if err := r.sessionStore.ApplyDelta(ctx, runCtx.SessionID, ev.Actions.StateDelta); err != nil {
			return fmt.Errorf("failed to apply state delta: %w", err)
		}
	}

	if ev.Actions.Escalate != nil && *ev.Actions.Escalate {
		r.logger.Info("runner.event.escalate", "session_id", runCtx.SessionID, "author", ev.Author)
	}

	if err := r.sessionStore.AppendEvent(ctx, runCtx.SessionID, ev); err != nil {
		return fmt.Errorf("failed to append event to session: %w", err)
	}

	cbCtx := &CallbackContext{RunContext: runCtx, Event: &ev, AgentName: r.agent.Name()}
	if err := r.callbacks.ExecuteCallbacks(ctx, CallbackOnEvent, cbCtx); err != nil {
		r.logger.Warn("runner.callback.failed", "callback", string(CallbackOnEvent), "error", err)
	}

	return nil
}

func (r *Runner) abort(runID string) {
	r.mu.RLock()
	cancel, ok := r.activeRuns[runID]
	r.mu.RUnlock()
	if ok {
		cancel()
	}
}
