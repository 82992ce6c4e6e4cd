package core

import (
	"context"
	"fmt"
	"maps"

	"github.com/hupe1980/edumesh/logging"
)

// RunContext carries execution state & helpers for an agent run. It aggregates:
//   - The ambient cancellation Context
//   - Identifiers (SessionID, UserID, RunID, Agent info)
//   - Input user Content
//   - Emission / resumption coordination channels
//   - Backing stores (session, memory)
//   - A working Session snapshot and a pending StateDelta
//   - Branch label for hierarchical flows
//
// State mutations performed via SetState accumulate in StateDelta until
// CommitStateDelta or EmitEvent applies them.
type RunContext struct {
	Context          context.Context
	SessionID, RunID string
	UserID           string
	Agent            AgentInfo
	UserContent      Content
	Emit             chan<- Event
	Resume           <-chan struct{}
	SessionStore     SessionStore
	MemoryStore      MemoryStore
	Limiter          *ModelLimiter
	Session          *Session
	StateDelta       map[string]any
	Branch           string

	*loggerAdapter
}

// NewRunContext constructs a RunContext with an empty state delta.
func NewRunContext(
	ctx context.Context,
	sessionID, runID string,
	agent AgentInfo,
	userContent Content,
	maxModelCalls int,
	emit chan<- Event,
	resume <-chan struct{},
	sess *Session,
	sessionStore SessionStore,
	memoryStore MemoryStore,
	logger logging.Logger,
) *RunContext {
	userID := ""
	if sess != nil {
		userID = sess.UserID
	}

	return &RunContext{
		Context:       ctx,
		SessionID:     sessionID,
		RunID:         runID,
		UserID:        userID,
		Agent:         agent,
		UserContent:   userContent,
		Emit:          emit,
		Resume:        resume,
		Session:       sess,
		SessionStore:  sessionStore,
		MemoryStore:   memoryStore,
		Limiter:       NewModelLimiter(maxModelCalls),
		StateDelta:    map[string]any{},
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// GetState returns a staged (delta) value if present, else the session value.
func (rc *RunContext) GetState(k string) (any, bool) {
	if v, ok := rc.StateDelta[k]; ok {
		return v, true
	}

	if rc.Session != nil {
		return rc.Session.GetState(k)
	}

	return nil, false
}

// State returns the session state overlaid with the staged delta.
func (rc *RunContext) State() map[string]any {
	state := map[string]any{}
	if rc.Session != nil {
		state = rc.Session.StateSnapshot()
	}
	maps.Copy(state, rc.StateDelta)
	return state
}

// SetState stages a state mutation in the in-memory delta buffer.
func (rc *RunContext) SetState(k string, v any) { rc.StateDelta[k] = v }

// ApplyStateDelta merges all pairs from d into the staged StateDelta.
func (rc *RunContext) ApplyStateDelta(d map[string]any) {
	maps.Copy(rc.StateDelta, d)
}

// SearchMemory queries the MemoryStore for memories of the current user.
func (rc *RunContext) SearchMemory(q string, limit int) ([]SearchResult, error) {
	if rc.MemoryStore == nil {
		return []SearchResult{}, nil
	}

	return rc.MemoryStore.Search(rc.Context, rc.UserID, q, limit)
}

// RefreshSession reloads the session snapshot from the SessionStore.
func (rc *RunContext) RefreshSession() error {
	if rc.SessionStore == nil {
		return fmt.Errorf("session store not configured")
	}

	s, err := rc.SessionStore.Get(rc.Context, rc.SessionID)
	if err != nil {
		return err
	}

	rc.Session = s

	return nil
}

// CommitStateDelta persists the accumulated StateDelta then clears the buffer.
func (rc *RunContext) CommitStateDelta() error {
	if len(rc.StateDelta) == 0 {
		return nil
	}

	if rc.SessionStore == nil {
		return fmt.Errorf("session store not configured")
	}

	if err := rc.SessionStore.ApplyDelta(rc.Context, rc.SessionID, rc.StateDelta); err != nil {
		return err
	}

	rc.StateDelta = map[string]any{}

	return nil
}

// GetSessionHistory returns all historical events for the session.
func (rc *RunContext) GetSessionHistory() []Event {
	if rc.Session == nil {
		return []Event{}
	}

	return rc.Session.GetEvents()
}

// UserText concatenates the text parts of the run's user content.
func (rc *RunContext) UserText() string {
	var text string
	for _, p := range rc.UserContent.Parts {
		if tp, ok := p.(TextPart); ok {
			text += tp.Text
		}
	}
	return text
}

// Clone returns a shallow copy with a copied delta buffer.
func (rc *RunContext) Clone() *RunContext {
	c := *rc
	c.StateDelta = maps.Clone(rc.StateDelta)
	if c.StateDelta == nil {
		c.StateDelta = map[string]any{}
	}
	return &c
}

// WithAgent clones the context and rebinds it to another agent.
func (rc *RunContext) WithAgent(info AgentInfo) *RunContext {
	c := rc.Clone()
	c.Agent = info
	if rc.Branch == "" {
		c.Branch = info.Name
	} else {
		c.Branch = rc.Branch + "." + info.Name
	}
	return c
}

// EmitEvent merges pending StateDelta into the event and emits it.
func (rc *RunContext) EmitEvent(ev Event) error {
	if len(rc.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = maps.Clone(rc.StateDelta)
		} else {
			maps.Copy(ev.Actions.StateDelta, rc.StateDelta)
		}
	}

	if ev.InvocationID == "" {
		ev.InvocationID = rc.RunID
	}

	if ev.Branch == nil && rc.Branch != "" {
		b := rc.Branch
		ev.Branch = &b
	}

	select {
	case <-rc.Context.Done():
		return rc.Context.Err()
	case rc.Emit <- ev:
	}

	rc.StateDelta = map[string]any{}

	return nil
}

// WaitForResume blocks until Resume signals or context cancellation.
func (rc *RunContext) WaitForResume() error {
	if rc.Resume == nil {
		return nil
	}

	select {
	case <-rc.Resume:
		return nil
	case <-rc.Context.Done():
		return rc.Context.Err()
	}
}
