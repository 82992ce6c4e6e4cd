package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptedAgent struct {
	name string
	run  func(rc *core.RunContext) error
}

func (a *scriptedAgent) Name() string { return a.name }
func (a *scriptedAgent) Description() string { return "scripted" }
func (a *scriptedAgent) Start(*core.RunContext) error { return nil }
func (a *scriptedAgent) Stop(*core.RunContext) error { return nil }
func (a *scriptedAgent) Run(rc *core.RunContext) error { return a.run(rc) }
func (a *scriptedAgent) SetSubAgents(...core.Agent) error { return nil }
func (a *scriptedAgent) SubAgents() []core.Agent { return nil }
func (a *scriptedAgent) Parent() core.Agent { return nil }
func (a *scriptedAgent) FindAgent(name string) core.Agent { return nil }

func emitAndWait(rc *core.RunContext, ev core.Event) error {
	if err := rc.EmitEvent(ev); err != nil {
		return err
	}
	return rc.WaitForResume()
}

func TestRunner_PersistsEventsAndState(t *testing.T) {
	store := session.NewInMemoryStore()
	_, err := store.Create(t.Context(), "s1", "student-1")
	require.NoError(t, err)

	agent := &scriptedAgent{name: "tutor", run: func(rc *core.RunContext) error {
		rc.SetState("style_selected", false)
		if err := emitAndWait(rc, core.NewMessageEvent("tutor", "first")); err != nil {
			return err
		}

		// The resumed agent sees its own persisted event.
		if err := rc.RefreshSession(); err != nil {
			return err
		}
		if n := len(rc.Session.GetEvents()); n != 2 {
			return errors.New("previous event not persisted before resume")
		}

		partial := core.NewMessageEvent("tutor", "chunk")
		p := true
		partial.Partial = &p
		if err := rc.EmitEvent(partial); err != nil {
			return err
		}

		return emitAndWait(rc, core.NewMessageEvent("tutor", "second"))
	}}

	r := New(agent, func(o *Options) { o.SessionStore = store })

	runID, events, err := r.RunSync(t.Context(), "s1", core.NewTextContent(core.RoleUser, "hello"))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, runID, events[0].InvocationID)
	assert.Equal(t, "tutor", events[0].Author)

	sess, err := store.Get(t.Context(), "s1")
	require.NoError(t, err)

	history := sess.GetEvents()
	require.Len(t, history, 3, "user event plus two non-partial events")
	assert.Equal(t, []string{"hello"}, history[0].Texts())
	assert.Equal(t, []string{"second"}, history[2].Texts())

	v, ok := sess.GetState("style_selected")
	require.True(t, ok)
	assert.Equal(t, false, v)
}

func TestRunner_CreatesUnknownSession(t *testing.T) {
	store := session.NewInMemoryStore()
	agent := &scriptedAgent{name: "echo", run: func(rc *core.RunContext) error {
		return emitAndWait(rc, core.NewMessageEvent("echo", rc.UserText()))
	}}

	r := New(agent, func(o *Options) {
		o.SessionStore = store
		o.DefaultUserID = "guest"
	})

	_, events, err := r.RunSync(t.Context(), "fresh", core.NewTextContent(core.RoleUser, "ping"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"ping"}, events[0].Texts())

	sess, err := store.Get(t.Context(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, "guest", sess.UserID)
}

func TestRunner_AfterAgentRunsBeforeStreamCloses(t *testing.T) {
	store := session.NewInMemoryStore()
	agent := &scriptedAgent{name: "tutor", run: func(rc *core.RunContext) error {
		return emitAndWait(rc, core.NewMessageEvent("tutor", "answer"))
	}}

	var (
		mu        sync.Mutex
		seen      []CallbackType
		persisted int
	)
	record := func(ct CallbackType) Callback {
		return NewFunctionCallback(ct, func(ctx context.Context, c *CallbackContext) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, ct)
			if ct == CallbackAfterAgent {
				sess, err := store.Get(ctx, c.RunContext.SessionID)
				if err != nil {
					return err
				}
				persisted = len(sess.GetEvents())
				return store.ApplyDelta(ctx, c.RunContext.SessionID, map[string]any{"synced": true})
			}
			return nil
		})
	}

	r := New(agent, func(o *Options) {
		o.SessionStore = store
		o.Callbacks = []Callback{record(CallbackBeforeAgent), record(CallbackOnEvent), record(CallbackAfterAgent)}
	})

	_, _, err := r.RunSync(t.Context(), "s1", core.NewTextContent(core.RoleUser, "q"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []CallbackType{CallbackBeforeAgent, CallbackOnEvent, CallbackAfterAgent}, seen)
	assert.Equal(t, 2, persisted)

	sess, err := store.Get(t.Context(), "s1")
	require.NoError(t, err)
	v, _ := sess.GetState("synced")
	assert.Equal(t, true, v)
}

func TestRunner_AgentError(t *testing.T) {
	var onError error
	agent := &scriptedAgent{name: "broken", run: func(*core.RunContext) error {
		return errors.New("model unavailable")
	}}

	r := New(agent, func(o *Options) {
		o.Callbacks = []Callback{NewFunctionCallback(CallbackOnError, func(_ context.Context, c *CallbackContext) error {
			onError = c.Err
			return nil
		})}
	})

	_, events, err := r.RunSync(t.Context(), "s1", core.NewTextContent(core.RoleUser, "q"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
	assert.Empty(t, events)
	assert.ErrorContains(t, onError, "model unavailable")
}

func TestRunner_StateValidationRejectsDelta(t *testing.T) {
	store := session.NewInMemoryStore()
	agent := &scriptedAgent{name: "tutor", run: func(rc *core.RunContext) error {
		rc.SetState("current_style", "")
		return emitAndWait(rc, core.NewMessageEvent("tutor", "answer"))
	}}

	r := New(agent, func(o *Options) {
		o.SessionStore = store
		o.Callbacks = []Callback{NewStateValidationCallback(func(delta map[string]any) error {
			if v, ok := delta["current_style"]; ok && v == "" {
				return errors.New("current_style must not be empty")
			}
			return nil
		})}
	})

	_, _, err := r.RunSync(t.Context(), "s1", core.NewTextContent(core.RoleUser, "q"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state change rejected")

	sess, err := store.Get(t.Context(), "s1")
	require.NoError(t, err)
	_, ok := sess.GetState("current_style")
	assert.False(t, ok)
}

func TestRunner_Cancel(t *testing.T) {
	started := make(chan struct{})
	agent := &scriptedAgent{name: "slow", run: func(rc *core.RunContext) error {
		close(started)
		<-rc.Done()
		return rc.Err()
	}}

	var afterAgent bool
	r := New(agent, func(o *Options) {
		o.Callbacks = []Callback{NewFunctionCallback(CallbackAfterAgent, func(context.Context, *CallbackContext) error {
			afterAgent = true
			return nil
		})}
	})

	runID, events, errs, err := r.Run(t.Context(), "s1", core.NewTextContent(core.RoleUser, "q"))
	require.NoError(t, err)

	<-started
	require.NoError(t, r.Cancel(runID))

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after cancel")
	}
	for range errs {
	}

	assert.False(t, afterAgent, "cancelled runs skip after-agent callbacks")
	assert.Error(t, r.Cancel(runID), "finished runs are forgotten")
}

func TestRunner_ConcurrencyLimit(t *testing.T) {
	release := make(chan struct{})
	agent := &scriptedAgent{name: "busy", run: func(rc *core.RunContext) error {
		select {
		case <-release:
		case <-rc.Done():
		}
		return nil
	}}

	r := New(agent, func(o *Options) { o.MaxConcurrentInvocations = 1 })

	_, events, _, err := r.Run(t.Context(), "s1", core.NewTextContent(core.RoleUser, "a"))
	require.NoError(t, err)

	_, _, _, err = r.Run(t.Context(), "s2", core.NewTextContent(core.RoleUser, "b"))
	assert.ErrorIs(t, err, ErrTooManyRuns)

	close(release)
	for range events {
	}

	_, _, err = r.RunSync(t.Context(), "s3", core.NewTextContent(core.RoleUser, "c"))
	assert.NoError(t, err)
}
