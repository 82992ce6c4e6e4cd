package statesync

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/internal/testutil"
	"github.com/hupe1980/edumesh/runner"
	"github.com/hupe1980/edumesh/session"
)

type fakeMemory struct {
	mu    sync.Mutex
	added []*core.Session
	err   error
	panic bool
}

func (m *fakeMemory) AddSession(_ context.Context, sess *core.Session) error {
	if m.panic {
		panic("memory backend exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added = append(m.added, sess)
	return m.err
}

func (m *fakeMemory) Search(context.Context, string, string, int) ([]core.SearchResult, error) {
	return nil, nil
}

type recordingObserver struct {
	reports []Report
}

func (o *recordingObserver) ObserveSync(_ context.Context, r Report) { o.reports = append(o.reports, r) }

func newSyncerForTest(t *testing.T, mem core.MemoryStore, events ...core.Event) (*Syncer, *session.InMemoryStore, *recordingObserver) {
	t.Helper()
	store := session.NewInMemoryStore()
	testutil.NewSessionBuilder("sess-1").User("student-1").Events(events...).Store(t, store)

	obs := &recordingObserver{}
	s := NewSyncer(store, func(o *Options) {
		o.MemoryStore = mem
		o.Observers = []Observer{obs}
	})
	return s, store, obs
}

func TestSyncer_EndToEnd(t *testing.T) {
	question := testutil.StudentTurn("ICSE", 8, "Science", "Why does ice float?")
	mem := &fakeMemory{}
	s, store, obs := newSyncerForTest(t, mem, testutil.TutoringTurn("run-1", question,
		"Ice is less dense than water.",
		"Hydrogen bonds form an open lattice.",
	)...)

	report := s.Sync(t.Context(), "sess-1", "run-1")
	require.NoError(t, report.Err())

	sess, err := store.Get(t.Context(), "sess-1")
	require.NoError(t, err)

	want := map[string]any{
		KeyRAGResults: map[string]any{
			"summary": "Ice is less dense than water. Hydrogen bonds form an open lattice.",
			"count":   2,
			"status":  "success",
		},
		KeyStudentInfo: map[string]any{
			"board":    "ICSE",
			"grade":    "8",
			"subject":  "Science",
			"question": "Why does ice float?",
		},
		KeyStyleSelected: false,
		KeyCurrentStyle:  nil,
	}
	if diff := cmp.Diff(want, sess.StateSnapshot()); diff != "" {
		t.Fatalf("persisted state mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{KeyCurrentStyle, KeyRAGResults, KeyStudentInfo, KeyStyleSelected}, report.ChangedKeys())
	require.Len(t, mem.added, 1)
	assert.Equal(t, "student-1", mem.added[0].UserID)
	_, ok := mem.added[0].GetState(KeyStudentInfo)
	assert.True(t, ok, "memory receives the merged session")

	require.Len(t, obs.reports, 1)
	assert.Equal(t, "run-1", obs.reports[0].RunID)
}

func TestSyncer_SecondPassIsNoop(t *testing.T) {
	s, store, _ := newSyncerForTest(t, nil, testutil.TutoringTurn("run-1", cbseTurn, "text")...)

	first := s.Sync(t.Context(), "sess-1", "run-1")
	require.True(t, first.Changed())
	before, err := store.Get(t.Context(), "sess-1")
	require.NoError(t, err)

	second := s.Sync(t.Context(), "sess-1", "run-2")
	assert.False(t, second.Changed())

	after, err := store.Get(t.Context(), "sess-1")
	require.NoError(t, err)
	if diff := cmp.Diff(before.StateSnapshot(), after.StateSnapshot()); diff != "" {
		t.Fatalf("state changed on second pass (-before +after):\n%s", diff)
	}

	persist, ok := second.Step(StepPersistState)
	require.True(t, ok)
	assert.Equal(t, StepSkipped, persist.Status)

	mirror, ok := second.Step(StepMirrorMemory)
	require.True(t, ok)
	assert.Equal(t, StepSkipped, mirror.Status)
}

func TestSyncer_MemoryFailureIsContained(t *testing.T) {
	for name, mem := range map[string]*fakeMemory{
		"error": {err: errors.New("vector db offline")},
		"panic": {panic: true},
	} {
		t.Run(name, func(t *testing.T) {
			s, store, obs := newSyncerForTest(t, mem, testutil.TutoringTurn("run-1", cbseTurn, "text")...)

			report := s.Sync(t.Context(), "sess-1", "run-1")

			mirror, ok := report.Step(StepMirrorMemory)
			require.True(t, ok)
			assert.Equal(t, StepFailed, mirror.Status)
			assert.Error(t, report.Err())

			sess, err := store.Get(t.Context(), "sess-1")
			require.NoError(t, err)
			assert.Len(t, sess.StateSnapshot(), 4, "state is persisted before mirroring")
			assert.Len(t, obs.reports, 1)
		})
	}
}

func TestSyncer_UnknownSession(t *testing.T) {
	s, _, obs := newSyncerForTest(t, nil)

	report := s.Sync(t.Context(), "missing", "run-1")

	load, ok := report.Step(StepLoadSession)
	require.True(t, ok)
	assert.Equal(t, StepFailed, load.Status)
	assert.ErrorIs(t, report.Err(), core.ErrSessionNotFound)
	require.Len(t, obs.reports, 1)
}

func TestSyncer_ObserverPanicIsContained(t *testing.T) {
	store := session.NewInMemoryStore()
	testutil.NewSessionBuilder("sess-1").User("u").Store(t, store)

	s := NewSyncer(store, func(o *Options) {
		o.Observers = []Observer{ObserverFunc(func(context.Context, Report) { panic("observer bug") })}
	})

	assert.NotPanics(t, func() { s.Sync(t.Context(), "sess-1", "run-1") })
}

func TestSyncer_ExecuteAsCallback(t *testing.T) {
	s, store, obs := newSyncerForTest(t, nil, testutil.TutoringTurn("run-1", cbseTurn, "text")...)

	var cb runner.Callback = s
	assert.Equal(t, runner.CallbackAfterAgent, cb.Type())

	sess, err := store.Get(t.Context(), "sess-1")
	require.NoError(t, err)

	rc := core.NewRunContext(t.Context(), "sess-1", "run-1", core.AgentInfo{Name: "tutor"}, core.Content{}, 0, nil, nil, sess, store, nil, nil)
	require.NoError(t, cb.Execute(t.Context(), &runner.CallbackContext{RunContext: rc, CallbackType: runner.CallbackAfterAgent}))
	require.NoError(t, cb.Execute(t.Context(), &runner.CallbackContext{}))

	require.Len(t, obs.reports, 1)
	assert.True(t, obs.reports[0].Changed())
}

func TestSyncer_RawRetention(t *testing.T) {
	store := session.NewInMemoryStore()
	testutil.NewSessionBuilder("sess-1").User("u").Events(testutil.TutoringTurn("run-1", cbseTurn, "one", "two")...).Store(t, store)

	s := NewSyncer(store, func(o *Options) { o.Retention = RetainRaw })
	report := s.Sync(t.Context(), "sess-1", "run-1")
	require.NoError(t, report.Err())

	_, err := DecodeRetrievalSummary(report.Delta[KeyRAGResults])
	assert.Error(t, err, "raw retention stores the response, not a summary")
	assert.Equal(t, testutil.RetrievalResults("one", "two"), report.Delta[KeyRAGResults])
}
