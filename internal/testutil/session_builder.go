package testutil

import (
	"maps"
	"testing"

	"github.com/hupe1980/edumesh/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").User("student-1").State("k", "v").Events(ev1, ev2).Build()
type SessionBuilder struct {
	id     string
	userID string
	state  map[string]any
	events []core.Event
}

// NewSessionBuilder creates a new builder for a session with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id, state: map[string]any{}}
}

// User sets the owning user.
func (b *SessionBuilder) User(id string) *SessionBuilder { b.userID = id; return b }

// State sets a state key/value pair on the resulting session.
func (b *SessionBuilder) State(key string, val any) *SessionBuilder {
	b.state[key] = val
	return b
}

// Events appends events to the session history.
func (b *SessionBuilder) Events(evs ...core.Event) *SessionBuilder {
	b.events = append(b.events, evs...)
	return b
}

// Build returns a *core.Session with pre-populated state and events.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.id)
	s.UserID = b.userID
	maps.Copy(s.State, b.state)
	s.Events = append(s.Events, b.events...)
	return s
}

// Store creates the session in store and appends its events and state.
func (b *SessionBuilder) Store(t testing.TB, store core.SessionStore) *core.Session {
	t.Helper()
	ctx := t.Context()

	if _, err := store.Create(ctx, b.id, b.userID); err != nil {
		t.Fatalf("create session: %v", err)
	}
	for _, ev := range b.events {
		if err := store.AppendEvent(ctx, b.id, ev); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}
	if len(b.state) > 0 {
		if err := store.ApplyDelta(ctx, b.id, b.state); err != nil {
			t.Fatalf("apply delta: %v", err)
		}
	}

	sess, err := store.Get(ctx, b.id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	return sess
}
