package core

import (
	"context"
	"maps"
	"sync"
)

type mockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	applied  map[string]map[string]any
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: map[string]*Session{}, applied: map[string]map[string]any{}}
}

func (s *mockSessionStore) Create(_ context.Context, id, userID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := NewSession(id)
	sess.UserID = userID
	s.sessions[id] = sess
	return sess.Clone(), nil
}

func (s *mockSessionStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *mockSessionStore) AppendEvent(_ context.Context, id string, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.AddEvent(ev)
	}
	return nil
}

func (s *mockSessionStore) ApplyDelta(_ context.Context, id string, delta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied[id] = maps.Clone(delta)
	if sess, ok := s.sessions[id]; ok {
		sess.ApplyStateDelta(delta)
	}
	return nil
}

type mockMemoryStore struct {
	added   []*Session
	results []SearchResult
}

func (m *mockMemoryStore) AddSession(_ context.Context, sess *Session) error {
	m.added = append(m.added, sess)
	return nil
}

func (m *mockMemoryStore) Search(_ context.Context, userID, _ string, _ int) ([]SearchResult, error) {
	out := []SearchResult{}
	for _, r := range m.results {
		if r.Metadata["user_id"] == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func newRunContextForTest() (*RunContext, chan Event) {
	store := newMockSessionStore()
	sess, _ := store.Create(context.Background(), "sess-x", "student-1")
	mem := &mockMemoryStore{results: []SearchResult{
		{ID: "m1", Content: "CBSE grade 10 fractions", Score: 0.9, Metadata: map[string]any{"user_id": "student-1"}},
	}}
	emit := make(chan Event, 5)
	resume := make(chan struct{}, 5)
	return NewRunContext(
		context.Background(), "sess-x", "run-x", AgentInfo{Name: "Agent1", Type: "test"},
		NewTextContent(RoleUser, "CBSE-grade-10-Mathematics. Question: What is a fraction?"),
		0, emit, resume, sess, store, mem, nil,
	), emit
}
