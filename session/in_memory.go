package session

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/edumesh/core"
)

// InMemoryStore is a volatile SessionStore keeping sessions in a process
// local map. It is safe for concurrent access and suited for tests or
// single-process deployments. Returned sessions are clones so callers cannot
// mutate stored state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Create stores a new empty session, replacing any session with the same id.
func (s *InMemoryStore) Create(_ context.Context, sessionID, userID string) (*core.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id must not be empty")
	}

	sess := core.NewSession(sessionID)
	sess.UserID = userID

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = sess

	return sess.Clone(), nil
}

// Get returns a clone of the session or core.ErrSessionNotFound.
func (s *InMemoryStore) Get(_ context.Context, sessionID string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	return sess.Clone(), nil
}

// AppendEvent adds an event to the session history.
func (s *InMemoryStore) AppendEvent(_ context.Context, sessionID string, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}
	sess.AddEvent(ev)

	return nil
}

// ApplyDelta merges a key/value delta into the session state.
func (s *InMemoryStore) ApplyDelta(_ context.Context, sessionID string, delta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}
	sess.ApplyStateDelta(delta)

	return nil
}

// Delete removes a session. Unknown ids are ignored.
func (s *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// List returns the ids of all sessions owned by userID.
func (s *InMemoryStore) List(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []string{}
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	return ids, nil
}
