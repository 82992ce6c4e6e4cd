package core

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"
)

// ErrSessionNotFound is returned by SessionStore implementations when the
// requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Session represents a conversational container tracking mutable key/value
// state plus an ordered event history. It is safe for concurrent access.
//
// Contract:
//   - State mutations update the Updated timestamp
//   - GetEvents and StateSnapshot return defensive copies
//   - GetConversationHistory filters events to user/assistant/tool roles and
//     excludes partial streaming fragments
//   - Clone copies maps/slices so clones can diverge safely
type Session struct {
	ID       string            `json:"id"`
	UserID   string            `json:"user_id"`
	State    map[string]any    `json:"state"`
	Events   []Event           `json:"events"`
	Created  time.Time         `json:"created"`
	Updated  time.Time         `json:"updated"`
	Metadata map[string]string `json:"metadata"`
	mu       sync.RWMutex
}

// NewSession creates a new session with the given ID.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{ID: id, State: map[string]any{}, Events: []Event{}, Created: now, Updated: now, Metadata: map[string]string{}}
}

// GetState returns the value and existence flag for a state key.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// SetState sets a key/value pair in session state updating the Updated timestamp.
func (s *Session) SetState(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State == nil {
		s.State = map[string]any{}
	}
	s.State[key] = value
	s.Updated = time.Now().UTC()
}

// ApplyStateDelta merges the provided key/value pairs into State.
func (s *Session) ApplyStateDelta(delta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State == nil {
		s.State = map[string]any{}
	}
	maps.Copy(s.State, delta)
	s.Updated = time.Now().UTC()
}

// StateSnapshot returns a shallow copy of the state map.
func (s *Session) StateSnapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.State)
}

// AddEvent appends an event to the history updating the Updated timestamp.
func (s *Session) AddEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	s.Updated = time.Now().UTC()
}

// GetEvents returns a defensive copy of the full event slice.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	return events
}

// GetConversationHistory returns filtered events suitable for providing
// conversational context to models (excludes partials and non-conversational roles).
func (s *Session) GetConversationHistory() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Event, 0, len(s.Events))
	for _, ev := range s.Events {
		if ev.Content == nil {
			continue
		}
		switch ev.Content.Role {
		case RoleUser, RoleAssistant, RoleTool:
		default:
			continue
		}
		if ev.IsPartial() {
			continue
		}
		res = append(res, ev)
	}
	return res
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:       s.ID,
		UserID:   s.UserID,
		State:    make(map[string]any, len(s.State)),
		Events:   make([]Event, len(s.Events)),
		Created:  s.Created,
		Updated:  s.Updated,
		Metadata: make(map[string]string, len(s.Metadata)),
	}
	maps.Copy(clone.State, s.State)
	copy(clone.Events, s.Events)
	maps.Copy(clone.Metadata, s.Metadata)
	return clone
}

// SessionStore persists sessions and their evolving state / event history.
// Get returns ErrSessionNotFound (possibly wrapped) for unknown ids.
type SessionStore interface {
	Create(ctx context.Context, id, userID string) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	AppendEvent(ctx context.Context, sessionID string, event Event) error
	ApplyDelta(ctx context.Context, sessionID string, delta map[string]any) error
}

// GetOrCreateSession loads a session, creating it when the store reports
// ErrSessionNotFound.
func GetOrCreateSession(ctx context.Context, store SessionStore, id, userID string) (*Session, error) {
	sess, err := store.Get(ctx, id)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	return store.Create(ctx, id, userID)
}
