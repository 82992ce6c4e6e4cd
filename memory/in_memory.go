package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/hupe1980/edumesh/core"
)

var _ core.MemoryStore = (*InMemoryStore)(nil)

// InMemoryStore is a process-local MemoryStore. Records are grouped by user
// and session; re-adding a session replaces its records.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string][]Record // userID -> sessionID -> records
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]map[string][]Record)}
}

// AddSession implements core.MemoryStore.
func (m *InMemoryStore) AddSession(_ context.Context, sess *core.Session) error {
	if sess == nil {
		return fmt.Errorf("nil session")
	}

	records := RecordsFromSession(sess)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[sess.UserID]; !ok {
		m.records[sess.UserID] = make(map[string][]Record)
	}
	m.records[sess.UserID][sess.ID] = records

	return nil
}

// Search implements core.MemoryStore.
func (m *InMemoryStore) Search(_ context.Context, userID, query string, limit int) ([]core.SearchResult, error) {
	m.mu.RLock()
	var all []Record
	for _, records := range m.records[userID] {
		all = append(all, records...)
	}
	m.mu.RUnlock()

	results := Rank(all, query, limit)
	for i := range results {
		results[i].Metadata = maps.Clone(results[i].Metadata)
	}
	return results, nil
}

// Forget removes the records of a session.
func (m *InMemoryStore) Forget(userID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records[userID], sessionID)
}

// Len returns the number of records held for userID.
func (m *InMemoryStore) Len(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, records := range m.records[userID] {
		n += len(records)
	}
	return n
}
