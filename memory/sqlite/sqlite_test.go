package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.Context(), filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Suite(t *testing.T) {
	testutil.MemoryStoreSuite(t, func(t *testing.T) core.MemoryStore {
		return newTestStore(t)
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")

	s, err := New(t.Context(), path)
	require.NoError(t, err)
	sess := testutil.NewSessionBuilder("s1").User("u1").
		Events(testutil.NewEventBuilder().Author(core.RoleUser).UserText("explain photosynthesis").Build()).
		Build()
	require.NoError(t, s.AddSession(t.Context(), sess))
	require.NoError(t, s.Close())

	s, err = New(t.Context(), path)
	require.NoError(t, err)
	defer s.Close()

	res, err := s.Search(t.Context(), "u1", "photosynthesis", 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "message", res[0].Metadata["kind"])
	assert.Equal(t, "s1", res[0].SessionID)
}
