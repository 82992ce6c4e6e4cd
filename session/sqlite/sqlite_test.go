package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/internal/testutil"
	"github.com/hupe1980/edumesh/statesync"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.Context(), filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Suite(t *testing.T) {
	testutil.SessionStoreSuite(t, func(t *testing.T) core.SessionStore {
		return newTestStore(t)
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")

	s, err := New(t.Context(), path)
	require.NoError(t, err)
	events := testutil.TutoringTurn("run-1",
		testutil.StudentTurn("CBSE", 10, "Science", "What is photosynthesis?"),
		"Plants convert light into chemical energy.")
	testutil.NewSessionBuilder("s1").User("u1").
		State(statesync.KeyCurrentStyle, "story").
		Events(events...).
		Store(t, s)
	require.NoError(t, s.Close())

	s, err = New(t.Context(), path)
	require.NoError(t, err)
	defer s.Close()

	sess, err := s.Get(t.Context(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, "story", sess.StateSnapshot()[statesync.KeyCurrentStyle])
	require.Len(t, sess.GetEvents(), len(events))

	raw, ok := statesync.ScanRetrieval(sess.GetEvents(), statesync.RetainRaw)
	require.True(t, ok)
	assert.NotEmpty(t, raw)
}

func TestStore_ListAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	for _, id := range []string{"b", "a"} {
		_, err := s.Create(ctx, id, "student-1")
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, "c", "student-2")
	require.NoError(t, err)

	ids, err := s.List(ctx, "student-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, s.AppendEvent(ctx, "a", core.NewUserMessageEvent("r", "hi")))
	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestStore_CreateResetsHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	testutil.NewSessionBuilder("s1").User("u").
		Events(core.NewUserMessageEvent("r", "hi")).
		State("k", "v").
		Store(t, s)

	_, err := s.Create(ctx, "s1", "u")
	require.NoError(t, err)

	sess, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, sess.GetEvents())
	assert.Empty(t, sess.StateSnapshot())
}
