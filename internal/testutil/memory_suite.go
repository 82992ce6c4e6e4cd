package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/edumesh/core"
)

// MemoryStoreSuite runs the behaviour every core.MemoryStore must provide.
// newStore is called once per subtest and must return an empty store.
func MemoryStoreSuite(t *testing.T, newStore func(t *testing.T) core.MemoryStore) {
	tutored := func(id, user string) *core.Session {
		events := TutoringTurn("run-1", StudentTurn("CBSE", 10, "Mathematics", "What is a fraction?"), "A fraction is a part of a whole.")
		events = append(events, NewEventBuilder().Author("explanation_main_agent").AssistantText("Think of a pizza cut into slices.").Build())
		return NewSessionBuilder(id).User(user).
			State("student_info", map[string]any{"board": "CBSE", "grade": "10", "subject": "Mathematics", "question": "What is a fraction?"}).
			State("rag_results", map[string]any{"summary": "A fraction is a part of a whole.", "count": 1, "status": "success"}).
			State("current_style", "story").
			Events(events...).
			Build()
	}

	t.Run("search empty store", func(t *testing.T) {
		store := newStore(t)
		res, err := store.Search(t.Context(), "student-1", "fraction", 5)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("recall by keyword", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.AddSession(t.Context(), tutored("s1", "student-1")))

		res, err := store.Search(t.Context(), "student-1", "pizza slices", 5)
		require.NoError(t, err)
		require.NotEmpty(t, res)
		assert.Contains(t, res[0].Content, "pizza")
		assert.Equal(t, "s1", res[0].SessionID)
		assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	})

	t.Run("profile and style are recallable", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.AddSession(t.Context(), tutored("s1", "student-1")))

		res, err := store.Search(t.Context(), "student-1", "cbse board", 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Contains(t, res[0].Content, "CBSE Board, Grade 10, Mathematics")

		res, err = store.Search(t.Context(), "student-1", "explanation style", 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Contains(t, res[0].Content, "story")
	})

	t.Run("results are ordered and limited", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.AddSession(t.Context(), tutored("s1", "student-1")))

		res, err := store.Search(t.Context(), "student-1", "fraction", 2)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.GreaterOrEqual(t, res[0].Score, res[1].Score)
	})

	t.Run("re-adding replaces entries", func(t *testing.T) {
		store := newStore(t)
		sess := tutored("s1", "student-1")
		require.NoError(t, store.AddSession(t.Context(), sess))
		first, err := store.Search(t.Context(), "student-1", "", 100)
		require.NoError(t, err)

		require.NoError(t, store.AddSession(t.Context(), sess))
		second, err := store.Search(t.Context(), "student-1", "", 100)
		require.NoError(t, err)
		assert.Len(t, second, len(first))
	})

	t.Run("users are isolated", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.AddSession(t.Context(), tutored("s1", "student-1")))

		res, err := store.Search(t.Context(), "student-2", "fraction", 5)
		require.NoError(t, err)
		assert.Empty(t, res)
	})
}
