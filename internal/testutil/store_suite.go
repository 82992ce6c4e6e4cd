package testutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/edumesh/core"
)

// SessionStoreSuite runs the behaviour every core.SessionStore must provide.
// newStore is called once per subtest and must return an empty store.
func SessionStoreSuite(t *testing.T, newStore func(t *testing.T) core.SessionStore) {
	t.Run("get unknown", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(t.Context(), "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrSessionNotFound))
	})

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		created, err := store.Create(t.Context(), "s1", "student-1")
		require.NoError(t, err)
		assert.Equal(t, "s1", created.ID)

		got, err := store.Get(t.Context(), "s1")
		require.NoError(t, err)
		assert.Equal(t, "student-1", got.UserID)
		assert.Empty(t, got.StateSnapshot())
		assert.Empty(t, got.GetEvents())
	})

	t.Run("append events keeps order and part types", func(t *testing.T) {
		store := newStore(t)
		events := TutoringTurn("run-1", StudentTurn("CBSE", 10, "Mathematics", "What is a fraction?"), "A fraction is a part of a whole.")
		sess := NewSessionBuilder("s1").User("student-1").Events(events...).Store(t, store)

		got := sess.GetEvents()
		require.Len(t, got, 3)
		assert.Equal(t, events[0].ID, got[0].ID)
		assert.Equal(t, []string{StudentTurn("CBSE", 10, "Mathematics", "What is a fraction?")}, got[0].Texts())

		calls := got[1].GetFunctionCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, "retrieve_education_textbooks", calls[0].Name)

		responses := got[2].GetFunctionResponses()
		require.Len(t, responses, 1)
		resp, ok := responses[0].Response.(map[string]any)
		require.True(t, ok, "response is %T", responses[0].Response)
		assert.Contains(t, resp, "results")
	})

	t.Run("apply delta merges", func(t *testing.T) {
		store := newStore(t)
		NewSessionBuilder("s1").User("u").State("a", "1").Store(t, store)

		require.NoError(t, store.ApplyDelta(t.Context(), "s1", map[string]any{"b": true, "c": nil}))

		got, err := store.Get(t.Context(), "s1")
		require.NoError(t, err)
		state := got.StateSnapshot()
		assert.Equal(t, "1", state["a"])
		assert.Equal(t, true, state["b"])
		v, ok := state["c"]
		assert.True(t, ok)
		assert.Nil(t, v)
	})

	t.Run("writes to unknown session fail", func(t *testing.T) {
		store := newStore(t)
		err := store.AppendEvent(t.Context(), "missing", core.NewUserMessageEvent("r", "hi"))
		assert.True(t, errors.Is(err, core.ErrSessionNotFound))
		err = store.ApplyDelta(t.Context(), "missing", map[string]any{"k": "v"})
		assert.True(t, errors.Is(err, core.ErrSessionNotFound))
	})

	t.Run("returned sessions are isolated", func(t *testing.T) {
		store := newStore(t)
		NewSessionBuilder("s1").User("u").Store(t, store)

		got, err := store.Get(t.Context(), "s1")
		require.NoError(t, err)
		got.SetState("local", "only")

		again, err := store.Get(t.Context(), "s1")
		require.NoError(t, err)
		_, ok := again.GetState("local")
		assert.False(t, ok)
	})
}
