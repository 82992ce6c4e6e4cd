package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/internal/testutil"
)

var _ core.SessionStore = (*InMemoryStore)(nil)

func TestInMemoryStore(t *testing.T) {
	testutil.SessionStoreSuite(t, func(*testing.T) core.SessionStore { return NewInMemoryStore() })
}

func TestInMemoryStore_ListAndDelete(t *testing.T) {
	store := NewInMemoryStore()
	ctx := t.Context()

	for _, id := range []string{"b", "a"} {
		_, err := store.Create(ctx, id, "student-1")
		require.NoError(t, err)
	}
	_, err := store.Create(ctx, "c", "student-2")
	require.NoError(t, err)

	ids, err := store.List(ctx, "student-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestInMemoryStore_CreateRequiresID(t *testing.T) {
	_, err := NewInMemoryStore().Create(t.Context(), "", "u")
	assert.Error(t, err)
}
