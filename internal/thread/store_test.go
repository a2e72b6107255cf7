package thread

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextstep-health/nextstep-voice/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeSuite(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, Entry{SessionID: "s1", Role: "user", Text: "I need food", Voice: true, CreatedAt: base}))
	require.NoError(t, store.Append(ctx, Entry{
		SessionID:      "s1",
		Role:           "assistant",
		Text:           "Try the Harbor food bank.",
		ResourcesFound: 2,
		Resources:      []backend.Resource{{Name: "Harbor Food Bank", Category: "food", Score: 0.9}},
		CreatedAt:      base.Add(time.Second),
	}))
	require.NoError(t, store.Append(ctx, Entry{SessionID: "s2", Role: "user", Text: "other session"}))

	got, err := store.List(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "I need food", got[0].Text)
	assert.True(t, got[0].Voice)
	assert.NotEmpty(t, got[0].ID)
	assert.True(t, got[0].CreatedAt.Equal(base))
	assert.Equal(t, 2, got[1].ResourcesFound)
	require.Len(t, got[1].Resources, 1)
	assert.Equal(t, "Harbor Food Bank", got[1].Resources[0].Name)

	last, err := store.List(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "assistant", last[0].Role)

	require.NoError(t, store.Clear(ctx, "s1"))
	got, err = store.List(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	other, err := store.List(ctx, "s2", 0)
	require.NoError(t, err)
	assert.Len(t, other, 1)

	assert.ErrorIs(t, store.Append(ctx, Entry{Role: "user", Text: "orphan"}), ErrSessionRequired)
}

func TestInMemoryStore(t *testing.T) {
	storeSuite(t, NewInMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "threads.db")
	store, err := NewStore(context.Background(), "sqlite://"+path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	storeSuite(t, store)
}

func TestNewStoreSelectsBackend(t *testing.T) {
	store, err := NewStore(context.Background(), "  ")
	require.NoError(t, err)
	assert.IsType(t, &InMemoryStore{}, store)

	store, err = NewStore(context.Background(), "file::memory:?cache=shared")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = NewStore(context.Background(), "mysql://user:secret@db/threads")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}
