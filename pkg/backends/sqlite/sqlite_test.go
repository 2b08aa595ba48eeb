package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/todosync/pkg/backends/sqlite"
	"github.com/aretw0/todosync/pkg/core"
)

func openBackend(t *testing.T) (*sqlite.Backend, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.db")
	b, err := sqlite.New(sqlite.Options{Path: path}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b, path
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := sqlite.New(sqlite.Options{}, nil)
	assert.Error(t, err)
}

func TestBackend_CreateFetch(t *testing.T) {
	b, _ := openBackend(t)
	ctx := context.Background()

	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, b.Create(ctx, core.Task{
		Title:    "Call plumber",
		Priority: "A",
		Created:  created,
		Contexts: []string{"phone"},
		Projects: []string{"house"},
		Metadata: core.Metadata{core.MetaSource: "db", "due": "2024-03-05"},
	}))
	require.NoError(t, b.Create(ctx, core.Task{Title: "Second"}))

	tasks, err := b.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	first := tasks[0]
	assert.Equal(t, "Call plumber", first.Title)
	assert.Equal(t, "A", first.Priority)
	assert.Equal(t, created, first.Created)
	assert.Equal(t, []string{"phone"}, first.Contexts)
	assert.Equal(t, []string{"house"}, first.Projects)
	assert.Equal(t, "2024-03-05", first.Metadata["due"])
	assert.False(t, first.HasMeta(core.MetaSource))
	assert.NotEmpty(t, first.ExternalID())

	assert.Equal(t, "Second", tasks[1].Title)
	assert.Nil(t, tasks[1].Contexts)
}

func TestBackend_UpdateDelete(t *testing.T) {
	b, _ := openBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Create(ctx, core.Task{Title: "Water plants"}))
	tasks, err := b.FetchAll(ctx)
	require.NoError(t, err)
	id := tasks[0].ExternalID()

	done := tasks[0]
	done.Done = true
	done.Completed = time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, b.Update(ctx, id, done))

	got, err := b.FetchOne(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Done)
	assert.Equal(t, done.Completed, got.Completed)

	assert.ErrorIs(t, b.Update(ctx, "nope", done), core.ErrNotFound)

	require.NoError(t, b.Delete(ctx, id))
	_, err = b.FetchOne(ctx, id)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, b.Delete(ctx, id), core.ErrNotFound)
}

func TestBackend_Persists(t *testing.T) {
	b, path := openBackend(t)
	require.NoError(t, b.Create(context.Background(), core.Task{Title: "Keep me"}))
	require.NoError(t, b.Close())

	reopened, err := sqlite.New(sqlite.Options{Path: path}, nil)
	require.NoError(t, err)
	defer reopened.Close()

	tasks, err := reopened.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Keep me", tasks[0].Title)
}
