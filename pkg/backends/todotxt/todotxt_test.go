package todotxt_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/todosync/pkg/adapters/fs"
	"github.com/aretw0/todosync/pkg/backends/todotxt"
	"github.com/aretw0/todosync/pkg/core"
	format "github.com/aretw0/todosync/pkg/todotxt"
)

func setup(t *testing.T, content string, includeDone bool) (*todotxt.Backend, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "other.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	b, err := todotxt.New(todotxt.Options{Filename: path, IncludeDone: includeDone}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestNew(t *testing.T) {
	_, err := todotxt.New(todotxt.Options{}, nil)
	assert.Error(t, err)

	_, err = todotxt.New(todotxt.Options{Filename: filepath.Join(t.TempDir(), "missing.txt")}, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBackend_AssignsStableIDs(t *testing.T) {
	b, path := setup(t, "first\nsecond external-id:keep\n", false)

	tasks, err := b.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.NotEmpty(t, tasks[0].ExternalID())
	assert.Equal(t, "keep", tasks[1].ExternalID())

	// Ids are persisted.
	assert.Contains(t, readFile(t, path), "first external-id:"+tasks[0].ExternalID())
}

func TestBackend_HidesCompleted(t *testing.T) {
	content := "open external-id:1\nx finished external-id:2\n"

	b, _ := setup(t, content, false)
	tasks, err := b.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "open", tasks[0].Title)

	_, err = b.FetchOne(context.Background(), "2")
	assert.ErrorIs(t, err, core.ErrNotFound)

	all, _ := setup(t, content, true)
	tasks, err = all.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestBackend_CreateStripsSource(t *testing.T) {
	b, path := setup(t, "", false)
	ctx := context.Background()

	task := core.Task{Title: "new task"}.WithMeta(core.MetaSource, "other")
	require.NoError(t, b.Create(ctx, task))
	require.NoError(t, b.Create(ctx, task), "duplicate title is skipped")

	tasks, err := b.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.NotEmpty(t, tasks[0].ExternalID())

	content := readFile(t, path)
	assert.NotContains(t, content, core.MetaSource)
	assert.Equal(t, 1, strings.Count(content, "new task"))
}

func TestBackend_UpdateAndDelete(t *testing.T) {
	b, path := setup(t, "a external-id:1\nb external-id:2\n", false)
	ctx := context.Background()

	edited := core.Task{Title: "a edited", Done: true}.WithMeta(core.MetaSource, "other")
	require.NoError(t, b.Update(ctx, "1", edited))
	assert.Equal(t, "x a edited external-id:1\nb external-id:2\n", readFile(t, path))

	require.NoError(t, b.Delete(ctx, "2"))
	assert.Equal(t, "x a edited external-id:1\n", readFile(t, path))

	assert.ErrorIs(t, b.Delete(ctx, "2"), core.ErrNotFound)
}

func TestBackend_ReloadsExternalEdits(t *testing.T) {
	b, path := setup(t, "a external-id:1\n", false)
	ctx := context.Background()

	require.NoError(t, fs.WriteFileAtomic(path, []byte("a external-id:1\nadded by hand\n"), 0o644))

	require.Eventually(t, func() bool {
		tasks, err := b.FetchAll(ctx)
		return err == nil && len(tasks) == 2
	}, 2*time.Second, 10*time.Millisecond)

	got, err := b.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "added by hand", got[1].Title)
	assert.NotEmpty(t, got[1].ExternalID())
}

func TestBackend_FailedSaveKeepsMemory(t *testing.T) {
	b, path := setup(t, "a external-id:1\n", false)
	ctx := context.Background()

	other, err := fs.Open(path, format.New())
	require.NoError(t, err)
	defer other.Close()
	release, err := other.Lock()
	require.NoError(t, err)

	assert.ErrorIs(t, b.Create(ctx, core.Task{Title: "blocked"}), core.ErrLocked)
	assert.ErrorIs(t, b.Update(ctx, "1", core.Task{Title: "a edited"}), core.ErrLocked)
	assert.ErrorIs(t, b.Delete(ctx, "1"), core.ErrLocked)

	tasks, err := b.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, taskTitles(tasks))
	assert.Equal(t, "a external-id:1\n", readFile(t, path))

	release()
	require.NoError(t, b.Create(ctx, core.Task{Title: "blocked"}))
	tasks, err = b.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "blocked"}, taskTitles(tasks))
}

func taskTitles(tasks []core.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Title)
	}
	return out
}
