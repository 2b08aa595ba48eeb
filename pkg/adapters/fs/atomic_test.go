package fs_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/todosync/pkg/adapters/fs"
)

func TestWriteFileAtomic(t *testing.T) {
	t.Run("Creates New File", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "todo.txt")

		require.NoError(t, fs.WriteFileAtomic(filename, []byte("a\n"), 0o644))

		got, err := os.ReadFile(filename)
		require.NoError(t, err)
		assert.Equal(t, "a\n", string(got))
	})

	t.Run("Replaces Existing File", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "todo.txt")
		require.NoError(t, os.WriteFile(filename, []byte("old\n"), 0o644))
		before, err := os.Stat(filename)
		require.NoError(t, err)

		require.NoError(t, fs.WriteFileAtomic(filename, []byte("new\n"), 0o644))

		after, err := os.Stat(filename)
		require.NoError(t, err)
		assert.False(t, os.SameFile(before, after), "file should be replaced, not rewritten")

		got, err := os.ReadFile(filename)
		require.NoError(t, err)
		assert.Equal(t, "new\n", string(got))
	})

	t.Run("Keeps Mode Of Existing File", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("unix permissions")
		}
		filename := filepath.Join(t.TempDir(), "secret.txt")
		require.NoError(t, os.WriteFile(filename, []byte("x"), 0o600))

		require.NoError(t, fs.WriteFileAtomic(filename, []byte("y"), 0o644))

		info, err := os.Stat(filename)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("Leaves No Temp Files", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, fs.WriteFileAtomic(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("Fails If Directory Missing", func(t *testing.T) {
		err := fs.WriteFileAtomic(filepath.Join(t.TempDir(), "missing", "a.txt"), []byte("a"), 0o644)
		assert.Error(t, err)
	})
}
