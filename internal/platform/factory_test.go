package platform

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/todosync/pkg/core"
)

func TestParseBackendType(t *testing.T) {
	tests := []struct {
		in      string
		want    BackendType
		wantErr bool
	}{
		{in: "todotxt", want: TypeTodoTxt},
		{in: "TodoTxtSource", want: TypeTodoTxt},
		{in: "KololaSource", want: TypeIntx},
		{in: "intx", want: TypeIntx},
		{in: " Manifest ", want: TypeManifest},
		{in: "sqlite", want: TypeSQLite},
		{in: "postgres", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseBackendType(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, core.ErrUnknownBackend, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestBackendTypes(t *testing.T) {
	assert.Equal(t, []BackendType{TypeIntx, TypeManifest, TypeSQLite, TypeTodoTxt}, BackendTypes())
}

func TestNewBackend(t *testing.T) {
	dir := t.TempDir()
	logger := slog.Default()

	todo := filepath.Join(dir, "home.txt")
	require.NoError(t, os.WriteFile(todo, nil, 0o644))

	b, err := NewBackend(SourceConfig{ID: "home", Type: "todotxt", Options: map[string]any{
		"filename":     todo,
		"include_done": "true",
	}}, logger)
	require.NoError(t, err)
	assert.True(t, b.SupportsCreate())
	if c, ok := b.(interface{ Close() error }); ok {
		c.Close()
	}

	b, err = NewBackend(SourceConfig{ID: "events", Type: "KololaSource", Options: map[string]any{
		"domain":     "example.org",
		"query":      "q",
		"key":        "secret",
		"status_uri": "http://example.org/status",
		"refresh":    "5m",
	}}, logger)
	require.NoError(t, err)
	assert.False(t, b.SupportsCreate())

	_, err = NewBackend(SourceConfig{ID: "m", Type: "manifest", Options: map[string]any{
		"filename": filepath.Join(dir, "tasks.yaml"),
	}}, logger)
	require.NoError(t, err)
}

func TestNewBackend_Errors(t *testing.T) {
	logger := slog.Default()

	_, err := NewBackend(SourceConfig{ID: "x", Type: "nope"}, logger)
	assert.ErrorIs(t, err, core.ErrUnknownBackend)

	_, err = NewBackend(SourceConfig{ID: "m", Type: "manifest", Options: map[string]any{
		"filename": filepath.Join(t.TempDir(), "tasks.yaml"),
		"filenme":  "typo",
	}}, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filenme")

	_, err = NewBackend(SourceConfig{ID: "k", Type: "intx", Options: map[string]any{"domain": "example.org"}}, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source k")
}
