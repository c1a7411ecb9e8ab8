package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreSave(t *testing.T) {
	t.Parallel()

	t.Run("writes the artifact and returns its URL", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewFileStore(dir, "https://media.example.com/")
		require.NoError(t, err)

		url, err := store.Save(context.Background(), "task-1", "out.png", strings.NewReader("png-bytes"))
		require.NoError(t, err)
		assert.Equal(t, "https://media.example.com/task-1/out.png", url)

		data, err := os.ReadFile(filepath.Join(dir, "task-1", "out.png"))
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(data))
	})

	t.Run("artifact names cannot escape the task directory", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewFileStore(dir, "https://media.example.com")
		require.NoError(t, err)

		url, err := store.Save(context.Background(), "task-1", "../../evil.png", strings.NewReader("x"))
		require.NoError(t, err)
		assert.Equal(t, "https://media.example.com/task-1/evil.png", url)

		_, err = os.Stat(filepath.Join(dir, "task-1", "evil.png"))
		assert.NoError(t, err)
		_, err = os.Stat(filepath.Join(filepath.Dir(dir), "evil.png"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("cancelled context aborts the write", func(t *testing.T) {
		store, err := NewFileStore(t.TempDir(), "https://media.example.com")
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = store.Save(ctx, "task-1", "out.png", strings.NewReader("x"))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("base directory is created on construction", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "media")
		_, err := NewFileStore(dir, "https://media.example.com")
		require.NoError(t, err)

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
}

func TestMemoryStoreSave(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()

	url, err := store.Save(context.Background(), "task-1", "out.png", strings.NewReader("bytes"))
	require.NoError(t, err)
	assert.Equal(t, "memory://task-1/out.png", url)
	assert.Equal(t, 1, store.Len())

	data, ok := store.Get("task-1", "out.png")
	require.True(t, ok)
	assert.Equal(t, "bytes", string(data))

	_, ok = store.Get("task-1", "missing.png")
	assert.False(t, ok)
}
