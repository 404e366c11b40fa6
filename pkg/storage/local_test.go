package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "agents/alpha.state.json", []byte(`{"ok":true}`)))

	data, err := s.Read(ctx, "agents/alpha.state.json")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	exists, err := s.Exists(ctx, "agents/alpha.state.json")
	require.NoError(t, err)
	assert.True(t, exists)

	info, err := s.Stat(ctx, "agents/alpha.state.json")
	require.NoError(t, err)
	assert.Equal(t, int64(11), info.Size)
	assert.False(t, info.ModTime.IsZero())

	require.NoError(t, s.Delete(ctx, "agents/alpha.state.json"))
	_, err = s.Read(ctx, "agents/alpha.state.json")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStorageReadMissing(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.Read(ctx, "nope.json")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.Stat(ctx, "nope.json")
	assert.True(t, errors.Is(err, ErrNotFound))

	exists, err := s.Exists(ctx, "nope.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorageListSkipsTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "cp/a.json", []byte("a")))
	require.NoError(t, s.Write(ctx, "cp/b.json", []byte("b")))
	// Simulate an interrupted atomic write.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cp", "c.json.tmp"), []byte("c"), 0o644))

	paths, err := s.List(ctx, "cp")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cp/a.json", "cp/b.json"}, paths)
}

func TestLocalStorageOverwriteKeepsOldUntilRename(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "x.json", []byte("v1")))
	require.NoError(t, s.Write(ctx, "x.json", []byte("v2")))

	data, err := s.Read(ctx, "x.json")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}
