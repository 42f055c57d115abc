package kv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/virasat/internal/model"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ss, err := NewSQLStore(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = fs.Close()
		_ = ss.Close()
	})
	return map[string]Store{"file": fs, "sqlite": ss}
}

func TestStore_GetAbsent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			v, found, err := s.Get(context.Background(), "discoveries")
			require.NoError(t, err)
			assert.False(t, found)
			assert.Nil(t, v)
		})
	}
}

func TestStore_SetGetOverwrite(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "discoveries", []byte(`[]`)))
			require.NoError(t, s.Set(ctx, "discoveries", []byte(`[{"id":1}]`)))

			v, found, err := s.Get(ctx, "discoveries")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, `[{"id":1}]`, string(v))
		})
	}
}

func TestFileStore_Persists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "discoveries", []byte(`[1]`)))

	s2, err := NewFileStore(dir)
	require.NoError(t, err)
	v, found, err := s2.Get(ctx, "discoveries")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[1]`, string(v))
}

func TestFileStore_UnsafeKeys(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	assert.NotEqual(t, s.path("a/b"), s.path("a_b"))
	assert.Equal(t, filepath.Dir(s.path("../../etc/passwd")), s.dir)
}

func TestFileStore_CancelledContext(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.Set(ctx, "k", []byte("v")))
}

func TestOpen(t *testing.T) {
	s, err := Open(model.StorageConfig{Backend: "file", Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(model.StorageConfig{Backend: "sqlite", Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(model.StorageConfig{Backend: "redis"})
	assert.Error(t, err)
}
