package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fwojciec/chatbox"
	"github.com/fwojciec/chatbox/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStorage(t *testing.T) *fs.Storage {
	t.Helper()
	s, err := fs.New(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	return s
}

func TestStorage_SetGet(t *testing.T) {
	t.Parallel()
	s := newStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "session:abc", []byte(`{"id":"abc"}`)))
	got, err := s.Get(ctx, "session:abc")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"abc"}`, string(got))

	require.NoError(t, s.Set(ctx, "session:abc", []byte("v2")))
	got, err = s.Get(ctx, "session:abc")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestStorage_GetMissing(t *testing.T) {
	t.Parallel()
	s := newStorage(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, chatbox.ErrNotFound)
}

func TestStorage_Delete(t *testing.T) {
	t.Parallel()
	s := newStorage(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, chatbox.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "k"))
}

func TestStorage_GetAll(t *testing.T) {
	t.Parallel()
	s := newStorage(t)
	ctx := context.Background()
	want := map[string][]byte{
		chatbox.KeySettings:     []byte("settings"),
		chatbox.KeySessionsList: []byte("list"),
		"session:a/b*c":         []byte("odd key"),
		"picture:日本":            []byte("unicode"),
	}
	for k, v := range want {
		require.NoError(t, s.Set(ctx, k, v))
	}
	// Stray files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "bad%zz.kv"), []byte("x"), 0o600))

	got, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStorage_KeysStayInDirectory(t *testing.T) {
	t.Parallel()
	s := newStorage(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "../escape", []byte("v")))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	_, err = os.Stat(filepath.Join(filepath.Dir(s.Dir()), "escape.kv"))
	assert.True(t, os.IsNotExist(err))
}

func TestStorage_ConcurrentSet(t *testing.T) {
	t.Parallel()
	s := newStorage(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Set(ctx, "shared", []byte("value")))
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "value", string(got))
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestStorage_CancelledContext(t *testing.T) {
	t.Parallel()
	s := newStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Set(ctx, "k", []byte("v")), context.Canceled)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
