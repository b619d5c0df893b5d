package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/fwojciec/chatbox"
	"github.com/fwojciec/chatbox/postgres"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openStorage connects to DATABASE_URL in a fresh namespace.
func openStorage(t *testing.T) *postgres.Storage {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	s, err := postgres.Open(context.Background(), url, postgres.WithNamespace("test-"+uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() {
		all, err := s.GetAll(context.Background())
		if err == nil {
			for k := range all {
				_ = s.Delete(context.Background(), k)
			}
		}
		s.Close()
	})
	return s
}

func TestOpen_InvalidURL(t *testing.T) {
	t.Parallel()
	_, err := postgres.Open(context.Background(), "postgres://%zz")
	assert.ErrorContains(t, err, "parse database config")
}

func TestStorage_SetGetDelete(t *testing.T) {
	t.Parallel()
	s := openStorage(t)
	ctx := context.Background()

	_, err := s.Get(ctx, chatbox.KeySettings)
	require.ErrorIs(t, err, chatbox.ErrNotFound)

	require.NoError(t, s.Set(ctx, chatbox.KeySettings, []byte("one")))
	require.NoError(t, s.Set(ctx, chatbox.KeySettings, []byte("two")))
	got, err := s.Get(ctx, chatbox.KeySettings)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	require.NoError(t, s.Delete(ctx, chatbox.KeySettings))
	require.NoError(t, s.Delete(ctx, chatbox.KeySettings))
	_, err = s.Get(ctx, chatbox.KeySettings)
	assert.ErrorIs(t, err, chatbox.ErrNotFound)
}

func TestStorage_GetAllIsNamespaced(t *testing.T) {
	t.Parallel()
	a := openStorage(t)
	b := openStorage(t)
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, chatbox.SessionKey("1"), []byte("a")))
	require.NoError(t, b.Set(ctx, chatbox.SessionKey("1"), []byte("b")))

	all, err := a.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{chatbox.SessionKey("1"): []byte("a")}, all)
}
