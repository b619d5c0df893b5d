package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fwojciec/chatbox"
	"github.com/fwojciec/chatbox/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStorage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, cfg := range []config.Storage{
		{Backend: config.BackendFS, Dir: filepath.Join(dir, "data")},
		{Backend: config.BackendSQLite, SQLitePath: filepath.Join(dir, "chatbox.db")},
	} {
		t.Run(cfg.Backend, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s, closeFn, err := openStorage(ctx, cfg)
			require.NoError(t, err)
			defer closeFn()

			require.NoError(t, s.Set(ctx, chatbox.KeySettings, []byte(`{}`)))
			got, err := s.Get(ctx, chatbox.KeySettings)
			require.NoError(t, err)
			assert.Equal(t, []byte(`{}`), got)
		})
	}
}

func TestOpenStorage_UnknownBackend(t *testing.T) {
	t.Parallel()
	_, _, err := openStorage(context.Background(), config.Storage{Backend: "s3"})
	assert.ErrorIs(t, err, chatbox.ErrValidation)
}
