package main

import (
	"context"
	"fmt"

	"github.com/fwojciec/chatbox"
	"github.com/fwojciec/chatbox/config"
	"github.com/fwojciec/chatbox/firestore"
	"github.com/fwojciec/chatbox/fs"
	"github.com/fwojciec/chatbox/postgres"
	"github.com/fwojciec/chatbox/redis"
	"github.com/fwojciec/chatbox/sqlite"
	"google.golang.org/api/option"
)

// openStorage connects the configured backend. The returned function
// releases it.
func openStorage(ctx context.Context, cfg config.Storage) (chatbox.Storage, func(), error) {
	switch cfg.Backend {
	case config.BackendFS:
		s, err := fs.New(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil

	case config.BackendSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil

	case config.BackendPostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil

	case config.BackendRedis:
		s, err := redis.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil

	case config.BackendFirestore:
		var opts []option.ClientOption
		if cfg.FirestoreCredentials != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.FirestoreCredentials))
		}
		s, err := firestore.Open(ctx, cfg.FirestoreProject, cfg.FirestoreUser, opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	return nil, nil, fmt.Errorf("storage %q: %w", cfg.Backend, chatbox.ErrValidation)
}
