// Package postgres implements [chatbox.Storage] on a PostgreSQL table,
// for deployments that share one settings and session store.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/fwojciec/chatbox"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTable = `
CREATE TABLE IF NOT EXISTS chatbox_kv (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, key)
)`

// Interface compliance check.
var _ chatbox.Storage = (*Storage)(nil)

// Storage keeps every key of one namespace in the chatbox_kv table.
type Storage struct {
	pool      *pgxpool.Pool
	namespace string
}

// Option configures a Storage.
type Option func(*Storage)

// WithNamespace scopes all keys, letting several users share a database.
func WithNamespace(ns string) Option {
	return func(s *Storage) {
		s.namespace = ns
	}
}

// Open connects to databaseURL and creates the table if needed.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*Storage, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database config: %w", err)
	}
	config.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("postgres: create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create table: %w", err)
	}

	s := &Storage{pool: pool, namespace: "default"}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

// Get returns the value stored under key.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		"SELECT value FROM chatbox_kv WHERE namespace = $1 AND key = $2",
		s.namespace, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: key %q: %w", key, chatbox.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get: %w", err)
	}
	return value, nil
}

// Set inserts or replaces the value stored under key.
func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO chatbox_kv (namespace, key, value) VALUES ($1, $2, $3)
ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		s.namespace, key, value,
	)
	if err != nil {
		return fmt.Errorf("postgres: set: %w", err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx,
		"DELETE FROM chatbox_kv WHERE namespace = $1 AND key = $2",
		s.namespace, key,
	)
	if err != nil {
		return fmt.Errorf("postgres: delete: %w", err)
	}
	return nil
}

// GetAll returns every pair in the namespace.
func (s *Storage) GetAll(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT key, value FROM chatbox_kv WHERE namespace = $1", s.namespace)
	if err != nil {
		return nil, fmt.Errorf("postgres: get all: %w", err)
	}
	defer rows.Close()

	all := make(map[string][]byte)
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		all[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get all: %w", err)
	}
	return all, nil
}
