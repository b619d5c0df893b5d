// Package sqlite implements [chatbox.Storage] on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fwojciec/chatbox"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

const createTable = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Interface compliance check.
var _ chatbox.Storage = (*Storage)(nil)

// Storage stores key/value pairs in a single table.
type Storage struct {
	db *sqlx.DB
}

type row struct {
	Key   string `db:"key"`
	Value []byte `db:"value"`
}

// Open connects to the database file at path (":memory:" for a private
// in-memory database) and creates the table if needed.
func Open(ctx context.Context, path string) (*Storage, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: connect: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from being per-connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create table: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, "SELECT value FROM kv WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: key %q: %w", key, chatbox.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get: %w", err)
	}
	return value, nil
}

// Set inserts or replaces the value stored under key.
func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	const upsert = `
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, upsert, key, value); err != nil {
		return fmt.Errorf("sqlite: set: %w", err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("sqlite: delete: %w", err)
	}
	return nil
}

// GetAll returns every stored pair.
func (s *Storage) GetAll(ctx context.Context) (map[string][]byte, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, "SELECT key, value FROM kv"); err != nil {
		return nil, fmt.Errorf("sqlite: get all: %w", err)
	}
	all := make(map[string][]byte, len(rows))
	for _, r := range rows {
		all[r.Key] = r.Value
	}
	return all, nil
}
