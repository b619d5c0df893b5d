// Package redis implements [chatbox.Storage] as a single Redis hash.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/fwojciec/chatbox"
	"github.com/go-redis/redis/v8"
)

// Interface compliance check.
var _ chatbox.Storage = (*Storage)(nil)

// Storage keeps every chatbox key as a field of one hash, so GetAll is a
// single HGETALL.
type Storage struct {
	client *redis.Client
	hash   string
}

// Option configures a Storage.
type Option func(*Storage)

// WithHash sets the name of the hash holding all keys.
func WithHash(name string) Option {
	return func(s *Storage) {
		s.hash = name
	}
}

// New wraps client and verifies the connection.
func New(ctx context.Context, client *redis.Client, opts ...Option) (*Storage, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	s := &Storage{client: client, hash: "chatbox"}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open connects to the server at addr.
func Open(ctx context.Context, addr, password string, db int, opts ...Option) (*Storage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	s, err := New(ctx, client, opts...)
	if err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying client.
func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.HGet(ctx, s.hash, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: key %q: %w", key, chatbox.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get: %w", err)
	}
	return value, nil
}

func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.HSet(ctx, s.hash, key, value).Err(); err != nil {
		return fmt.Errorf("redis: set: %w", err)
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.client.HDel(ctx, s.hash, key).Err(); err != nil {
		return fmt.Errorf("redis: delete: %w", err)
	}
	return nil
}

func (s *Storage) GetAll(ctx context.Context) (map[string][]byte, error) {
	fields, err := s.client.HGetAll(ctx, s.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get all: %w", err)
	}
	all := make(map[string][]byte, len(fields))
	for k, v := range fields {
		all[k] = []byte(v)
	}
	return all, nil
}
