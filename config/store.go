package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fwojciec/chatbox"
	"github.com/fwojciec/chatbox/json"
)

// Interface compliance check.
var _ chatbox.SettingsStore = (*Store)(nil)

// Store keeps the user's settings overrides in a chatbox.Storage under
// chatbox.KeySettings. Only overrides are written; defaults are merged in
// on every read so new built-in defaults reach existing users.
type Store struct {
	mu       sync.Mutex
	storage  chatbox.Storage
	defaults chatbox.Settings
	logger   *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithDefaults sets the layer beneath stored overrides. It is itself merged
// with chatbox.DefaultSettings.
func WithDefaults(d chatbox.Settings) StoreOption {
	return func(s *Store) {
		s.defaults = d.WithDefaults(chatbox.DefaultSettings())
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore returns a Store backed by storage.
func NewStore(storage chatbox.Storage, opts ...StoreOption) *Store {
	s := &Store{
		storage:  storage,
		defaults: chatbox.DefaultSettings(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settings returns the stored overrides merged with the defaults.
func (s *Store) Settings(ctx context.Context) (chatbox.Settings, error) {
	stored, err := s.load(ctx)
	if err != nil {
		return chatbox.Settings{}, err
	}
	return stored.WithDefaults(s.defaults), nil
}

// UpdateSettings applies patch to the stored overrides and writes them back.
// patch sees only what has been saved, not the merged view.
func (s *Store) UpdateSettings(ctx context.Context, patch func(*chatbox.Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load(ctx)
	if err != nil {
		return err
	}
	patch(&stored)
	data, err := json.MarshalSettings(stored)
	if err != nil {
		return fmt.Errorf("config: encode settings: %w", err)
	}
	if err := s.storage.Set(ctx, chatbox.KeySettings, data); err != nil {
		return fmt.Errorf("config: save settings: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context) (chatbox.Settings, error) {
	data, err := s.storage.Get(ctx, chatbox.KeySettings)
	if errors.Is(err, chatbox.ErrNotFound) {
		return chatbox.Settings{}, nil
	}
	if err != nil {
		return chatbox.Settings{}, fmt.Errorf("config: load settings: %w", err)
	}
	stored, err := json.UnmarshalSettings(data)
	if err != nil {
		// An unreadable document is replaced on the next update.
		s.logger.WarnContext(ctx, "ignoring unreadable settings", "error", err)
		return chatbox.Settings{}, nil
	}
	return stored, nil
}
