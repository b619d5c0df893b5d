package mock

import (
	"context"

	"github.com/fwojciec/chatbox"
)

// Interface compliance check.
var _ chatbox.SettingsStore = (*SettingsStore)(nil)

// SettingsStore is a test double for chatbox.SettingsStore.
type SettingsStore struct {
	SettingsFn       func(ctx context.Context) (chatbox.Settings, error)
	UpdateSettingsFn func(ctx context.Context, patch func(*chatbox.Settings)) error
}

// Settings delegates to SettingsFn.
func (s *SettingsStore) Settings(ctx context.Context) (chatbox.Settings, error) {
	return s.SettingsFn(ctx)
}

// UpdateSettings delegates to UpdateSettingsFn.
func (s *SettingsStore) UpdateSettings(ctx context.Context, patch func(*chatbox.Settings)) error {
	return s.UpdateSettingsFn(ctx, patch)
}

// StaticSettings returns a SettingsStore that always reports s merged with
// the built-in defaults and ignores updates.
func StaticSettings(s chatbox.Settings) *SettingsStore {
	return &SettingsStore{
		SettingsFn: func(context.Context) (chatbox.Settings, error) {
			return s.WithDefaults(chatbox.DefaultSettings()), nil
		},
		UpdateSettingsFn: func(context.Context, func(*chatbox.Settings)) error {
			return nil
		},
	}
}
