package json

import (
	"encoding/json"
	"fmt"

	"github.com/fwojciec/chatbox"
)

// settingsEnvelope is the v1 wire format for global settings. Zero fields
// are omitted so a stored document only holds what the user changed.
type settingsEnvelope struct {
	Version        int                            `json:"version"`
	Providers      map[string]providerSettingsDTO `json:"providers,omitempty"`
	ChatSession    sessionSettingsDTO             `json:"chat_session"`
	PictureSession sessionSettingsDTO             `json:"picture_session"`
}

type providerSettingsDTO struct {
	APIKey  string   `json:"api_key,omitempty"`
	APIHost string   `json:"api_host,omitempty"`
	Models  []string `json:"models,omitempty"`
}

// MarshalSettings serializes global settings.
func MarshalSettings(s chatbox.Settings) ([]byte, error) {
	env := settingsEnvelope{
		Version:        version,
		ChatSession:    marshalSessionSettings(s.ChatSession),
		PictureSession: marshalSessionSettings(s.PictureSession),
	}
	if len(s.Providers) > 0 {
		env.Providers = make(map[string]providerSettingsDTO, len(s.Providers))
		for id, p := range s.Providers {
			env.Providers[string(id)] = providerSettingsDTO{APIKey: p.APIKey, APIHost: p.APIHost, Models: p.Models}
		}
	}
	return json.Marshal(env)
}

// UnmarshalSettings deserializes global settings. The result is not merged
// with defaults.
func UnmarshalSettings(data []byte) (chatbox.Settings, error) {
	var env settingsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return chatbox.Settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	if env.Version != version {
		return chatbox.Settings{}, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	s := chatbox.Settings{
		ChatSession:    unmarshalSessionSettings(env.ChatSession),
		PictureSession: unmarshalSessionSettings(env.PictureSession),
	}
	if len(env.Providers) > 0 {
		s.Providers = make(map[chatbox.ProviderID]chatbox.ProviderSettings, len(env.Providers))
		for id, p := range env.Providers {
			s.Providers[chatbox.ProviderID(id)] = chatbox.ProviderSettings{APIKey: p.APIKey, APIHost: p.APIHost, Models: p.Models}
		}
	}
	return s, nil
}
