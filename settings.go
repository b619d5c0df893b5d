package chatbox

import (
	"context"
	"maps"
)

// ProviderSettings holds credentials and endpoint overrides for a provider.
type ProviderSettings struct {
	APIKey  string
	APIHost string
	Models  []string // optional custom model list shown alongside the catalog
}

// SessionSettings are the generation parameters of a session. They are
// copied by value into a session at creation.
type SessionSettings struct {
	Provider           ProviderID
	ModelID            string
	Temperature        *float64
	TopP               *float64
	MaxTokens          int
	SystemPrompt       string
	MaxContextMessages int // 0 = unlimited
	ThinkingBudget     int
}

// Settings is the global configuration tree.
type Settings struct {
	Providers      map[ProviderID]ProviderSettings
	ChatSession    SessionSettings
	PictureSession SessionSettings
}

// SettingsStore holds the global settings. Settings always returns values
// merged with DefaultSettings.
type SettingsStore interface {
	Settings(ctx context.Context) (Settings, error)
	UpdateSettings(ctx context.Context, patch func(*Settings)) error
}

// Built-in provider endpoints.
const (
	DefaultGeminiHost    = "https://generativelanguage.googleapis.com"
	DefaultOpenAIHost    = "https://api.openai.com"
	DefaultAnthropicHost = "https://api.anthropic.com"
	DefaultOllamaHost    = "http://localhost:11434"

	DefaultTemperature = 0.5
)

// DefaultSettings returns the built-in configuration. Each call returns a
// fresh value.
func DefaultSettings() Settings {
	temp := DefaultTemperature
	return Settings{
		Providers: map[ProviderID]ProviderSettings{
			ProviderGemini:    {APIHost: DefaultGeminiHost},
			ProviderOpenAI:    {APIHost: DefaultOpenAIHost},
			ProviderAnthropic: {APIHost: DefaultAnthropicHost},
			ProviderOllama:    {APIHost: DefaultOllamaHost},
		},
		ChatSession: SessionSettings{
			Provider:           ProviderGemini,
			ModelID:            "gemini-2.5-flash",
			Temperature:        &temp,
			SystemPrompt:       "You are a helpful assistant.",
			MaxContextMessages: 20,
		},
		PictureSession: SessionSettings{
			Provider: ProviderGemini,
			ModelID:  "gemini-2.0-flash-preview-image-generation",
		},
	}
}

// WithDefaults fills every zero-valued field of s from d. Nested structures
// are merged field by field, so a partial override never drops a default.
func (s ProviderSettings) WithDefaults(d ProviderSettings) ProviderSettings {
	s.APIKey = orDefault(s.APIKey, d.APIKey)
	s.APIHost = orDefault(s.APIHost, d.APIHost)
	if len(s.Models) == 0 && len(d.Models) > 0 {
		s.Models = append([]string(nil), d.Models...)
	}
	return s
}

// WithDefaults fills every zero-valued field of s from d.
func (s SessionSettings) WithDefaults(d SessionSettings) SessionSettings {
	s.Provider = orDefault(s.Provider, d.Provider)
	s.ModelID = orDefault(s.ModelID, d.ModelID)
	if s.Temperature == nil && d.Temperature != nil {
		v := *d.Temperature
		s.Temperature = &v
	}
	if s.TopP == nil && d.TopP != nil {
		v := *d.TopP
		s.TopP = &v
	}
	s.MaxTokens = orDefault(s.MaxTokens, d.MaxTokens)
	s.SystemPrompt = orDefault(s.SystemPrompt, d.SystemPrompt)
	s.MaxContextMessages = orDefault(s.MaxContextMessages, d.MaxContextMessages)
	s.ThinkingBudget = orDefault(s.ThinkingBudget, d.ThinkingBudget)
	return s
}

// WithDefaults merges s over d. Every default provider is deep-merged with
// the corresponding override; providers absent from d are preserved.
func (s Settings) WithDefaults(d Settings) Settings {
	providers := make(map[ProviderID]ProviderSettings, len(d.Providers)+len(s.Providers))
	maps.Copy(providers, s.Providers)
	for id, def := range d.Providers {
		providers[id] = providers[id].WithDefaults(def)
	}
	s.Providers = providers
	s.ChatSession = s.ChatSession.WithDefaults(d.ChatSession)
	s.PictureSession = s.PictureSession.WithDefaults(d.PictureSession)
	return s
}

// Provider returns the resolved settings for id.
func (s Settings) Provider(id ProviderID) ProviderSettings {
	return s.Providers[id]
}

// SessionDefaults returns the defaults for new sessions of type t.
func (s Settings) SessionDefaults(t SessionType) SessionSettings {
	if t == SessionTypePicture {
		return s.PictureSession.Clone()
	}
	return s.ChatSession.Clone()
}

// Clone returns a copy of s that shares no pointers.
func (s SessionSettings) Clone() SessionSettings {
	if s.Temperature != nil {
		v := *s.Temperature
		s.Temperature = &v
	}
	if s.TopP != nil {
		v := *s.TopP
		s.TopP = &v
	}
	return s
}

// Validate reports the first required field of provider id that resolves
// to an empty value.
func (s ProviderSettings) Validate(id ProviderID) error {
	if s.APIHost == "" {
		return &ConfigurationError{Provider: id, Field: "api_host"}
	}
	if requiresAPIKey(id) && s.APIKey == "" {
		return &ConfigurationError{Provider: id, Field: "api_key"}
	}
	return nil
}

// requiresAPIKey reports whether id is a hosted provider that rejects
// anonymous requests. Ollama and custom OpenAI-compatible hosts may run
// without authentication.
func requiresAPIKey(id ProviderID) bool {
	switch id {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
		return true
	}
	return false
}

func orDefault[T comparable](v, d T) T {
	var zero T
	if v == zero {
		return d
	}
	return v
}
