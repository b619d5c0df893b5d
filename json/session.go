package json

import (
	"time"

	"github.com/fwojciec/chatbox"
)

// sessionEnvelope is the v1 wire format for a persisted session.
type sessionEnvelope struct {
	Version   int                `json:"version"`
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Type      string             `json:"type"`
	Settings  sessionSettingsDTO `json:"settings"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Threads   []threadDTO        `json:"threads"`
	Messages  []messageDTO       `json:"messages"`
}

type threadDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type listEnvelope struct {
	Version  int       `json:"version"`
	Sessions []metaDTO `json:"sessions"`
}

type metaDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	UpdatedAt time.Time `json:"updated_at"`
}

type sessionSettingsDTO struct {
	Provider           string   `json:"provider,omitempty"`
	ModelID            string   `json:"model_id,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	TopP               *float64 `json:"top_p,omitempty"`
	MaxTokens          int      `json:"max_tokens,omitempty"`
	SystemPrompt       string   `json:"system_prompt,omitempty"`
	MaxContextMessages int      `json:"max_context_messages,omitempty"`
	ThinkingBudget     int      `json:"thinking_budget,omitempty"`
}

func marshalSessionSettings(s chatbox.SessionSettings) sessionSettingsDTO {
	s = s.Clone()
	return sessionSettingsDTO{
		Provider:           string(s.Provider),
		ModelID:            s.ModelID,
		Temperature:        s.Temperature,
		TopP:               s.TopP,
		MaxTokens:          s.MaxTokens,
		SystemPrompt:       s.SystemPrompt,
		MaxContextMessages: s.MaxContextMessages,
		ThinkingBudget:     s.ThinkingBudget,
	}
}

func unmarshalSessionSettings(dto sessionSettingsDTO) chatbox.SessionSettings {
	return chatbox.SessionSettings{
		Provider:           chatbox.ProviderID(dto.Provider),
		ModelID:            dto.ModelID,
		Temperature:        dto.Temperature,
		TopP:               dto.TopP,
		MaxTokens:          dto.MaxTokens,
		SystemPrompt:       dto.SystemPrompt,
		MaxContextMessages: dto.MaxContextMessages,
		ThinkingBudget:     dto.ThinkingBudget,
	}
}
