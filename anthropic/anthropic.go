// Package anthropic implements [chatbox.Provider] for the Anthropic Messages API.
//
// It connects to the Anthropic Messages API via SSE and emits semantic events
// through the pull-based [chatbox.Stream] interface. The SSE parser drives one
// step at a time using a state-machine approach inspired by Rob Pike's lexer
// talk.
package anthropic

import (
	"strings"

	"github.com/fwojciec/chatbox"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 8192
	apiVersion       = "2023-06-01"
	filesBeta        = "files-api-2025-04-14"
	messagesPath     = "/v1/messages"
	modelsPath       = "/v1/models"
	filesPath        = "/v1/files"
)

// ModelCapabilities reports the static capabilities of a Claude model.
func ModelCapabilities(model string) chatbox.Capabilities {
	return chatbox.Capabilities{
		SystemMessage: true,
		Reasoning:     supportsThinking(model),
		Vision:        true,
	}
}

// supportsThinking reports models that accept extended thinking.
func supportsThinking(model string) bool {
	for _, p := range []string{"claude-3-7", "claude-sonnet-4", "claude-opus-4", "claude-haiku-4"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// apiCacheControl specifies a cache breakpoint for prompt caching.
type apiCacheControl struct {
	Type string `json:"type"` // always "ephemeral"
}

// apiRequest is the JSON body sent to the Anthropic Messages API.
type apiRequest struct {
	Model        string            `json:"model"`
	MaxTokens    int               `json:"max_tokens"`
	Stream       bool              `json:"stream"`
	System       []apiContentBlock `json:"system,omitempty"`
	Messages     []apiMessage      `json:"messages"`
	Temperature  *float64          `json:"temperature,omitempty"`
	TopP         *float64          `json:"top_p,omitempty"`
	Thinking     *apiThinking      `json:"thinking,omitempty"`
	CacheControl *apiCacheControl  `json:"cache_control,omitempty"`
}

type apiThinking struct {
	Type         string `json:"type"` // "enabled"
	BudgetTokens int    `json:"budget_tokens"`
}

type apiMessage struct {
	Role    string            `json:"role"`
	Content []apiContentBlock `json:"content"`
}

// apiContentBlock represents a content block in the API request.
// Different fields are populated depending on Type.
type apiContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// image, document
	Source *apiSource `json:"source,omitempty"`
	Title  string     `json:"title,omitempty"`

	// cache control
	CacheControl *apiCacheControl `json:"cache_control,omitempty"`
}

// apiSource is either inline base64 data or a reference to an uploaded file.
type apiSource struct {
	Type      string `json:"type"` // "base64" or "file"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	FileID    string `json:"file_id,omitempty"`
}

// SSE response types.

type sseMessageStart struct {
	Type    string            `json:"type"`
	Message sseMessagePayload `json:"message"`
}

type sseMessagePayload struct {
	ID    string   `json:"id"`
	Model string   `json:"model"`
	Usage sseUsage `json:"usage"`
}

// sseUsage is used in message_start events.
// Cache fields are nullable per the Anthropic API schema.
type sseUsage struct {
	InputTokens          int  `json:"input_tokens"`
	OutputTokens         int  `json:"output_tokens"`
	CacheReadInputTokens *int `json:"cache_read_input_tokens"`
}

type sseContentBlockStart struct {
	Type         string          `json:"type"`
	Index        int             `json:"index"`
	ContentBlock sseContentBlock `json:"content_block"`
}

type sseContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

type sseContentBlockDelta struct {
	Type  string   `json:"type"`
	Index int      `json:"index"`
	Delta sseDelta `json:"delta"`
}

type sseDelta struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
}

type sseMessageDelta struct {
	Type  string             `json:"type"`
	Delta sseMessageDeltaVal `json:"delta"`
	Usage sseDeltaUsage      `json:"usage"`
}

// sseDeltaUsage is used in message_delta events.
type sseDeltaUsage struct {
	OutputTokens int `json:"output_tokens"`
}

type sseMessageDeltaVal struct {
	StopReason *string `json:"stop_reason"`
}

type sseError struct {
	Type  string         `json:"type"`
	Error sseErrorDetail `json:"error"`
}

type sseErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// apiErrorResponse is the JSON body returned on non-200 HTTP responses.
type apiErrorResponse struct {
	Type  string         `json:"type"`
	Error sseErrorDetail `json:"error"`
}

type apiModelList struct {
	Data *[]struct {
		ID string `json:"id"`
	} `json:"data"`
}

type apiFileObject struct {
	ID string `json:"id"`
}
