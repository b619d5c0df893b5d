// Package openai implements [chatbox.Provider] for OpenAI-compatible chat
// completion APIs.
//
// The same client serves OpenAI, Ollama and any host that speaks the
// /v1/chat/completions protocol; the provider ID is configurable. Streaming
// responses are server-sent events terminated by a [DONE] sentinel.
package openai

import (
	"encoding/json"
	"strings"

	"github.com/fwojciec/chatbox"
)

const (
	defaultModel       = "gpt-4o-mini"
	chatCompletionPath = "/v1/chat/completions"
	modelsPath         = "/v1/models"
	filesPath          = "/v1/files"
	doneSentinel       = "[DONE]"
)

// Model ID fragments that never denote a chat model.
var nonChatFragments = []string{
	"embedding", "tts", "whisper", "dall-e", "moderation", "image", "transcribe", "realtime", "audio", "search",
}

// ModelCapabilities reports the static capabilities of an OpenAI-compatible
// model.
func ModelCapabilities(model string) chatbox.Capabilities {
	return chatbox.Capabilities{
		SystemMessage: !strings.HasPrefix(model, "o1-mini") && !strings.HasPrefix(model, "o1-preview"),
		Reasoning:     isReasoningModel(model),
		Vision:        supportsVision(model),
	}
}

func isReasoningModel(model string) bool {
	return isOSeries(model) ||
		strings.Contains(model, "deepseek-r1") ||
		strings.Contains(model, "reasoner") ||
		strings.Contains(model, "qwq")
}

// isOSeries reports OpenAI o-series models, which reject sampling parameters
// and take max_completion_tokens.
func isOSeries(model string) bool {
	return len(model) > 1 && model[0] == 'o' && model[1] >= '1' && model[1] <= '9'
}

func supportsVision(model string) bool {
	for _, f := range []string{"gpt-4o", "gpt-4.1", "gpt-4-turbo", "gpt-5", "vision", "llava", "gemma3"} {
		if strings.Contains(model, f) {
			return true
		}
	}
	return isOSeries(model) && !strings.HasPrefix(model, "o1-mini") && !strings.HasPrefix(model, "o3-mini")
}

func isChatModel(id string) bool {
	for _, f := range nonChatFragments {
		if strings.Contains(id, f) {
			return false
		}
	}
	return true
}

// normalizeBaseURL strips a trailing slash and /v1 from host.
func normalizeBaseURL(host string) string {
	host = strings.TrimRight(host, "/")
	return strings.TrimSuffix(host, "/v1")
}

// apiRequest is the JSON body sent to /v1/chat/completions.
type apiRequest struct {
	Model               string            `json:"model"`
	Messages            []apiMessage      `json:"messages"`
	Stream              bool              `json:"stream"`
	StreamOptions       *apiStreamOptions `json:"stream_options,omitempty"`
	MaxTokens           int               `json:"max_tokens,omitempty"`
	MaxCompletionTokens int               `json:"max_completion_tokens,omitempty"`
	Temperature         *float64          `json:"temperature,omitempty"`
	TopP                *float64          `json:"top_p,omitempty"`
}

type apiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// apiMessage carries either a plain string or an array of parts in Content.
type apiMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type apiPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *apiImageURL `json:"image_url,omitempty"`
	File     *apiFile     `json:"file,omitempty"`
}

type apiImageURL struct {
	URL string `json:"url"`
}

type apiFile struct {
	FileID string `json:"file_id"`
}

// SSE chunk types.

type apiChunk struct {
	Model   string         `json:"model"`
	Choices []apiChoice    `json:"choices"`
	Usage   *apiUsage      `json:"usage"`
	Error   *apiErrorValue `json:"error"`
}

type apiChoice struct {
	Index        int      `json:"index"`
	Delta        apiDelta `json:"delta"`
	FinishReason *string  `json:"finish_reason"`
}

type apiDelta struct {
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content"`
	Reasoning        string `json:"reasoning"`
}

type apiUsage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	PromptTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
	CompletionTokensDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details"`
}

type apiErrorValue struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type apiErrorResponse struct {
	Error apiErrorValue `json:"error"`
}

type apiModelList struct {
	Data *[]struct {
		ID string `json:"id"`
	} `json:"data"`
}

type apiFileObject struct {
	ID string `json:"id"`
}
