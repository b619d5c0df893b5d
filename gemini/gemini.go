// Package gemini implements [chatbox.Provider] for the Google Gemini API.
//
// It wraps the google.golang.org/genai SDK for streaming, translating between
// chatbox's domain types and the Gemini API types. Streaming uses the SDK's
// iter.Seq2 iterator, wrapped into the pull-based [chatbox.Stream] interface.
// Model listing and file upload go through the REST endpoints directly.
package gemini

import (
	"slices"
	"strings"

	"github.com/fwojciec/chatbox"
)

const (
	defaultModel     = "gemini-2.5-flash"
	defaultMaxTokens = 65536

	imageGenerationModel = "gemini-2.0-flash-preview-image-generation"
)

// Models that reject a system instruction.
var noSystemInstruction = []string{
	"gemini-2.0-flash-exp",
	"gemini-2.0-flash-thinking-exp",
	"gemini-2.0-flash-exp-image-generation",
}

// ModelCapabilities reports the static capabilities of a Gemini model.
func ModelCapabilities(model string) chatbox.Capabilities {
	return chatbox.Capabilities{
		SystemMessage: !slices.Contains(noSystemInstruction, model),
		Reasoning:     supportsReasoning(model),
		Vision:        true,
		ImageOutput:   strings.Contains(model, "image-generation"),
	}
}

func supportsReasoning(model string) bool {
	if strings.Contains(model, "image-generation") {
		return false
	}
	return strings.Contains(model, "thinking") ||
		strings.HasPrefix(model, "gemini-2.5") ||
		strings.HasPrefix(model, "gemini-3")
}

// NormalizeHost strips a trailing /v1beta or /v1 path segment from host.
func NormalizeHost(host string) string {
	host = strings.TrimRight(host, "/")
	if h, ok := strings.CutSuffix(host, "/v1beta"); ok {
		return h
	}
	if h, ok := strings.CutSuffix(host, "/v1"); ok {
		return h
	}
	return host
}
