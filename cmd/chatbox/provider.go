package main

import (
	"context"
	"log/slog"

	"github.com/fwojciec/chatbox"
	"github.com/fwojciec/chatbox/anthropic"
	"github.com/fwojciec/chatbox/gemini"
	"github.com/fwojciec/chatbox/openai"
)

// newRegistry registers the built-in adapters. Any other provider ID,
// including ones saved to the settings while running, is treated as an
// OpenAI-compatible host.
func newRegistry(logger *slog.Logger) *chatbox.Registry {
	r := chatbox.NewRegistry()
	r.Register(chatbox.ProviderGemini, func(ctx context.Context, s chatbox.ProviderSettings) (chatbox.Provider, error) {
		return gemini.New(ctx, s.APIKey, gemini.WithHost(s.APIHost), gemini.WithLogger(logger))
	})
	r.Register(chatbox.ProviderAnthropic, func(_ context.Context, s chatbox.ProviderSettings) (chatbox.Provider, error) {
		return anthropic.New(s.APIKey, anthropic.WithBaseURL(s.APIHost), anthropic.WithLogger(logger)), nil
	})
	r.Register(chatbox.ProviderOpenAI, func(ctx context.Context, s chatbox.ProviderSettings) (chatbox.Provider, error) {
		return openAICompatible(ctx, chatbox.ProviderOpenAI, s, logger)
	})
	r.Register(chatbox.ProviderOllama, func(ctx context.Context, s chatbox.ProviderSettings) (chatbox.Provider, error) {
		return openAICompatible(ctx, chatbox.ProviderOllama, s, logger)
	})
	r.SetFallback(func(ctx context.Context, id chatbox.ProviderID, s chatbox.ProviderSettings) (chatbox.Provider, error) {
		return openAICompatible(ctx, id, s, logger)
	})
	return r
}

func openAICompatible(_ context.Context, id chatbox.ProviderID, s chatbox.ProviderSettings, logger *slog.Logger) (chatbox.Provider, error) {
	return openai.New(s.APIKey,
		openai.WithProviderID(id),
		openai.WithBaseURL(s.APIHost),
		openai.WithLogger(logger),
	), nil
}
