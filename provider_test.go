package chatbox_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fwojciec/chatbox"
	"github.com/fwojciec/chatbox/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamState_ZeroValue(t *testing.T) {
	t.Parallel()
	var s chatbox.StreamState
	assert.Equal(t, chatbox.StreamStateNew, s, "zero-value StreamState should be StreamStateNew")
}

func TestRequest_ValuePassingPreventsAppendMutation(t *testing.T) {
	t.Parallel()
	original := chatbox.Request{Messages: userHello()}

	mutate := func(req chatbox.Request) {
		req.Messages = append(req.Messages, chatbox.NewMessage(chatbox.RoleAssistant, "hi"))
	}
	mutate(original)

	assert.Len(t, original.Messages, 1, "caller's Messages slice must not grow after provider appends")
}

func TestRegistry_Open(t *testing.T) {
	t.Parallel()

	newRegistry := func(calls *int) *chatbox.Registry {
		r := chatbox.NewRegistry()
		r.Register(chatbox.ProviderGemini, func(_ context.Context, _ chatbox.ProviderSettings) (chatbox.Provider, error) {
			*calls++
			return &mock.Provider{}, nil
		})
		r.Register(chatbox.ProviderOllama, func(_ context.Context, _ chatbox.ProviderSettings) (chatbox.Provider, error) {
			*calls++
			return &mock.Provider{}, nil
		})
		return r
	}

	t.Run("missing api key fails before factory", func(t *testing.T) {
		t.Parallel()
		var calls int
		r := newRegistry(&calls)
		_, err := r.Open(context.Background(), chatbox.ProviderGemini, chatbox.ProviderSettings{APIHost: chatbox.DefaultGeminiHost})
		var cfgErr *chatbox.ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "api_key", cfgErr.Field)
		assert.Equal(t, 0, calls)
	})

	t.Run("missing host fails", func(t *testing.T) {
		t.Parallel()
		var calls int
		r := newRegistry(&calls)
		_, err := r.Open(context.Background(), chatbox.ProviderGemini, chatbox.ProviderSettings{APIKey: "k"})
		var cfgErr *chatbox.ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "api_host", cfgErr.Field)
		assert.Equal(t, 0, calls)
	})

	t.Run("ollama needs no key", func(t *testing.T) {
		t.Parallel()
		var calls int
		r := newRegistry(&calls)
		p, err := r.Open(context.Background(), chatbox.ProviderOllama, chatbox.ProviderSettings{APIHost: chatbox.DefaultOllamaHost})
		require.NoError(t, err)
		assert.NotNil(t, p)
		assert.Equal(t, 1, calls)
	})

	t.Run("unknown provider", func(t *testing.T) {
		t.Parallel()
		var calls int
		r := newRegistry(&calls)
		_, err := r.Open(context.Background(), "mistral", chatbox.ProviderSettings{APIKey: "k", APIHost: "h"})
		assert.Equal(t, chatbox.ErrorKindConfiguration, chatbox.ErrorKindOf(err))
		assert.Contains(t, err.Error(), "unknown provider")
	})

	t.Run("fallback serves unregistered ids", func(t *testing.T) {
		t.Parallel()
		var calls int
		r := newRegistry(&calls)
		var opened chatbox.ProviderID
		r.SetFallback(func(_ context.Context, id chatbox.ProviderID, _ chatbox.ProviderSettings) (chatbox.Provider, error) {
			opened = id
			return &mock.Provider{}, nil
		})
		assert.True(t, r.Has("mistral"))
		_, err := r.Open(context.Background(), "mistral", chatbox.ProviderSettings{APIHost: "h"})
		require.NoError(t, err)
		assert.Equal(t, chatbox.ProviderID("mistral"), opened)
		assert.Equal(t, 0, calls)

		_, err = r.Open(context.Background(), "mistral", chatbox.ProviderSettings{})
		assert.Equal(t, chatbox.ErrorKindConfiguration, chatbox.ErrorKindOf(err))
		assert.NotContains(t, r.IDs(), chatbox.ProviderID("mistral"))
	})

	t.Run("ids sorted", func(t *testing.T) {
		t.Parallel()
		var calls int
		r := newRegistry(&calls)
		assert.Equal(t, []chatbox.ProviderID{chatbox.ProviderGemini, chatbox.ProviderOllama}, r.IDs())
	})
}
