package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fwojciec/chatbox"
	"github.com/fwojciec/chatbox/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Stream_RequestBody(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"ok\"},\"finish_reason\":\"stop\"}]}\n\ndata: [DONE]\n\n")
	})

	temp := 0.2
	c := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/v1"), openai.WithHTTPClient(srv.Client()))
	s, err := c.Stream(context.Background(), chatbox.Request{
		Model:        "gpt-4o",
		SystemPrompt: "be brief",
		Temperature:  &temp,
		MaxTokens:    64,
		Messages: []chatbox.Message{
			chatbox.NewMessage(chatbox.RoleUser, "hello"),
			chatbox.NewMessage(chatbox.RoleAssistant, "hi"),
			{Role: chatbox.RoleUser, Content: []chatbox.ContentBlock{
				chatbox.TextBlock{Text: "what is this?"},
				chatbox.ImageBlock{Data: []byte("PNG"), MimeType: "image/png"},
			}},
		},
	})
	require.NoError(t, err)
	defer s.Close()
	collectStreamEvents(t, s)

	assert.Equal(t, "gpt-4o", got["model"])
	assert.Equal(t, true, got["stream"])
	assert.Equal(t, map[string]any{"include_usage": true}, got["stream_options"])
	assert.Equal(t, 0.2, got["temperature"])
	assert.Equal(t, float64(64), got["max_tokens"])

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, map[string]any{"role": "system", "content": "be brief"}, msgs[0])
	assert.Equal(t, map[string]any{"role": "user", "content": "hello"}, msgs[1])
	assert.Equal(t, map[string]any{"role": "assistant", "content": "hi"}, msgs[2])
	parts := msgs[3].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	image := parts[1].(map[string]any)["image_url"].(map[string]any)
	assert.Equal(t, "data:image/png;base64,UE5H", image["url"])
}

func TestClient_Stream_ReasoningModelOmitsSampling(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	temp := 0.2
	c := openai.New("sk-test", openai.WithBaseURL(srv.URL))
	s, err := c.Stream(context.Background(), chatbox.Request{
		Model:       "o3-mini",
		Temperature: &temp,
		MaxTokens:   100,
		Messages:    []chatbox.Message{chatbox.NewMessage(chatbox.RoleUser, "hi")},
	})
	require.NoError(t, err)
	defer s.Close()
	collectStreamEvents(t, s)

	assert.NotContains(t, got, "temperature")
	assert.NotContains(t, got, "max_tokens")
	assert.Equal(t, float64(100), got["max_completion_tokens"])
}

func TestClient_Stream_HTTPError(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	})

	c := openai.New("bad", openai.WithBaseURL(srv.URL))
	_, err := c.Stream(context.Background(), chatbox.Request{
		Messages: []chatbox.Message{chatbox.NewMessage(chatbox.RoleUser, "hi")},
	})
	var provErr *chatbox.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, http.StatusUnauthorized, provErr.StatusCode)
	assert.Equal(t, "Incorrect API key provided", provErr.Message)
	assert.Contains(t, provErr.Body, "invalid_request_error")
}

func TestClient_Stream_NetworkError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := openai.New("sk", openai.WithBaseURL(url))
	_, err := c.Stream(context.Background(), chatbox.Request{
		Messages: []chatbox.Message{chatbox.NewMessage(chatbox.RoleUser, "hi")},
	})
	assert.Equal(t, chatbox.ErrorKindNetwork, chatbox.ErrorKindOf(err))
}

func TestClient_ListModels(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		_, _ = io.WriteString(w, `{"object":"list","data":[
			{"id":"gpt-4o"},{"id":"text-embedding-3-small"},{"id":"tts-1"},
			{"id":"whisper-1"},{"id":"dall-e-3"},{"id":"omni-moderation-latest"},
			{"id":"gpt-image-1"},{"id":"gpt-4.1-mini"},{"id":"gpt-4o"}
		]}`)
	})

	c := openai.New("sk", openai.WithBaseURL(srv.URL))
	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4.1-mini", "gpt-4o"}, models)
}

func TestClient_ListModels_Malformed(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"models":[]}`)
	})

	c := openai.New("sk", openai.WithBaseURL(srv.URL))
	_, err := c.ListModels(context.Background())
	var provErr *chatbox.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, `{"models":[]}`, provErr.Body)
}

func TestClient_OllamaWithoutKey(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"data":[{"id":"llama3.2"}]}`)
	})

	c := openai.New("", openai.WithBaseURL(srv.URL), openai.WithProviderID(chatbox.ProviderOllama))
	assert.Equal(t, chatbox.ProviderOllama, c.ID())
	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2"}, models)
}

func TestClient_UploadFile(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/files", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "user_data", r.FormValue("purpose"))
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "report.pdf", hdr.Filename)
		assert.Equal(t, "%PDF", string(data))
		_, _ = io.WriteString(w, `{"id":"file-abc123","object":"file"}`)
	})

	c := openai.New("sk", openai.WithBaseURL(srv.URL))
	id, err := c.UploadFile(context.Background(), chatbox.File{Name: "report.pdf", MimeType: "application/pdf", Data: []byte("%PDF")})
	require.NoError(t, err)
	assert.Equal(t, "file-abc123", id)
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()
	assert.True(t, openai.ModelCapabilities("gpt-4o").Vision)
	assert.False(t, openai.ModelCapabilities("gpt-4o").Reasoning)
	assert.True(t, openai.ModelCapabilities("o3").Reasoning)
	assert.True(t, openai.ModelCapabilities("deepseek-r1:7b").Reasoning)
	assert.False(t, openai.ModelCapabilities("o1-mini").SystemMessage)
	assert.True(t, openai.ModelCapabilities("llama3.2").SystemMessage)
}
