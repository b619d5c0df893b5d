package json_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fwojciec/chatbox"
	chatboxjson "github.com/fwojciec/chatbox/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSession_RoundTrip(t *testing.T) {
	t.Parallel()
	created := time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 2, 18, 12, 5, 0, 0, time.UTC)
	ts1 := time.Date(2026, 2, 18, 12, 0, 1, 0, time.UTC)
	ts2 := time.Date(2026, 2, 18, 12, 0, 2, 0, time.UTC)
	temp := 0.7

	session := chatbox.Session{
		ID:   "sess-123",
		Name: "Login bug",
		Type: chatbox.SessionTypeChat,
		Settings: chatbox.SessionSettings{
			Provider:     chatbox.ProviderAnthropic,
			ModelID:      "claude-sonnet-4-20250514",
			Temperature:  &temp,
			SystemPrompt: "You are helpful.",
		},
		CreatedAt: created,
		UpdatedAt: updated,
		Threads:   []chatbox.Thread{{ID: "th-1", Name: "main", CreatedAt: created}},
		Messages: []chatbox.Message{
			{
				ID:        "m-1",
				Role:      chatbox.RoleUser,
				ThreadID:  "th-1",
				Content:   []chatbox.ContentBlock{chatbox.TextBlock{Text: "Fix the login bug"}},
				CreatedAt: ts1,
				UpdatedAt: ts1,
			},
			{
				ID:       "m-2",
				Role:     chatbox.RoleAssistant,
				ThreadID: "th-1",
				Content: []chatbox.ContentBlock{
					chatbox.ThinkingBlock{Thinking: "auth module", Signature: []byte("sig")},
					chatbox.TextBlock{Text: "I'll look at the auth module."},
				},
				Status:            chatbox.StatusCompleted,
				Provider:          chatbox.ProviderAnthropic,
				Model:             "claude-sonnet-4-20250514",
				StopReason:        chatbox.StopEndTurn,
				RawStopReason:     "end_turn",
				Usage:             chatbox.Usage{InputTokens: 150, OutputTokens: 42, CacheReadTokens: 10},
				FirstTokenLatency: 350 * time.Millisecond,
				CreatedAt:         ts2,
				UpdatedAt:         ts2,
			},
		},
	}

	data, err := chatboxjson.MarshalSession(session)
	require.NoError(t, err)

	got, err := chatboxjson.UnmarshalSession(data)
	require.NoError(t, err)

	assert.Equal(t, session, got)
}

func TestMarshalSession_V1Envelope(t *testing.T) {
	t.Parallel()
	data, err := chatboxjson.MarshalSession(chatbox.Session{ID: "s1", Type: chatbox.SessionTypePicture})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(1), raw["version"])
	assert.Equal(t, "s1", raw["id"])
	assert.Equal(t, "picture", raw["type"])
	assert.Contains(t, raw, "messages")
	assert.Contains(t, raw, "threads")
}

func TestMarshalSession_AllContentBlockTypes(t *testing.T) {
	t.Parallel()
	session := chatbox.Session{
		ID:   "s1",
		Type: chatbox.SessionTypeChat,
		Messages: []chatbox.Message{
			{Role: chatbox.RoleUser, Content: []chatbox.ContentBlock{
				chatbox.TextBlock{Text: "look"},
				chatbox.ImageBlock{Data: []byte{0x89, 0x50, 0x4e, 0x47}, MimeType: "image/png"},
				chatbox.ImageBlock{MimeType: "image/jpeg", StorageKey: "picture:abc"},
				chatbox.FileBlock{Name: "a.pdf", MimeType: "application/pdf", URI: "files/123"},
			}},
			{Role: chatbox.RoleAssistant, Content: []chatbox.ContentBlock{
				chatbox.ThinkingBlock{Thinking: "hmm"},
			}},
		},
	}

	data, err := chatboxjson.MarshalSession(session)
	require.NoError(t, err)
	got, err := chatboxjson.UnmarshalSession(data)
	require.NoError(t, err)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, session.Messages[0].Content, got.Messages[0].Content)
	assert.Equal(t, chatbox.ThinkingBlock{Thinking: "hmm"}, got.Messages[1].Content[0])
}

func TestMarshalSession_ImageBase64Encoding(t *testing.T) {
	t.Parallel()
	session := chatbox.Session{
		ID: "s1",
		Messages: []chatbox.Message{{Role: chatbox.RoleUser, Content: []chatbox.ContentBlock{
			chatbox.ImageBlock{Data: []byte("hello"), MimeType: "image/png"},
		}}},
	}
	data, err := chatboxjson.MarshalSession(session)
	require.NoError(t, err)

	var raw struct {
		Messages []struct {
			Content []map[string]any `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	block := raw.Messages[0].Content[0]
	assert.Equal(t, "image", block["type"])
	assert.Equal(t, "aGVsbG8=", block["data"])
	assert.NotContains(t, block, "storage_key")
}

func TestMarshalSession_GeneratingAndError(t *testing.T) {
	t.Parallel()
	session := chatbox.Session{
		ID: "s1",
		Messages: []chatbox.Message{
			{ID: "a", Role: chatbox.RoleAssistant, Generating: true, Status: chatbox.StatusStreaming},
			{ID: "b", Role: chatbox.RoleAssistant, Status: chatbox.StatusErrored, Error: &chatbox.MessageError{
				Kind:    chatbox.ErrorKindNetwork,
				Message: "gemini: network: connection reset",
			}},
		},
	}
	data, err := chatboxjson.MarshalSession(session)
	require.NoError(t, err)
	got, err := chatboxjson.UnmarshalSession(data)
	require.NoError(t, err)

	assert.True(t, got.Messages[0].Generating)
	assert.Equal(t, chatbox.StatusStreaming, got.Messages[0].Status)
	require.NotNil(t, got.Messages[1].Error)
	assert.Equal(t, *session.Messages[1].Error, *got.Messages[1].Error)
}

func TestMarshalSession_UnknownRole(t *testing.T) {
	t.Parallel()
	_, err := chatboxjson.MarshalSession(chatbox.Session{Messages: []chatbox.Message{{Role: "tool"}}})
	assert.ErrorContains(t, err, "unknown message role")
}

func TestUnmarshalSession_DefaultsType(t *testing.T) {
	t.Parallel()
	got, err := chatboxjson.UnmarshalSession([]byte(`{"version":1,"id":"s1","messages":[]}`))
	require.NoError(t, err)
	assert.Equal(t, chatbox.SessionTypeChat, got.Type)
	assert.Empty(t, got.Messages)
}

func TestUnmarshalSession_Errors(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		data string
		want string
	}{
		"unsupported version": {`{"version":2,"id":"s1"}`, "unsupported envelope version: 2"},
		"unknown role":        {`{"version":1,"messages":[{"role":"tool","content":[]}]}`, `unknown message role: "tool"`},
		"unknown block":       {`{"version":1,"messages":[{"role":"user","content":[{"type":"video"}]}]}`, `unknown content block type: "video"`},
		"bad image data":      {`{"version":1,"messages":[{"role":"user","content":[{"type":"image","data":"%%%"}]}]}`, "decode image data"},
		"bad signature":       {`{"version":1,"messages":[{"role":"assistant","content":[{"type":"thinking","signature":"%%%"}]}]}`, "decode thinking signature"},
		"invalid json":        {`{`, "unmarshal envelope"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := chatboxjson.UnmarshalSession([]byte(tt.data))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestSessionList_RoundTrip(t *testing.T) {
	t.Parallel()
	metas := []chatbox.SessionMeta{
		{ID: "a", Name: "First", Type: chatbox.SessionTypeChat, UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "b", Name: "Pictures", Type: chatbox.SessionTypePicture, UpdatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
	}
	data, err := chatboxjson.MarshalSessionList(metas)
	require.NoError(t, err)
	got, err := chatboxjson.UnmarshalSessionList(data)
	require.NoError(t, err)
	assert.Equal(t, metas, got)

	_, err = chatboxjson.UnmarshalSessionList([]byte(`{"version":3}`))
	assert.ErrorContains(t, err, "unsupported envelope version")
}

func TestSettings_RoundTrip(t *testing.T) {
	t.Parallel()
	topP := 0.9
	s := chatbox.Settings{
		Providers: map[chatbox.ProviderID]chatbox.ProviderSettings{
			chatbox.ProviderGemini: {APIKey: "g-key"},
			"my-proxy":             {APIHost: "http://proxy", Models: []string{"m1"}},
		},
		ChatSession:    chatbox.SessionSettings{ModelID: "gemini-2.5-pro", TopP: &topP, MaxContextMessages: 10},
		PictureSession: chatbox.SessionSettings{Provider: chatbox.ProviderGemini},
	}
	data, err := chatboxjson.MarshalSettings(s)
	require.NoError(t, err)
	got, err := chatboxjson.UnmarshalSettings(data)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestSettings_OmitsZeroFields(t *testing.T) {
	t.Parallel()
	data, err := chatboxjson.MarshalSettings(chatbox.Settings{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"chat_session":{},"picture_session":{}}`, string(data))

	got, err := chatboxjson.UnmarshalSettings(data)
	require.NoError(t, err)
	assert.Nil(t, got.Providers)
}
