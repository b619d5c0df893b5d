package openai_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/fwojciec/chatbox"
	"github.com/fwojciec/chatbox/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseBody(lines ...string) io.ReadCloser {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString("data: ")
		sb.WriteString(l)
		sb.WriteString("\n\n")
	}
	return io.NopCloser(strings.NewReader(sb.String()))
}

func collectStreamEvents(t *testing.T, s chatbox.Stream) []chatbox.Event {
	t.Helper()
	var events []chatbox.Event
	for {
		evt, err := s.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		events = append(events, evt)
	}
	return events
}

func TestStream_TextDeltas(t *testing.T) {
	t.Parallel()
	body := sseBody(
		`{"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":""}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"Hi"}}]}`,
		`{"choices":[{"index":0,"delta":{"content":" there"}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"!"},"finish_reason":"stop"}]}`,
		`{"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":3,"prompt_tokens_details":{"cached_tokens":2}}}`,
		`[DONE]`,
	)
	s := openai.NewStream(context.Background(), chatbox.ProviderOpenAI, body)
	events := collectStreamEvents(t, s)

	require.Len(t, events, 3)
	assert.Equal(t, chatbox.EventTextDelta{Index: 0, Delta: "Hi"}, events[0])
	assert.Equal(t, chatbox.EventTextDelta{Index: 0, Delta: " there"}, events[1])
	assert.Equal(t, chatbox.EventTextDelta{Index: 0, Delta: "!"}, events[2])
	assert.Equal(t, chatbox.StreamStateComplete, s.State())

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", msg.Text())
	assert.Equal(t, "gpt-4o", msg.Model)
	assert.Equal(t, chatbox.StopEndTurn, msg.StopReason)
	assert.Equal(t, chatbox.Usage{InputTokens: 10, OutputTokens: 3, CacheReadTokens: 2}, msg.Usage)
}

func TestStream_ReasoningContent(t *testing.T) {
	t.Parallel()
	body := sseBody(
		`{"choices":[{"index":0,"delta":{"reasoning_content":"Let me think"}}]}`,
		`{"choices":[{"index":0,"delta":{"reasoning_content":"..."}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"42"},"finish_reason":"stop"}]}`,
		`[DONE]`,
	)
	s := openai.NewStream(context.Background(), chatbox.ProviderOllama, body)
	events := collectStreamEvents(t, s)

	require.Len(t, events, 3)
	assert.Equal(t, chatbox.EventThinkingDelta{Index: 0, Delta: "Let me think"}, events[0])
	assert.Equal(t, chatbox.EventThinkingDelta{Index: 0, Delta: "..."}, events[1])
	assert.Equal(t, chatbox.EventTextDelta{Index: 1, Delta: "42"}, events[2])

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, chatbox.ProviderOllama, msg.Provider)
	assert.Equal(t, "Let me think...", msg.Thinking())
	assert.Equal(t, "42", msg.Text())
}

func TestStream_FinishReasonLength(t *testing.T) {
	t.Parallel()
	body := sseBody(`{"choices":[{"index":0,"delta":{"content":"trunc"},"finish_reason":"length"}]}`, `[DONE]`)
	s := openai.NewStream(context.Background(), chatbox.ProviderOpenAI, body)
	collectStreamEvents(t, s)

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, chatbox.StopLength, msg.StopReason)
	assert.Equal(t, "length", msg.RawStopReason)
}

func TestStream_EOFAfterFinishWithoutDone(t *testing.T) {
	t.Parallel()
	body := sseBody(`{"choices":[{"index":0,"delta":{"content":"ok"},"finish_reason":"stop"}]}`)
	s := openai.NewStream(context.Background(), chatbox.ProviderOllama, body)
	collectStreamEvents(t, s)
	assert.Equal(t, chatbox.StreamStateComplete, s.State())
}

func TestStream_UnexpectedEOF(t *testing.T) {
	t.Parallel()
	body := sseBody(`{"choices":[{"index":0,"delta":{"content":"par"}}]}`)
	s := openai.NewStream(context.Background(), chatbox.ProviderOpenAI, body)

	_, err := s.Next()
	require.NoError(t, err)
	_, err = s.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected end of stream")
	assert.Equal(t, chatbox.ErrorKindNetwork, chatbox.ErrorKindOf(err))

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, "par", msg.Text())
	assert.Equal(t, chatbox.StopError, msg.StopReason)
}

func TestStream_ErrorChunk(t *testing.T) {
	t.Parallel()
	body := sseBody(`{"error":{"message":"model overloaded","type":"server_error"}}`)
	s := openai.NewStream(context.Background(), chatbox.ProviderOpenAI, body)

	_, err := s.Next()
	var provErr *chatbox.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, "model overloaded", provErr.Message)
	assert.Equal(t, chatbox.StreamStateError, s.State())
}

func TestStream_MalformedChunk(t *testing.T) {
	t.Parallel()
	s := openai.NewStream(context.Background(), chatbox.ProviderOpenAI, sseBody(`{not json`))
	_, err := s.Next()
	assert.Equal(t, chatbox.ErrorKindProvider, chatbox.ErrorKindOf(err))
}

func TestStream_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := openai.NewStream(ctx, chatbox.ProviderOpenAI, io.NopCloser(strings.NewReader("")))

	_, err := s.Next()
	require.ErrorIs(t, err, context.Canceled)
	msg, _ := s.Message()
	assert.Equal(t, chatbox.StopAborted, msg.StopReason)
}

func TestStream_CloseMidStream(t *testing.T) {
	t.Parallel()
	body := sseBody(
		`{"choices":[{"index":0,"delta":{"content":"Hi"}}]}`,
		`{"choices":[{"index":0,"delta":{"content":" there"}}]}`,
	)
	s := openai.NewStream(context.Background(), chatbox.ProviderOpenAI, body)

	_, err := s.Message()
	assert.ErrorIs(t, err, chatbox.ErrStreamNotReady)

	_, err = s.Next()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, chatbox.StreamStateClosed, s.State())

	_, err = s.Next()
	assert.ErrorIs(t, err, chatbox.ErrStreamClosed)
	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, "Hi", msg.Text())
	assert.Equal(t, chatbox.StopAborted, msg.StopReason)
}
