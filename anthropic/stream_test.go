package anthropic_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fwojciec/chatbox"
	"github.com/fwojciec/chatbox/anthropic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseResponse is a helper to build SSE responses for tests.
type sseResponse struct {
	events []sseEvent
}

type sseEvent struct {
	event string
	data  string
}

func (s sseResponse) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, evt := range s.events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.event, evt.data)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

const messageStart = `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-20250514","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1,"cache_read_input_tokens":4}}}`

func textBlockStart(index int) sseEvent {
	return sseEvent{"content_block_start", fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"text","text":""}}`, index)}
}

func textDelta(index int, text string) sseEvent {
	return sseEvent{"content_block_delta", fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"text_delta","text":%q}}`, index, text)}
}

func messageDelta(stopReason string, outputTokens int) sseEvent {
	return sseEvent{"message_delta", fmt.Sprintf(`{"type":"message_delta","delta":{"stop_reason":%q,"stop_sequence":null},"usage":{"output_tokens":%d}}`, stopReason, outputTokens)}
}

// textStreamResponse returns a simple text streaming SSE response.
func textStreamResponse() sseResponse {
	return sseResponse{events: []sseEvent{
		{"message_start", messageStart},
		textBlockStart(0),
		{"ping", `{"type":"ping"}`},
		textDelta(0, "Hello"),
		textDelta(0, " world"),
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		messageDelta("end_turn", 5),
		{"message_stop", `{"type":"message_stop"}`},
	}}
}

func hiRequest() chatbox.Request {
	return chatbox.Request{Messages: []chatbox.Message{chatbox.NewMessage(chatbox.RoleUser, "Hi")}}
}

func streamFromSSE(t *testing.T, resp sseResponse) chatbox.Stream {
	t.Helper()
	srv := httptest.NewServer(resp.handler())
	t.Cleanup(srv.Close)
	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	stream, err := client.Stream(context.Background(), hiRequest())
	require.NoError(t, err)
	t.Cleanup(func() { stream.Close() })
	return stream
}

func collectEvents(t *testing.T, s chatbox.Stream) []chatbox.Event {
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

func TestStream_TextResponse(t *testing.T) {
	t.Parallel()
	s := streamFromSSE(t, textStreamResponse())

	events := collectEvents(t, s)

	assert.Len(t, events, 2)
	assert.Equal(t, chatbox.EventTextDelta{Index: 0, Delta: "Hello"}, events[0])
	assert.Equal(t, chatbox.EventTextDelta{Index: 0, Delta: " world"}, events[1])

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, chatbox.StopEndTurn, msg.StopReason)
	assert.Equal(t, "end_turn", msg.RawStopReason)
	assert.Equal(t, "claude-sonnet-4-20250514", msg.Model)
	assert.Equal(t, chatbox.ProviderAnthropic, msg.Provider)
	assert.Equal(t, chatbox.Usage{InputTokens: 10, OutputTokens: 5, CacheReadTokens: 4}, msg.Usage)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, chatbox.TextBlock{Text: "Hello world"}, msg.Content[0])
}

func TestStream_Thinking(t *testing.T) {
	t.Parallel()
	resp := sseResponse{events: []sseEvent{
		{"message_start", messageStart},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":""}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"Let me think..."}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":" step 2"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"sig123"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		textBlockStart(1),
		textDelta(1, "The answer is 42."),
		{"content_block_stop", `{"type":"content_block_stop","index":1}`},
		messageDelta("end_turn", 20),
		{"message_stop", `{"type":"message_stop"}`},
	}}

	s := streamFromSSE(t, resp)
	events := collectEvents(t, s)

	require.Len(t, events, 3)
	assert.Equal(t, chatbox.EventThinkingDelta{Index: 0, Delta: "Let me think..."}, events[0])
	assert.Equal(t, chatbox.EventThinkingDelta{Index: 0, Delta: " step 2"}, events[1])
	assert.Equal(t, chatbox.EventTextDelta{Index: 1, Delta: "The answer is 42."}, events[2])

	msg, err := s.Message()
	require.NoError(t, err)
	require.Len(t, msg.Content, 2)
	assert.Equal(t, chatbox.ThinkingBlock{Thinking: "Let me think... step 2", Signature: []byte("sig123")}, msg.Content[0])
	assert.Equal(t, chatbox.TextBlock{Text: "The answer is 42."}, msg.Content[1])
}

func TestStream_StopReasons(t *testing.T) {
	t.Parallel()
	tests := map[string]chatbox.StopReason{
		"max_tokens":    chatbox.StopLength,
		"stop_sequence": chatbox.StopEndTurn,
		"refusal":       chatbox.StopSafety,
		"pause_turn":    chatbox.StopUnknown,
	}
	for raw, want := range tests {
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			s := streamFromSSE(t, sseResponse{events: []sseEvent{
				{"message_start", messageStart},
				textBlockStart(0),
				textDelta(0, "x"),
				messageDelta(raw, 1),
				{"message_stop", `{"type":"message_stop"}`},
			}})
			collectEvents(t, s)
			msg, err := s.Message()
			require.NoError(t, err)
			assert.Equal(t, want, msg.StopReason)
			assert.Equal(t, raw, msg.RawStopReason)
		})
	}
}

func TestStream_State(t *testing.T) {
	t.Parallel()

	t.Run("new before next", func(t *testing.T) {
		t.Parallel()
		s := streamFromSSE(t, textStreamResponse())
		assert.Equal(t, chatbox.StreamStateNew, s.State())
		_, err := s.Message()
		assert.ErrorIs(t, err, chatbox.ErrStreamNotReady)
	})

	t.Run("streaming mid-stream", func(t *testing.T) {
		t.Parallel()
		s := streamFromSSE(t, textStreamResponse())
		_, err := s.Next()
		require.NoError(t, err)
		assert.Equal(t, chatbox.StreamStateStreaming, s.State())

		msg, err := s.Message()
		require.NoError(t, err)
		assert.Equal(t, "Hello", msg.Text())
	})

	t.Run("complete after EOF", func(t *testing.T) {
		t.Parallel()
		s := streamFromSSE(t, textStreamResponse())
		collectEvents(t, s)
		assert.Equal(t, chatbox.StreamStateComplete, s.State())

		require.NoError(t, s.Close())
		assert.Equal(t, chatbox.StreamStateComplete, s.State())
		msg, err := s.Message()
		require.NoError(t, err)
		assert.Equal(t, chatbox.StopEndTurn, msg.StopReason)
	})

	t.Run("closed mid-stream", func(t *testing.T) {
		t.Parallel()
		s := streamFromSSE(t, textStreamResponse())
		_, err := s.Next()
		require.NoError(t, err)
		require.NoError(t, s.Close())
		assert.Equal(t, chatbox.StreamStateClosed, s.State())

		msg, err := s.Message()
		require.NoError(t, err)
		assert.Equal(t, chatbox.StopAborted, msg.StopReason)

		_, err = s.Next()
		assert.ErrorIs(t, err, chatbox.ErrStreamClosed)
	})
}

func TestStream_SSEError(t *testing.T) {
	t.Parallel()
	resp := sseResponse{events: []sseEvent{
		{"message_start", messageStart},
		{"error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`},
	}}

	s := streamFromSSE(t, resp)
	_, err := s.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded_error")
	var provErr *chatbox.ProviderError
	assert.True(t, errors.As(err, &provErr))
}

func TestStream_DeltaForUnknownBlock(t *testing.T) {
	t.Parallel()
	s := streamFromSSE(t, sseResponse{events: []sseEvent{
		{"message_start", messageStart},
		textDelta(3, "orphan"),
	}})
	_, err := s.Next()
	assert.Equal(t, chatbox.ErrorKindProvider, chatbox.ErrorKindOf(err))
}

func TestStream_BlockIndexOutOfRange(t *testing.T) {
	t.Parallel()
	for name, events := range map[string][]sseEvent{
		"negative start": {textBlockStart(-1), textDelta(-1, "x")},
		"huge start":     {textBlockStart(1 << 30)},
		"negative delta": {textBlockStart(0), textDelta(-1, "x")},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := streamFromSSE(t, sseResponse{events: append([]sseEvent{{"message_start", messageStart}}, events...)})
			var err error
			assert.NotPanics(t, func() {
				for err == nil {
					_, err = s.Next()
				}
			})
			var provErr *chatbox.ProviderError
			require.ErrorAs(t, err, &provErr)
			assert.Contains(t, provErr.Message, "out of range")
		})
	}
}

func TestStream_ContextCancellation(t *testing.T) {
	t.Parallel()

	// Server that blocks after first event.
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, evt := range []sseEvent{{"message_start", messageStart}, textBlockStart(0), textDelta(0, "Hi")} {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.event, evt.data)
		}
		if flusher != nil {
			flusher.Flush()
		}
		close(started)
		// Block until request context is cancelled.
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	s, err := client.Stream(ctx, hiRequest())
	require.NoError(t, err)
	defer s.Close()

	evt, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, chatbox.EventTextDelta{Index: 0, Delta: "Hi"}, evt)

	<-started
	cancel()

	_, err = s.Next()
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, chatbox.IsCancellation(err))

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, chatbox.StopAborted, msg.StopReason)
	assert.Equal(t, "Hi", msg.Text())
	assert.Equal(t, chatbox.StreamStateError, s.State())
}

func TestStream_ReadErrorMidStream(t *testing.T) {
	t.Parallel()

	// Server that sends partial SSE then closes connection abruptly.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, evt := range []sseEvent{{"message_start", messageStart}, textBlockStart(0), textDelta(0, "partial")} {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.event, evt.data)
		}
		if flusher != nil {
			flusher.Flush()
		}
		// Connection closes without message_stop, simulating network failure.
		hj, ok := w.(http.Hijacker)
		if ok {
			conn, _, _ := hj.Hijack()
			conn.Close()
		}
	}))
	defer srv.Close()

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	s, err := client.Stream(context.Background(), hiRequest())
	require.NoError(t, err)
	defer s.Close()

	evt, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, chatbox.EventTextDelta{Index: 0, Delta: "partial"}, evt)

	_, err = s.Next()
	require.Error(t, err)
	assert.Equal(t, chatbox.StreamStateError, s.State())
	assert.Equal(t, chatbox.ErrorKindNetwork, chatbox.ErrorKindOf(err))

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, chatbox.StopError, msg.StopReason)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, chatbox.TextBlock{Text: "partial"}, msg.Content[0])
}
