package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fwojciec/chatbox"
	"github.com/fwojciec/chatbox/sse"
)

// stream implements [chatbox.Stream] over a chat completion SSE body.
type stream struct {
	id      chatbox.ProviderID
	body    io.ReadCloser
	events  *sse.Reader
	ctx     context.Context
	state   chatbox.StreamState
	msg     chatbox.Message
	err     error
	pending []chatbox.Event
	kind    string
	done    bool // a finish_reason was seen
}

// Interface compliance check.
var _ chatbox.Stream = (*stream)(nil)

// NewStream wraps a chat completion SSE body as a [chatbox.Stream].
// Exported for testing.
func NewStream(ctx context.Context, id chatbox.ProviderID, body io.ReadCloser) chatbox.Stream {
	return newStream(ctx, id, body)
}

func newStream(ctx context.Context, id chatbox.ProviderID, body io.ReadCloser) *stream {
	return &stream{
		id:     id,
		body:   body,
		events: sse.NewReader(body),
		ctx:    ctx,
		state:  chatbox.StreamStateNew,
		msg:    chatbox.Message{Role: chatbox.RoleAssistant, Provider: id},
	}
}

// Next reads the next semantic event. Returns io.EOF when the stream
// completes normally.
func (s *stream) Next() (chatbox.Event, error) {
	switch s.state {
	case chatbox.StreamStateComplete:
		return nil, io.EOF
	case chatbox.StreamStateError:
		return nil, s.err
	case chatbox.StreamStateClosed:
		return nil, fmt.Errorf("%s: %w", s.id, chatbox.ErrStreamClosed)
	}

	for len(s.pending) == 0 {
		evt, err := s.events.Next()
		if errors.Is(err, io.EOF) {
			if s.done {
				s.complete()
				return nil, io.EOF
			}
			s.terminate(fmt.Errorf("%s: unexpected end of stream", s.id))
			return nil, s.err
		}
		if err != nil {
			s.terminate(err)
			return nil, s.err
		}
		s.state = chatbox.StreamStateStreaming

		if evt.Data == doneSentinel {
			s.complete()
			return nil, io.EOF
		}
		if err := s.processChunk(evt.Data); err != nil {
			s.terminate(err)
			return nil, s.err
		}
	}

	evt := s.pending[0]
	s.pending = s.pending[1:]
	return evt, nil
}

func (s *stream) State() chatbox.StreamState {
	return s.state
}

func (s *stream) Message() (chatbox.Message, error) {
	if s.state == chatbox.StreamStateNew {
		return chatbox.Message{}, fmt.Errorf("%s: %w", s.id, chatbox.ErrStreamNotReady)
	}
	return s.msg.Clone(), nil
}

// Close closes the underlying HTTP response body.
func (s *stream) Close() error {
	if s.state != chatbox.StreamStateComplete && s.state != chatbox.StreamStateError {
		s.state = chatbox.StreamStateClosed
		s.msg.StopReason = chatbox.StopAborted
		s.msg.RawStopReason = "aborted"
	}
	return s.body.Close()
}

func (s *stream) complete() {
	s.state = chatbox.StreamStateComplete
	if s.msg.RawStopReason == "" {
		s.msg.StopReason = chatbox.StopEndTurn
		s.msg.RawStopReason = "stop"
	}
}

func (s *stream) terminate(err error) {
	s.state = chatbox.StreamStateError
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		s.err = fmt.Errorf("%s: %w", s.id, ctxErr)
		s.msg.StopReason = chatbox.StopAborted
		s.msg.RawStopReason = "aborted"
		return
	}
	var provErr *chatbox.ProviderError
	if !errors.As(err, &provErr) {
		err = &chatbox.NetworkError{Provider: s.id, Err: err}
	}
	s.err = err
	s.msg.StopReason = chatbox.StopError
	s.msg.RawStopReason = "error"
}

func (s *stream) processChunk(data string) error {
	var chunk apiChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return &chatbox.ProviderError{Provider: s.id, Message: "malformed stream chunk", Body: data}
	}
	if chunk.Error != nil {
		return &chatbox.ProviderError{Provider: s.id, Message: chunk.Error.Message, Body: data}
	}
	if chunk.Model != "" {
		s.msg.Model = chunk.Model
	}
	if u := chunk.Usage; u != nil {
		cached := 0
		if u.PromptTokensDetails != nil {
			cached = u.PromptTokensDetails.CachedTokens
		}
		s.msg.Usage.InputTokens = max(u.PromptTokens-cached, 0)
		s.msg.Usage.CacheReadTokens = cached
		s.msg.Usage.OutputTokens = u.CompletionTokens
		if u.CompletionTokensDetails != nil {
			s.msg.Usage.ReasoningTokens = u.CompletionTokensDetails.ReasoningTokens
		}
	}
	for _, ch := range chunk.Choices {
		if ch.Index != 0 {
			continue
		}
		thinking := ch.Delta.ReasoningContent
		if thinking == "" {
			thinking = ch.Delta.Reasoning
		}
		if thinking != "" {
			s.emit(chatbox.EventThinkingDelta{Index: s.blockIndex("thinking"), Delta: thinking})
		}
		if ch.Delta.Content != "" {
			s.emit(chatbox.EventTextDelta{Index: s.blockIndex("text"), Delta: ch.Delta.Content})
		}
		if ch.FinishReason != nil && *ch.FinishReason != "" {
			s.done = true
			s.msg.RawStopReason = *ch.FinishReason
			s.msg.StopReason = mapFinishReason(*ch.FinishReason)
		}
	}
	return nil
}

func (s *stream) emit(evt chatbox.Event) {
	s.msg.Content = chatbox.ApplyEvent(s.msg.Content, evt)
	s.pending = append(s.pending, evt)
}

// blockIndex returns the index of the block to append kind content to,
// opening a new block when the kind changes.
func (s *stream) blockIndex(kind string) int {
	if s.kind != kind || len(s.msg.Content) == 0 {
		s.kind = kind
		if kind == "thinking" {
			s.msg.Content = append(s.msg.Content, chatbox.ThinkingBlock{})
		} else {
			s.msg.Content = append(s.msg.Content, chatbox.TextBlock{})
		}
	}
	return len(s.msg.Content) - 1
}

func mapFinishReason(raw string) chatbox.StopReason {
	switch raw {
	case "stop":
		return chatbox.StopEndTurn
	case "length":
		return chatbox.StopLength
	case "content_filter":
		return chatbox.StopSafety
	default:
		return chatbox.StopUnknown
	}
}
