package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fwojciec/chatbox"
	"github.com/fwojciec/chatbox/sse"
)

// stream implements [chatbox.Stream] by parsing SSE events from an HTTP response body.
type stream struct {
	body   io.ReadCloser
	events *sse.Reader
	ctx    context.Context
	state  chatbox.StreamState
	msg    chatbox.Message
	blocks map[int]*blockState
	err    error // terminal error, if any
}

// blockState tracks the state of a content block being assembled.
type blockState struct {
	blockType   string
	textBuf     strings.Builder
	thinkingBuf strings.Builder
	signature   strings.Builder
}

// Interface compliance check.
var _ chatbox.Stream = (*stream)(nil)

func newStream(ctx context.Context, body io.ReadCloser) *stream {
	return &stream{
		body:   body,
		events: sse.NewReader(body),
		ctx:    ctx,
		state:  chatbox.StreamStateNew,
		msg:    chatbox.Message{Role: chatbox.RoleAssistant, Provider: chatbox.ProviderAnthropic},
		blocks: make(map[int]*blockState),
	}
}

// Next reads the next semantic event from the SSE stream.
// Returns io.EOF when the stream completes normally.
func (s *stream) Next() (chatbox.Event, error) {
	switch s.state {
	case chatbox.StreamStateComplete:
		return nil, io.EOF
	case chatbox.StreamStateError:
		return nil, s.err
	case chatbox.StreamStateClosed:
		return nil, fmt.Errorf("anthropic: %w", chatbox.ErrStreamClosed)
	}

	for {
		sseEvt, err := s.events.Next()
		if err != nil {
			s.terminate(err)
			return nil, s.err
		}

		s.state = chatbox.StreamStateStreaming

		evt, err := s.processEvent(sseEvt.Type, sseEvt.Data)
		if err != nil {
			s.terminate(err)
			return nil, s.err
		}

		// processEvent may set a terminal state (e.g. message_stop).
		if s.state == chatbox.StreamStateComplete {
			return nil, io.EOF
		}

		if evt != nil {
			return evt, nil
		}
		// Non-semantic event (ping, message_start, etc.) - keep reading.
	}
}

// State returns the current stream state.
func (s *stream) State() chatbox.StreamState {
	return s.state
}

// Message returns the assembled assistant message.
func (s *stream) Message() (chatbox.Message, error) {
	if s.state == chatbox.StreamStateNew {
		return chatbox.Message{}, fmt.Errorf("anthropic: %w", chatbox.ErrStreamNotReady)
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

// terminate records a terminal error and sets the appropriate state and stop reason.
func (s *stream) terminate(err error) {
	s.state = chatbox.StreamStateError
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		s.err = fmt.Errorf("anthropic: %w", ctxErr)
		s.msg.StopReason = chatbox.StopAborted
		s.msg.RawStopReason = "aborted"
		return
	}
	s.msg.StopReason = chatbox.StopError
	s.msg.RawStopReason = "error"

	var provErr *chatbox.ProviderError
	switch {
	case errors.Is(err, io.EOF):
		// Normal completion via message_stop sets StreamStateComplete before
		// we get here. A raw EOF means the stream ended unexpectedly.
		s.err = &chatbox.NetworkError{Provider: chatbox.ProviderAnthropic, Err: errors.New("unexpected end of stream")}
	case errors.As(err, &provErr):
		s.err = err
	default:
		s.err = &chatbox.NetworkError{Provider: chatbox.ProviderAnthropic, Err: err}
	}
}

// processEvent maps an SSE event to a semantic chatbox.Event.
// Returns nil event for non-semantic events (ping, message_start, etc.).
func (s *stream) processEvent(eventType, data string) (chatbox.Event, error) {
	switch eventType {
	case "message_start":
		return nil, s.handleMessageStart(data)
	case "content_block_start":
		return nil, s.handleContentBlockStart(data)
	case "content_block_delta":
		return s.handleContentBlockDelta(data)
	case "content_block_stop", "ping":
		return nil, nil
	case "message_delta":
		return nil, s.handleMessageDelta(data)
	case "message_stop":
		s.state = chatbox.StreamStateComplete
		return nil, nil
	case "error":
		return nil, s.handleError(data)
	default:
		// Unknown event types are ignored.
		return nil, nil
	}
}

func malformed(event, data string) error {
	return &chatbox.ProviderError{
		Provider: chatbox.ProviderAnthropic,
		Message:  "failed to parse " + event,
		Body:     data,
	}
}

func outOfRange(event string, index int, data string) error {
	return &chatbox.ProviderError{
		Provider: chatbox.ProviderAnthropic,
		Message:  fmt.Sprintf("%s: block index %d out of range", event, index),
		Body:     data,
	}
}

func (s *stream) handleMessageStart(data string) error {
	var evt sseMessageStart
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return malformed("message_start", data)
	}
	s.msg.Model = evt.Message.Model
	s.msg.Usage.InputTokens = evt.Message.Usage.InputTokens
	if evt.Message.Usage.CacheReadInputTokens != nil {
		s.msg.Usage.CacheReadTokens = *evt.Message.Usage.CacheReadInputTokens
	}
	return nil
}

func (s *stream) handleContentBlockStart(data string) error {
	var evt sseContentBlockStart
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return malformed("content_block_start", data)
	}
	if evt.Index < 0 || evt.Index >= chatbox.MaxContentBlocks {
		return outOfRange("content_block_start", evt.Index, data)
	}

	s.blocks[evt.Index] = &blockState{blockType: evt.ContentBlock.Type}

	// Grow content slice to accommodate this index.
	for len(s.msg.Content) <= evt.Index {
		s.msg.Content = append(s.msg.Content, chatbox.TextBlock{})
	}
	if evt.ContentBlock.Type == "thinking" {
		s.msg.Content[evt.Index] = chatbox.ThinkingBlock{}
	}
	return nil
}

func (s *stream) handleContentBlockDelta(data string) (chatbox.Event, error) {
	var evt sseContentBlockDelta
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return nil, malformed("content_block_delta", data)
	}
	if evt.Index < 0 || evt.Index >= len(s.msg.Content) {
		return nil, outOfRange("content_block_delta", evt.Index, data)
	}

	bs := s.blocks[evt.Index]
	if bs == nil {
		return nil, &chatbox.ProviderError{
			Provider: chatbox.ProviderAnthropic,
			Message:  fmt.Sprintf("delta for unknown block index %d", evt.Index),
			Body:     data,
		}
	}

	switch evt.Delta.Type {
	case "text_delta":
		bs.textBuf.WriteString(evt.Delta.Text)
		s.msg.Content[evt.Index] = chatbox.TextBlock{Text: bs.textBuf.String()}
		return chatbox.EventTextDelta{Index: evt.Index, Delta: evt.Delta.Text}, nil
	case "thinking_delta":
		bs.thinkingBuf.WriteString(evt.Delta.Thinking)
		s.msg.Content[evt.Index] = s.thinkingBlock(bs)
		return chatbox.EventThinkingDelta{Index: evt.Index, Delta: evt.Delta.Thinking}, nil
	case "signature_delta":
		// Internal use only; not exposed as a semantic event.
		bs.signature.WriteString(evt.Delta.Signature)
		s.msg.Content[evt.Index] = s.thinkingBlock(bs)
		return nil, nil
	default:
		return nil, nil
	}
}

func (s *stream) thinkingBlock(bs *blockState) chatbox.ThinkingBlock {
	tb := chatbox.ThinkingBlock{Thinking: bs.thinkingBuf.String()}
	if bs.signature.Len() > 0 {
		tb.Signature = []byte(bs.signature.String())
	}
	return tb
}

func (s *stream) handleMessageDelta(data string) error {
	var evt sseMessageDelta
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return malformed("message_delta", data)
	}

	s.msg.Usage.OutputTokens = evt.Usage.OutputTokens

	if evt.Delta.StopReason != nil {
		s.msg.RawStopReason = *evt.Delta.StopReason
		s.msg.StopReason = mapStopReason(*evt.Delta.StopReason)
	}

	return nil
}

func (s *stream) handleError(data string) error {
	var evt sseError
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return malformed("error event", data)
	}
	return &chatbox.ProviderError{
		Provider: chatbox.ProviderAnthropic,
		Message:  evt.Error.Type + ": " + evt.Error.Message,
		Body:     data,
	}
}

func mapStopReason(raw string) chatbox.StopReason {
	switch raw {
	case "end_turn", "stop_sequence":
		return chatbox.StopEndTurn
	case "max_tokens":
		return chatbox.StopLength
	case "refusal":
		return chatbox.StopSafety
	default:
		return chatbox.StopUnknown
	}
}
