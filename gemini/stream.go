package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/fwojciec/chatbox"
	"google.golang.org/genai"
)

// stream implements [chatbox.Stream] by wrapping the genai SDK's streaming
// iterator. Each response chunk may carry several parts; the resulting
// events are queued and handed out one per Next call.
type stream struct {
	ctx     context.Context
	pull    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	state   chatbox.StreamState
	msg     chatbox.Message
	err     error
	pending []chatbox.Event

	// kind of the block currently being appended to: "", "text" or "thinking".
	kind string
}

// Interface compliance check.
var _ chatbox.Stream = (*stream)(nil)

// NewStreamFromIter wraps a genai response iterator as a [chatbox.Stream].
// Exported for testing.
func NewStreamFromIter(ctx context.Context, seq iter.Seq2[*genai.GenerateContentResponse, error]) chatbox.Stream {
	return newStream(ctx, seq)
}

func newStream(ctx context.Context, seq iter.Seq2[*genai.GenerateContentResponse, error]) *stream {
	next, stop := iter.Pull2(seq)
	return &stream{
		ctx:   ctx,
		pull:  next,
		stop:  stop,
		state: chatbox.StreamStateNew,
		msg:   chatbox.Message{Role: chatbox.RoleAssistant, Provider: chatbox.ProviderGemini},
	}
}

// Next returns the next semantic event. Returns io.EOF when the stream
// completes normally.
func (s *stream) Next() (chatbox.Event, error) {
	switch s.state {
	case chatbox.StreamStateComplete:
		return nil, io.EOF
	case chatbox.StreamStateError:
		return nil, s.err
	case chatbox.StreamStateClosed:
		return nil, fmt.Errorf("gemini: %w", chatbox.ErrStreamClosed)
	}

	for len(s.pending) == 0 {
		if err := s.ctx.Err(); err != nil {
			s.terminate(err)
			return nil, s.err
		}
		resp, err, ok := s.pull()
		if !ok {
			s.complete()
			return nil, io.EOF
		}
		if err != nil {
			s.terminate(err)
			return nil, s.err
		}
		s.state = chatbox.StreamStateStreaming
		s.processChunk(resp)
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
		return chatbox.Message{}, fmt.Errorf("gemini: %w", chatbox.ErrStreamNotReady)
	}
	return s.msg.Clone(), nil
}

func (s *stream) Close() error {
	if s.state != chatbox.StreamStateComplete && s.state != chatbox.StreamStateError {
		s.state = chatbox.StreamStateClosed
		s.msg.StopReason = chatbox.StopAborted
		s.msg.RawStopReason = "aborted"
	}
	s.stop()
	return nil
}

func (s *stream) complete() {
	s.state = chatbox.StreamStateComplete
	if s.msg.RawStopReason == "" {
		s.msg.StopReason = chatbox.StopEndTurn
		s.msg.RawStopReason = "end_turn"
	}
}

func (s *stream) terminate(err error) {
	s.state = chatbox.StreamStateError
	if s.ctx.Err() != nil || errors.Is(err, context.Canceled) {
		s.err = fmt.Errorf("gemini: %w", err)
		s.msg.StopReason = chatbox.StopAborted
		s.msg.RawStopReason = "aborted"
		return
	}
	s.err = classifyError(err)
	s.msg.StopReason = chatbox.StopError
	s.msg.RawStopReason = "error"
}

// classifyError maps SDK errors onto the chatbox error taxonomy.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &chatbox.ProviderError{
			Provider:   chatbox.ProviderGemini,
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Body:       apiErr.Error(),
		}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &chatbox.ProviderError{
			Provider:   chatbox.ProviderGemini,
			StatusCode: apiErrPtr.Code,
			Message:    apiErrPtr.Message,
			Body:       apiErrPtr.Error(),
		}
	}
	return fmt.Errorf("gemini: %w", err)
}

func (s *stream) processChunk(resp *genai.GenerateContentResponse) {
	if resp == nil {
		return
	}
	if u := resp.UsageMetadata; u != nil {
		cached := int(u.CachedContentTokenCount)
		s.msg.Usage.InputTokens = max(int(u.PromptTokenCount)-cached, 0)
		s.msg.Usage.OutputTokens = int(u.CandidatesTokenCount)
		s.msg.Usage.ReasoningTokens = int(u.ThoughtsTokenCount)
		s.msg.Usage.CacheReadTokens = cached
	}
	if resp.ModelVersion != "" {
		s.msg.Model = resp.ModelVersion
	}
	if len(resp.Candidates) == 0 {
		return
	}
	cand := resp.Candidates[0]
	if cand.FinishReason != "" {
		s.msg.RawStopReason = string(cand.FinishReason)
		s.msg.StopReason = mapFinishReason(cand.FinishReason)
	}
	if cand.Content == nil {
		return
	}
	for _, p := range cand.Content.Parts {
		s.processPart(p)
	}
}

func (s *stream) processPart(p *genai.Part) {
	switch {
	case p == nil:
	case p.InlineData != nil:
		idx := len(s.msg.Content)
		evt := chatbox.EventImage{Index: idx, Data: p.InlineData.Data, MimeType: p.InlineData.MIMEType}
		s.msg.Content = chatbox.ApplyEvent(s.msg.Content, evt)
		s.kind = ""
		s.pending = append(s.pending, evt)
	case p.Thought:
		idx := s.blockIndex("thinking")
		if p.Text != "" {
			evt := chatbox.EventThinkingDelta{Index: idx, Delta: p.Text}
			s.msg.Content = chatbox.ApplyEvent(s.msg.Content, evt)
			s.pending = append(s.pending, evt)
		}
		if len(p.ThoughtSignature) > 0 {
			tb, _ := s.msg.Content[idx].(chatbox.ThinkingBlock)
			tb.Signature = p.ThoughtSignature
			s.msg.Content[idx] = tb
		}
	case p.Text != "":
		idx := s.blockIndex("text")
		evt := chatbox.EventTextDelta{Index: idx, Delta: p.Text}
		s.msg.Content = chatbox.ApplyEvent(s.msg.Content, evt)
		s.pending = append(s.pending, evt)
	}
}

// blockIndex returns the index of the block to append kind content to,
// opening a new block when the kind changes.
func (s *stream) blockIndex(kind string) int {
	if s.kind == kind && len(s.msg.Content) > 0 {
		return len(s.msg.Content) - 1
	}
	s.kind = kind
	idx := len(s.msg.Content)
	if kind == "thinking" {
		s.msg.Content = append(s.msg.Content, chatbox.ThinkingBlock{})
	} else {
		s.msg.Content = append(s.msg.Content, chatbox.TextBlock{})
	}
	return idx
}

func mapFinishReason(r genai.FinishReason) chatbox.StopReason {
	switch r {
	case genai.FinishReasonStop:
		return chatbox.StopEndTurn
	case genai.FinishReasonMaxTokens:
		return chatbox.StopLength
	}
	switch string(r) {
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII", "IMAGE_SAFETY":
		return chatbox.StopSafety
	default:
		return chatbox.StopUnknown
	}
}
