package json

import (
	"fmt"
	"time"

	"github.com/fwojciec/chatbox"
)

// messageDTO is the JSON representation of a Message with a role discriminator.
type messageDTO struct {
	ID                  string         `json:"id"`
	Role                string         `json:"role"`
	Content             []contentBlock `json:"content"`
	ThreadID            string         `json:"thread_id"`
	Generating          bool           `json:"generating,omitempty"`
	Status              string         `json:"status,omitempty"`
	Error               *errorDTO      `json:"error,omitempty"`
	Provider            string         `json:"provider,omitempty"`
	Model               string         `json:"model,omitempty"`
	StopReason          *string        `json:"stop_reason,omitempty"`
	RawStopReason       *string        `json:"raw_stop_reason,omitempty"`
	Usage               *usageDTO      `json:"usage,omitempty"`
	FirstTokenLatencyMS int64          `json:"first_token_latency_ms,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

type errorDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func marshalMessage(msg chatbox.Message) (messageDTO, error) {
	switch msg.Role {
	case chatbox.RoleUser, chatbox.RoleAssistant, chatbox.RoleSystem:
	default:
		return messageDTO{}, fmt.Errorf("unknown message role: %q", msg.Role)
	}
	blocks, err := marshalContentBlocks(msg.Content)
	if err != nil {
		return messageDTO{}, err
	}
	dto := messageDTO{
		ID:                  msg.ID,
		Role:                string(msg.Role),
		Content:             blocks,
		ThreadID:            msg.ThreadID,
		Generating:          msg.Generating,
		Status:              string(msg.Status),
		Provider:            string(msg.Provider),
		Model:               msg.Model,
		FirstTokenLatencyMS: msg.FirstTokenLatency.Milliseconds(),
		CreatedAt:           msg.CreatedAt,
		UpdatedAt:           msg.UpdatedAt,
	}
	if msg.Error != nil {
		dto.Error = &errorDTO{Kind: string(msg.Error.Kind), Message: msg.Error.Message}
	}
	if msg.Role == chatbox.RoleAssistant {
		sr := string(msg.StopReason)
		dto.StopReason = &sr
		dto.RawStopReason = &msg.RawStopReason
		dto.Usage = &usageDTO{
			InputTokens:     msg.Usage.InputTokens,
			OutputTokens:    msg.Usage.OutputTokens,
			ReasoningTokens: msg.Usage.ReasoningTokens,
			CacheReadTokens: msg.Usage.CacheReadTokens,
		}
	}
	return dto, nil
}

func unmarshalMessage(dto messageDTO) (chatbox.Message, error) {
	role := chatbox.Role(dto.Role)
	switch role {
	case chatbox.RoleUser, chatbox.RoleAssistant, chatbox.RoleSystem:
	default:
		return chatbox.Message{}, fmt.Errorf("unknown message role: %q", dto.Role)
	}
	blocks, err := unmarshalContentBlocks(dto.Content)
	if err != nil {
		return chatbox.Message{}, err
	}
	msg := chatbox.Message{
		ID:                dto.ID,
		Role:              role,
		Content:           blocks,
		ThreadID:          dto.ThreadID,
		Generating:        dto.Generating,
		Status:            chatbox.GenerationStatus(dto.Status),
		Provider:          chatbox.ProviderID(dto.Provider),
		Model:             dto.Model,
		FirstTokenLatency: time.Duration(dto.FirstTokenLatencyMS) * time.Millisecond,
		CreatedAt:         dto.CreatedAt,
		UpdatedAt:         dto.UpdatedAt,
	}
	if dto.Error != nil {
		msg.Error = &chatbox.MessageError{Kind: chatbox.ErrorKind(dto.Error.Kind), Message: dto.Error.Message}
	}
	if dto.StopReason != nil {
		msg.StopReason = chatbox.StopReason(*dto.StopReason)
	}
	if dto.RawStopReason != nil {
		msg.RawStopReason = *dto.RawStopReason
	}
	if dto.Usage != nil {
		msg.Usage = chatbox.Usage{
			InputTokens:     dto.Usage.InputTokens,
			OutputTokens:    dto.Usage.OutputTokens,
			ReasoningTokens: dto.Usage.ReasoningTokens,
			CacheReadTokens: dto.Usage.CacheReadTokens,
		}
	}
	return msg, nil
}

type usageDTO struct {
	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
	CacheReadTokens int `json:"cache_read_tokens,omitempty"`
}
