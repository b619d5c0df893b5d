package json

import (
	"encoding/base64"
	"fmt"

	"github.com/fwojciec/chatbox"
)

// contentBlock is the JSON representation of a ContentBlock with a type discriminator.
type contentBlock struct {
	Type       string  `json:"type"`
	Text       *string `json:"text,omitempty"`
	Thinking   *string `json:"thinking,omitempty"`
	Signature  *string `json:"signature,omitempty"`
	Data       *string `json:"data,omitempty"`
	MimeType   *string `json:"mime_type,omitempty"`
	StorageKey *string `json:"storage_key,omitempty"`
	Name       *string `json:"name,omitempty"`
	URI        *string `json:"uri,omitempty"`
}

func marshalContentBlocks(blocks []chatbox.ContentBlock) ([]contentBlock, error) {
	result := make([]contentBlock, len(blocks))
	for i, b := range blocks {
		cb, err := marshalContentBlock(b)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}
		result[i] = cb
	}
	return result, nil
}

func marshalContentBlock(b chatbox.ContentBlock) (contentBlock, error) {
	switch v := b.(type) {
	case chatbox.TextBlock:
		return contentBlock{Type: "text", Text: &v.Text}, nil
	case chatbox.ThinkingBlock:
		cb := contentBlock{Type: "thinking", Thinking: &v.Thinking}
		if len(v.Signature) > 0 {
			sig := base64.StdEncoding.EncodeToString(v.Signature)
			cb.Signature = &sig
		}
		return cb, nil
	case chatbox.ImageBlock:
		cb := contentBlock{Type: "image", MimeType: &v.MimeType}
		if len(v.Data) > 0 {
			encoded := base64.StdEncoding.EncodeToString(v.Data)
			cb.Data = &encoded
		}
		if v.StorageKey != "" {
			cb.StorageKey = &v.StorageKey
		}
		return cb, nil
	case chatbox.FileBlock:
		return contentBlock{Type: "file", Name: &v.Name, MimeType: &v.MimeType, URI: &v.URI}, nil
	default:
		return contentBlock{}, fmt.Errorf("unknown content block type: %T", b)
	}
}

func unmarshalContentBlocks(dtos []contentBlock) ([]chatbox.ContentBlock, error) {
	if len(dtos) == 0 {
		return nil, nil
	}
	result := make([]chatbox.ContentBlock, len(dtos))
	for i, dto := range dtos {
		b, err := unmarshalContentBlock(dto)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}
		result[i] = b
	}
	return result, nil
}

func unmarshalContentBlock(dto contentBlock) (chatbox.ContentBlock, error) {
	switch dto.Type {
	case "text":
		return chatbox.TextBlock{Text: deref(dto.Text)}, nil
	case "thinking":
		tb := chatbox.ThinkingBlock{Thinking: deref(dto.Thinking)}
		if dto.Signature != nil {
			sig, err := base64.StdEncoding.DecodeString(*dto.Signature)
			if err != nil {
				return nil, fmt.Errorf("decode thinking signature: %w", err)
			}
			tb.Signature = sig
		}
		return tb, nil
	case "image":
		var data []byte
		if dto.Data != nil {
			var err error
			data, err = base64.StdEncoding.DecodeString(*dto.Data)
			if err != nil {
				return nil, fmt.Errorf("decode image data: %w", err)
			}
		}
		return chatbox.ImageBlock{Data: data, MimeType: deref(dto.MimeType), StorageKey: deref(dto.StorageKey)}, nil
	case "file":
		return chatbox.FileBlock{Name: deref(dto.Name), MimeType: deref(dto.MimeType), URI: deref(dto.URI)}, nil
	default:
		return nil, fmt.Errorf("unknown content block type: %q", dto.Type)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
