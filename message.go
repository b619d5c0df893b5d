package chatbox

import (
	"strings"
	"time"
)

// GenerationStatus is the state of an assistant turn. Messages that were
// never generated (user and system messages) have an empty status.
type GenerationStatus string

const (
	StatusRequesting GenerationStatus = "requesting"
	StatusStreaming  GenerationStatus = "streaming"
	StatusCompleted  GenerationStatus = "completed"
	StatusCancelled  GenerationStatus = "cancelled"
	StatusErrored    GenerationStatus = "errored"
)

// Terminal reports whether no further transition can follow s.
func (s GenerationStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusErrored:
		return true
	}
	return false
}

// Message is one entry of a session's ordered message sequence.
//
// Invariant: at most one message per session has Generating set. Once
// Generating transitions to false the message is immutable.
type Message struct {
	ID       string
	Role     Role
	Content  []ContentBlock
	ThreadID string

	Generating bool
	Status     GenerationStatus
	Error      *MessageError

	Provider          ProviderID
	Model             string
	StopReason        StopReason
	RawStopReason     string
	Usage             Usage
	FirstTokenLatency time.Duration

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewMessage returns a message with a single text block.
func NewMessage(role Role, text string) Message {
	m := Message{Role: role}
	if text != "" {
		m.Content = []ContentBlock{TextBlock{Text: text}}
	}
	return m
}

// Text concatenates the message's text blocks.
func (m Message) Text() string {
	var sb strings.Builder
	for _, b := range m.Content {
		if tb, ok := b.(TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String()
}

// Thinking concatenates the message's thinking blocks.
func (m Message) Thinking() string {
	var sb strings.Builder
	for _, b := range m.Content {
		if tb, ok := b.(ThinkingBlock); ok {
			sb.WriteString(tb.Thinking)
		}
	}
	return sb.String()
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.Content != nil {
		m.Content = append([]ContentBlock(nil), m.Content...)
	}
	if m.Error != nil {
		e := *m.Error
		m.Error = &e
	}
	return m
}

// MessageError is the inline error indicator attached to a failed turn.
type MessageError struct {
	Kind    ErrorKind
	Message string
}

// ContentBlock is a sealed interface representing a block of content.
// The unexported marker method prevents external implementations.
type ContentBlock interface {
	contentBlock()
}

// TextBlock contains text content.
type TextBlock struct {
	Text string
}

func (TextBlock) contentBlock() {}

// ThinkingBlock contains thinking/reasoning content. Signature is opaque
// provider data that must be echoed back on later turns.
type ThinkingBlock struct {
	Thinking  string
	Signature []byte
}

func (ThinkingBlock) contentBlock() {}

// ImageBlock contains image data, inline or by storage key.
type ImageBlock struct {
	Data       []byte
	MimeType   string
	StorageKey string
}

func (ImageBlock) contentBlock() {}

// FileBlock references a file uploaded to a provider.
type FileBlock struct {
	Name     string
	MimeType string
	URI      string
}

func (FileBlock) contentBlock() {}

// Interface compliance checks.
var (
	_ ContentBlock = TextBlock{}
	_ ContentBlock = ThinkingBlock{}
	_ ContentBlock = ImageBlock{}
	_ ContentBlock = FileBlock{}
)
