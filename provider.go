package chatbox

import (
	"context"
	"time"
)

// ProviderID names a provider variant. Adapters are selected by this field,
// never by runtime type inspection.
type ProviderID string

const (
	ProviderGemini    ProviderID = "gemini"
	ProviderOpenAI    ProviderID = "openai"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderOllama    ProviderID = "ollama"
)

// Capabilities are static per-model flags reported by an adapter.
type Capabilities struct {
	SystemMessage bool // accepts a system instruction
	Reasoning     bool // can stream thinking content
	Vision        bool // accepts image and file input
	ImageOutput   bool // can return generated images
}

// File is raw attachment data handed to Provider.UploadFile.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Provider normalizes one vendor's chat API into a common contract.
type Provider interface {
	ID() ProviderID
	Capabilities(model string) Capabilities
	// ListModels returns the provider's chat-capable models, sorted.
	ListModels(ctx context.Context) ([]string, error)
	// UploadFile uploads raw bytes and returns a provider-scoped reference.
	UploadFile(ctx context.Context, f File) (string, error)
	// Stream starts a chat completion. The request is passed by value;
	// providers must not mutate the caller's slices.
	Stream(ctx context.Context, req Request) (Stream, error)
}

// AttachmentStatus is the upload state of an AttachedFile.
type AttachmentStatus string

const (
	AttachmentUploading AttachmentStatus = "uploading"
	AttachmentReady     AttachmentStatus = "ready"
)

// AttachedFile tracks one attachment through its upload.
type AttachedFile struct {
	Name      string
	MimeType  string
	Status    AttachmentStatus
	URI       string
	UpdatedAt time.Time
}
