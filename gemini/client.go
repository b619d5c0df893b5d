package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fwojciec/chatbox"
	"google.golang.org/genai"
)

// Interface compliance check.
var _ chatbox.Provider = (*Client)(nil)

// Client implements [chatbox.Provider] for the Google Gemini API.
type Client struct {
	client     *genai.Client
	apiKey     string
	host       string
	httpClient *http.Client
	model      string
	logger     *slog.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithHost sets the API host. A trailing /v1beta or /v1 is stripped.
func WithHost(host string) Option {
	return func(c *Client) { c.host = NormalizeHost(host) }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a new Gemini [Client] with the given API key and options.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	c := &Client{
		apiKey:     apiKey,
		host:       chatbox.DefaultGeminiHost,
		httpClient: http.DefaultClient,
		model:      defaultModel,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  c.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: c.host + "/"},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	c.client = gc
	return c, nil
}

// ID returns [chatbox.ProviderGemini].
func (c *Client) ID() chatbox.ProviderID { return chatbox.ProviderGemini }

// Capabilities reports the static capabilities of model.
func (c *Client) Capabilities(model string) chatbox.Capabilities {
	if model == "" {
		model = c.model
	}
	return ModelCapabilities(model)
}

// Stream sends a streaming request to the Gemini API and returns a
// [chatbox.Stream] that emits semantic events.
func (c *Client) Stream(ctx context.Context, req chatbox.Request) (chatbox.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	model := req.Model
	if model == "" {
		model = c.model
	}

	contents := ConvertMessages(req.Messages)
	config := BuildConfig(model, req)
	c.logger.DebugContext(ctx, "gemini stream", "model", model, "contents", len(contents))

	iter := c.client.Models.GenerateContentStream(ctx, model, contents, config)
	return newStream(ctx, iter), nil
}

// BuildConfig translates request parameters into a genai config for model.
// Exported for testing.
func BuildConfig(model string, req chatbox.Request) *genai.GenerateContentConfig {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	caps := ModelCapabilities(model)
	if caps.Reasoning {
		config.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
		if req.ThinkingBudget > 0 {
			budget := int32(req.ThinkingBudget)
			config.ThinkingConfig.ThinkingBudget = &budget
		}
	}
	if model == imageGenerationModel {
		config.ResponseModalities = []string{"TEXT", "IMAGE"}
	}

	if system := systemText(req); system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		config.Temperature = &temp
	}
	if req.TopP != nil {
		topP := float32(*req.TopP)
		config.TopP = &topP
	}

	return config
}

// systemText joins the request system prompt with any system-role messages.
func systemText(req chatbox.Request) string {
	var parts []string
	if req.SystemPrompt != "" {
		parts = append(parts, req.SystemPrompt)
	}
	for _, m := range req.Messages {
		if m.Role == chatbox.RoleSystem {
			if t := m.Text(); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// ConvertMessages converts chatbox Messages to genai Contents. System-role
// messages are skipped; they travel in the system instruction.
// Exported for testing.
func ConvertMessages(msgs []chatbox.Message) []*genai.Content {
	var result []*genai.Content
	for _, m := range msgs {
		var role string
		switch m.Role {
		case chatbox.RoleUser:
			role = string(genai.RoleUser)
		case chatbox.RoleAssistant:
			role = string(genai.RoleModel)
		default:
			continue
		}
		parts := convertParts(m.Content)
		if len(parts) == 0 {
			continue
		}
		result = append(result, &genai.Content{Role: role, Parts: parts})
	}
	return result
}

func convertParts(blocks []chatbox.ContentBlock) []*genai.Part {
	var parts []*genai.Part
	for _, b := range blocks {
		switch bl := b.(type) {
		case chatbox.TextBlock:
			if bl.Text == "" {
				continue
			}
			parts = append(parts, &genai.Part{Text: bl.Text})
		case chatbox.ThinkingBlock:
			p := &genai.Part{Text: bl.Thinking, Thought: true}
			if bl.Signature != nil {
				p.ThoughtSignature = bl.Signature
			}
			parts = append(parts, p)
		case chatbox.ImageBlock:
			if len(bl.Data) == 0 {
				continue
			}
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{
					MIMEType: bl.MimeType,
					Data:     bl.Data,
				},
			})
		case chatbox.FileBlock:
			parts = append(parts, &genai.Part{
				FileData: &genai.FileData{
					FileURI:  bl.URI,
					MIMEType: bl.MimeType,
				},
			})
		}
	}
	return parts
}
