package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"slices"
	"strings"

	"github.com/fwojciec/chatbox"
)

// Interface compliance check.
var _ chatbox.Provider = (*Client)(nil)

// Client implements [chatbox.Provider] for the Anthropic Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
	logger     *slog.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(strings.TrimRight(url, "/"), "/v1") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithLogger sets the logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a new Anthropic [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    chatbox.DefaultAnthropicHost,
		httpClient: http.DefaultClient,
		model:      defaultModel,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ID returns [chatbox.ProviderAnthropic].
func (c *Client) ID() chatbox.ProviderID { return chatbox.ProviderAnthropic }

// Capabilities reports the static capabilities of model.
func (c *Client) Capabilities(model string) chatbox.Capabilities {
	if model == "" {
		model = c.model
	}
	return ModelCapabilities(model)
}

// Stream sends a streaming request to the Anthropic Messages API and returns
// a [chatbox.Stream] that emits semantic events.
func (c *Client) Stream(ctx context.Context, req chatbox.Request) (chatbox.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	body, usesFiles, err := c.buildRequestBody(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if usesFiles {
		httpReq.Header.Set("Anthropic-Beta", filesBeta)
	}
	c.authorize(httpReq)

	resp, err := c.send(httpReq)
	if err != nil {
		return nil, err
	}
	return newStream(ctx, resp.Body), nil
}

// buildRequestBody reports whether the body references uploaded files, which
// requires the files beta header.
func (c *Client) buildRequestBody(req chatbox.Request) ([]byte, bool, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	msgs, usesFiles := convertMessages(req.Messages)
	apiReq := apiRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Stream:      true,
		System:      convertSystem(req),
		Messages:    msgs,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if req.ThinkingBudget > 0 && supportsThinking(model) {
		apiReq.Thinking = &apiThinking{Type: "enabled", BudgetTokens: req.ThinkingBudget}
		if apiReq.MaxTokens <= req.ThinkingBudget {
			apiReq.MaxTokens = req.ThinkingBudget + defaultMaxTokens
		}
		// Extended thinking rejects sampling overrides.
		apiReq.Temperature = nil
		apiReq.TopP = nil
	}
	injectCacheMarkers(&apiReq)

	body, err := json.Marshal(apiReq)
	return body, usesFiles, err
}

// convertSystem collects the system prompt and any system-role messages into
// system content blocks. Returns nil when there are none.
func convertSystem(req chatbox.Request) []apiContentBlock {
	var blocks []apiContentBlock
	if req.SystemPrompt != "" {
		blocks = append(blocks, apiContentBlock{Type: "text", Text: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		if m.Role == chatbox.RoleSystem && m.Text() != "" {
			blocks = append(blocks, apiContentBlock{Type: "text", Text: m.Text()})
		}
	}
	return blocks
}

// injectCacheMarkers sets cache_control breakpoints on the request:
//  1. Top-level: automatic caching for the conversation message window.
//  2. System prompt last block: stable content breakpoint.
func injectCacheMarkers(req *apiRequest) {
	cc := &apiCacheControl{Type: "ephemeral"}
	req.CacheControl = cc
	if len(req.System) > 0 {
		req.System[len(req.System)-1].CacheControl = cc
	}
}

func convertMessages(msgs []chatbox.Message) ([]apiMessage, bool) {
	var (
		result    []apiMessage
		usesFiles bool
	)
	for _, m := range msgs {
		var role string
		switch m.Role {
		case chatbox.RoleUser:
			role = "user"
		case chatbox.RoleAssistant:
			role = "assistant"
		default:
			continue
		}
		blocks, files := convertContentBlocks(m.Content)
		if len(blocks) == 0 {
			continue
		}
		usesFiles = usesFiles || files
		result = append(result, apiMessage{Role: role, Content: blocks})
	}
	return result, usesFiles
}

func convertContentBlocks(blocks []chatbox.ContentBlock) ([]apiContentBlock, bool) {
	var (
		result    = make([]apiContentBlock, 0, len(blocks))
		usesFiles bool
	)
	for _, b := range blocks {
		switch bl := b.(type) {
		case chatbox.TextBlock:
			if bl.Text == "" {
				continue
			}
			result = append(result, apiContentBlock{Type: "text", Text: bl.Text})
		case chatbox.ThinkingBlock:
			// Thinking without a signature is rejected on replay.
			if len(bl.Signature) == 0 {
				continue
			}
			result = append(result, apiContentBlock{Type: "thinking", Thinking: bl.Thinking, Signature: string(bl.Signature)})
		case chatbox.ImageBlock:
			if len(bl.Data) == 0 {
				continue
			}
			result = append(result, apiContentBlock{
				Type: "image",
				Source: &apiSource{
					Type:      "base64",
					MediaType: bl.MimeType,
					Data:      base64.StdEncoding.EncodeToString(bl.Data),
				},
			})
		case chatbox.FileBlock:
			usesFiles = true
			blockType := "document"
			if strings.HasPrefix(bl.MimeType, "image/") {
				blockType = "image"
			}
			result = append(result, apiContentBlock{
				Type:   blockType,
				Source: &apiSource{Type: "file", FileID: bl.URI},
			})
		}
	}
	return result, usesFiles
}

// ListModels returns the available Claude models, sorted.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+modelsPath+"?limit=1000", nil)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	c.authorize(req)

	body, err := c.read(req)
	if err != nil {
		return nil, err
	}
	var list apiModelList
	if err := json.Unmarshal(body, &list); err != nil || list.Data == nil {
		return nil, &chatbox.ProviderError{Provider: chatbox.ProviderAnthropic, Body: string(body)}
	}
	ids := make([]string, 0, len(*list.Data))
	for _, m := range *list.Data {
		ids = append(ids, m.ID)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// UploadFile uploads f to the Files API and returns the file ID.
func (c *Client) UploadFile(ctx context.Context, f chatbox.File) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
	h.Set("Content-Type", f.MimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+filesPath, &buf)
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Anthropic-Beta", filesBeta)
	c.authorize(req)

	body, err := c.read(req)
	if err != nil {
		return "", err
	}
	var obj apiFileObject
	if err := json.Unmarshal(body, &obj); err != nil || obj.ID == "" {
		return "", &chatbox.ProviderError{Provider: chatbox.ProviderAnthropic, Message: "upload response has no file id", Body: string(body)}
	}
	return obj.ID, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Anthropic-Version", apiVersion)
}

// send executes req and returns the response when it is 2xx. The caller owns
// the response body.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("anthropic: %w", ctxErr)
		}
		return nil, &chatbox.NetworkError{Provider: chatbox.ProviderAnthropic, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		c.logger.WarnContext(req.Context(), "anthropic request failed", "path", req.URL.Path, "status", resp.StatusCode)
		return nil, parseHTTPError(resp)
	}
	return resp, nil
}

func (c *Client) read(req *http.Request) ([]byte, error) {
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &chatbox.NetworkError{Provider: chatbox.ProviderAnthropic, Err: err}
	}
	return body, nil
}

func parseHTTPError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	pe := &chatbox.ProviderError{
		Provider:   chatbox.ProviderAnthropic,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		pe.Message = apiErr.Error.Type + ": " + apiErr.Error.Message
	}
	return pe
}
