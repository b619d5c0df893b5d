package openai

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

// Client implements [chatbox.Provider] for OpenAI-compatible APIs.
type Client struct {
	id         chatbox.ProviderID
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
	logger     *slog.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. A trailing /v1 is stripped.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = normalizeBaseURL(url) }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithProviderID sets the ID reported by the client and stamped on errors
// and messages. Default is [chatbox.ProviderOpenAI].
func WithProviderID(id chatbox.ProviderID) Option {
	return func(c *Client) { c.id = id }
}

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithLogger sets the logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a new [Client]. apiKey may be empty for hosts that need no
// authentication.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		id:         chatbox.ProviderOpenAI,
		apiKey:     apiKey,
		baseURL:    chatbox.DefaultOpenAIHost,
		httpClient: http.DefaultClient,
		model:      defaultModel,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ID returns the configured provider ID.
func (c *Client) ID() chatbox.ProviderID { return c.id }

// Capabilities reports the static capabilities of model.
func (c *Client) Capabilities(model string) chatbox.Capabilities {
	if model == "" {
		model = c.model
	}
	return ModelCapabilities(model)
}

// Stream sends a streaming chat completion request and returns a
// [chatbox.Stream] that emits semantic events.
func (c *Client) Stream(ctx context.Context, req chatbox.Request) (chatbox.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", c.id, err)
	}
	body, err := c.buildRequestBody(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.id, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatCompletionPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.id, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	c.authorize(httpReq)

	resp, err := c.send(httpReq)
	if err != nil {
		return nil, err
	}
	return newStream(ctx, c.id, resp.Body), nil
}

func (c *Client) buildRequestBody(req chatbox.Request) ([]byte, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	msgs, err := convertMessages(req)
	if err != nil {
		return nil, err
	}

	apiReq := apiRequest{
		Model:         model,
		Messages:      msgs,
		Stream:        true,
		StreamOptions: &apiStreamOptions{IncludeUsage: true},
	}
	if isOSeries(model) {
		apiReq.MaxCompletionTokens = req.MaxTokens
	} else {
		apiReq.MaxTokens = req.MaxTokens
		apiReq.Temperature = req.Temperature
		apiReq.TopP = req.TopP
	}
	return json.Marshal(apiReq)
}

func convertMessages(req chatbox.Request) ([]apiMessage, error) {
	var result []apiMessage
	if req.SystemPrompt != "" {
		m, err := textMessage("system", req.SystemPrompt)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	for _, msg := range req.Messages {
		var (
			m   apiMessage
			err error
		)
		switch msg.Role {
		case chatbox.RoleSystem:
			m, err = textMessage("system", msg.Text())
		case chatbox.RoleAssistant:
			m, err = textMessage("assistant", msg.Text())
		case chatbox.RoleUser:
			m, err = userMessage(msg.Content)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, nil
}

func textMessage(role, text string) (apiMessage, error) {
	raw, err := json.Marshal(text)
	if err != nil {
		return apiMessage{}, err
	}
	return apiMessage{Role: role, Content: raw}, nil
}

// userMessage sends plain text as a string and anything with attachments as
// an array of parts.
func userMessage(blocks []chatbox.ContentBlock) (apiMessage, error) {
	var (
		parts    []apiPart
		textOnly = true
	)
	for _, b := range blocks {
		switch bl := b.(type) {
		case chatbox.TextBlock:
			parts = append(parts, apiPart{Type: "text", Text: bl.Text})
		case chatbox.ImageBlock:
			textOnly = false
			url := "data:" + bl.MimeType + ";base64," + base64.StdEncoding.EncodeToString(bl.Data)
			parts = append(parts, apiPart{Type: "image_url", ImageURL: &apiImageURL{URL: url}})
		case chatbox.FileBlock:
			textOnly = false
			parts = append(parts, apiPart{Type: "file", File: &apiFile{FileID: bl.URI}})
		}
	}
	if textOnly {
		return textMessage("user", chatbox.Message{Content: blocks}.Text())
	}
	raw, err := json.Marshal(parts)
	if err != nil {
		return apiMessage{}, err
	}
	return apiMessage{Role: "user", Content: raw}, nil
}

// ListModels returns the host's chat-capable models, sorted.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+modelsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.id, err)
	}
	c.authorize(req)

	body, err := c.read(req)
	if err != nil {
		return nil, err
	}
	var list apiModelList
	if err := json.Unmarshal(body, &list); err != nil || list.Data == nil {
		return nil, &chatbox.ProviderError{Provider: c.id, Body: string(body)}
	}

	var ids []string
	for _, m := range *list.Data {
		if isChatModel(m.ID) {
			ids = append(ids, m.ID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// UploadFile uploads f to the Files API with purpose user_data and returns
// the file ID.
func (c *Client) UploadFile(ctx context.Context, f chatbox.File) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("purpose", "user_data"); err != nil {
		return "", fmt.Errorf("%s: %w", c.id, err)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
	h.Set("Content-Type", f.MimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.id, err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return "", fmt.Errorf("%s: %w", c.id, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%s: %w", c.id, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+filesPath, &buf)
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.id, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.authorize(req)

	body, err := c.read(req)
	if err != nil {
		return "", err
	}
	var obj apiFileObject
	if err := json.Unmarshal(body, &obj); err != nil || obj.ID == "" {
		return "", &chatbox.ProviderError{Provider: c.id, Message: "upload response has no file id", Body: string(body)}
	}
	return obj.ID, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// send executes req and returns the response when it is 2xx. The caller owns
// the response body.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", c.id, ctxErr)
		}
		return nil, &chatbox.NetworkError{Provider: c.id, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		c.logger.WarnContext(req.Context(), "request failed", "provider", c.id, "path", req.URL.Path, "status", resp.StatusCode)
		return nil, parseHTTPError(c.id, resp)
	}
	return resp, nil
}

// read executes req and returns the full body of a 2xx response.
func (c *Client) read(req *http.Request) ([]byte, error) {
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &chatbox.NetworkError{Provider: c.id, Err: err}
	}
	return body, nil
}

func parseHTTPError(id chatbox.ProviderID, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	pe := &chatbox.ProviderError{Provider: id, StatusCode: resp.StatusCode, Body: string(body)}
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		pe.Message = strings.TrimSpace(apiErr.Error.Message)
	}
	return pe
}
