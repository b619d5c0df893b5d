package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/fwojciec/chatbox"
)

const (
	modelsPath = "/v1beta/models"
	uploadPath = "/upload/v1beta/files"
)

type apiModelList struct {
	Models *[]apiModel `json:"models"`
}

type apiModel struct {
	Name                       string   `json:"name"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

type apiUploadResponse struct {
	File *struct {
		URI string `json:"uri"`
	} `json:"file"`
	Name string `json:"name"`
}

// ListModels returns the Gemini models that support content generation,
// without the "models/" prefix, sorted.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	u := c.host + modelsPath + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var list apiModelList
	if err := json.Unmarshal(body, &list); err != nil || list.Models == nil {
		return nil, &chatbox.ProviderError{Provider: chatbox.ProviderGemini, Body: string(body)}
	}

	var names []string
	for _, m := range *list.Models {
		if !canGenerate(m.SupportedGenerationMethods) || !strings.Contains(m.Name, "gemini") {
			continue
		}
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

func canGenerate(methods []string) bool {
	return slices.ContainsFunc(methods, func(m string) bool {
		return strings.Contains(m, "generate")
	})
}

// UploadFile uploads f to the Gemini Files API and returns its URI, or its
// resource name when the response carries no URI.
func (c *Client) UploadFile(ctx context.Context, f chatbox.File) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+uploadPath, bytes.NewReader(f.Data))
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("x-goog-file-name", f.Name)
	req.Header.Set("Content-Type", f.MimeType)

	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	var resp apiUploadResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		if resp.File != nil && resp.File.URI != "" {
			return resp.File.URI, nil
		}
		if resp.Name != "" {
			return resp.Name, nil
		}
	}
	return "", &chatbox.ProviderError{
		Provider: chatbox.ProviderGemini,
		Message:  "upload response has no file reference",
		Body:     string(body),
	}
}

// do executes req and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("gemini: %w", ctxErr)
		}
		return nil, &chatbox.NetworkError{Provider: chatbox.ProviderGemini, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &chatbox.NetworkError{Provider: chatbox.ProviderGemini, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WarnContext(req.Context(), "gemini request failed", "path", req.URL.Path, "status", resp.StatusCode)
		return nil, &chatbox.ProviderError{
			Provider:   chatbox.ProviderGemini,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return body, nil
}
