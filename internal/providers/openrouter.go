package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	OpenRouterName    = "openrouter"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"

	defaultMaxTokens = 2000
)

// OpenRouterConfig holds configuration for the aggregator backend.
type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	Retry   RetryPolicy
	Logger  *slog.Logger
}

// OpenRouterCaller implements Caller against the OpenRouter chat
// completions API. Images are embedded as data URLs inside a single user
// message, preceded by a text part that names each attached image so the
// prompt can refer to them.
type OpenRouterCaller struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	retry   RetryPolicy
	logger  *slog.Logger
}

// NewOpenRouterCaller creates an aggregator caller.
func NewOpenRouterCaller(cfg OpenRouterConfig) *OpenRouterCaller {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenRouterBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = AggregatorRetryPolicy()
	}

	return &OpenRouterCaller{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		retry:  cfg.Retry,
		logger: cfg.Logger,
	}
}

// Name returns the backend identifier.
func (c *OpenRouterCaller) Name() string {
	return OpenRouterName
}

// Call sends the request. The aggregator policy retries any error, with a
// tight backoff cap, because aggregated upstreams fail in more varied
// ways than a single vendor API.
func (c *OpenRouterCaller) Call(ctx context.Context, req *Request) (string, error) {
	return callWithRetry(ctx, c.logger, c.retry, OpenRouterName, func() (string, error) {
		return c.complete(ctx, req)
	})
}

func (c *OpenRouterCaller) complete(ctx context.Context, req *Request) (string, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	orReq := openRouterRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
		Messages: []openRouterMessage{
			{Role: "user", Content: buildContent(req)},
		},
	}
	if len(req.Schema) > 0 {
		orReq.ResponseFormat = &openRouterResponseFormat{
			Type:       "json_schema",
			JSONSchema: req.Schema,
		}
	}

	orResp, err := c.doRequest(ctx, "/chat/completions", requestID, &orReq)
	if err != nil {
		return "", err
	}
	if len(orResp.Choices) == 0 {
		return "", &CallError{Backend: OpenRouterName, Message: "no choices in response"}
	}
	return orResp.Choices[0].Message.Content, nil
}

// buildContent assembles the multipart user message: prompt text plus an
// image-reference preamble, followed by each image as a data URL.
func buildContent(req *Request) []openRouterContent {
	text := req.Prompt
	if len(req.Images) > 0 {
		refs := "\n\nAttached images:"
		for _, img := range req.Images {
			refs += fmt.Sprintf("\n%s: <image:%s>", img.Name, img.Name)
		}
		text += refs
	}

	content := []openRouterContent{
		{Type: "text", Text: text},
	}
	for _, img := range req.Images {
		content = append(content, openRouterContent{
			Type: "image_url",
			ImageURL: &openRouterImageURL{
				URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(img.Data),
				Detail: "high",
			},
		})
	}
	return content
}

// doRequest performs one HTTP round trip. Retries happen a layer up.
func (c *OpenRouterCaller) doRequest(ctx context.Context, path, requestID string, body *openRouterRequest) (*openRouterResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Request-Id", requestID)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// Try to extract a structured error message first.
		var errResp openRouterErrorResponse
		msg := string(respBody)
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return nil, &CallError{Backend: OpenRouterName, StatusCode: resp.StatusCode, Message: msg}
	}

	var orResp openRouterResponse
	if err := json.Unmarshal(respBody, &orResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &orResp, nil
}

// OpenRouter API types

type openRouterRequest struct {
	Model          string                    `json:"model"`
	Messages       []openRouterMessage       `json:"messages"`
	Temperature    float64                   `json:"temperature,omitempty"`
	MaxTokens      int                       `json:"max_tokens,omitempty"`
	ResponseFormat *openRouterResponseFormat `json:"response_format,omitempty"`
}

type openRouterMessage struct {
	Role    string              `json:"role"`
	Content []openRouterContent `json:"content"`
}

type openRouterContent struct {
	Type     string              `json:"type"`
	Text     string              `json:"text,omitempty"`
	ImageURL *openRouterImageURL `json:"image_url,omitempty"`
}

type openRouterImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openRouterResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

type openRouterResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type openRouterErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Verify interface
var _ Caller = (*OpenRouterCaller)(nil)
