package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const GeminiName = "gemini"

// GeminiConfig holds configuration for the direct Gemini backend.
type GeminiConfig struct {
	APIKey string
	Model  string
	Retry  RetryPolicy
	Logger *slog.Logger
}

// GeminiCaller sends requests straight to the Gemini API, with images
// inlined as ordered parts after the prompt text.
type GeminiCaller struct {
	client *genai.Client
	model  string
	retry  RetryPolicy
	logger *slog.Logger
}

// NewGeminiCaller creates a Gemini caller. The client is constructed once
// and reused across calls.
func NewGeminiCaller(cfg GeminiConfig) (*GeminiCaller, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model name is required")
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DirectRetryPolicy()
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiCaller{
		client: client,
		model:  cfg.Model,
		retry:  cfg.Retry,
		logger: cfg.Logger,
	}, nil
}

// Name returns the backend identifier.
func (c *GeminiCaller) Name() string {
	return GeminiName
}

// Close releases the underlying API client.
func (c *GeminiCaller) Close() error {
	return c.client.Close()
}

// Call sends the request, retrying transient failures per the configured
// policy. Non-transient errors propagate immediately.
func (c *GeminiCaller) Call(ctx context.Context, req *Request) (string, error) {
	return callWithRetry(ctx, c.logger, c.retry, GeminiName, func() (string, error) {
		return c.generate(ctx, req)
	})
}

func (c *GeminiCaller) generate(ctx context.Context, req *Request) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if len(req.Schema) > 0 {
		model.ResponseMIMEType = "application/json"
		if schema, err := schemaFromJSON(req.Schema); err == nil {
			model.ResponseSchema = schema
		}
	}

	parts := make([]genai.Part, 0, 1+len(req.Images))
	parts = append(parts, genai.Text(req.Prompt))
	for _, img := range req.Images {
		parts = append(parts, genai.ImageData("png", img.Data))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", &CallError{Backend: GeminiName, Message: "no candidates in response"}
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	if sb.Len() == 0 {
		return "", &CallError{Backend: GeminiName, Message: "empty text response"}
	}
	return sb.String(), nil
}

// schemaFromJSON converts a raw JSON schema into the typed schema the
// Gemini API expects. Unknown constructs are dropped rather than
// rejected; the schema is a generation hint, not a validator.
func schemaFromJSON(raw json.RawMessage) (*genai.Schema, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return buildSchema(m), nil
}

func buildSchema(m map[string]any) *genai.Schema {
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		s.Type = schemaType(t)
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if f, ok := m["format"].(string); ok {
		s.Format = f
	}
	if enum, ok := m["enum"].([]any); ok {
		for _, e := range enum {
			if str, ok := e.(string); ok {
				s.Enum = append(s.Enum, str)
			}
		}
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				s.Properties[name] = buildSchema(pm)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = buildSchema(items)
	}
	if required, ok := m["required"].([]any); ok {
		for _, r := range required {
			if str, ok := r.(string); ok {
				s.Required = append(s.Required, str)
			}
		}
	}
	return s
}

func schemaType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// Verify interface
var _ Caller = (*GeminiCaller)(nil)
