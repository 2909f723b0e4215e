// Package providers implements the multimodal model backends used for
// page extraction. Two wire shapes exist behind one Caller contract: a
// direct Gemini API taking inlined image parts, and an aggregator API
// taking data-URL images inside a chat message. Model identifiers
// containing "/" route to the aggregator.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// NamedImage is a PNG-encoded image with the variant name it was derived
// from ("full", "left", "right", ...). Names travel with the request so
// the aggregator backend can reference images from the prompt text.
type NamedImage struct {
	Name string
	Data []byte
}

// Request is one model invocation: a prompt plus zero or more images.
type Request struct {
	Prompt string
	Images []NamedImage

	// Schema optionally requests structured output conforming to a JSON
	// schema. Backends that cannot enforce it still request JSON output.
	Schema json.RawMessage

	Temperature float64
	MaxTokens   int

	// RequestID is generated when empty.
	RequestID string
}

// Caller sends a prompt and named images to a remote multimodal model and
// returns the raw response text. Implementations own their retry policy;
// a returned error means retries are exhausted or the failure was not
// retryable.
type Caller interface {
	Call(ctx context.Context, req *Request) (string, error)
	Name() string
}

// CallError is a model call failure with enough structure for transient
// classification.
type CallError struct {
	Backend    string
	StatusCode int
	Message    string
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s call failed (status %d): %s", e.Backend, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s call failed: %s", e.Backend, e.Message)
}

// IsTransient reports whether an error is a temporary service failure
// worth retrying. Besides the structured status code, the error text is
// matched for 503/unavailable markers because some SDKs surface the
// underlying cause only as unstructured text.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ce *CallError
	if errors.As(err, &ce) && ce.StatusCode == http.StatusServiceUnavailable {
		return true
	}
	msg := err.Error()
	if strings.Contains(msg, "503") || strings.Contains(msg, "UNAVAILABLE") {
		return true
	}
	return strings.Contains(strings.ToLower(msg), "service unavailable")
}
