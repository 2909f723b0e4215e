package providers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func chatResponse(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":    "gen-1",
		"model": "org/model",
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func testCaller(url string) *OpenRouterCaller {
	return NewOpenRouterCaller(OpenRouterConfig{
		APIKey:  "test-key",
		Model:   "org/model",
		BaseURL: url,
		Retry: RetryPolicy{
			Attempts:  3,
			BaseDelay: time.Millisecond,
			MaxDelay:  5 * time.Millisecond,
		},
	})
}

func TestOpenRouterRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatResponse(`{"ok":true}`)))
	}))
	defer srv.Close()

	got, err := testCaller(srv.URL).Call(t.Context(), &Request{Prompt: "extract"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != `{"ok":true}` {
		t.Errorf("Call() = %q, want ok payload", got)
	}
	if calls.Load() != 3 {
		t.Errorf("server saw %d calls, want 3", calls.Load())
	}
}

func TestOpenRouterExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testCaller(srv.URL).Call(t.Context(), &Request{Prompt: "extract"})
	if err == nil {
		t.Fatal("Call() expected error after exhausting retries")
	}
	if calls.Load() != 3 {
		t.Errorf("server saw %d calls, want 3", calls.Load())
	}
	if !IsTransient(err) {
		t.Errorf("exhausted error should still classify transient: %v", err)
	}
}

func TestOpenRouterRequestShape(t *testing.T) {
	var captured openRouterRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(chatResponse("{}")))
	}))
	defer srv.Close()

	req := &Request{
		Prompt:      "extract the table",
		Temperature: 0.2,
		Images: []NamedImage{
			{Name: "full", Data: []byte{1, 2, 3}},
			{Name: "left", Data: []byte{4, 5}},
		},
		Schema: json.RawMessage(`{"type":"object"}`),
	}
	if _, err := testCaller(srv.URL).Call(t.Context(), req); err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	if len(captured.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(captured.Messages))
	}
	content := captured.Messages[0].Content
	if len(content) != 3 {
		t.Fatalf("content parts = %d, want text + 2 images", len(content))
	}
	if content[0].Type != "text" || !strings.Contains(content[0].Text, "full: <image:full>") {
		t.Errorf("text part missing image references: %q", content[0].Text)
	}
	if content[1].ImageURL == nil || !strings.HasPrefix(content[1].ImageURL.URL, "data:image/png;base64,") {
		t.Errorf("image part not a png data URL")
	}
	if content[1].ImageURL.Detail != "high" {
		t.Errorf("image detail = %q, want high", content[1].ImageURL.Detail)
	}
	if captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_schema" {
		t.Errorf("response_format = %+v, want json_schema", captured.ResponseFormat)
	}
	if captured.MaxTokens != defaultMaxTokens {
		t.Errorf("max_tokens = %d, want default %d", captured.MaxTokens, defaultMaxTokens)
	}
}
