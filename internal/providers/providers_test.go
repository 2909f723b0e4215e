package providers

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"
)

func TestForModelRouting(t *testing.T) {
	logger := slog.Default()

	c, err := ForModel(ModelConfig{Model: "google/gemini-2.5-flash", APIKey: "k"}, logger)
	if err != nil {
		t.Fatalf("ForModel() error = %v", err)
	}
	if _, ok := c.(*OpenRouterCaller); !ok {
		t.Errorf("ForModel(vendor/model) = %T, want *OpenRouterCaller", c)
	}

	c, err = ForModel(ModelConfig{Model: "gemini-2.5-flash", APIKey: "k"}, logger)
	if err != nil {
		t.Fatalf("ForModel() error = %v", err)
	}
	if _, ok := c.(*GeminiCaller); !ok {
		t.Errorf("ForModel(bare model) = %T, want *GeminiCaller", c)
	}
}

func TestRegistryCachesCallers(t *testing.T) {
	r := NewRegistry(slog.Default())
	cfg := ModelConfig{Model: "org/model", APIKey: "k"}

	a, err := r.Caller(cfg)
	if err != nil {
		t.Fatalf("Caller() error = %v", err)
	}
	b, err := r.Caller(cfg)
	if err != nil {
		t.Fatalf("Caller() error = %v", err)
	}
	if a != b {
		t.Error("Caller() returned different instances for the same model")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status 503", &CallError{Backend: "x", StatusCode: 503, Message: "overloaded"}, true},
		{"status 401", &CallError{Backend: "x", StatusCode: 401, Message: "bad key"}, false},
		{"text 503", errors.New("rpc error: code 503 from upstream"), true},
		{"text UNAVAILABLE", errors.New("googleapi: Error: UNAVAILABLE"), true},
		{"text service unavailable", errors.New("the Service Unavailable right now"), true},
		{"validation", errors.New("invalid request: missing field"), false},
		{"wrapped 503", fmt.Errorf("call failed: %w", &CallError{StatusCode: 503}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestMockCallerScript(t *testing.T) {
	m := NewMockCaller(`{"a":1}`, `{"b":2}`)
	r1, err := m.Call(t.Context(), &Request{Prompt: "p1"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	r2, err := m.Call(t.Context(), &Request{Prompt: "p2"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	r3, err := m.Call(t.Context(), &Request{Prompt: "p3"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if r1 != `{"a":1}` || r2 != `{"b":2}` || r3 != `{"b":2}` {
		t.Errorf("scripted responses = %q %q %q", r1, r2, r3)
	}
	if m.RequestCount() != 3 {
		t.Errorf("RequestCount() = %d, want 3", m.RequestCount())
	}
	if got := m.Requests()[2].Prompt; got != "p3" {
		t.Errorf("recorded prompt = %q, want p3", got)
	}
}
