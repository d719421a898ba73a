package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Nyukimin/promptmaster/internal/domain/llm"
)

func TestGenerate(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "{\"agent\": \"coding\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 25, "output_tokens": 12}
		}`))
	}))
	defer server.Close()

	p := NewProvider("test-key", server.URL, "claude-sonnet-4-20250514")

	resp, err := p.Generate(context.Background(), llm.GenerateRequest{
		SystemPrompt: "you are a classifier",
		Messages:     []llm.Message{{Role: "user", Content: "classify this"}},
		MaxTokens:    256,
		Temperature:  0.0,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if resp.Content != `{"agent": "coding"}` {
		t.Errorf("unexpected content: %s", resp.Content)
	}
	if resp.TokensUsed != 37 {
		t.Errorf("expected 37 tokens, got %d", resp.TokensUsed)
	}
	if resp.FinishReason != "end_turn" {
		t.Errorf("unexpected stop reason: %s", resp.FinishReason)
	}

	if gotBody["model"] != "claude-sonnet-4-20250514" {
		t.Errorf("unexpected model in request: %v", gotBody["model"])
	}
	if gotBody["max_tokens"] != float64(256) {
		t.Errorf("unexpected max_tokens: %v", gotBody["max_tokens"])
	}
	system, _ := gotBody["system"].([]any)
	if len(system) != 1 {
		t.Errorf("expected one system block, got %v", gotBody["system"])
	}
}

func TestGenerate_DefaultMaxTokens(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_2",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "ok"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 1, "output_tokens": 1}
		}`))
	}))
	defer server.Close()

	p := NewProvider("test-key", server.URL, "claude-sonnet-4-20250514")

	_, err := p.Generate(context.Background(), llm.GenerateRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if gotBody["max_tokens"] != float64(defaultMaxTokens) {
		t.Errorf("max_tokens should default to %d, got %v", defaultMaxTokens, gotBody["max_tokens"])
	}
}

func TestGenerate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"type": "error", "error": {"type": "api_error", "message": "overloaded"}}`))
	}))
	defer server.Close()

	p := NewProvider("test-key", server.URL, "claude-sonnet-4-20250514")

	_, err := p.Generate(context.Background(), llm.GenerateRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error on 500 response")
	}
}
