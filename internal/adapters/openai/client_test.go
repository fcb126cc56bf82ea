package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCompleteRequiresAPIKey(t *testing.T) {
	client := NewClient("https://api.openai.com", "", "gpt-4o")

	_, err := client.Complete(context.Background(), "system", "user")
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}

func TestComplete(t *testing.T) {
	var got ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ChatCompletionResponse{
			ID:    "cmpl-1",
			Model: "gpt-4o",
			Choices: []ChatCompletionChoice{
				{Message: ChatMessage{Role: "assistant", Content: `{"is_lead": true}`}},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk-test", "gpt-4o")

	content, err := client.Complete(context.Background(), "you are a classifier", "classify this")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if content != `{"is_lead": true}` {
		t.Errorf("content = %q", content)
	}

	if got.Model != "gpt-4o" {
		t.Errorf("model = %q", got.Model)
	}
	if got.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", got.Temperature)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v, want json_object", got.ResponseFormat)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestCompleteUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk-test", "gpt-4o")

	_, err := client.Complete(context.Background(), "system", "user")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected an upstream error carrying the status, got %v", err)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "cmpl-1", "choices": []}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk-test", "gpt-4o")

	_, err := client.Complete(context.Background(), "system", "user")
	if err == nil || !strings.Contains(err.Error(), "no response") {
		t.Fatalf("expected a no-response error, got %v", err)
	}
}
