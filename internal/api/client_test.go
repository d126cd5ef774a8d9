package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atelier-lab/archmentor/internal/config"
)

func testModelCfg(baseURL string) config.ModelConfig {
	return config.ModelConfig{
		BaseURL:            baseURL,
		ModelName:          "test-model",
		Temperature:        0.7,
		TopP:               1.0,
		MaxOutputTokens:    256,
		RateLimitPerMinute: 600,
		TimeoutSeconds:     5,
		MaxRetries:         2,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestComplete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-123" {
			t.Errorf("missing auth header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "hello"}}]}`))
	}))
	defer server.Close()

	client := NewClient("key-123", testLogger())
	content, err := client.Complete(context.Background(), testModelCfg(server.URL), []Message{
		{Role: "user", Content: "hi"},
	}, false)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if content != "hello" {
		t.Errorf("content = %q", content)
	}
}

func TestComplete_RetriesServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "recovered"}}]}`))
	}))
	defer server.Close()

	client := NewClient("k", testLogger())
	client.baseRetryDelay = 0

	content, err := client.Complete(context.Background(), testModelCfg(server.URL), nil, false)
	if err != nil {
		t.Fatalf("Complete returned error after retries: %v", err)
	}
	if content != "recovered" {
		t.Errorf("content = %q", content)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestComplete_NonRetryableFailsFast(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad request", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	client := NewClient("k", testLogger())
	client.baseRetryDelay = 0

	_, err := client.Complete(context.Background(), testModelCfg(server.URL), nil, false)
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if attempts != 1 {
		t.Errorf("non-retryable error retried: %d attempts", attempts)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client := NewClient("k", testLogger())
	if _, err := client.Complete(context.Background(), testModelCfg(server.URL), nil, false); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestComplete_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient("k", testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Complete(ctx, testModelCfg(server.URL), nil, false); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
