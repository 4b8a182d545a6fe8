package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leofalp/sqlgraph/core/llm"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(WithAPIKey("test-key"), WithBaseURL(server.URL+"/v1/"), WithHTTPClient(server.Client()))
}

func TestSendMessageWithValidResponse(t *testing.T) {
	provider := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("expected path /v1/chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected Authorization header 'Bearer test-key', got %s", r.Header.Get("Authorization"))
		}

		var request chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("failed to decode request: %v", err)
			return
		}
		if len(request.Messages) != 2 || request.Messages[0].Role != "system" || request.Messages[1].Content != "How many employees are active?" {
			t.Errorf("unexpected messages: %+v", request.Messages)
		}
		if request.Temperature == nil || *request.Temperature != 0 {
			t.Errorf("expected temperature 0 to be sent, got %v", request.Temperature)
		}
		if request.MaxTokens != nil || request.TopP != nil {
			t.Errorf("expected unset parameters to be omitted, got %+v", request)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-test",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "SELECT COUNT(*) FROM employees"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
		}`))
	})

	response, err := provider.SendMessage(context.Background(), llm.ChatRequest{
		Model:        "gpt-test",
		SystemPrompt: "You write SQL.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "How many employees are active?"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.Content != "SELECT COUNT(*) FROM employees" || response.FinishReason != "stop" {
		t.Errorf("unexpected response: %+v", response)
	}
	if response.Usage == nil || response.Usage.TotalTokens != 19 {
		t.Errorf("expected usage to be mapped, got %+v", response.Usage)
	}
}

func TestSendMessageStatusError(t *testing.T) {
	provider := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	})

	_, err := provider.SendMessage(context.Background(), llm.ChatRequest{Model: "gpt-test"})
	var statusError *llm.StatusError
	if !errors.As(err, &statusError) {
		t.Fatalf("expected *llm.StatusError, got %v", err)
	}
	if statusError.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", statusError.StatusCode)
	}
	if !llm.DefaultRetryable(err) {
		t.Error("expected a 429 to be retryable")
	}
}

func TestSendMessageWithoutChoices(t *testing.T) {
	provider := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "chatcmpl-2", "choices": []}`))
	})

	if _, err := provider.SendMessage(context.Background(), llm.ChatRequest{Model: "gpt-test"}); err == nil {
		t.Error("expected an error for a response without choices")
	}
}

func TestSendMessageRequiresKeyForDefaultEndpoint(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_BASE_URL", "")

	provider := New()
	if provider.BaseURL() != DefaultBaseURL {
		t.Errorf("expected default base URL, got %s", provider.BaseURL())
	}
	if _, err := provider.SendMessage(context.Background(), llm.ChatRequest{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestSendMessageThroughRetryMiddleware(t *testing.T) {
	attempts := 0
	provider := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id": "chatcmpl-3", "choices": [{"message": {"role": "assistant", "content": "ok"}}]}`))
	})

	send := llm.Chain(provider, llm.NewRetryMiddleware(llm.RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond}))
	response, err := send(context.Background(), llm.ChatRequest{Model: "gpt-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.Content != "ok" || attempts != 2 {
		t.Errorf("expected success on the second attempt, got %q after %d attempts", response.Content, attempts)
	}
}

func TestNewReadsEnvironmentBeforeOptions(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", " env-key ")
	t.Setenv("OPENAI_API_BASE_URL", "http://localhost:11434/v1/")

	provider := New()
	if provider.apiKey != "env-key" || provider.BaseURL() != "http://localhost:11434/v1" {
		t.Errorf("expected environment values, got %q %q", provider.apiKey, provider.BaseURL())
	}

	provider = New(WithAPIKey("flag-key"), WithBaseURL("https://gateway.internal/v1"), WithAPIKey("  "), WithBaseURL(""))
	if provider.apiKey != "flag-key" || provider.BaseURL() != "https://gateway.internal/v1" {
		t.Errorf("expected options to win and blanks to be ignored, got %q %q", provider.apiKey, provider.BaseURL())
	}
}
