package llm

import (
	"context"
	"fmt"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is one completion request sent to a Provider.
type ChatRequest struct {
	Model        string    `json:"model"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
	Temperature  float64   `json:"temperature"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	TopP         float64   `json:"top_p,omitempty"`
}

// Usage reports token consumption for one response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ChatResponse is the completion returned by a Provider.
type ChatResponse struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
}

// Provider is a chat-completion transport, e.g. an OpenAI-compatible endpoint.
type Provider interface {
	SendMessage(ctx context.Context, request ChatRequest) (*ChatResponse, error)
}

// StatusError is returned by providers when the endpoint answers with a
// non-2xx HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (statusError *StatusError) Error() string {
	return fmt.Sprintf("llm endpoint returned status %d: %s", statusError.StatusCode, statusError.Body)
}

// SendFunc sends one chat request. It is the unit threaded through the
// middleware chain.
type SendFunc func(ctx context.Context, request ChatRequest) (*ChatResponse, error)

// Middleware intercepts chat requests. Each Middleware receives the next
// SendFunc in the chain and returns a new SendFunc that wraps it.
type Middleware func(next SendFunc) SendFunc

// Chain wraps provider with middlewares. The first middleware is the
// outermost wrapper, i.e. the first to see an incoming request.
func Chain(provider Provider, middlewares ...Middleware) SendFunc {
	return chainSend(provider.SendMessage, middlewares)
}
