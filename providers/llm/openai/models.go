package openai

import "github.com/leofalp/sqlgraph/core/llm"

// chatCompletionRequest is the /chat/completions body. Stream is always
// false.
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// requestFromGeneric converts a provider-neutral request into the wire format.
// The system prompt becomes the first message. Zero sampling parameters are
// left to the server defaults, except temperature which is always sent.
func requestFromGeneric(request llm.ChatRequest) chatCompletionRequest {
	messages := make([]chatMessage, 0, len(request.Messages)+1)
	if request.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: string(llm.RoleSystem), Content: request.SystemPrompt})
	}
	for _, message := range request.Messages {
		messages = append(messages, chatMessage{Role: string(message.Role), Content: message.Content})
	}

	temperature := request.Temperature
	wire := chatCompletionRequest{
		Model:       request.Model,
		Messages:    messages,
		Temperature: &temperature,
	}
	if request.TopP > 0 {
		topP := request.TopP
		wire.TopP = &topP
	}
	if request.MaxTokens > 0 {
		maxTokens := request.MaxTokens
		wire.MaxTokens = &maxTokens
	}
	return wire
}

// responseToGeneric converts the first choice into a provider-neutral response.
func responseToGeneric(response chatCompletionResponse) *llm.ChatResponse {
	generic := &llm.ChatResponse{
		ID:    response.ID,
		Model: response.Model,
	}
	if len(response.Choices) > 0 {
		generic.Content = response.Choices[0].Message.Content
		generic.FinishReason = response.Choices[0].FinishReason
	}
	if response.Usage != nil {
		generic.Usage = &llm.Usage{
			PromptTokens:     response.Usage.PromptTokens,
			CompletionTokens: response.Usage.CompletionTokens,
			TotalTokens:      response.Usage.TotalTokens,
		}
	}
	return generic
}
