package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/leofalp/sqlgraph/core/llm"
	"github.com/leofalp/sqlgraph/internal/utils"
)

// DefaultBaseURL is the public OpenAI endpoint root.
const DefaultBaseURL = "https://api.openai.com/v1"

const chatCompletionsPath = "/chat/completions"

// ErrMissingAPIKey is returned when requests would go to the public OpenAI
// endpoint without a key. Self-hosted gateways may run keyless.
var ErrMissingAPIKey = errors.New("openai: API key is not set")

// Provider sends chat requests to an OpenAI-compatible endpoint.
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

var _ llm.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithAPIKey overrides OPENAI_API_KEY. A blank key keeps the current one.
func WithAPIKey(apiKey string) Option {
	return func(provider *Provider) {
		if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
			provider.apiKey = apiKey
		}
	}
}

// WithBaseURL overrides OPENAI_API_BASE_URL, e.g. http://localhost:11434/v1
// for Ollama. A blank URL keeps the current one.
func WithBaseURL(baseURL string) Option {
	return func(provider *Provider) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			provider.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(provider *Provider) {
		if client != nil {
			provider.client = client
		}
	}
}

// New returns a Provider configured from OPENAI_API_KEY and
// OPENAI_API_BASE_URL, then opts.
func New(opts ...Option) *Provider {
	provider := &Provider{
		apiKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		baseURL: DefaultBaseURL,
		client:  &http.Client{},
	}
	WithBaseURL(os.Getenv("OPENAI_API_BASE_URL"))(provider)
	for _, opt := range opts {
		opt(provider)
	}
	return provider
}

func (provider *Provider) BaseURL() string {
	return provider.baseURL
}

// SendMessage posts request to /chat/completions and returns the first
// choice. HTTP failures come back as *llm.StatusError so retries can tell
// transient statuses apart.
func (provider *Provider) SendMessage(ctx context.Context, request llm.ChatRequest) (*llm.ChatResponse, error) {
	if provider.apiKey == "" && provider.baseURL == DefaultBaseURL {
		return nil, ErrMissingAPIKey
	}

	response, err := utils.PostJSON[chatCompletionResponse](ctx, provider.client, provider.baseURL+chatCompletionsPath, provider.apiKey, requestFromGeneric(request))
	if err != nil {
		var statusError *utils.HTTPStatusError
		if errors.As(err, &statusError) {
			return nil, &llm.StatusError{StatusCode: statusError.StatusCode, Body: utils.TruncateString(statusError.Body, utils.DefaultPreviewLength)}
		}
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("openai: completion %q has no choices", response.ID)
	}
	return responseToGeneric(*response), nil
}
