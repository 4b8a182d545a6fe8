package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/leofalp/sqlgraph/internal/utils"
	"github.com/leofalp/sqlgraph/providers/observability"
)

// ErrRetryExhausted is returned by the retry middleware when all retry
// attempts have been consumed. It wraps the last provider error as well, so
// both can be inspected with errors.Is and errors.As.
var ErrRetryExhausted = errors.New("sqlgraph: all retry attempts exhausted")

// retryableStatusCodes are the HTTP statuses treated as transient.
var retryableStatusCodes = []int{429, 500, 502, 503, 529}

// RetryConfig holds the tuning parameters for the retry middleware. Zero
// values are replaced with the defaults documented below.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts after the first failure.
	// Default: 3.
	MaxRetries int

	// InitialBackoff is the wait duration before the first retry attempt.
	// Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the computed backoff. Default: 30s.
	MaxBackoff time.Duration

	// BackoffFactor is the exponential growth multiplier. Default: 2.0.
	BackoffFactor float64

	// JitterFraction adds up to JitterFraction * backoff of random noise.
	// Default: 0.1.
	JitterFraction float64

	// RetryableFunc returns true when an error should trigger a retry.
	// The default retries transport timeouts and the statuses 429, 500, 502,
	// 503 and 529.
	RetryableFunc func(error) bool
}

// DefaultRetryable reports whether err is a transient model endpoint failure.
func DefaultRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var statusError *StatusError
	if errors.As(err, &statusError) {
		return slices.Contains(retryableStatusCodes, statusError.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Errors from foreign transports carry the status only as text.
	message := err.Error()
	for _, code := range retryableStatusCodes {
		if strings.Contains(message, fmt.Sprintf("status %d", code)) {
			return true
		}
	}
	return false
}

// applyRetryDefaults fills in zero-valued fields in config with sensible defaults.
func applyRetryDefaults(config *RetryConfig) {
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = 2.0
	}
	if config.JitterFraction == 0 {
		config.JitterFraction = 0.1
	}
	if config.RetryableFunc == nil {
		config.RetryableFunc = DefaultRetryable
	}
}

// computeBackoff returns the backoff duration for the given attempt (0-indexed).
// backoff = min(InitialBackoff * BackoffFactor^attempt, MaxBackoff) + jitter
func computeBackoff(config RetryConfig, attempt int) time.Duration {
	base := float64(config.InitialBackoff) * math.Pow(config.BackoffFactor, float64(attempt))
	if base > float64(config.MaxBackoff) {
		base = float64(config.MaxBackoff)
	}

	jitter := base * config.JitterFraction * rand.Float64() //nolint:gosec // non-cryptographic jitter is intentional
	return time.Duration(base + jitter)
}

// NewRetryMiddleware retries failed requests according to config. A negative
// MaxRetries disables retrying.
func NewRetryMiddleware(config RetryConfig) Middleware {
	applyRetryDefaults(&config)
	maxRetries := max(config.MaxRetries, 0)

	return func(next SendFunc) SendFunc {
		return func(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
			var lastErr error

			for attempt := 0; attempt <= maxRetries; attempt++ {
				if attempt > 0 {
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(computeBackoff(config, attempt-1)):
					}
				}

				response, err := next(ctx, request)
				if err == nil {
					return response, nil
				}
				lastErr = err

				if !config.RetryableFunc(err) {
					return nil, err
				}
			}

			return nil, fmt.Errorf("%w after %d retries: %w", ErrRetryExhausted, maxRetries, lastErr)
		}
	}
}

// NewTimeoutMiddleware enforces a per-request deadline. A caller context with
// a shorter deadline still wins. Placed inside the retry middleware, every
// attempt gets its own deadline.
func NewTimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next SendFunc) SendFunc {
		if timeout <= 0 {
			return next
		}
		return func(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, request)
		}
	}
}

// NewObservabilityMiddleware records a span, request metrics and token usage
// for every request that passes through it. Placed outermost, it observes the
// outcome after retries.
func NewObservabilityMiddleware(observer observability.Provider, providerName string) Middleware {
	return func(next SendFunc) SendFunc {
		if observer == nil {
			return next
		}
		return func(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
			step := stepFromContext(ctx)
			ctx, span := observer.StartSpan(ctx, observability.SpanLLMRequest,
				observability.String(observability.AttrLLMProvider, providerName),
				observability.String(observability.AttrLLMModel, request.Model),
				observability.String(observability.AttrLLMStep, step),
				observability.Float64(observability.AttrLLMTemperature, request.Temperature),
			)
			defer span.End()

			watch := utils.StartStopwatch()
			response, err := next(ctx, request)
			elapsed := watch.Stop()

			observer.Histogram(observability.MetricLLMRequestDuration).Record(ctx, elapsed.Seconds(),
				observability.String(observability.AttrLLMModel, request.Model),
				observability.String(observability.AttrLLMStep, step),
			)

			if err != nil {
				span.RecordError(err)
				span.SetStatus(observability.StatusError, "llm request failed")
				observer.Counter(observability.MetricLLMRequestCount).Add(ctx, 1,
					observability.String(observability.AttrLLMModel, request.Model),
					observability.String(observability.AttrLLMStep, step),
					observability.String(observability.AttrStatus, "error"),
				)
				observer.Warn(ctx, "llm request failed",
					observability.String(observability.AttrLLMModel, request.Model),
					observability.String(observability.AttrLLMStep, step),
					observability.Duration(observability.AttrDuration, elapsed),
					observability.Error(err),
				)
				return nil, err
			}

			observer.Counter(observability.MetricLLMRequestCount).Add(ctx, 1,
				observability.String(observability.AttrLLMModel, request.Model),
				observability.String(observability.AttrLLMStep, step),
				observability.String(observability.AttrStatus, "success"),
			)
			if response.Usage != nil {
				observer.Counter(observability.MetricLLMTokensTotal).Add(ctx, int64(response.Usage.TotalTokens),
					observability.String(observability.AttrLLMModel, request.Model),
				)
				span.SetAttributes(
					observability.Int(observability.AttrLLMTokensPrompt, response.Usage.PromptTokens),
					observability.Int(observability.AttrLLMTokensCompletion, response.Usage.CompletionTokens),
				)
			}
			span.SetAttributes(observability.String(observability.AttrLLMFinishReason, response.FinishReason))
			span.SetStatus(observability.StatusOK, "")
			observer.Trace(ctx, "llm request completed",
				observability.String(observability.AttrLLMStep, step),
				observability.Duration(observability.AttrDuration, elapsed),
				observability.String("llm.response.preview", utils.TruncateString(response.Content, 200)),
			)
			return response, nil
		}
	}
}

type stepContextKey struct{}

// ContextWithStep labels requests issued under ctx with a pipeline step name.
func ContextWithStep(ctx context.Context, step string) context.Context {
	return context.WithValue(ctx, stepContextKey{}, step)
}

func stepFromContext(ctx context.Context) string {
	step, _ := ctx.Value(stepContextKey{}).(string)
	return step
}
