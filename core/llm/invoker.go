package llm

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/leofalp/sqlgraph/core/extract"
	"github.com/leofalp/sqlgraph/providers/observability"
)

// DefaultMaxConcurrency bounds the number of in-flight requests of one Call.
const DefaultMaxConcurrency = 8

// Call describes one batch of requests issued by a pipeline step.
type Call struct {
	// Template renders each request's prompt.
	Template *PromptTemplate

	// Model selects the model and sampling parameters.
	Model ModelConfig

	// Extractor names the extractor applied to every sample.
	Extractor string

	// Requests holds one template variables map per prompt.
	Requests []map[string]any

	// Step labels the call in logs, metrics and errors.
	Step string

	// SamplingCount is the number of samples drawn per prompt. Zero means one.
	SamplingCount int
}

// Invoker is the model invocation façade. Call returns one slice per request,
// holding the samples whose extraction succeeded in sampling order.
//
// Transport failures return an *InvocationError. A request for which every
// sample failed extraction fails the call with the first extraction error
// (*extract.ExtractionError or *extract.ShapeMismatchError).
type Invoker interface {
	Call(ctx context.Context, call Call) ([][]extract.Result, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, call Call) ([][]extract.Result, error)

// Call implements Invoker.
func (fn InvokerFunc) Call(ctx context.Context, call Call) ([][]extract.Result, error) {
	return fn(ctx, call)
}

// InvocationError reports that the model endpoint could not be reached or
// returned an error for a step.
type InvocationError struct {
	Step string
	Err  error
}

func (invocationError *InvocationError) Error() string {
	return fmt.Sprintf("llm invocation failed for step %q: %v", invocationError.Step, invocationError.Err)
}

func (invocationError *InvocationError) Unwrap() error {
	return invocationError.Err
}

// ProviderInvoker implements Invoker on top of a Provider.
type ProviderInvoker struct {
	send           SendFunc
	registry       *extract.Registry
	maxConcurrency int
	observer       observability.Provider
	defaultModel   ModelConfig
}

var _ Invoker = (*ProviderInvoker)(nil)

// InvokerOption configures a ProviderInvoker.
type InvokerOption func(*ProviderInvoker)

// WithMiddleware wraps the provider with middlewares, outermost first.
func WithMiddleware(middlewares ...Middleware) InvokerOption {
	return func(invoker *ProviderInvoker) {
		invoker.send = chainSend(invoker.send, middlewares)
	}
}

// WithMaxConcurrency bounds the in-flight requests of one Call.
func WithMaxConcurrency(limit int) InvokerOption {
	return func(invoker *ProviderInvoker) {
		if limit > 0 {
			invoker.maxConcurrency = limit
		}
	}
}

// WithObserver enables call-level spans, logs and extraction metrics.
func WithObserver(observer observability.Provider) InvokerOption {
	return func(invoker *ProviderInvoker) {
		invoker.observer = observer
	}
}

// WithDefaultModel fills calls whose ModelConfig has no name.
func WithDefaultModel(model ModelConfig) InvokerOption {
	return func(invoker *ProviderInvoker) {
		invoker.defaultModel = model
	}
}

// NewProviderInvoker returns an invoker sending through provider and
// extracting with extractors from registry.
func NewProviderInvoker(provider Provider, registry *extract.Registry, opts ...InvokerOption) *ProviderInvoker {
	invoker := &ProviderInvoker{
		send:           provider.SendMessage,
		registry:       registry,
		maxConcurrency: DefaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(invoker)
	}
	return invoker
}

func chainSend(send SendFunc, middlewares []Middleware) SendFunc {
	for index := len(middlewares) - 1; index >= 0; index-- {
		if middlewares[index] != nil {
			send = middlewares[index](send)
		}
	}
	return send
}

// sample is the outcome of one drawn completion.
type sample struct {
	result extract.Result
	err    error
}

// Call implements Invoker.
func (invoker *ProviderInvoker) Call(ctx context.Context, call Call) ([][]extract.Result, error) {
	if call.Template == nil {
		return nil, &InvocationError{Step: call.Step, Err: errors.New("no prompt template")}
	}
	samplingCount := max(call.SamplingCount, 1)
	model := call.Model.WithDefaults(invoker.defaultModel)

	extractor, err := invoker.registry.Get(call.Extractor)
	if err != nil {
		return nil, &InvocationError{Step: call.Step, Err: err}
	}

	requests := make([]ChatRequest, len(call.Requests))
	for index, vars := range call.Requests {
		system, user, renderErr := call.Template.Render(vars)
		if renderErr != nil {
			return nil, &InvocationError{Step: call.Step, Err: renderErr}
		}
		requests[index] = ChatRequest{
			Model:        model.Name,
			SystemPrompt: system,
			Messages:     []Message{{Role: RoleUser, Content: user}},
			Temperature:  model.Temperature,
			MaxTokens:    model.MaxTokens,
			TopP:         model.TopP,
		}
	}

	ctx = ContextWithStep(ctx, call.Step)
	ctx, span := invoker.observeCallStart(ctx, call, samplingCount)

	samples := make([][]sample, len(requests))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(invoker.maxConcurrency)
	for requestIndex, request := range requests {
		samples[requestIndex] = make([]sample, samplingCount)
		for sampleIndex := range samplingCount {
			group.Go(func() error {
				response, sendErr := invoker.send(groupCtx, request)
				if sendErr != nil {
					return &InvocationError{Step: call.Step, Err: sendErr}
				}
				result, extractErr := extractor.Extract(response.Content)
				samples[requestIndex][sampleIndex] = sample{result: result, err: extractErr}
				return nil
			})
		}
	}
	if err := group.Wait(); err != nil {
		invoker.observeCallFailed(ctx, span, call, err)
		return nil, err
	}

	results := make([][]extract.Result, len(samples))
	dropped := 0
	for requestIndex, drawn := range samples {
		var firstErr error
		for _, outcome := range drawn {
			if outcome.err != nil {
				dropped++
				if firstErr == nil {
					firstErr = outcome.err
				}
				continue
			}
			results[requestIndex] = append(results[requestIndex], outcome.result)
		}
		if len(results[requestIndex]) == 0 {
			failure := fmt.Errorf("step %q request %d: all %d samples failed extraction: %w", call.Step, requestIndex, samplingCount, firstErr)
			invoker.observeExtractionDropped(ctx, call, dropped)
			invoker.observeCallFailed(ctx, span, call, failure)
			return nil, failure
		}
	}

	invoker.observeExtractionDropped(ctx, call, dropped)
	invoker.observeCallCompleted(ctx, span, call, dropped)
	return results, nil
}
