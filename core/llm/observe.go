package llm

import (
	"context"

	"github.com/leofalp/sqlgraph/providers/observability"
)

// observeCallStart opens the call span. The returned span is nil when
// observation is disabled.
func (invoker *ProviderInvoker) observeCallStart(ctx context.Context, call Call, samplingCount int) (context.Context, observability.Span) {
	if invoker.observer == nil {
		return ctx, nil
	}

	ctx, span := invoker.observer.StartSpan(ctx, observability.SpanLLMCall,
		observability.String(observability.AttrLLMStep, call.Step),
		observability.String(observability.AttrExtractor, call.Extractor),
		observability.Int(observability.AttrLLMRequestCount, len(call.Requests)),
		observability.Int(observability.AttrLLMSamplingCount, samplingCount),
	)
	invoker.observer.Debug(ctx, "llm call started",
		observability.String(observability.AttrLLMStep, call.Step),
		observability.Int(observability.AttrLLMRequestCount, len(call.Requests)),
		observability.Int(observability.AttrLLMSamplingCount, samplingCount),
	)
	return ctx, span
}

func (invoker *ProviderInvoker) observeCallCompleted(ctx context.Context, span observability.Span, call Call, dropped int) {
	if invoker.observer == nil {
		return
	}

	invoker.observer.Debug(ctx, "llm call completed",
		observability.String(observability.AttrLLMStep, call.Step),
		observability.Int(observability.AttrExtractDropped, dropped),
	)
	if span != nil {
		span.SetAttributes(observability.Int(observability.AttrExtractDropped, dropped))
		span.SetStatus(observability.StatusOK, "")
		span.End()
	}
}

func (invoker *ProviderInvoker) observeCallFailed(ctx context.Context, span observability.Span, call Call, err error) {
	if invoker.observer == nil {
		return
	}

	invoker.observer.Warn(ctx, "llm call failed",
		observability.String(observability.AttrLLMStep, call.Step),
		observability.String(observability.AttrExtractor, call.Extractor),
		observability.Error(err),
	)
	if span != nil {
		span.RecordError(err)
		span.SetStatus(observability.StatusError, "llm call failed")
		span.End()
	}
}

func (invoker *ProviderInvoker) observeExtractionDropped(ctx context.Context, call Call, dropped int) {
	if invoker.observer == nil || dropped == 0 {
		return
	}

	invoker.observer.Counter(observability.MetricExtractFailureCount).Add(ctx, int64(dropped),
		observability.String(observability.AttrExtractor, call.Extractor),
		observability.String(observability.AttrLLMStep, call.Step),
	)
}
