package sqlgraph

import (
	"context"
	"time"

	"github.com/leofalp/sqlgraph/core/state"
	"github.com/leofalp/sqlgraph/providers/observability"
	"github.com/leofalp/sqlgraph/providers/session"
)

type runStartKey struct{}

// withObserver attaches the engine observer to ctx so stages built without
// one still report.
func (engine *Engine) withObserver(ctx context.Context) context.Context {
	if engine.observer == nil || observability.ObserverFromContext(ctx) != nil {
		return ctx
	}
	return observability.ContextWithObserver(ctx, engine.observer)
}

// observeRunStart opens the run span. The returned span is nil when
// observation is disabled.
func (engine *Engine) observeRunStart(ctx context.Context, mode, dbID string, attrs ...observability.Attribute) (context.Context, observability.Span) {
	ctx = context.WithValue(engine.withObserver(ctx), runStartKey{}, time.Now())
	if engine.observer == nil {
		return ctx, nil
	}

	attrs = append([]observability.Attribute{
		observability.String(observability.AttrRunMode, mode),
		observability.String(observability.AttrDBID, dbID),
	}, attrs...)
	ctx, span := engine.observer.StartSpan(ctx, observability.SpanEngineRun, attrs...)
	engine.observer.Debug(ctx, "run started", attrs...)
	return ctx, span
}

func runDuration(ctx context.Context) time.Duration {
	started, ok := ctx.Value(runStartKey{}).(time.Time)
	if !ok {
		return 0
	}
	return time.Since(started)
}

func (engine *Engine) observeRunEnded(ctx context.Context, span observability.Span, result *Result) {
	if engine.observer == nil {
		return
	}

	duration := runDuration(ctx)
	engine.observer.Counter(observability.MetricRunCount).Add(ctx, 1,
		observability.String(observability.AttrStatus, string(result.Status)),
	)
	engine.observer.Histogram(observability.MetricRunDuration).Record(ctx, duration.Seconds(),
		observability.String(observability.AttrStatus, string(result.Status)),
	)

	attrs := []observability.Attribute{
		observability.String(observability.AttrTaskID, result.TaskID),
		observability.String(observability.AttrStatus, string(result.Status)),
		observability.Int("run.steps", result.ExecutionHistory.Len()),
		observability.Duration(observability.AttrDuration, duration),
	}
	if result.Status == state.StatusError {
		engine.observer.Warn(ctx, "run failed", append(attrs, observability.String(observability.AttrError, result.Error))...)
	} else {
		engine.observer.Info(ctx, "run completed", attrs...)
	}

	if span != nil {
		span.SetAttributes(attrs...)
		if result.Status == state.StatusError {
			span.SetStatus(observability.StatusError, result.Error)
		} else {
			span.SetStatus(observability.StatusOK, "")
		}
		span.End()
	}
}

// observeRunRejected reports a run that could not start.
func (engine *Engine) observeRunRejected(ctx context.Context, span observability.Span, err error) {
	if engine.observer == nil {
		return
	}

	engine.observer.Counter(observability.MetricRunCount).Add(ctx, 1,
		observability.String(observability.AttrStatus, "rejected"),
	)
	engine.observer.Error(ctx, "run rejected", observability.Error(err))
	if span != nil {
		span.RecordError(err)
		span.SetStatus(observability.StatusError, "run rejected")
		span.End()
	}
}

func (engine *Engine) observeSession(ctx context.Context, msg, id, dbID string) {
	if engine.observer == nil {
		return
	}

	attrs := []observability.Attribute{observability.String(observability.AttrSessionID, id)}
	if dbID != "" {
		attrs = append(attrs, observability.String(observability.AttrDBID, dbID))
	}
	engine.observer.Info(ctx, msg, attrs...)
}

// persistTurn appends turn to the turn log. A failure is reported but does
// not fail the turn, which is already recorded in the live session.
func (engine *Engine) persistTurn(ctx context.Context, id string, turn session.LoggedTurn) {
	if engine.turnLog == nil {
		return
	}
	err := engine.turnLog.Append(ctx, id, turn)
	if err == nil || engine.observer == nil {
		return
	}
	engine.observer.Warn(ctx, "chat turn not persisted",
		observability.String(observability.AttrSessionID, id),
		observability.Error(err),
	)
}
