package sqldb

import (
	"context"
	"time"

	"github.com/leofalp/sqlgraph/internal/utils"
	"github.com/leofalp/sqlgraph/providers/observability"
)

func (manager *Manager) observeQueryStart(ctx context.Context, dbID string, config Config, sqlText string) (context.Context, observability.Span) {
	if manager.observer == nil {
		return ctx, nil
	}

	ctx, span := manager.observer.StartSpan(ctx, observability.SpanDBQuery,
		observability.String(observability.AttrDBID, dbID),
		observability.String(observability.AttrDBDriver, config.driverName()),
		observability.String(observability.AttrDBStatement, utils.TruncateString(sqlText, 500)),
	)
	return ctx, span
}

func (manager *Manager) observeQueryEnd(ctx context.Context, span observability.Span, dbID string, rowCount int, duration time.Duration, err error) {
	if manager.observer == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	manager.observer.Counter(observability.MetricDBQueryCount).Add(ctx, 1,
		observability.String(observability.AttrDBID, dbID),
		observability.String(observability.AttrStatus, status),
	)
	manager.observer.Histogram(observability.MetricDBQueryDuration).Record(ctx, duration.Seconds(),
		observability.String(observability.AttrDBID, dbID),
	)

	if err != nil {
		manager.observer.Warn(ctx, "database query failed",
			observability.String(observability.AttrDBID, dbID),
			observability.Duration(observability.AttrDuration, duration),
			observability.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(observability.StatusError, "query failed")
		span.End()
		return
	}

	manager.observer.Debug(ctx, "database query completed",
		observability.String(observability.AttrDBID, dbID),
		observability.Int(observability.AttrDBRowCount, rowCount),
		observability.Duration(observability.AttrDuration, duration),
	)
	span.SetAttributes(observability.Int(observability.AttrDBRowCount, rowCount))
	span.SetStatus(observability.StatusOK, "")
	span.End()
}
