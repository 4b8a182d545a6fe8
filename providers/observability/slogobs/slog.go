package slogobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/leofalp/sqlgraph/providers/observability"
)

// Observer is an observability.Provider that reports everything as slog
// records. Spans log their start and end at debug level, metric updates log
// at trace level and are also summed in memory.
type Observer struct {
	logger *slog.Logger

	mu         sync.Mutex
	counters   map[string]*logCounter
	histograms map[string]*logHistogram
}

var _ observability.Provider = (*Observer)(nil)

// New returns an Observer writing compact lines at info level to stderr
// unless options say otherwise:
//
//	observer := slogobs.New(
//	    slogobs.WithFormat(slogobs.FormatJSON),
//	    slogobs.WithLevel(slog.LevelDebug),
//	)
func New(opts ...Option) *Observer {
	settings := newSettings(opts)

	logger := settings.logger
	if logger == nil {
		logger = slog.New(NewHandler(&HandlerOptions{
			Format: settings.format,
			Level:  settings.level,
			Output: settings.output,
			Colors: settings.colors,
		}))
	}
	return &Observer{
		logger:     logger,
		counters:   make(map[string]*logCounter),
		histograms: make(map[string]*logHistogram),
	}
}

// Logger exposes the slog.Logger behind the observer.
func (observer *Observer) Logger() *slog.Logger {
	return observer.logger
}

func (observer *Observer) StartSpan(ctx context.Context, name string, attrs ...observability.Attribute) (context.Context, observability.Span) {
	span := &logSpan{
		name:    name,
		started: time.Now(),
		logger:  observer.logger,
		ctx:     ctx,
		attrs:   attrs,
	}
	span.log(slog.LevelDebug, "span started", "span.start", attrs)
	return observability.ContextWithSpan(ctx, span), span
}

type logSpan struct {
	name    string
	started time.Time
	logger  *slog.Logger
	ctx     context.Context

	mu     sync.Mutex
	attrs  []observability.Attribute
	status observability.StatusCode
	ended  bool
}

func (span *logSpan) log(level slog.Level, msg, event string, attrs []observability.Attribute, extra ...slog.Attr) {
	logAttrs := make([]slog.Attr, 0, 2+len(extra)+len(attrs))
	logAttrs = append(logAttrs, slog.String("span", span.name), slog.String("event", event))
	logAttrs = append(logAttrs, extra...)
	span.logger.LogAttrs(span.ctx, level, msg, append(logAttrs, toSlogAttrs(attrs)...)...)
}

// End logs the elapsed time, the status and every attribute gathered so far.
// Only the first call logs.
func (span *logSpan) End() {
	span.mu.Lock()
	defer span.mu.Unlock()
	if span.ended {
		return
	}
	span.ended = true
	span.log(slog.LevelDebug, "span ended", "span.end", span.attrs,
		slog.String(observability.AttrStatus, statusLabel(span.status)),
		slog.Duration(observability.AttrDuration, time.Since(span.started)),
	)
}

func (span *logSpan) SetAttributes(attrs ...observability.Attribute) {
	span.mu.Lock()
	span.attrs = append(span.attrs, attrs...)
	span.mu.Unlock()
}

func (span *logSpan) SetStatus(code observability.StatusCode, description string) {
	span.mu.Lock()
	defer span.mu.Unlock()
	span.status = code
	if description != "" {
		span.attrs = append(span.attrs, observability.String("status_description", description))
	}
}

// RecordError logs err at error level right away and keeps it for End.
func (span *logSpan) RecordError(err error) {
	if err == nil {
		return
	}
	span.mu.Lock()
	span.attrs = append(span.attrs, observability.Error(err))
	span.mu.Unlock()
	span.log(slog.LevelError, "span error", "span.error", []observability.Attribute{observability.Error(err)})
}

func (span *logSpan) AddEvent(name string, attrs ...observability.Attribute) {
	span.log(slog.LevelDebug, "span event", name, attrs)
}

func statusLabel(code observability.StatusCode) string {
	switch code {
	case observability.StatusOK:
		return "ok"
	case observability.StatusError:
		return "error"
	}
	return "unset"
}

func (observer *Observer) Counter(name string) observability.Counter {
	observer.mu.Lock()
	defer observer.mu.Unlock()
	instrument, ok := observer.counters[name]
	if !ok {
		instrument = &logCounter{name: name, logger: observer.logger}
		observer.counters[name] = instrument
	}
	return instrument
}

func (observer *Observer) Histogram(name string) observability.Histogram {
	observer.mu.Lock()
	defer observer.mu.Unlock()
	instrument, ok := observer.histograms[name]
	if !ok {
		instrument = &logHistogram{name: name, logger: observer.logger}
		observer.histograms[name] = instrument
	}
	return instrument
}

// CounterValue sums the named counter over all attribute sets. A counter
// that was never touched reads zero.
func (observer *Observer) CounterValue(name string) int64 {
	observer.mu.Lock()
	instrument, ok := observer.counters[name]
	observer.mu.Unlock()
	if !ok {
		return 0
	}
	instrument.mu.Lock()
	defer instrument.mu.Unlock()
	return instrument.total
}

// HistogramSummary reports how many values the named histogram recorded and
// their sum.
func (observer *Observer) HistogramSummary(name string) (count int64, sum float64) {
	observer.mu.Lock()
	instrument, ok := observer.histograms[name]
	observer.mu.Unlock()
	if !ok {
		return 0, 0
	}
	instrument.mu.Lock()
	defer instrument.mu.Unlock()
	return instrument.count, instrument.sum
}

type logCounter struct {
	name   string
	logger *slog.Logger

	mu    sync.Mutex
	total int64
}

func (counter *logCounter) Add(ctx context.Context, value int64, attrs ...observability.Attribute) {
	counter.mu.Lock()
	counter.total += value
	total := counter.total
	counter.mu.Unlock()

	counter.logger.LogAttrs(ctx, LevelTrace, "counter", append([]slog.Attr{
		slog.String("metric", counter.name),
		slog.Int64("delta", value),
		slog.Int64("value", total),
	}, toSlogAttrs(attrs)...)...)
}

type logHistogram struct {
	name   string
	logger *slog.Logger

	mu    sync.Mutex
	count int64
	sum   float64
}

func (histogram *logHistogram) Record(ctx context.Context, value float64, attrs ...observability.Attribute) {
	histogram.mu.Lock()
	histogram.count++
	histogram.sum += value
	histogram.mu.Unlock()

	histogram.logger.LogAttrs(ctx, LevelTrace, "histogram", append([]slog.Attr{
		slog.String("metric", histogram.name),
		slog.Float64("value", value),
	}, toSlogAttrs(attrs)...)...)
}

func (observer *Observer) Trace(ctx context.Context, msg string, attrs ...observability.Attribute) {
	observer.logger.LogAttrs(ctx, LevelTrace, msg, toSlogAttrs(attrs)...)
}

func (observer *Observer) Debug(ctx context.Context, msg string, attrs ...observability.Attribute) {
	observer.logger.LogAttrs(ctx, slog.LevelDebug, msg, toSlogAttrs(attrs)...)
}

func (observer *Observer) Info(ctx context.Context, msg string, attrs ...observability.Attribute) {
	observer.logger.LogAttrs(ctx, slog.LevelInfo, msg, toSlogAttrs(attrs)...)
}

func (observer *Observer) Warn(ctx context.Context, msg string, attrs ...observability.Attribute) {
	observer.logger.LogAttrs(ctx, slog.LevelWarn, msg, toSlogAttrs(attrs)...)
}

func (observer *Observer) Error(ctx context.Context, msg string, attrs ...observability.Attribute) {
	observer.logger.LogAttrs(ctx, slog.LevelError, msg, toSlogAttrs(attrs)...)
}

func toSlogAttrs(attrs []observability.Attribute) []slog.Attr {
	converted := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		converted = append(converted, slog.Any(attr.Key, attr.Value))
	}
	return converted
}
