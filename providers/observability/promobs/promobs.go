package promobs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leofalp/sqlgraph/providers/observability"
)

// Observer records metrics in Prometheus collectors and forwards spans and
// logs to a delegate.
type Observer struct {
	delegate   observability.Provider
	registerer prometheus.Registerer
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*counter
	histograms map[string]*histogram
}

var _ observability.Provider = (*Observer)(nil)

// Option configures an Observer.
type Option func(*Observer)

// WithDelegate sets the provider receiving spans and logs. Without it spans
// and logs are discarded.
func WithDelegate(delegate observability.Provider) Option {
	return func(observer *Observer) {
		observer.delegate = delegate
	}
}

// WithRegisterer sets where collectors are registered. Defaults to
// prometheus.DefaultRegisterer.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(observer *Observer) {
		if registerer != nil {
			observer.registerer = registerer
		}
	}
}

// WithBuckets sets the histogram buckets, in seconds for durations.
// Defaults to prometheus.DefBuckets.
func WithBuckets(buckets []float64) Option {
	return func(observer *Observer) {
		if len(buckets) > 0 {
			observer.buckets = slices.Clone(buckets)
		}
	}
}

// New returns an Observer.
func New(opts ...Option) *Observer {
	observer := &Observer{
		registerer: prometheus.DefaultRegisterer,
		buckets:    prometheus.DefBuckets,
		counters:   make(map[string]*counter),
		histograms: make(map[string]*histogram),
	}
	for _, opt := range opts {
		opt(observer)
	}
	return observer
}

// --- METRICS ---

type counter struct {
	observer *Observer
	name     string
	once     sync.Once
	vec      *prometheus.CounterVec
	labels   []string
}

type histogram struct {
	observer *Observer
	name     string
	once     sync.Once
	vec      *prometheus.HistogramVec
	labels   []string
}

// Counter implements observability.Metrics. The collector is created on the
// first Add.
func (observer *Observer) Counter(name string) observability.Counter {
	observer.mu.Lock()
	defer observer.mu.Unlock()
	if existing, exists := observer.counters[name]; exists {
		return existing
	}
	created := &counter{observer: observer, name: name}
	observer.counters[name] = created
	return created
}

// Histogram implements observability.Metrics. The collector is created on
// the first Record.
func (observer *Observer) Histogram(name string) observability.Histogram {
	observer.mu.Lock()
	defer observer.mu.Unlock()
	if existing, exists := observer.histograms[name]; exists {
		return existing
	}
	created := &histogram{observer: observer, name: name}
	observer.histograms[name] = created
	return created
}

func (counter *counter) Add(_ context.Context, value int64, attrs ...observability.Attribute) {
	if value < 0 {
		return
	}
	counter.once.Do(func() {
		counter.labels = labelKeys(attrs)
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricName(counter.name) + "_total",
			Help: "sqlgraph counter " + counter.name + ".",
		}, labelNames(counter.labels))
		counter.vec = register(counter.observer.registerer, vec)
	})
	counter.vec.WithLabelValues(labelValues(counter.labels, attrs)...).Add(float64(value))
}

func (histogram *histogram) Record(_ context.Context, value float64, attrs ...observability.Attribute) {
	histogram.once.Do(func() {
		histogram.labels = labelKeys(attrs)
		vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricName(histogram.name),
			Help:    "sqlgraph histogram " + histogram.name + ".",
			Buckets: histogram.observer.buckets,
		}, labelNames(histogram.labels))
		histogram.vec = register(histogram.observer.registerer, vec)
	})
	histogram.vec.WithLabelValues(labelValues(histogram.labels, attrs)...).Observe(value)
}

// register registers collector, reusing an identical collector registered
// earlier, e.g. by another Observer on the same registry.
func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		// A conflicting collector: keep counting in an unregistered one.
	}
	return collector
}

// MetricName turns a dotted metric name into a Prometheus metric name.
func MetricName(name string) string {
	return sanitize(name)
}

func labelKeys(attrs []observability.Attribute) []string {
	keys := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		if attr.Key == observability.AttrError || slices.Contains(keys, attr.Key) {
			continue
		}
		keys = append(keys, attr.Key)
	}
	slices.Sort(keys)
	return keys
}

func labelNames(keys []string) []string {
	names := make([]string, len(keys))
	for index, key := range keys {
		names[index] = sanitize(key)
	}
	return names
}

func labelValues(keys []string, attrs []observability.Attribute) []string {
	values := make([]string, len(keys))
	for _, attr := range attrs {
		if index := slices.Index(keys, attr.Key); index >= 0 {
			values[index] = fmt.Sprint(attr.Value)
		}
	}
	return values
}

func sanitize(name string) string {
	var builder strings.Builder
	for index, char := range name {
		switch {
		case char >= 'a' && char <= 'z', char >= 'A' && char <= 'Z', char == '_':
			builder.WriteRune(char)
		case char >= '0' && char <= '9':
			if index == 0 {
				builder.WriteRune('_')
			}
			builder.WriteRune(char)
		default:
			builder.WriteRune('_')
		}
	}
	return builder.String()
}

// --- TRACING ---

// StartSpan implements observability.Tracer by delegating.
func (observer *Observer) StartSpan(ctx context.Context, name string, attrs ...observability.Attribute) (context.Context, observability.Span) {
	if observer.delegate == nil {
		return ctx, noopSpan{}
	}
	return observer.delegate.StartSpan(ctx, name, attrs...)
}

type noopSpan struct{}

func (noopSpan) End() {}
func (noopSpan) SetAttributes(...observability.Attribute) {}
func (noopSpan) SetStatus(observability.StatusCode, string) {}
func (noopSpan) RecordError(error) {}
func (noopSpan) AddEvent(string, ...observability.Attribute) {}

// --- LOGGING ---

func (observer *Observer) Trace(ctx context.Context, msg string, attrs ...observability.Attribute) {
	if observer.delegate != nil {
		observer.delegate.Trace(ctx, msg, attrs...)
	}
}

func (observer *Observer) Debug(ctx context.Context, msg string, attrs ...observability.Attribute) {
	if observer.delegate != nil {
		observer.delegate.Debug(ctx, msg, attrs...)
	}
}

func (observer *Observer) Info(ctx context.Context, msg string, attrs ...observability.Attribute) {
	if observer.delegate != nil {
		observer.delegate.Info(ctx, msg, attrs...)
	}
}

func (observer *Observer) Warn(ctx context.Context, msg string, attrs ...observability.Attribute) {
	if observer.delegate != nil {
		observer.delegate.Warn(ctx, msg, attrs...)
	}
}

func (observer *Observer) Error(ctx context.Context, msg string, attrs ...observability.Attribute) {
	if observer.delegate != nil {
		observer.delegate.Error(ctx, msg, attrs...)
	}
}
