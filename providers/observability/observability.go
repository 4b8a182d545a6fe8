package observability

import (
	"context"
	"maps"
	"slices"
	"time"
)

// Provider bundles the three signals every sqlgraph component reports
// through. A nil Provider disables observation.
type Provider interface {
	Tracer
	Metrics
	Logger
}

// Tracer opens spans.
type Tracer interface {
	// StartSpan opens a span named name and returns a context carrying it.
	StartSpan(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Span is one timed unit of work, such as a node run or a model request.
// End must be called exactly once; implementations ignore later calls.
type Span interface {
	End()
	SetAttributes(attrs ...Attribute)
	SetStatus(code StatusCode, description string)
	RecordError(err error)

	// AddEvent records a point-in-time occurrence within the span.
	AddEvent(name string, attrs ...Attribute)
}

// StatusCode is the outcome of a span.
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

// Metrics hands out named instruments. Asking twice for the same name
// returns the same instrument.
type Metrics interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// Counter only goes up.
type Counter interface {
	Add(ctx context.Context, value int64, attrs ...Attribute)
}

// Histogram records a distribution, e.g. durations in seconds.
type Histogram interface {
	Record(ctx context.Context, value float64, attrs ...Attribute)
}

// Logger writes structured log lines. Trace sits below Debug and carries
// payload previews such as prompts and model output.
type Logger interface {
	Trace(ctx context.Context, msg string, attrs ...Attribute)
	Debug(ctx context.Context, msg string, attrs ...Attribute)
	Info(ctx context.Context, msg string, attrs ...Attribute)
	Warn(ctx context.Context, msg string, attrs ...Attribute)
	Error(ctx context.Context, msg string, attrs ...Attribute)
}

// Attribute is a key/value pair attached to spans, metrics and log lines.
// Keys come from semconv.go where one exists.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value}
}

func StringSlice(key string, value []string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Any wraps a value of arbitrary type. Backends render it with fmt or
// encoding/json.
func Any(key string, value any) Attribute {
	return Attribute{Key: key, Value: value}
}

// Error records err under the "error" key. A nil error yields an empty
// message.
func Error(err error) Attribute {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return Attribute{Key: AttrError, Value: message}
}

// Fields turns values into attributes ordered by key, so log lines built
// from maps are stable.
func Fields(values map[string]any) []Attribute {
	attrs := make([]Attribute, 0, len(values))
	for _, key := range slices.Sorted(maps.Keys(values)) {
		attrs = append(attrs, Any(key, values[key]))
	}
	return attrs
}
