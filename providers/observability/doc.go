// Package observability defines the interfaces and semantic conventions used
// for tracing, metrics and structured logging throughout sqlgraph.
//
// The central entry point is [Provider], which composes [Tracer], [Metrics],
// and [Logger] into a single injectable dependency. The engine attaches the
// active [Provider] and [Span] to the run context with [ContextWithObserver]
// and [ContextWithSpan]; pipeline stages retrieve them with
// [ObserverFromContext] and [SpanFromContext].
//
// Implementations live in the slogobs (log/slog) and promobs (Prometheus)
// sub-packages. semconv.go holds the attribute keys, span names and metric
// names every component records under.
package observability
