// Package promobs exports sqlgraph metrics to Prometheus.
//
// Metric names from semconv.go are sanitized into Prometheus names
// ("sqlgraph.node.count" becomes "sqlgraph_node_count_total"). The label set
// of a metric is fixed by the attribute keys of its first observation; later
// observations fill missing labels with "" and drop extra attributes. Error
// messages are never used as labels.
//
// Tracing and logging are delegated to another [observability.Provider],
// typically a slogobs.Observer, so one Observer can be wired everywhere:
//
//	logs := slogobs.New(slogobs.WithFormat(slogobs.FormatCompact))
//	observer := promobs.New(promobs.WithDelegate(logs))
//	http.Handle("/metrics", promhttp.Handler())
package promobs
