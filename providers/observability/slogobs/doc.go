// Package slogobs provides an observability.Provider implementation backed by
// log/slog. It is the default observer of the sqlgraph engine and CLI.
//
// Output goes through [Handler], which writes compact, pretty or JSON lines,
// sorts attribute keys and redacts values of secret-looking keys such as DSNs
// and API keys. Counters and histograms are aggregated in memory and can be
// read back with [Observer.CounterValue] and [Observer.HistogramSummary].
package slogobs
