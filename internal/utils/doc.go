// Package utils holds the small helpers shared by the providers: the JSON
// POST round-trip used by the model endpoint client, text truncation for
// log previews and a stopwatch for latency metrics.
package utils
