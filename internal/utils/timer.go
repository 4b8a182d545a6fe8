package utils

import "time"

// Stopwatch measures the wall-clock time of one operation.
type Stopwatch struct {
	started time.Time
	elapsed time.Duration
	stopped bool
}

// StartStopwatch returns a running stopwatch.
func StartStopwatch() *Stopwatch {
	return &Stopwatch{started: time.Now()}
}

// Stop freezes the measurement and returns it. Later calls return the first
// measurement.
func (watch *Stopwatch) Stop() time.Duration {
	if !watch.stopped {
		watch.elapsed = time.Since(watch.started)
		watch.stopped = true
	}
	return watch.elapsed
}

// Elapsed returns the frozen measurement, or the running time when the
// stopwatch was not stopped yet.
func (watch *Stopwatch) Elapsed() time.Duration {
	if watch.stopped {
		return watch.elapsed
	}
	return time.Since(watch.started)
}
