// Package inmemory provides a concurrency-safe, map-backed implementation of
// the [session.Store] interface for chat sessions held in process memory.
// It is designed for single-process use where sessions need not survive a
// restart. The main entry point is [New].
package inmemory
