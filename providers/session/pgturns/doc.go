// Package pgturns provides a PostgreSQL-backed implementation of the
// [session.TurnLog] interface. Turns of every session live in one table and
// are ordered by a monotonic sequence column, so a chat session can be
// resumed by any process sharing the database.
//
// The package does not depend on a specific driver; any executor satisfying
// [Querier] (typically *pgxpool.Pool) can be used.
//
// Call [Log.EnsureSchema] once at startup to create the table and its index
// if they do not already exist.
package pgturns
