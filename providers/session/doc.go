// Package session defines the Store interface for chat sessions.
// A [Session] binds one chat context and one compiled pipeline graph to an
// opaque identifier. Turns of the same session are serialized through
// [Session.Turn]; distinct sessions share nothing.
// The bundled store lives in the sibling package
// [github.com/leofalp/sqlgraph/providers/session/inmemory]; a [TurnLog]
// backed by PostgreSQL lives in
// [github.com/leofalp/sqlgraph/providers/session/pgturns].
package session
