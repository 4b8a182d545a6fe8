// Package sqlgraph answers natural-language questions against relational
// databases by running them through a graph of LLM-backed pipeline stages.
//
// An [Engine] compiles the pipeline once and serves two entry points:
//
//   - [Engine.Run] answers one standalone question.
//   - [Engine.StartSession], [Engine.Turn] and [Engine.EndSession] hold a
//     multi-turn chat whose follow-up questions are rewritten with the
//     context of earlier turns.
//
// Both return a [Result] carrying the final SQL, its rows, a natural
// language response, a status and the full execution history. Failures
// inside stages never escape as errors: they end up in the history and in
// the result status. Errors are only returned when a run cannot start, e.g.
// for an unknown database or session.
package sqlgraph
