// Package inmemory provides a concurrency-safe keyword index implementing
// [retrieval.Retriever] in process memory. Values are scored by token overlap
// with a bonus for substring matches, which is enough to resolve entity
// mentions such as "Alameda County" to the column that stores them.
//
// [Index.IndexDatabase] fills the index by sampling distinct values from every
// column of a [database.Database].
package inmemory
