// Package sqldb implements database.Database over database/sql.
//
// Two drivers are registered: "duckdb" (github.com/marcboeker/go-duckdb/v2)
// for local analytical files and "pgx" (github.com/jackc/pgx/v5/stdlib) for
// PostgreSQL. Handles are opened lazily on first use and shared by every
// run. Schemas come from information_schema.columns.
//
// Unless writes are allowed, statements are checked by a read-only guard
// before they reach the database: only a single SELECT, WITH, VALUES,
// EXPLAIN, SHOW or DESCRIBE statement is accepted, and data or schema
// modifying keywords outside string literals are rejected with
// database.ErrWriteRejected.
package sqldb
