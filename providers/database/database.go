// Package database defines the schema and SQL execution collaborator used by
// the pipeline. Implementations live in sub-packages; see [sqldb] for the
// database/sql backed one.
package database

import (
	"context"
	"errors"

	"github.com/leofalp/sqlgraph/core/state"
)

var (
	// ErrUnknownDatabase is returned for a database id that is not configured.
	ErrUnknownDatabase = errors.New("unknown database")

	// ErrWriteRejected is returned for statements that would modify data when
	// writes are not allowed.
	ErrWriteRejected = errors.New("statement rejected: only read-only queries are allowed")
)

// Database exposes the schemas of a set of databases and runs SQL against
// them. Errors are opaque to the pipeline, which records them in the step
// that hit them.
type Database interface {
	// Databases returns the configured database ids in sorted order.
	Databases(ctx context.Context) ([]string, error)

	// Schema returns every table of dbID with its columns in ordinal order.
	Schema(ctx context.Context, dbID string) (state.Schema, error)

	// ExecuteSQL runs statement against dbID and returns its rows.
	ExecuteSQL(ctx context.Context, dbID string, statement string) ([][]any, error)

	// SampleValues returns up to limit distinct non-null values of a column,
	// formatted as strings.
	SampleValues(ctx context.Context, dbID, table, column string, limit int) ([]string, error)
}
