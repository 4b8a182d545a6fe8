package pgturns

import (
	"context"
	"fmt"
)

// createTableSQL keeps every field of state.Turn. seq orders the turns of a
// session even when two share a timestamp.
const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    seq               BIGSERIAL PRIMARY KEY,
    session_id        TEXT NOT NULL,
    db_id             TEXT NOT NULL,
    question          TEXT NOT NULL,
    enhanced_question TEXT NOT NULL DEFAULT '',
    sql_query         TEXT NOT NULL DEFAULT '',
    response          TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL,
    selected_schema   JSONB,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const createSessionSeqIndexSQL = `CREATE INDEX IF NOT EXISTS %s
    ON %s (session_id, seq)`

// EnsureSchema creates the turn table and its lookup index if they do not
// already exist. Deployments that manage migrations themselves can skip it.
func (log *Log) EnsureSchema(ctx context.Context) error {
	if _, err := log.db.Exec(ctx, fmt.Sprintf(createTableSQL, log.table)); err != nil {
		return fmt.Errorf("pgturns: create table: %w", err)
	}
	if _, err := log.db.Exec(ctx, fmt.Sprintf(createSessionSeqIndexSQL, log.indexName(), log.table)); err != nil {
		return fmt.Errorf("pgturns: create session_seq index: %w", err)
	}
	return nil
}
