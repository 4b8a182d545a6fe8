package pgturns

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leofalp/sqlgraph/core/state"
	"github.com/leofalp/sqlgraph/providers/observability"
	"github.com/leofalp/sqlgraph/providers/session"
)

// DefaultTableName is the table used when no custom name is provided.
const DefaultTableName = "sqlgraph_turns"

// Querier abstracts the pgx methods Log needs. *pgxpool.Pool, *pgx.Conn and
// pgx.Tx all satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Log implements [session.TurnLog] on a PostgreSQL table. It holds no state
// besides the executor, so one Log serves every session.
type Log struct {
	db        Querier
	table     string
	tableName string
}

// Compile-time check: Log must implement session.TurnLog.
var _ session.TurnLog = (*Log)(nil)

// Option configures a Log.
type Option func(*Log)

// WithTableName overrides DefaultTableName. The name is quoted with
// pgx.Identifier because it is interpolated into the statements.
func WithTableName(name string) Option {
	return func(log *Log) {
		log.tableName = name
		log.table = pgx.Identifier{name}.Sanitize()
	}
}

// New returns a Log writing through db.
func New(db Querier, opts ...Option) *Log {
	log := &Log{
		db:        db,
		table:     DefaultTableName,
		tableName: DefaultTableName,
	}
	for _, opt := range opts {
		opt(log)
	}
	return log
}

func (log *Log) indexName() string {
	return pgx.Identifier{"idx_" + log.tableName + "_session_seq"}.Sanitize()
}

// Append implements session.TurnLog. The selected schema is stored as JSONB;
// an empty selection is stored as NULL.
func (log *Log) Append(ctx context.Context, sessionID string, turn session.LoggedTurn) error {
	selected, err := marshalSchema(turn.Selected)
	if err != nil {
		return fmt.Errorf("pgturns: encode selected schema: %w", err)
	}
	at := turn.Turn.At
	if at.IsZero() {
		at = time.Now()
	}

	query := fmt.Sprintf(`INSERT INTO %s
		(session_id, db_id, question, enhanced_question, sql_query, response, status, selected_schema, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, log.table)

	_, err = log.db.Exec(ctx, query,
		sessionID,
		turn.DBID,
		turn.Turn.Question,
		turn.Turn.EnhancedQuestion,
		turn.Turn.SQL,
		turn.Turn.Response,
		string(turn.Turn.Status),
		selected,
		at,
	)
	if err != nil {
		return fmt.Errorf("pgturns: append: %w", err)
	}

	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventTurnPersisted,
			observability.String(observability.AttrSessionID, sessionID),
		)
	}
	return nil
}

// Turns implements session.TurnLog.
func (log *Log) Turns(ctx context.Context, sessionID string) ([]session.LoggedTurn, error) {
	query := fmt.Sprintf(`SELECT db_id, question, enhanced_question, sql_query, response, status, selected_schema, created_at
		FROM %s WHERE session_id = $1 ORDER BY seq ASC`, log.table)

	rows, err := log.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("pgturns: turns: %w", err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

// Clear implements session.TurnLog.
func (log *Log) Clear(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1`, log.table)
	if _, err := log.db.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("pgturns: clear: %w", err)
	}
	return nil
}

// scanTurns reads every row. It returns an empty non-nil slice when there are
// no rows.
func scanTurns(rows pgx.Rows) ([]session.LoggedTurn, error) {
	turns := []session.LoggedTurn{}
	for rows.Next() {
		var (
			logged       session.LoggedTurn
			status       string
			selectedJSON []byte
		)
		if err := rows.Scan(
			&logged.DBID,
			&logged.Turn.Question,
			&logged.Turn.EnhancedQuestion,
			&logged.Turn.SQL,
			&logged.Turn.Response,
			&status,
			&selectedJSON,
			&logged.Turn.At,
		); err != nil {
			return nil, fmt.Errorf("pgturns: scan row: %w", err)
		}
		logged.Turn.Status = state.StepStatus(status)
		if len(selectedJSON) > 0 {
			if err := json.Unmarshal(selectedJSON, &logged.Selected); err != nil {
				return nil, fmt.Errorf("pgturns: decode selected schema: %w", err)
			}
		}
		turns = append(turns, logged)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgturns: iterate rows: %w", err)
	}
	return turns, nil
}

// marshalSchema maps an empty schema to SQL NULL instead of "{}".
func marshalSchema(schema state.Schema) ([]byte, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	return json.Marshal(schema)
}
