package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/leofalp/sqlgraph/core/state"
	"github.com/leofalp/sqlgraph/internal/utils"
	"github.com/leofalp/sqlgraph/providers/database"
	"github.com/leofalp/sqlgraph/providers/observability"
)

// Driver names accepted in Config.Driver.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "pgx"
)

// DefaultMaxRows caps the rows returned by ExecuteSQL.
const DefaultMaxRows = 1000

// Config describes one database.
type Config struct {
	// Driver is "duckdb" or "pgx". "postgres" is accepted as an alias of "pgx".
	Driver string `yaml:"driver"`

	// DSN is passed to sql.Open. For duckdb it is the database file path; an
	// empty DSN opens an in-memory database.
	DSN string `yaml:"dsn"`

	// Schema is the information_schema table_schema to read. Defaults to
	// "main" for duckdb and "public" for pgx.
	Schema string `yaml:"schema"`

	// MaxOpenConns bounds the connection pool. Zero leaves the driver default.
	MaxOpenConns int `yaml:"max_open_conns"`
}

func (config Config) driverName() string {
	driver := strings.ToLower(strings.TrimSpace(config.Driver))
	if driver == "postgres" || driver == "postgresql" {
		return DriverPostgres
	}
	return driver
}

func (config Config) tableSchema() string {
	if config.Schema != "" {
		return config.Schema
	}
	if config.driverName() == DriverPostgres {
		return "public"
	}
	return "main"
}

// Manager implements database.Database over a set of configured databases.
type Manager struct {
	mu          sync.RWMutex
	configs     map[string]Config
	handles     map[string]*sql.DB
	maxRows     int
	allowWrites bool
	observer    observability.Provider
}

var _ database.Database = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithMaxRows caps the rows returned by ExecuteSQL.
func WithMaxRows(maxRows int) Option {
	return func(manager *Manager) {
		if maxRows > 0 {
			manager.maxRows = maxRows
		}
	}
}

// WithAllowWrites disables the read-only guard.
func WithAllowWrites(allow bool) Option {
	return func(manager *Manager) {
		manager.allowWrites = allow
	}
}

// WithObserver enables query spans, metrics and logs.
func WithObserver(observer observability.Provider) Option {
	return func(manager *Manager) {
		manager.observer = observer
	}
}

// WithHandle registers an already opened handle under id. It is used for
// databases owned by the caller and in tests.
func WithHandle(id string, db *sql.DB, config Config) Option {
	return func(manager *Manager) {
		manager.configs[id] = config
		manager.handles[id] = db
	}
}

// New returns a Manager for configs, keyed by database id. Nothing is opened
// until a database is used.
func New(configs map[string]Config, opts ...Option) (*Manager, error) {
	manager := &Manager{
		configs: make(map[string]Config, len(configs)),
		handles: make(map[string]*sql.DB),
		maxRows: DefaultMaxRows,
	}
	for id, config := range configs {
		switch config.driverName() {
		case DriverDuckDB, DriverPostgres:
		default:
			return nil, fmt.Errorf("database %q: unsupported driver %q", id, config.Driver)
		}
		manager.configs[id] = config
	}
	for _, opt := range opts {
		opt(manager)
	}
	return manager, nil
}

// Databases implements database.Database.
func (manager *Manager) Databases(_ context.Context) ([]string, error) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return slices.Sorted(maps.Keys(manager.configs)), nil
}

// handle returns the open handle for id, opening it on first use.
func (manager *Manager) handle(ctx context.Context, id string) (*sql.DB, Config, error) {
	manager.mu.RLock()
	config, known := manager.configs[id]
	db := manager.handles[id]
	manager.mu.RUnlock()

	if !known {
		return nil, Config{}, fmt.Errorf("%w: %q", database.ErrUnknownDatabase, id)
	}
	if db != nil {
		return db, config, nil
	}

	manager.mu.Lock()
	defer manager.mu.Unlock()

	if db = manager.handles[id]; db != nil {
		return db, config, nil
	}

	db, err := sql.Open(config.driverName(), config.DSN)
	if err != nil {
		return nil, config, fmt.Errorf("open database %q: %w", id, err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, config, fmt.Errorf("ping database %q: %w", id, err)
	}

	manager.handles[id] = db
	return db, config, nil
}

const schemaQuery = `SELECT table_name, column_name
FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`

// Schema implements database.Database.
func (manager *Manager) Schema(ctx context.Context, dbID string) (state.Schema, error) {
	db, config, err := manager.handle(ctx, dbID)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, schemaQuery, config.tableSchema())
	if err != nil {
		return nil, fmt.Errorf("read schema of %q: %w", dbID, err)
	}
	defer func() { _ = rows.Close() }()

	schema := state.Schema{}
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}
		schema[table] = append(schema[table], column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema rows: %w", err)
	}
	return schema, nil
}

// ExecuteSQL implements database.Database. At most the configured maximum
// number of rows is returned.
func (manager *Manager) ExecuteSQL(ctx context.Context, dbID string, statement string) ([][]any, error) {
	sqlText := stripTrailingSemicolons(statement)
	if sqlText == "" {
		return nil, fmt.Errorf("sql is required")
	}
	if !manager.allowWrites {
		if err := checkReadOnly(sqlText); err != nil {
			return nil, err
		}
	}

	db, config, err := manager.handle(ctx, dbID)
	if err != nil {
		return nil, err
	}

	ctx, span := manager.observeQueryStart(ctx, dbID, config, sqlText)
	watch := utils.StartStopwatch()
	rows, err := manager.query(ctx, db, sqlText)
	manager.observeQueryEnd(ctx, span, dbID, len(rows), watch.Stop(), err)
	return rows, err
}

func (manager *Manager) query(ctx context.Context, db *sql.DB, sqlText string) ([][]any, error) {
	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for len(resultRows) < manager.maxRows && rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for index := range values {
			scanTargets[index] = &values[index]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return resultRows, nil
}

// SampleValues implements database.Database.
func (manager *Manager) SampleValues(ctx context.Context, dbID, table, column string, limit int) ([]string, error) {
	db, _, err := manager.handle(ctx, dbID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	sqlText := fmt.Sprintf(`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL LIMIT %d`,
		quoteIdent(column), quoteIdent(table), quoteIdent(column), limit)
	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("sample %s.%s: %w", table, column, err)
	}
	defer func() { _ = rows.Close() }()

	values := make([]string, 0, limit)
	for rows.Next() {
		var value any
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan sample value: %w", err)
		}
		values = append(values, fmt.Sprint(normalizeValue(value)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sample values: %w", err)
	}
	return values, nil
}

// Close closes every opened handle.
func (manager *Manager) Close() error {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	var firstErr error
	for id, db := range manager.handles {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close database %q: %w", id, err)
		}
		delete(manager.handles, id)
	}
	return firstErr
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for index, value := range values {
		normalized[index] = normalizeValue(value)
	}
	return normalized
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano)
	default:
		return typed
	}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
