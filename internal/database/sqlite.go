package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLite implements the Database interface on a local SQLite file
type SQLite struct {
	path string
	db   *sql.DB
	mu   sync.RWMutex
}

// NewSQLite creates a new SQLite instance. Use ":memory:" for a private
// in-memory database.
func NewSQLite(path string) *SQLite {
	return &SQLite{path: path}
}

// schema is applied on every Connect
var schema = []string{
	`CREATE TABLE IF NOT EXISTS thread (
		thread_id    TEXT PRIMARY KEY,
		status       TEXT NOT NULL,
		user_query   TEXT NOT NULL DEFAULT '',
		current_step TEXT NOT NULL DEFAULT '',
		created_on   TEXT NOT NULL,
		updated_on   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS checkpoint (
		checkpoint_id TEXT PRIMARY KEY,
		thread_id     TEXT NOT NULL,
		step          TEXT NOT NULL,
		next_step     TEXT NOT NULL DEFAULT '',
		seq           INTEGER NOT NULL,
		state         TEXT NOT NULL,
		created_on    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_checkpoint_thread_seq ON checkpoint (thread_id, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_thread_updated ON thread (updated_on)`,
}

// Connect opens the database file, creating parent directories and the schema
func (s *SQLite) Connect(ctx context.Context) error {
	if s.path != ":memory:" {
		if dir := filepath.Dir(s.path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("%w: create %s: %v", ErrConnection, dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	// One connection keeps writes serialized and ":memory:" databases shared
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil && s.path != ":memory:" {
			_ = db.Close()
			return fmt.Errorf("%w: %s: %v", ErrConnection, pragma, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate: %v", ErrQuery, err)
		}
	}
	return nil
}

// Close closes the database
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Ping checks the database connection
func (s *SQLite) Ping(ctx context.Context) error {
	db := s.conn()
	if db == nil {
		return ErrConnection
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

// Dialect reports SQLite
func (s *SQLite) Dialect() Dialect {
	return DialectSQLite
}

// Path returns the database file path
func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) conn() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Query executes a query and returns its rows as maps keyed by column name
func (s *SQLite) Query(ctx context.Context, query string, vars map[string]interface{}) ([]interface{}, error) {
	db := s.conn()
	if db == nil {
		return nil, ErrConnection
	}

	rows, err := db.QueryContext(ctx, query, namedArgs(query, vars)...)
	if err != nil {
		return nil, classifySQLiteError(err)
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	return okEnvelope(records), nil
}

// QueryOne executes a query and returns a single result
func (s *SQLite) QueryOne(ctx context.Context, query string, vars map[string]interface{}) (interface{}, error) {
	results, err := s.Query(ctx, query, vars)
	if err != nil {
		return nil, err
	}
	return firstRecord(results)
}

// Execute runs a statement without returning results
func (s *SQLite) Execute(ctx context.Context, query string, vars map[string]interface{}) error {
	db := s.conn()
	if db == nil {
		return ErrConnection
	}
	if _, err := db.ExecContext(ctx, query, namedArgs(query, vars)...); err != nil {
		return classifySQLiteError(err)
	}
	return nil
}

// BeginTx starts a batch transaction committed inside a single sql.Tx
func (s *SQLite) BeginTx(ctx context.Context) (Transaction, error) {
	if s.conn() == nil {
		return nil, ErrConnection
	}
	return &SQLiteTransaction{sqlite: s, ctx: ctx}, nil
}

// SQLiteTransaction implements Transaction for SQLite
type SQLiteTransaction struct {
	sqlite    *SQLite
	ctx       context.Context
	queries   []txQuery
	committed bool
}

func (t *SQLiteTransaction) Execute(_ context.Context, query string, vars map[string]interface{}) error {
	t.queries = append(t.queries, txQuery{query: query, vars: vars})
	return nil
}

func (t *SQLiteTransaction) Commit() error {
	if t.committed || len(t.queries) == 0 {
		return nil
	}

	db := t.sqlite.conn()
	if db == nil {
		return ErrConnection
	}

	tx, err := db.BeginTx(t.ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrConnection, err)
	}
	for _, q := range t.queries {
		if _, err := tx.ExecContext(t.ctx, q.query, namedArgs(q.query, q.vars)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("commit failed: %w", classifySQLiteError(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit failed: %v", ErrQuery, err)
	}

	t.committed = true
	return nil
}

func (t *SQLiteTransaction) Rollback() error {
	t.queries = nil
	return nil
}

var placeholderPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// namedArgs binds only the variables the statement references
func namedArgs(query string, vars map[string]interface{}) []interface{} {
	if len(vars) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	args := make([]interface{}, 0, len(vars))
	for _, m := range placeholderPattern.FindAllStringSubmatch(query, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		if v, ok := vars[name]; ok {
			args = append(args, sql.Named(name, v))
		}
	}
	return args
}

func scanRows(rows *sql.Rows) ([]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}

	records := make([]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQuery, err)
		}

		record := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
				continue
			}
			record[col] = values[i]
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return records, nil
}

func classifySQLiteError(err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return fmt.Errorf("%w: %v", ErrQuery, err)
}
