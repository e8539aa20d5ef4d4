package testdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/forgo/negotiator/internal/database"
)

// TestDB provides an isolated checkpoint database for one test
type TestDB struct {
	DB database.Database
	// Namespace is set for SurrealDB databases only
	Namespace string
	t         *testing.T
}

var (
	counterMu sync.Mutex
	counter   int64
)

// uniqueNamespace generates a unique namespace for test isolation
func uniqueNamespace() string {
	counterMu.Lock()
	defer counterMu.Unlock()
	counter++
	return fmt.Sprintf("test_%d_%d", time.Now().UnixNano(), counter)
}

// New creates a SQLite database in a temporary directory with the schema
// applied. It is closed automatically when the test ends.
func New(t *testing.T) *TestDB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := database.NewSQLite(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err := db.Connect(ctx); err != nil {
		t.Fatalf("testdb: failed to open sqlite: %v", err)
	}

	tdb := &TestDB{DB: db, t: t}
	t.Cleanup(tdb.Close)
	return tdb
}

// NewSurreal connects to the SurrealDB instance named by TEST_DB_HOST in a
// fresh namespace. The test is skipped when TEST_DB_HOST is not set.
func NewSurreal(t *testing.T) *TestDB {
	t.Helper()

	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("testdb: TEST_DB_HOST not set, skipping SurrealDB test")
	}

	cfg := database.Config{
		Host:      host,
		Port:      envOr("TEST_DB_PORT", "8000"),
		User:      envOr("TEST_DB_USER", "root"),
		Password:  envOr("TEST_DB_PASSWORD", "root"),
		Namespace: uniqueNamespace(),
		Database:  "test",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := database.NewSurrealDB(cfg)
	if err := db.Connect(ctx); err != nil {
		t.Fatalf("testdb: failed to connect: %v", err)
	}

	tdb := &TestDB{DB: db, Namespace: cfg.Namespace, t: t}
	t.Cleanup(tdb.Close)
	return tdb
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Close releases the database. SurrealDB namespaces are removed.
func (tdb *TestDB) Close() {
	if tdb.DB == nil {
		return
	}

	if tdb.Namespace != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = tdb.DB.Execute(ctx, fmt.Sprintf("REMOVE NAMESPACE %s", tdb.Namespace), nil)
	}

	_ = tdb.DB.Close()
	tdb.DB = nil
}

// Reset clears all threads and checkpoints while preserving schema
func (tdb *TestDB) Reset(t *testing.T) {
	t.Helper()

	for _, table := range []string{"checkpoint", "thread"} {
		query := "DELETE FROM " + table
		if tdb.DB.Dialect() == database.DialectSurrealQL {
			query = "DELETE " + table
		}
		if err := tdb.DB.Execute(tdb.Ctx(), query, nil); err != nil {
			t.Fatalf("testdb: failed to clear table %s: %v", table, err)
		}
	}
}

// Ctx returns a context that is cancelled when the test ends
func (tdb *TestDB) Ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	tdb.t.Cleanup(cancel)
	return ctx
}

// MustExec executes a statement and fails the test on error
func (tdb *TestDB) MustExec(query string, vars map[string]interface{}) {
	tdb.t.Helper()
	if err := tdb.DB.Execute(tdb.Ctx(), query, vars); err != nil {
		tdb.t.Fatalf("testdb: exec failed: %v\nQuery: %s", err, query)
	}
}

// MustQuery executes a query and returns results, failing the test on error
func (tdb *TestDB) MustQuery(query string, vars map[string]interface{}) []interface{} {
	tdb.t.Helper()
	results, err := tdb.DB.Query(tdb.Ctx(), query, vars)
	if err != nil {
		tdb.t.Fatalf("testdb: query failed: %v\nQuery: %s", err, query)
	}
	return results
}
