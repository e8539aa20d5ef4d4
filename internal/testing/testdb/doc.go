// Package testdb provides checkpoint databases for tests.
//
// New opens a SQLite file in the test's temporary directory with the schema
// already applied, so repository and service tests run without external
// services:
//
//	func TestSomething(t *testing.T) {
//	    tdb := testdb.New(t)
//	    repo := repository.NewCheckpointRepository(tdb.DB)
//	}
//
// NewSurreal runs the same tests against SurrealDB in a throwaway namespace.
// It needs TEST_DB_HOST (and optionally TEST_DB_PORT, TEST_DB_USER,
// TEST_DB_PASSWORD) and skips the test otherwise.
//
// Both register cleanup with t.Cleanup.
package testdb
