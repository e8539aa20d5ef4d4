// Package database provides checkpoint storage connectivity for the Negotiator API.
//
// The Database interface abstracts the two supported backends so repositories
// stay independent of the driver:
//
//   - SQLite (default): a single file at DATABASE_PATH, opened through
//     modernc.org/sqlite. The schema is created on Connect.
//   - SurrealDB: selected with CHECKPOINT_BACKEND=surrealdb, connected over
//     WebSocket with root credentials.
//
// Both implementations accept $name placeholders and return results in the
// same envelope, so the same parsing helpers work for either:
//
//	[]interface{}{map[string]interface{}{"status": "OK", "result": []interface{}{row, ...}}}
//
// Query text differs between backends; callers branch on Dialect().
//
// # Transactions
//
// Transactions are batch-based. Statements passed to Transaction.Execute are
// queued and only run when Commit is called. Rollback discards the queue.
// AtomicBatch is the usual entry point:
//
//	err := database.NewAtomicBatch().
//	    Add(upsertThread, threadVars).
//	    Add(insertCheckpoint, checkpointVars).
//	    Execute(ctx, db)
//
// # Error Types
//
//   - ErrNotFound: Record does not exist
//   - ErrDuplicate: Unique constraint violation
//   - ErrConnection: Database connection failed
//   - ErrQuery: Query execution failed
package database
