// Package repository implements the data access layer for workflow threads
// and checkpoints.
//
// # Repository Pattern
//
// CheckpointRepository accepts a database.Database and picks its statements
// by the database's dialect, so the same code runs on SQLite and SurrealDB:
//
//   - Parameterized queries with $variable syntax
//   - Timestamps stored as fixed-width UTC strings so they sort lexically
//   - AgentState stored as a JSON document per checkpoint
//
// SaveCheckpoint writes the checkpoint and upserts its thread in one atomic
// batch. Latest, History, GetThread and ListThreads read; DeleteThread and
// PruneBefore remove a thread together with its checkpoints.
//
// # Example Usage
//
//	repo := NewCheckpointRepository(db)
//	cp, err := repo.Latest(ctx, threadID)
//	if err != nil {
//	    if errors.Is(err, database.ErrNotFound) {
//	        // Handle not found
//	    }
//	    return err
//	}
package repository
