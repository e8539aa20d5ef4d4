package database

import (
	"context"
	"fmt"
	"regexp"
)

// AtomicBatch runs a set of statements that must succeed together.
//
// Variables are namespaced per statement ($thread_id -> $v1_thread_id) so two
// statements may use the same variable name with different values even on
// backends that merge all variables into one request.
//
//	batch := NewAtomicBatch()
//	batch.Add(query1, vars1)
//	batch.Add(query2, vars2)
//	batch.Execute(ctx, db)  // All or nothing
type AtomicBatch struct {
	queries []batchQuery
}

type batchQuery struct {
	query string
	vars  map[string]interface{}
}

// NewAtomicBatch creates a new atomic batch
func NewAtomicBatch() *AtomicBatch {
	return &AtomicBatch{
		queries: make([]batchQuery, 0),
	}
}

// Add adds a query to the batch
func (ab *AtomicBatch) Add(query string, vars map[string]interface{}) *AtomicBatch {
	ab.queries = append(ab.queries, batchQuery{query: query, vars: vars})
	return ab
}

// Execute runs all queries as a single transaction
func (ab *AtomicBatch) Execute(ctx context.Context, db Database) error {
	if len(ab.queries) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}
	for i, q := range ab.queries {
		query, vars := namespaceVars(i+1, q.query, q.vars)
		if err := tx.Execute(ctx, query, vars); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Len returns the number of queries in the batch
func (ab *AtomicBatch) Len() int {
	return len(ab.queries)
}

// namespaceVars rewrites each $name in query to $v{n}_name
func namespaceVars(n int, query string, vars map[string]interface{}) (string, map[string]interface{}) {
	out := make(map[string]interface{}, len(vars))
	for name, value := range vars {
		renamed := fmt.Sprintf("v%d_%s", n, name)
		pattern := regexp.MustCompile(`\$` + regexp.QuoteMeta(name) + `\b`)
		query = pattern.ReplaceAllLiteralString(query, "$"+renamed)
		out[renamed] = value
	}
	return query, out
}
