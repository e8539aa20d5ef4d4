package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/forgo/negotiator/internal/database"
	"github.com/forgo/negotiator/internal/model"
)

// CheckpointRepository stores workflow threads and their state snapshots
type CheckpointRepository struct {
	db database.Database
	q  checkpointQueries
	// now stamps thread updates
	now func() time.Time
}

// NewCheckpointRepository creates a checkpoint repository for the database's dialect
func NewCheckpointRepository(db database.Database) *CheckpointRepository {
	q := sqliteQueries
	if db.Dialect() == database.DialectSurrealQL {
		q = surrealQueries
	}
	return &CheckpointRepository{
		db:  db,
		q:   q,
		now: func() time.Time { return time.Now().UTC() },
	}
}

type checkpointQueries struct {
	upsertThread     string
	insertCheckpoint string
	getThread        string
	latest           string
	history          string
	listThreads      string
	deleteThread     string
	deleteCheckpoint string
	staleThreads     string
}

const (
	checkpointColumns = `checkpoint_id, thread_id, step, next_step, seq, state, created_on`
	threadColumns     = `thread_id, status, user_query, current_step, created_on, updated_on`
)

var sqliteQueries = checkpointQueries{
	upsertThread: `
		INSERT INTO thread (thread_id, status, user_query, current_step, created_on, updated_on)
		VALUES ($thread_id, $status, $user_query, $current_step, $now, $now)
		ON CONFLICT (thread_id) DO UPDATE SET
			status = excluded.status,
			user_query = excluded.user_query,
			current_step = excluded.current_step,
			updated_on = excluded.updated_on
	`,
	insertCheckpoint: `
		INSERT INTO checkpoint (checkpoint_id, thread_id, step, next_step, seq, state, created_on)
		VALUES ($checkpoint_id, $thread_id, $step, $next_step, $seq, $state, $created_on)
	`,
	getThread:        `SELECT ` + threadColumns + ` FROM thread WHERE thread_id = $thread_id`,
	latest:           `SELECT ` + checkpointColumns + ` FROM checkpoint WHERE thread_id = $thread_id ORDER BY seq DESC LIMIT 1`,
	history:          `SELECT ` + checkpointColumns + ` FROM checkpoint WHERE thread_id = $thread_id ORDER BY seq ASC`,
	listThreads:      `SELECT ` + threadColumns + ` FROM thread ORDER BY updated_on DESC, thread_id ASC LIMIT $limit OFFSET $offset`,
	deleteThread:     `DELETE FROM thread WHERE thread_id = $thread_id`,
	deleteCheckpoint: `DELETE FROM checkpoint WHERE thread_id = $thread_id`,
	staleThreads:     `SELECT thread_id FROM thread WHERE updated_on < $before`,
}

var surrealQueries = checkpointQueries{
	upsertThread: `
		UPSERT type::thing("thread", $thread_id) SET
			thread_id = $thread_id,
			status = $status,
			user_query = $user_query,
			current_step = $current_step,
			created_on = created_on ?? $now,
			updated_on = $now
	`,
	insertCheckpoint: `
		CREATE type::thing("checkpoint", $checkpoint_id) CONTENT {
			checkpoint_id: $checkpoint_id,
			thread_id: $thread_id,
			step: $step,
			next_step: $next_step,
			seq: $seq,
			state: $state,
			created_on: $created_on
		}
	`,
	getThread:        `SELECT ` + threadColumns + ` FROM thread WHERE thread_id = $thread_id`,
	latest:           `SELECT ` + checkpointColumns + ` FROM checkpoint WHERE thread_id = $thread_id ORDER BY seq DESC LIMIT 1`,
	history:          `SELECT ` + checkpointColumns + ` FROM checkpoint WHERE thread_id = $thread_id ORDER BY seq ASC`,
	listThreads:      `SELECT ` + threadColumns + ` FROM thread ORDER BY updated_on DESC, thread_id ASC LIMIT $limit START $offset`,
	deleteThread:     `DELETE thread WHERE thread_id = $thread_id`,
	deleteCheckpoint: `DELETE checkpoint WHERE thread_id = $thread_id`,
	staleThreads:     `SELECT thread_id FROM thread WHERE updated_on < $before`,
}

// SaveCheckpoint stores a snapshot and updates its thread in one transaction
func (r *CheckpointRepository) SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error {
	if cp.State == nil {
		return fmt.Errorf("checkpoint %s has no state", cp.ID)
	}
	state, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if cp.CreatedOn.IsZero() {
		cp.CreatedOn = r.now()
	}

	batch := database.NewAtomicBatch().
		Add(r.q.insertCheckpoint, map[string]interface{}{
			"checkpoint_id": cp.ID,
			"thread_id":     cp.ThreadID,
			"step":          cp.Step,
			"next_step":     cp.NextStep,
			"seq":           cp.Seq,
			"state":         string(state),
			"created_on":    formatTime(cp.CreatedOn),
		}).
		Add(r.q.upsertThread, map[string]interface{}{
			"thread_id":    cp.ThreadID,
			"status":       string(cp.State.Status),
			"user_query":   cp.State.UserQuery,
			"current_step": cp.Step,
			"now":          formatTime(r.now()),
		})

	return batch.Execute(ctx, r.db)
}

// Latest returns the most recent checkpoint of a thread
func (r *CheckpointRepository) Latest(ctx context.Context, threadID string) (*model.Checkpoint, error) {
	result, err := r.db.QueryOne(ctx, r.q.latest, map[string]interface{}{"thread_id": threadID})
	if err != nil {
		return nil, err
	}
	return parseCheckpoint(result)
}

// History returns every checkpoint of a thread, oldest first
func (r *CheckpointRepository) History(ctx context.Context, threadID string) ([]model.Checkpoint, error) {
	result, err := r.db.Query(ctx, r.q.history, map[string]interface{}{"thread_id": threadID})
	if err != nil {
		return nil, err
	}

	rows, _ := extractQueryResults(result)
	out := make([]model.Checkpoint, 0, len(rows))
	for _, row := range rows {
		cp, err := parseCheckpoint(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	return out, nil
}

// GetThread retrieves a thread by ID
func (r *CheckpointRepository) GetThread(ctx context.Context, threadID string) (*model.Thread, error) {
	result, err := r.db.QueryOne(ctx, r.q.getThread, map[string]interface{}{"thread_id": threadID})
	if err != nil {
		return nil, err
	}
	return parseThread(result)
}

// ListThreads returns threads, most recently updated first
func (r *CheckpointRepository) ListThreads(ctx context.Context, limit, offset int) ([]model.Thread, error) {
	result, err := r.db.Query(ctx, r.q.listThreads, map[string]interface{}{
		"limit":  limit,
		"offset": offset,
	})
	if err != nil {
		return nil, err
	}

	rows, _ := extractQueryResults(result)
	out := make([]model.Thread, 0, len(rows))
	for _, row := range rows {
		t, err := parseThread(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

// DeleteThread removes a thread and all of its checkpoints
func (r *CheckpointRepository) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := r.GetThread(ctx, threadID); err != nil {
		return err
	}
	return WithTransaction(ctx, r.db, func(tx database.Transaction) error {
		vars := map[string]interface{}{"thread_id": threadID}
		if err := tx.Execute(ctx, r.q.deleteCheckpoint, vars); err != nil {
			return err
		}
		return tx.Execute(ctx, r.q.deleteThread, vars)
	})
}

// PruneBefore deletes threads last updated before t and returns how many
// were removed
func (r *CheckpointRepository) PruneBefore(ctx context.Context, t time.Time) (int, error) {
	result, err := r.db.Query(ctx, r.q.staleThreads, map[string]interface{}{"before": formatTime(t)})
	if err != nil {
		return 0, err
	}

	rows, _ := extractQueryResults(result)
	if len(rows) == 0 {
		return 0, nil
	}

	batch := database.NewAtomicBatch()
	for _, row := range rows {
		m, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		vars := map[string]interface{}{"thread_id": getString(m, "thread_id")}
		batch.Add(r.q.deleteCheckpoint, vars).Add(r.q.deleteThread, vars)
	}
	if err := batch.Execute(ctx, r.db); err != nil {
		return 0, err
	}
	return batch.Len() / 2, nil
}

// Ping checks the backing database
func (r *CheckpointRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func parseCheckpoint(result interface{}) (*model.Checkpoint, error) {
	m, ok := result.(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected checkpoint format")
	}

	cp := &model.Checkpoint{
		ID:        getString(m, "checkpoint_id"),
		ThreadID:  getString(m, "thread_id"),
		Step:      getString(m, "step"),
		NextStep:  getString(m, "next_step"),
		Seq:       getInt(m, "seq"),
		CreatedOn: parseTime(m["created_on"]),
	}

	var state model.AgentState
	if err := json.Unmarshal([]byte(getString(m, "state")), &state); err != nil {
		return nil, fmt.Errorf("decode state of checkpoint %s: %w", cp.ID, err)
	}
	cp.State = &state
	return cp, nil
}

func parseThread(result interface{}) (*model.Thread, error) {
	m, ok := result.(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected thread format")
	}
	return &model.Thread{
		ID:          getString(m, "thread_id"),
		Status:      model.RunStatus(getString(m, "status")),
		UserQuery:   getString(m, "user_query"),
		CurrentStep: getString(m, "current_step"),
		CreatedOn:   parseTime(m["created_on"]),
		UpdatedOn:   parseTime(m["updated_on"]),
	}, nil
}
