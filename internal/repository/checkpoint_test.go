package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/negotiator/internal/database"
	"github.com/forgo/negotiator/internal/model"
	"github.com/forgo/negotiator/internal/repository"
	"github.com/forgo/negotiator/internal/testing/fixtures"
	"github.com/forgo/negotiator/internal/testing/helpers"
	"github.com/forgo/negotiator/internal/testing/testdb"
)

func newRepo(t *testing.T) (*repository.CheckpointRepository, *testdb.TestDB) {
	t.Helper()
	tdb := testdb.New(t)
	return repository.NewCheckpointRepository(tdb.DB), tdb
}

func TestCheckpointRepository_SaveAndLatest(t *testing.T) {
	repo, tdb := newRepo(t)
	f := fixtures.New(repo)

	place := fixtures.Place(fixtures.WithName("Iron Temple"))
	s := f.CreateThread(t, []string{model.StepUnderstand, model.StepSearch},
		fixtures.WithPlaces(place))

	helpers.AssertThreadExists(t, tdb.DB, s.ThreadID)

	latest, err := repo.Latest(tdb.Ctx(), s.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, model.StepSearch, latest.Step)
	assert.Equal(t, 2, latest.Seq)
	require.NotNil(t, latest.State)
	require.Len(t, latest.State.SerpResults, 1)
	assert.Equal(t, "Iron Temple", latest.State.SerpResults[0].Name)
	assert.False(t, latest.CreatedOn.IsZero())
}

func TestCheckpointRepository_LatestNotFound(t *testing.T) {
	repo, tdb := newRepo(t)

	_, err := repo.Latest(tdb.Ctx(), "missing")
	assert.True(t, errors.Is(err, database.ErrNotFound))
}

func TestCheckpointRepository_History(t *testing.T) {
	repo, tdb := newRepo(t)
	f := fixtures.New(repo)

	steps := []string{model.StepUnderstand, model.StepSearch, model.StepGatherReviews}
	s := f.CreateThread(t, steps)

	history, err := repo.History(tdb.Ctx(), s.ThreadID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, cp := range history {
		assert.Equal(t, i+1, cp.Seq)
		assert.Equal(t, steps[i], cp.Step)
	}

	empty, err := repo.History(tdb.Ctx(), "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCheckpointRepository_ThreadTracksLatestStatus(t *testing.T) {
	repo, tdb := newRepo(t)
	f := fixtures.New(repo)

	s := f.CreateAwaitingThread(t)

	thread, err := repo.GetThread(tdb.Ctx(), s.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAwaitingApproval, thread.Status)
	assert.Equal(t, model.StepAnalyze, thread.CurrentStep)
	assert.Equal(t, s.UserQuery, thread.UserQuery)
	created := thread.CreatedOn

	s.Status = model.StatusCompleted
	s.Version = 2
	require.NoError(t, repo.SaveCheckpoint(tdb.Ctx(), &model.Checkpoint{
		ID: "cp-final", ThreadID: s.ThreadID, Step: model.StepRecommend, Seq: 2, State: s,
	}))

	thread, err = repo.GetThread(tdb.Ctx(), s.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, thread.Status)
	assert.Equal(t, model.StepRecommend, thread.CurrentStep)
	assert.True(t, thread.CreatedOn.Equal(created), "created_on must survive updates")
}

func TestCheckpointRepository_DuplicateCheckpointRollsBack(t *testing.T) {
	repo, tdb := newRepo(t)
	s := fixtures.State()

	cp := &model.Checkpoint{ID: "dup", ThreadID: s.ThreadID, Step: model.StepUnderstand, Seq: 1, State: s}
	require.NoError(t, repo.SaveCheckpoint(tdb.Ctx(), cp))

	s.Status = model.StatusFailed
	err := repo.SaveCheckpoint(tdb.Ctx(), &model.Checkpoint{ID: "dup", ThreadID: s.ThreadID, Step: model.StepSearch, Seq: 2, State: s})
	assert.ErrorIs(t, err, database.ErrDuplicate)

	thread, err := repo.GetThread(tdb.Ctx(), s.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, thread.Status, "thread update must roll back with the checkpoint")
}

func TestCheckpointRepository_SaveRequiresState(t *testing.T) {
	repo, tdb := newRepo(t)
	err := repo.SaveCheckpoint(tdb.Ctx(), &model.Checkpoint{ID: "x", ThreadID: "t"})
	assert.Error(t, err)
}

func TestCheckpointRepository_ListThreads(t *testing.T) {
	repo, tdb := newRepo(t)
	f := fixtures.New(repo)

	var ids []string
	for i := 0; i < 3; i++ {
		s := f.CreateThread(t, []string{model.StepUnderstand})
		ids = append(ids, s.ThreadID)
		time.Sleep(2 * time.Millisecond)
	}

	page, err := repo.ListThreads(tdb.Ctx(), 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID, "most recently updated first")
	assert.Equal(t, ids[1], page[1].ID)

	rest, err := repo.ListThreads(tdb.Ctx(), 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[0], rest[0].ID)
}

func TestCheckpointRepository_DeleteThread(t *testing.T) {
	repo, tdb := newRepo(t)
	f := fixtures.New(repo)

	s := f.CreateThread(t, []string{model.StepUnderstand, model.StepSearch})
	keep := f.CreateThread(t, []string{model.StepUnderstand})

	require.NoError(t, repo.DeleteThread(tdb.Ctx(), s.ThreadID))

	helpers.AssertThreadNotExists(t, tdb.DB, s.ThreadID)
	helpers.AssertThreadExists(t, tdb.DB, keep.ThreadID)

	history, err := repo.History(tdb.Ctx(), s.ThreadID)
	require.NoError(t, err)
	assert.Empty(t, history)

	err = repo.DeleteThread(tdb.Ctx(), s.ThreadID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestCheckpointRepository_PruneBefore(t *testing.T) {
	repo, tdb := newRepo(t)
	f := fixtures.New(repo)

	old := f.CreateThread(t, []string{model.StepUnderstand})
	time.Sleep(5 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(5 * time.Millisecond)
	recent := f.CreateThread(t, []string{model.StepUnderstand})

	n, err := repo.PruneBefore(tdb.Ctx(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	helpers.AssertThreadNotExists(t, tdb.DB, old.ThreadID)
	helpers.AssertThreadExists(t, tdb.DB, recent.ThreadID)

	n, err = repo.PruneBefore(tdb.Ctx(), cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCheckpointRepository_Ping(t *testing.T) {
	repo, _ := newRepo(t)
	assert.NoError(t, repo.Ping(context.Background()))
}

func TestCheckpointRepository_SurrealDB(t *testing.T) {
	tdb := testdb.NewSurreal(t)
	repo := repository.NewCheckpointRepository(tdb.DB)
	f := fixtures.New(repo)

	s := f.CreateThread(t, []string{model.StepUnderstand, model.StepSearch})

	latest, err := repo.Latest(tdb.Ctx(), s.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Seq)

	require.NoError(t, repo.DeleteThread(tdb.Ctx(), s.ThreadID))
	helpers.AssertThreadNotExists(t, tdb.DB, s.ThreadID)
}
