package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgo/negotiator/internal/agent"
	"github.com/forgo/negotiator/internal/database"
	"github.com/forgo/negotiator/internal/model"
)

// Thread listing limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// CheckpointStore persists workflow checkpoints and the thread index
type CheckpointStore interface {
	agent.Checkpointer
	History(ctx context.Context, threadID string) ([]model.Checkpoint, error)
	GetThread(ctx context.Context, threadID string) (*model.Thread, error)
	ListThreads(ctx context.Context, limit, offset int) ([]model.Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
	Ping(ctx context.Context) error
}

// NegotiatorServiceConfig holds configuration for the negotiator service
type NegotiatorServiceConfig struct {
	Tools            agent.Toolset
	Store            CheckpointStore
	MaxIterations    int
	RecursionLimit   int
	ReviewsPerPlace  int
	ReviewCandidates int
	Summarize        bool
	// RunTimeout bounds a single Start or Approve call
	RunTimeout time.Duration
	Logger     *slog.Logger
}

// NegotiatorService starts, resumes and inspects workflow runs
type NegotiatorService struct {
	runner     *agent.Runner
	store      CheckpointStore
	runTimeout time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// NewNegotiatorService compiles the workflow against the checkpoint store
func NewNegotiatorService(cfg NegotiatorServiceConfig) (*NegotiatorService, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}

	var opts []agent.Option
	if cfg.RecursionLimit > 0 {
		opts = append(opts, agent.WithRecursionLimit(cfg.RecursionLimit))
	}
	runner, err := agent.NewWorkflow(agent.WorkflowConfig{
		Tools:            cfg.Tools,
		MaxIterations:    cfg.MaxIterations,
		ReviewsPerPlace:  cfg.ReviewsPerPlace,
		ReviewCandidates: cfg.ReviewCandidates,
		Summarize:        cfg.Summarize,
		Logger:           cfg.Logger,
	}, cfg.Store, opts...)
	if err != nil {
		return nil, fmt.Errorf("build workflow: %w", err)
	}

	return &NegotiatorService{
		runner:     runner,
		store:      cfg.Store,
		runTimeout: cfg.RunTimeout,
		logger:     cfg.Logger,
		active:     make(map[string]struct{}),
	}, nil
}

// Start runs a new search until it completes, fails or pauses for approval.
// The returned state is non-nil whenever the run got as far as being
// created, including when err is not nil.
func (s *NegotiatorService) Start(ctx context.Context, req *model.SearchRequest) (*model.AgentState, error) {
	if errs := req.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSearchRequest, model.NewValidationError(errs))
	}

	state := &model.AgentState{
		ThreadID:    uuid.New().String(),
		UserQuery:   strings.TrimSpace(req.Query),
		City:        strings.TrimSpace(req.City),
		PlaceType:   strings.TrimSpace(req.PlaceType),
		Budget:      req.Budget,
		Route:       model.Route(req.Route),
		ShowAll:     req.ShowAll,
		AutoApprove: req.AutoApprove,
	}
	if state.UserQuery == "" {
		state.UserQuery = fmt.Sprintf("%s in %s", state.PlaceType, state.City)
	}

	release, ok := s.acquire(state.ThreadID)
	if !ok {
		return nil, ErrThreadBusy
	}
	defer release()

	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	start := time.Now()
	state, err := s.runner.Run(runCtx, state)
	s.logRun("run started", state, start, err)
	return state, err
}

// Approve resumes a run paused at human review
func (s *NegotiatorService) Approve(ctx context.Context, threadID string, req *model.ApprovalRequest) (*model.AgentState, error) {
	if errs := req.Validate(); len(errs) > 0 {
		return nil, model.NewValidationError(errs)
	}

	release, ok := s.acquire(threadID)
	if !ok {
		return nil, ErrThreadBusy
	}
	defer release()

	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	notes := strings.TrimSpace(req.Notes)
	start := time.Now()
	state, err := s.runner.Resume(runCtx, threadID, func(st *model.AgentState) error {
		st.HumanApproved = *req.Approved
		if notes != "" {
			st.HumanNotes = &notes
		}
		return nil
	})
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil, ErrThreadNotFound
	case errors.Is(err, agent.ErrNotInterrupted):
		return state, ErrNotAwaitingApproval
	}
	s.logRun("run resumed", state, start, err)
	return state, err
}

// Get returns the latest state of a thread
func (s *NegotiatorService) Get(ctx context.Context, threadID string) (*model.AgentState, error) {
	cp, err := s.store.Latest(ctx, threadID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	return cp.State, nil
}

// History returns every checkpoint of a thread, oldest first
func (s *NegotiatorService) History(ctx context.Context, threadID string) ([]model.Checkpoint, error) {
	checkpoints, err := s.store.History(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if len(checkpoints) == 0 {
		return nil, ErrThreadNotFound
	}
	return checkpoints, nil
}

// List returns a page of threads, most recently updated first, and whether
// more follow
func (s *NegotiatorService) List(ctx context.Context, limit, offset int) ([]model.Thread, bool, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	if offset < 0 {
		offset = 0
	}

	threads, err := s.store.ListThreads(ctx, limit+1, offset)
	if err != nil {
		return nil, false, err
	}
	hasMore := len(threads) > limit
	if hasMore {
		threads = threads[:limit]
	}
	return threads, hasMore, nil
}

// Delete removes a thread and its checkpoints. Running threads cannot be
// deleted.
func (s *NegotiatorService) Delete(ctx context.Context, threadID string) error {
	release, ok := s.acquire(threadID)
	if !ok {
		return ErrThreadBusy
	}
	defer release()

	if err := s.store.DeleteThread(ctx, threadID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrThreadNotFound
		}
		return err
	}
	s.logger.Info("thread deleted", slog.String("thread_id", threadID))
	return nil
}

// Ping checks the checkpoint store
func (s *NegotiatorService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// acquire marks a thread as being processed. ok is false when another call
// already holds it.
func (s *NegotiatorService) acquire(threadID string) (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[threadID]; busy {
		return nil, false
	}
	s.active[threadID] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.active, threadID)
		s.mu.Unlock()
	}, true
}

// runContext detaches a run from the caller's cancellation so a dropped
// client connection does not leave a half-written thread, and bounds it by
// the run timeout instead.
func (s *NegotiatorService) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.runTimeout)
}

func (s *NegotiatorService) logRun(msg string, state *model.AgentState, start time.Time, err error) {
	if state == nil {
		return
	}
	attrs := []any{
		slog.String("thread_id", state.ThreadID),
		slog.String("status", string(state.Status)),
		slog.String("step", state.CurrentStep),
		slog.Int("iteration", state.Iteration),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		s.logger.Warn(msg, append(attrs, slog.String("error", err.Error()))...)
		return
	}
	s.logger.Info(msg, attrs...)
}
