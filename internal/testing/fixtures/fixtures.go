package fixtures

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/forgo/negotiator/internal/model"
)

// CheckpointSaver persists checkpoints
type CheckpointSaver interface {
	SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error
}

// Factory creates test entities
type Factory struct {
	saver CheckpointSaver
}

// New creates a new fixture factory
func New(saver CheckpointSaver) *Factory {
	return &Factory{saver: saver}
}

// randomID generates a random hex ID
func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// ============================================================================
// Place Fixtures
// ============================================================================

// PlaceOpts customizes place creation
type PlaceOpts struct {
	Name         string
	Address      string
	Phone        string
	Rating       float64
	ReviewsCount int
}

// Place builds a place with optional customizations
func Place(opts ...func(*PlaceOpts)) model.Place {
	o := &PlaceOpts{
		Name:         fmt.Sprintf("Place %s", randomID()[:6]),
		Address:      "12 MG Road",
		Phone:        "98765 43210",
		Rating:       4.3,
		ReviewsCount: 120,
	}
	for _, fn := range opts {
		fn(o)
	}

	p := model.Place{
		Name:         o.Name,
		Address:      o.Address,
		Phone:        o.Phone,
		ReviewsCount: o.ReviewsCount,
		Type:         "Gym",
	}
	if o.Rating > 0 {
		r := o.Rating
		p.Rating = &r
	}
	return p
}

// WithName sets the place name
func WithName(name string) func(*PlaceOpts) {
	return func(o *PlaceOpts) { o.Name = name }
}

// WithRating sets rating and review count
func WithRating(rating float64, reviews int) func(*PlaceOpts) {
	return func(o *PlaceOpts) {
		o.Rating = rating
		o.ReviewsCount = reviews
	}
}

// WithoutPhone clears the phone number
func WithoutPhone() func(*PlaceOpts) {
	return func(o *PlaceOpts) { o.Phone = "" }
}

// ============================================================================
// State Fixtures
// ============================================================================

// StateOpts customizes state creation
type StateOpts struct {
	ThreadID  string
	Query     string
	City      string
	PlaceType string
	Status    model.RunStatus
	Places    []model.Place
}

// State builds an agent state with optional customizations
func State(opts ...func(*StateOpts)) *model.AgentState {
	o := &StateOpts{
		ThreadID:  randomID(),
		Query:     "best gyms in Bangalore",
		City:      "Bangalore",
		PlaceType: "gym",
		Status:    model.StatusRunning,
	}
	for _, fn := range opts {
		fn(o)
	}

	return &model.AgentState{
		ThreadID:    o.ThreadID,
		UserQuery:   o.Query,
		City:        o.City,
		PlaceType:   o.PlaceType,
		Status:      o.Status,
		Route:       model.RouteInfoOnly,
		SerpResults: o.Places,
		Reviews:     map[string][]string{},
	}
}

// WithThreadID sets the thread ID
func WithThreadID(id string) func(*StateOpts) {
	return func(o *StateOpts) { o.ThreadID = id }
}

// WithStatus sets the run status
func WithStatus(status model.RunStatus) func(*StateOpts) {
	return func(o *StateOpts) { o.Status = status }
}

// WithPlaces sets the search results
func WithPlaces(places ...model.Place) func(*StateOpts) {
	return func(o *StateOpts) { o.Places = places }
}

// ============================================================================
// Checkpoint Fixtures
// ============================================================================

// CreateThread saves one checkpoint per step for a new thread and returns the
// final state
func (f *Factory) CreateThread(t *testing.T, steps []string, opts ...func(*StateOpts)) *model.AgentState {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := State(opts...)
	for i, step := range steps {
		s.CurrentStep = step
		s.Steps = i + 1
		s.Version = i + 1
		snapshot, err := s.Clone()
		if err != nil {
			t.Fatalf("fixtures: clone state: %v", err)
		}
		cp := &model.Checkpoint{
			ID:        randomID(),
			ThreadID:  s.ThreadID,
			Step:      step,
			Seq:       s.Version,
			State:     snapshot,
			CreatedOn: time.Now().UTC(),
		}
		if err := f.saver.SaveCheckpoint(ctx, cp); err != nil {
			t.Fatalf("fixtures: save checkpoint: %v", err)
		}
	}
	return s
}

// CreateAwaitingThread saves a thread paused before human review
func (f *Factory) CreateAwaitingThread(t *testing.T, opts ...func(*StateOpts)) *model.AgentState {
	t.Helper()

	opts = append(opts, WithStatus(model.StatusAwaitingApproval))
	s := State(opts...)
	s.NextStep = model.StepHumanReview
	s.CurrentStep = model.StepAnalyze
	s.Version = 1

	snapshot, err := s.Clone()
	if err != nil {
		t.Fatalf("fixtures: clone state: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.saver.SaveCheckpoint(ctx, &model.Checkpoint{
		ID:        randomID(),
		ThreadID:  s.ThreadID,
		Step:      model.StepAnalyze,
		NextStep:  model.StepHumanReview,
		Seq:       1,
		State:     snapshot,
		CreatedOn: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("fixtures: save checkpoint: %v", err)
	}
	return s
}
