package model

import (
	"strings"
	"time"
)

// Validation limits
const (
	MaxQueryLength     = 500
	MaxCityLength      = 100
	MaxPlaceTypeLength = 100
	MaxNotesLength     = 1000
)

// SearchRequest starts a new negotiator run
type SearchRequest struct {
	Query       string   `json:"query"`
	City        string   `json:"city,omitempty"`
	PlaceType   string   `json:"place_type,omitempty"`
	Budget      *float64 `json:"budget,omitempty"`
	Route       string   `json:"route,omitempty"`
	ShowAll     bool     `json:"show_all,omitempty"`
	AutoApprove bool     `json:"auto_approve,omitempty"`
}

// Validate checks the request and returns any field errors
func (r *SearchRequest) Validate() []FieldError {
	var errors []FieldError

	query := strings.TrimSpace(r.Query)
	if query == "" && (strings.TrimSpace(r.City) == "" || strings.TrimSpace(r.PlaceType) == "") {
		errors = append(errors, FieldError{Field: "query", Message: "query is required unless city and place_type are both given"})
	}
	if len(query) > MaxQueryLength {
		errors = append(errors, FieldError{Field: "query", Message: "query must be 500 characters or less"})
	}
	if len(r.City) > MaxCityLength {
		errors = append(errors, FieldError{Field: "city", Message: "city must be 100 characters or less"})
	}
	if len(r.PlaceType) > MaxPlaceTypeLength {
		errors = append(errors, FieldError{Field: "place_type", Message: "place_type must be 100 characters or less"})
	}
	if r.Budget != nil && *r.Budget < 0 {
		errors = append(errors, FieldError{Field: "budget", Message: "budget must not be negative"})
	}
	if r.Route != "" && !Route(r.Route).IsValid() {
		errors = append(errors, FieldError{Field: "route", Message: "route must be negotiation, info_only, or comparison"})
	}

	return errors
}

// ApprovalRequest resumes a run paused at human review. Approved has no
// default; an empty body is rejected rather than read as a decline.
type ApprovalRequest struct {
	Approved *bool  `json:"approved"`
	Notes    string `json:"notes,omitempty"`
}

// Validate checks the request and returns any field errors
func (r *ApprovalRequest) Validate() []FieldError {
	var errors []FieldError
	if r.Approved == nil {
		errors = append(errors, FieldError{Field: "approved", Message: "approved is required"})
	}
	if len(r.Notes) > MaxNotesLength {
		errors = append(errors, FieldError{Field: "notes", Message: "notes must be 1000 characters or less"})
	}
	return errors
}

// RunResponse is the API view of a workflow run
type RunResponse struct {
	ThreadID        string           `json:"thread_id"`
	Status          RunStatus        `json:"status"`
	CurrentStep     string           `json:"current_step"`
	NextStep        string           `json:"next_step,omitempty"`
	UserQuery       string           `json:"user_query"`
	City            string           `json:"city"`
	PlaceType       string           `json:"place_type"`
	Budget          *float64         `json:"budget"`
	Route           Route            `json:"route"`
	Iteration       int              `json:"iteration"`
	Candidates      []PlaceAnalysis  `json:"candidates,omitempty"`
	Recommendations []Recommendation `json:"recommendations"`
	Winner          *Recommendation  `json:"winner,omitempty"`
	Messages        []Message        `json:"messages"`
	IsComplete      bool             `json:"is_complete"`
	Error           string           `json:"error,omitempty"`
}

// NewRunResponse builds the API view of a state. Candidates are only
// included while the run waits for approval.
func NewRunResponse(s *AgentState) *RunResponse {
	resp := &RunResponse{
		ThreadID:        s.ThreadID,
		Status:          s.Status,
		CurrentStep:     s.CurrentStep,
		NextStep:        s.NextStep,
		UserQuery:       s.UserQuery,
		City:            s.City,
		PlaceType:       s.PlaceType,
		Budget:          s.Budget,
		Route:           s.Route,
		Iteration:       s.Iteration,
		Recommendations: s.Recommendations,
		Winner:          s.Winner(),
		Messages:        s.Messages,
		IsComplete:      s.IsComplete,
		Error:           s.Error,
	}
	if s.Status == StatusAwaitingApproval {
		resp.Candidates = s.InitialAnalysis
	}
	if resp.Recommendations == nil {
		resp.Recommendations = []Recommendation{}
	}
	if resp.Messages == nil {
		resp.Messages = []Message{}
	}
	return resp
}

// StatusResponse reports service health and configuration for operators
type StatusResponse struct {
	Status      string           `json:"status"`
	Version     string           `json:"version"`
	Environment string           `json:"environment"`
	Uptime      string           `json:"uptime"`
	Checkpoints BackendStatus    `json:"checkpoints"`
	Providers   []ProviderStatus `json:"providers"`
	CheckedAt   time.Time        `json:"checked_at"`
}

// BackendStatus reports checkpoint storage reachability
type BackendStatus struct {
	Backend   string `json:"backend"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// ProviderStatus reports whether a provider key is configured, never its value
type ProviderStatus struct {
	Name       string `json:"name"`
	EnvVar     string `json:"env_var"`
	Required   bool   `json:"required"`
	Configured bool   `json:"configured"`
}

// FrontendConfig is served to the browser as /config.json
type FrontendConfig struct {
	APIBaseURL string `json:"api_base_url"`
}
