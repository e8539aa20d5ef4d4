package model

import (
	"encoding/json"
	"time"
)

// Route selects which branch of the workflow runs after human review
type Route string

const (
	RouteNegotiation Route = "negotiation"
	RouteInfoOnly    Route = "info_only"
	RouteComparison  Route = "comparison"
)

// IsValid reports whether r is a known route
func (r Route) IsValid() bool {
	switch r {
	case RouteNegotiation, RouteInfoOnly, RouteComparison:
		return true
	}
	return false
}

// ContactsShops reports whether the route includes shop inquiries
func (r Route) ContactsShops() bool {
	return r == RouteNegotiation || r == RouteComparison
}

// RunStatus is the lifecycle state of a workflow run
type RunStatus string

const (
	StatusRunning          RunStatus = "running"
	StatusAwaitingApproval RunStatus = "awaiting_approval"
	StatusCompleted        RunStatus = "completed"
	StatusFailed           RunStatus = "failed"
)

// Workflow step names
const (
	StepUnderstand    = "understand"
	StepSearch        = "search"
	StepGatherReviews = "gather_reviews"
	StepAnalyze       = "analyze"
	StepHumanReview   = "human_review"
	StepContactShops  = "contact_shops"
	StepReflect       = "reflect"
	StepRecommend     = "recommend"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry of the run's conversation log
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// AgentState is the state shared by every workflow step and persisted in
// each checkpoint.
type AgentState struct {
	ThreadID string    `json:"thread_id"`
	Messages []Message `json:"messages"`

	// Search context
	City       string   `json:"city"`
	PlaceType  string   `json:"place_type"`
	UserIntent string   `json:"user_intent"`
	UserQuery  string   `json:"user_query"`
	Budget     *float64 `json:"budget"`

	// External data
	SerpResults   []Place             `json:"serp_results"`
	TavilyReviews []ReviewSearch      `json:"tavily_reviews"`
	Reviews       map[string][]string `json:"reviews"` // by PlaceKey

	// Human-in-the-loop
	HumanApproved bool    `json:"human_approved"`
	HumanNotes    *string `json:"human_notes"`
	AutoApprove   bool    `json:"auto_approve"`

	// Workflow
	Route       Route     `json:"route"`
	ShowAll     bool      `json:"show_all"`
	CurrentStep string    `json:"current_step"`
	NextStep    string    `json:"next_step,omitempty"`
	Status      RunStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
	// Steps counts node executions across the whole run
	Steps int `json:"steps"`
	// Version is the sequence number of the last saved checkpoint
	Version int `json:"version"`

	// Analysis and reflexion
	InitialAnalysis []PlaceAnalysis  `json:"initial_analysis"`
	ShopResponses   []ShopResponse   `json:"shop_responses"`
	RefinedAnalysis []PlaceAnalysis  `json:"refined_analysis"`
	PriceComparison *PriceComparison `json:"price_comparison,omitempty"`
	Iteration       int              `json:"iteration"`

	// Output
	Recommendations []Recommendation `json:"recommendations"`
	IsComplete      bool             `json:"is_complete"`
}

// AddMessages appends to the conversation log. Messages without a timestamp
// are stamped with the current time.
func (s *AgentState) AddMessages(msgs ...Message) {
	for _, m := range msgs {
		if m.At.IsZero() {
			m.At = time.Now().UTC()
		}
		s.Messages = append(s.Messages, m)
	}
}

// Say appends an assistant message
func (s *AgentState) Say(content string) {
	s.AddMessages(Message{Role: RoleAssistant, Content: content})
}

// Analysis returns the refined analysis when reflexion has produced one,
// otherwise the initial analysis.
func (s *AgentState) Analysis() []PlaceAnalysis {
	if len(s.RefinedAnalysis) > 0 {
		return s.RefinedAnalysis
	}
	return s.InitialAnalysis
}

// Winner returns the recommendation marked as winner, if any
func (s *AgentState) Winner() *Recommendation {
	for i := range s.Recommendations {
		if s.Recommendations[i].IsWinner {
			return &s.Recommendations[i]
		}
	}
	return nil
}

// RealPlaces returns the search results that are actual places
func (s *AgentState) RealPlaces() []Place {
	out := make([]Place, 0, len(s.SerpResults))
	for _, p := range s.SerpResults {
		if p.IsReal() {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns a deep copy of the state
func (s *AgentState) Clone() (*AgentState, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out AgentState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
