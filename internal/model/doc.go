// Package model defines the data structures shared by every layer of the
// Negotiator API.
//
// # Workflow State
//
// AgentState is the single document that flows through the workflow graph.
// Each step reads and updates it, and a copy is persisted as a Checkpoint
// after every step so a run can be resumed or inspected later:
//
//	understand -> search -> gather_reviews -> analyze -> human_review
//	    -> contact_shops <-> reflect -> recommend
//
// # Domain Entities
//
//   - Place: a business returned by the places search
//   - ShopResponse: a simulated reply to a pricing or negotiation inquiry
//   - PlaceAnalysis: the scored assessment of a candidate
//   - Recommendation: a ranked pick; exactly one is the winner
//   - Thread / Checkpoint: persisted run metadata and snapshots
//
// # Error Types
//
// RFC 9457 Problem Details errors are defined in errors.go:
//
//	type ProblemDetails struct {
//	    Type    string    `json:"type"`
//	    Title   string    `json:"title"`
//	    Status  int       `json:"status"`
//	    Detail  string    `json:"detail"`
//	}
package model
