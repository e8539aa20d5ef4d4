package model

import "time"

// Thread is one workflow run as listed by the API
type Thread struct {
	ID          string    `json:"id"`
	Status      RunStatus `json:"status"`
	UserQuery   string    `json:"user_query"`
	CurrentStep string    `json:"current_step"`
	CreatedOn   time.Time `json:"created_on"`
	UpdatedOn   time.Time `json:"updated_on"`
}

// Checkpoint is the state snapshot saved after a workflow step
type Checkpoint struct {
	ID        string      `json:"id"`
	ThreadID  string      `json:"thread_id"`
	Step      string      `json:"step"`
	NextStep  string      `json:"next_step,omitempty"`
	Seq       int         `json:"seq"`
	State     *AgentState `json:"state"`
	CreatedOn time.Time   `json:"created_on"`
}
