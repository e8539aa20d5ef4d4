package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/forgo/negotiator/internal/model"
	"github.com/forgo/negotiator/internal/service"
)

// Negotiator runs and inspects negotiator workflow threads
type Negotiator interface {
	Start(ctx context.Context, req *model.SearchRequest) (*model.AgentState, error)
	Approve(ctx context.Context, threadID string, req *model.ApprovalRequest) (*model.AgentState, error)
	Get(ctx context.Context, threadID string) (*model.AgentState, error)
	History(ctx context.Context, threadID string) ([]model.Checkpoint, error)
	List(ctx context.Context, limit, offset int) ([]model.Thread, bool, error)
	Delete(ctx context.Context, threadID string) error
}

// NegotiatorHandler handles search and thread HTTP requests
type NegotiatorHandler struct {
	negotiator Negotiator
	logger     *slog.Logger
}

// NewNegotiatorHandler creates a new negotiator handler
func NewNegotiatorHandler(negotiator Negotiator, logger *slog.Logger) *NegotiatorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NegotiatorHandler{
		negotiator: negotiator,
		logger:     logger,
	}
}

// RegisterRoutes registers search and thread routes
func (h *NegotiatorHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/search", h.Search)

	mux.HandleFunc("GET /v1/threads", h.ListThreads)
	mux.HandleFunc("GET /v1/threads/{threadId}", h.GetThread)
	mux.HandleFunc("GET /v1/threads/{threadId}/history", h.GetHistory)
	mux.HandleFunc("POST /v1/threads/{threadId}/approve", h.Approve)
	mux.HandleFunc("DELETE /v1/threads/{threadId}", h.DeleteThread)
}

// Search starts a new workflow run.
// Responds 201 when the run completed and 202 when it waits for approval.
func (h *NegotiatorHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req model.SearchRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}

	state, err := h.negotiator.Start(r.Context(), &req)
	if err != nil {
		h.handleRunError(w, r, state, err)
		return
	}

	status := http.StatusCreated
	if state.Status == model.StatusAwaitingApproval {
		status = http.StatusAccepted
	}
	WriteRun(w, status, state)
}

// Approve resumes a thread waiting at human review
func (h *NegotiatorHandler) Approve(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("threadId")

	var req model.ApprovalRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}

	state, err := h.negotiator.Approve(r.Context(), threadID, &req)
	if err != nil {
		h.handleRunError(w, r, state, err)
		return
	}

	WriteRun(w, http.StatusOK, state)
}

// GetThread returns the latest state of a thread
func (h *NegotiatorHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	state, err := h.negotiator.Get(r.Context(), r.PathValue("threadId"))
	if err != nil {
		h.handleError(w, r, err, "get thread")
		return
	}

	WriteRun(w, http.StatusOK, state)
}

// GetHistory returns every checkpoint of a thread, oldest first
func (h *NegotiatorHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("threadId")

	checkpoints, err := h.negotiator.History(r.Context(), threadID)
	if err != nil {
		h.handleError(w, r, err, "get history")
		return
	}

	WriteCollection(w, http.StatusOK, checkpoints, nil, map[string]string{
		"thread": "/v1/threads/" + threadID,
	})
}

// ListThreads lists threads, most recently updated first
func (h *NegotiatorHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	limit, offset := getPaginationParams(r)

	threads, hasMore, err := h.negotiator.List(r.Context(), limit, offset)
	if err != nil {
		h.handleError(w, r, err, "list threads")
		return
	}
	if threads == nil {
		threads = []model.Thread{}
	}

	WriteCollection(w, http.StatusOK, threads, &PaginationInfo{
		Limit:   limit,
		Offset:  offset,
		HasMore: hasMore,
	}, nil)
}

// DeleteThread removes a thread and its checkpoints
func (h *NegotiatorHandler) DeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := h.negotiator.Delete(r.Context(), r.PathValue("threadId")); err != nil {
		h.handleError(w, r, err, "delete thread")
		return
	}

	WriteNoContent(w)
}

// handleRunError reports a failed Start or Approve. When the run itself got
// as far as a thread, the problem points at it so the client can inspect the
// recorded failure.
func (h *NegotiatorHandler) handleRunError(w http.ResponseWriter, r *http.Request, state *model.AgentState, err error) {
	pd := MapServiceErrorWithContext(err, "run workflow")
	if state != nil && state.ThreadID != "" {
		pd.Instance = "/v1/threads/" + state.ThreadID
	}
	h.logFailure(r, pd, err)
	WriteError(w, pd)
}

func (h *NegotiatorHandler) handleError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	pd := MapServiceErrorWithContext(err, operation)
	h.logFailure(r, pd, err)
	WriteError(w, pd)
}

func (h *NegotiatorHandler) logFailure(r *http.Request, pd *model.ProblemDetails, err error) {
	if pd.Status < http.StatusInternalServerError {
		return
	}
	h.logger.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", pd.Status),
		slog.String("error", err.Error()),
	)
}

func getPaginationParams(r *http.Request) (limit, offset int) {
	limit = service.DefaultListLimit
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= service.MaxListLimit {
			limit = parsed
		}
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return limit, offset
}
