package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/forgo/negotiator/internal/model"
)

// Pinger checks a dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusHandlerConfig holds the dependencies of the status handler
type StatusHandlerConfig struct {
	Version     string
	Environment string
	Backend     string
	Store       Pinger
	// Providers reports provider key configuration; it is called per request
	// so reloaded keys show up
	Providers func() []model.ProviderStatus
	StartedAt time.Time
}

// StatusHandler serves liveness and operator status endpoints
type StatusHandler struct {
	cfg StatusHandlerConfig
	now func() time.Time
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(cfg StatusHandlerConfig) *StatusHandler {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}
	return &StatusHandler{cfg: cfg, now: time.Now}
}

// RegisterRoutes registers health and status routes
func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /v1/status", h.Status)
}

// Health is the liveness probe used by the hosting platform and keep-alive pings
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status reports version, provider configuration and checkpoint store
// reachability. Key values are never included.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	resp := model.StatusResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Environment: h.cfg.Environment,
		Uptime:      now.Sub(h.cfg.StartedAt).Truncate(time.Second).String(),
		Checkpoints: model.BackendStatus{Backend: h.cfg.Backend},
		Providers:   []model.ProviderStatus{},
		CheckedAt:   now.UTC(),
	}
	if h.cfg.Providers != nil {
		resp.Providers = h.cfg.Providers()
	}

	if h.cfg.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.cfg.Store.Ping(ctx); err != nil {
			resp.Checkpoints.Error = err.Error()
		} else {
			resp.Checkpoints.Reachable = true
		}
	}

	status := http.StatusOK
	if !resp.Checkpoints.Reachable {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	for _, p := range resp.Providers {
		if p.Required && !p.Configured {
			resp.Status = "degraded"
		}
	}

	WriteData(w, status, resp, nil)
}
