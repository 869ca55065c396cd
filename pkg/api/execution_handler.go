package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/execution"
	"github.com/opsforge/execcore/pkg/observability"
)

// ExecutionHandler serves the public Execution API: POST /executions,
// GET /executions/{id}, POST /executions/{id}/cancel,
// POST /approvals/{id}/decide, GET /executions/{id}/events.
type ExecutionHandler struct {
	engine *execution.Engine
	events *observability.EventFeed
}

func NewExecutionHandler(engine *execution.Engine, events *observability.EventFeed) *ExecutionHandler {
	return &ExecutionHandler{engine: engine, events: events}
}

// Mount registers this handler's routes on r.
func (h *ExecutionHandler) Mount(r chi.Router) {
	r.Post("/executions", h.create)
	r.Get("/executions/{id}", h.get)
	r.Post("/executions/{id}/cancel", h.cancel)
	r.Get("/executions/{id}/events", h.listEvents)
	r.Post("/approvals/{id}/decide", h.decide)
}

type createExecutionRequest struct {
	Plan        planRequest         `json:"plan" validate:"required"`
	Target      domain.Target       `json:"target"`
	Preferences *domain.Preferences `json:"preferences,omitempty"`
	Actor       string              `json:"actor" validate:"required"`
}

type planRequest struct {
	Steps []domain.Step `json:"steps" validate:"required,min=1"`
}

type createExecutionResponse struct {
	ExecutionID string        `json:"execution_id"`
	Status      domain.Status `json:"status"`
	Mode        domain.Mode   `json:"mode"`
	Duplicate   bool          `json:"duplicate"`
}

func (h *ExecutionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createExecutionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	prefs := domain.Preferences{}
	if req.Preferences != nil {
		prefs = *req.Preferences
	}

	resp, err := h.engine.Submit(r.Context(), execution.SubmitRequest{
		TenantID:    tenantID(r),
		ActorID:     req.Actor,
		Plan:        domain.Plan{Steps: req.Plan.Steps},
		Target:      req.Target,
		Preferences: prefs,
		Environment: environment(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, createExecutionResponse{
		ExecutionID: resp.ExecutionID,
		Status:      resp.Status,
		Mode:        resp.Mode,
		Duplicate:   resp.Duplicate,
	})
}

func (h *ExecutionHandler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exec, err := h.engine.Get(r.Context(), tenantID(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

type cancelRequest struct {
	Reason domain.CancellationReason `json:"reason"`
}

func (h *ExecutionHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Reason == "" {
		req.Reason = domain.ReasonUser
	}
	if err := h.engine.Cancel(r.Context(), tenantID(r), id, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type decideRequest struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Reason   string `json:"reason,omitempty"`
}

func (h *ExecutionHandler) decide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req decideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	approved := req.Decision == "APPROVED"
	if err := h.engine.Decide(r.Context(), id, actorID(r), approved, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type eventPage struct {
	Events     []domain.ExecutionEvent `json:"events"`
	NextCursor string                  `json:"next_cursor,omitempty"`
}

func (h *ExecutionHandler) listEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cursor := r.URL.Query().Get("since")
	events, next, err := h.events.Since(r.Context(), id, cursor, 100)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventPage{Events: events, NextCursor: next})
}

func tenantID(r *http.Request) string    { return r.Header.Get("X-Tenant-ID") }
func actorID(r *http.Request) string     { return r.Header.Get("X-Actor-ID") }
func environment(r *http.Request) string { return r.Header.Get("X-Environment") }
