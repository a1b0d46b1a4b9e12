package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/labqa/qualitylab/internal/service"
	"github.com/labqa/qualitylab/pkg/httputil"
	"github.com/labqa/qualitylab/pkg/pagination"
)

// TestHandler serves the quality test workflow.
type TestHandler struct {
	workflow *service.WorkflowService
	logger   *slog.Logger
}

func NewTestHandler(workflow *service.WorkflowService, logger *slog.Logger) *TestHandler {
	return &TestHandler{workflow: workflow, logger: logger}
}

// ChangeStateRequest is the JSON body of POST /tests/{id}/state.
type ChangeStateRequest struct {
	State      string     `json:"state" validate:"required"`
	FinishedAt *time.Time `json:"finished_at"`
}

// List handles GET /tests
func (h *TestHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	res, err := h.workflow.List(r.Context(), actor, pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// Get handles GET /tests/{id}
func (h *TestHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParseID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	t, err := h.workflow.Get(r.Context(), actor, id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, t)
}

// ChangeState handles POST /tests/{id}/state
func (h *TestHandler) ChangeState(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParseID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req ChangeStateRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	err := h.workflow.ChangeState(r.Context(), actor, id, service.ChangeStateInput{
		State:      req.State,
		FinishedAt: req.FinishedAt,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, messageResponse{Message: "test state changed"})
}
