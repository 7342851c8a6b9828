package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eshaffer321/reconciler/internal/api/dto"
	"github.com/eshaffer321/reconciler/internal/infrastructure/storage"
)

// RunsHandler handles reconciliation run HTTP requests.
type RunsHandler struct {
	*Base
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(repo storage.Repository, logger *slog.Logger) *RunsHandler {
	return &RunsHandler{
		Base: NewBase(repo, logger),
	}
}

// List handles GET /api/runs - returns recent runs, optionally for one user.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := storage.RunFilters{
		UserID: r.URL.Query().Get("user"),
		Limit:  ParseLimitParam(r, dto.DefaultRunLimit),
	}

	runs, err := h.repo.ListRuns(r.Context(), filters)
	if err != nil {
		h.WriteInternal(w, r, "failed to list runs", err)
		return
	}

	response := dto.RunListResponse{
		Runs:  make([]dto.RunResponse, 0, len(runs)),
		Count: len(runs),
	}
	for _, run := range runs {
		response.Runs = append(response.Runs, dto.NewRunResponse(run))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/runs/{id} - returns a single run by ID.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("run ID is required"))
		return
	}
	if _, err := uuid.Parse(id); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid run ID"))
		return
	}

	run, err := h.repo.GetRun(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("run"))
		return
	}
	if err != nil {
		h.WriteInternal(w, r, "failed to get run", err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.NewRunResponse(*run))
}
