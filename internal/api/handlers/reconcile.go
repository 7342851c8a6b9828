package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/reconciler/internal/api/dto"
	"github.com/eshaffer321/reconciler/internal/application/reconcile"
	"github.com/eshaffer321/reconciler/internal/application/service"
	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/eshaffer321/reconciler/internal/infrastructure/storage"
)

// ReconcileService is the part of service.ReconcileService the API drives.
type ReconcileService interface {
	ReconcileUser(ctx context.Context, userID string) (*reconcile.Result, error)
	GetStatus(ctx context.Context, userID string) (*service.Status, error)
	Revert(ctx context.Context, userID, manualID string) (*records.ManualRecord, error)
	Invalidate(userID string)
}

// ReconcileHandler handles per-user reconciliation requests.
type ReconcileHandler struct {
	*Base
	svc ReconcileService
}

// NewReconcileHandler creates a new reconcile handler.
func NewReconcileHandler(svc ReconcileService, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		Base: NewBase(nil, logger),
		svc:  svc,
	}
}

// Reconcile handles POST /api/users/{userID}/reconcile.
// Per-record failures still return 200 with status completed_with_issues.
func (h *ReconcileHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("user ID is required"))
		return
	}

	result, err := h.svc.ReconcileUser(r.Context(), userID)
	if err != nil {
		h.WriteInternal(w, r, "reconciliation failed", err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.NewReconcileResponse(result))
}

// Status handles GET /api/users/{userID}/status.
func (h *ReconcileHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("user ID is required"))
		return
	}

	status, err := h.svc.GetStatus(r.Context(), userID)
	if err != nil {
		h.WriteInternal(w, r, "failed to load status", err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.NewStatusResponse(status))
}

// Revert handles POST /api/users/{userID}/records/{recordID}/revert.
func (h *ReconcileHandler) Revert(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	recordID := chi.URLParam(r, "recordID")
	if userID == "" || recordID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("user ID and record ID are required"))
		return
	}

	rec, err := h.svc.Revert(r.Context(), userID, recordID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("record"))
	case errors.Is(err, reconcile.ErrNotReconciled), errors.Is(err, reconcile.ErrNotRevertible):
		h.WriteError(w, http.StatusConflict, dto.ConflictError(err.Error()))
	case err != nil:
		h.WriteInternal(w, r, "revert failed", err)
	default:
		h.WriteJSON(w, http.StatusOK, dto.RecordResponse{Record: rec})
	}
}
