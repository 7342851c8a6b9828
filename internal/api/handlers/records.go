package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/reconciler/internal/api/dto"
	"github.com/eshaffer321/reconciler/internal/infrastructure/storage"
)

// StatusInvalidator drops a user's cached status after their records change.
type StatusInvalidator interface {
	Invalidate(userID string)
}

// RecordsHandler imports manual and aggregator records and serves the log.
type RecordsHandler struct {
	*Base
	status StatusInvalidator
}

// NewRecordsHandler creates a new records handler. status may be nil when no
// status cache is running.
func NewRecordsHandler(repo storage.Repository, status StatusInvalidator, logger *slog.Logger) *RecordsHandler {
	return &RecordsHandler{Base: NewBase(repo, logger), status: status}
}

// ImportManual handles POST /api/users/{userID}/manual.
// Every record is validated before any is stored. Reconciliation state in the
// body is ignored; imported records always start unreconciled.
func (h *RecordsHandler) ImportManual(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req dto.ImportManualRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError(err.Error()))
		return
	}

	for i := range req.Records {
		rec := &req.Records[i]
		if err := claim(&rec.UserID, userID); err != nil {
			h.WriteError(w, http.StatusBadRequest, dto.ValidationError(fmt.Sprintf("record %d: %v", i, err)))
			return
		}
		rec.ResetReconciliation()
		if err := rec.Validate(); err != nil {
			h.WriteError(w, http.StatusBadRequest, dto.ValidationError(fmt.Sprintf("record %d: %v", i, err)))
			return
		}
	}

	defer h.invalidate(userID)
	for i := range req.Records {
		if err := h.repo.InsertManual(r.Context(), &req.Records[i]); err != nil {
			h.WriteInternal(w, r, "failed to import manual record", err)
			return
		}
	}

	h.WriteJSON(w, http.StatusCreated, dto.ImportResponse{UserID: userID, Imported: len(req.Records)})
}

// ImportExternal handles POST /api/users/{userID}/external.
func (h *RecordsHandler) ImportExternal(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req dto.ImportExternalRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError(err.Error()))
		return
	}

	for i := range req.Records {
		rec := &req.Records[i]
		if err := claim(&rec.UserID, userID); err != nil {
			h.WriteError(w, http.StatusBadRequest, dto.ValidationError(fmt.Sprintf("record %d: %v", i, err)))
			return
		}
		if err := rec.Validate(); err != nil {
			h.WriteError(w, http.StatusBadRequest, dto.ValidationError(fmt.Sprintf("record %d: %v", i, err)))
			return
		}
	}

	defer h.invalidate(userID)
	for i := range req.Records {
		if err := h.repo.UpsertExternal(r.Context(), &req.Records[i]); err != nil {
			h.WriteInternal(w, r, "failed to import external record", err)
			return
		}
	}

	h.WriteJSON(w, http.StatusCreated, dto.ImportResponse{UserID: userID, Imported: len(req.Records)})
}

// Log handles GET /api/users/{userID}/log - most recent entries first.
func (h *RecordsHandler) Log(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := ParseLimitParam(r, dto.DefaultLogLimit)

	entries, err := h.repo.ListLog(r.Context(), userID, limit)
	if err != nil {
		h.WriteInternal(w, r, "failed to list log", err)
		return
	}

	response := dto.LogListResponse{
		UserID:  userID,
		Entries: make([]dto.LogEntryResponse, 0, len(entries)),
		Count:   len(entries),
	}
	for _, e := range entries {
		response.Entries = append(response.Entries, dto.NewLogEntryResponse(e))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

func (h *RecordsHandler) invalidate(userID string) {
	if h.status != nil {
		h.status.Invalidate(userID)
	}
}

// claim fills a blank owner with the path user and rejects any other owner.
func claim(owner *string, userID string) error {
	if *owner == "" {
		*owner = userID
		return nil
	}
	if *owner != userID {
		return fmt.Errorf("belongs to user %q, not %q", *owner, userID)
	}
	return nil
}
