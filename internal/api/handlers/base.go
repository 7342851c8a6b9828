package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eshaffer321/reconciler/internal/api/dto"
	"github.com/eshaffer321/reconciler/internal/infrastructure/storage"
)

// maxBodyBytes caps import payloads.
const maxBodyBytes = 8 << 20

// Base provides shared functionality for all handlers.
type Base struct {
	repo   storage.Repository
	logger *slog.Logger
}

// NewBase creates a new base handler with the given repository.
func NewBase(repo storage.Repository, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{repo: repo, logger: logger}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// WriteInternal logs err and writes a generic 500.
func (b *Base) WriteInternal(w http.ResponseWriter, r *http.Request, msg string, err error) {
	b.logger.Error(msg, "path", r.URL.Path, "error", err)
	b.WriteError(w, http.StatusInternalServerError, dto.InternalError())
}

// DecodeJSON reads a JSON body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// ParseLimitParam parses ?limit= and clamps it to (0, dto.MaxListLimit].
func ParseLimitParam(r *http.Request, defaultVal int) int {
	limit := ParseIntParam(r, "limit", defaultVal)
	if limit <= 0 {
		return defaultVal
	}
	if limit > dto.MaxListLimit {
		return dto.MaxListLimit
	}
	return limit
}
