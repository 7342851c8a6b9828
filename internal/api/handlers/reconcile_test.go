package handlers_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconciler/internal/api/dto"
	"github.com/eshaffer321/reconciler/internal/api/handlers"
	"github.com/eshaffer321/reconciler/internal/application/reconcile"
	"github.com/eshaffer321/reconciler/internal/application/service"
	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/eshaffer321/reconciler/internal/domain/resolver"
	"github.com/eshaffer321/reconciler/internal/infrastructure/storage"
)

func TestReconcileHandler_Reconcile(t *testing.T) {
	t.Run("returns counts for a clean run", func(t *testing.T) {
		// Arrange
		svc := new(MockReconcileService)
		svc.On("ReconcileUser", mock.Anything, "u1").Return(&reconcile.Result{
			RunID: "run-1", UserID: "u1", Matched: 2, Created: 1, TotalProcessed: 5,
			Strategies: map[resolver.Strategy]int{resolver.MergeQuantities: 2},
			ByType: map[records.EntityType]*reconcile.TypeResult{
				records.EntityHolding: {Matched: 2, TotalProcessed: 5},
			},
		}, nil)
		handler := handlers.NewReconcileHandler(svc, quietLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/users/u1/reconcile", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "userID", "u1"))
		rec := httptest.NewRecorder()

		// Act
		handler.Reconcile(rec, req)

		// Assert
		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.ReconcileResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, dto.StatusCompleted, response.Status)
		assert.Equal(t, "run-1", response.RunID)
		assert.Equal(t, 2, response.Totals.Matched)
		assert.Equal(t, 2, response.Totals.Strategies["MERGE_QUANTITIES"])
		assert.Equal(t, 5, response.ByType["holding"].TotalProcessed)
		assert.Empty(t, response.Errors)
		svc.AssertExpectations(t)
	})

	t.Run("record failures are reported with 200", func(t *testing.T) {
		svc := new(MockReconcileService)
		svc.On("ReconcileUser", mock.Anything, "u1").Return(&reconcile.Result{
			UserID: "u1",
			Errors: []reconcile.RecordError{{EntityType: records.EntityIncome, RecordID: "m-1", Message: "disk full"}},
		}, nil)
		handler := handlers.NewReconcileHandler(svc, quietLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/users/u1/reconcile", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "userID", "u1"))
		rec := httptest.NewRecorder()

		handler.Reconcile(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.ReconcileResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, dto.StatusCompletedWithIssues, response.Status)
		require.Len(t, response.Errors, 1)
		assert.Equal(t, "m-1", response.Errors[0].RecordID)
		assert.Equal(t, "income", response.Errors[0].EntityType)
	})

	t.Run("run-level failure is a 500", func(t *testing.T) {
		svc := new(MockReconcileService)
		svc.On("ReconcileUser", mock.Anything, "u1").Return(nil, errors.New("load manual holding records: db closed"))
		handler := handlers.NewReconcileHandler(svc, quietLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/users/u1/reconcile", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "userID", "u1"))
		rec := httptest.NewRecorder()

		handler.Reconcile(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var response dto.APIError
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, dto.ErrCodeInternalError, response.Code)
		assert.NotContains(t, response.Message, "db closed")
	})

	t.Run("missing user is a 400", func(t *testing.T) {
		svc := new(MockReconcileService)
		handler := handlers.NewReconcileHandler(svc, quietLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/users//reconcile", nil)
		rec := httptest.NewRecorder()

		handler.Reconcile(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "ReconcileUser", mock.Anything, mock.Anything)
	})
}

func TestReconcileHandler_Status(t *testing.T) {
	t.Run("returns status", func(t *testing.T) {
		at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
		svc := new(MockReconcileService)
		svc.On("GetStatus", mock.Anything, "u1").Return(&service.Status{
			UserID: "u1", LastReconciledAt: &at, PendingItems: 1, TotalItems: 3,
			PendingByType: map[records.EntityType]int{records.EntityExpense: 1},
		}, nil)
		handler := handlers.NewReconcileHandler(svc, quietLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/users/u1/status", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "userID", "u1"))
		rec := httptest.NewRecorder()

		handler.Status(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.StatusResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.False(t, response.IsReconciled)
		assert.Equal(t, 1, response.PendingItems)
		assert.Equal(t, 3, response.TotalItems)
		assert.Equal(t, 1, response.PendingByType["expense"])
		require.NotNil(t, response.LastReconciledAt)
		assert.Equal(t, "2024-04-01T12:00:00Z", *response.LastReconciledAt)
	})

	t.Run("never reconciled omits timestamp", func(t *testing.T) {
		svc := new(MockReconcileService)
		svc.On("GetStatus", mock.Anything, "u2").Return(&service.Status{UserID: "u2"}, nil)
		handler := handlers.NewReconcileHandler(svc, quietLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/users/u2/status", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "userID", "u2"))
		rec := httptest.NewRecorder()

		handler.Status(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "last_reconciled_at")
	})

	t.Run("storage failure is a 500", func(t *testing.T) {
		svc := new(MockReconcileService)
		svc.On("GetStatus", mock.Anything, "u1").Return(nil, errors.New("boom"))
		handler := handlers.NewReconcileHandler(svc, quietLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/users/u1/status", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "userID", "u1"))
		rec := httptest.NewRecorder()

		handler.Status(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestReconcileHandler_Revert(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "reverted", wantCode: http.StatusOK},
		{name: "unknown record", err: fmt.Errorf("manual record m-1: %w", storage.ErrNotFound), wantCode: http.StatusNotFound, wantErr: dto.ErrCodeNotFound},
		{name: "not reconciled", err: fmt.Errorf("record m-1: %w", reconcile.ErrNotReconciled), wantCode: http.StatusConflict, wantErr: dto.ErrCodeConflict},
		{name: "no snapshot", err: fmt.Errorf("record m-1: %w", reconcile.ErrNotRevertible), wantCode: http.StatusConflict, wantErr: dto.ErrCodeConflict},
		{name: "storage failure", err: errors.New("disk full"), wantCode: http.StatusInternalServerError, wantErr: dto.ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			svc := new(MockReconcileService)
			var restored *records.ManualRecord
			if tt.err == nil {
				restored = &records.ManualRecord{ID: "m-1", UserID: "u1", Type: records.EntityIncome, DataSource: records.SourceManual}
			}
			svc.On("Revert", mock.Anything, "u1", "m-1").Return(restored, tt.err)
			handler := handlers.NewReconcileHandler(svc, quietLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/users/u1/records/m-1/revert", nil)
			req = req.WithContext(setChiURLParams(req.Context(), "userID", "u1", "recordID", "m-1"))
			rec := httptest.NewRecorder()

			// Act
			handler.Revert(rec, req)

			// Assert
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantErr != "" {
				var response dto.APIError
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
				assert.Equal(t, tt.wantErr, response.Code)
				return
			}
			var response dto.RecordResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
			require.NotNil(t, response.Record)
			assert.Equal(t, records.SourceManual, response.Record.DataSource)
		})
	}
}
