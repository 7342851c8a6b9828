package handlers_test

import (
	"context"
	"io"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"

	"github.com/eshaffer321/reconciler/internal/application/reconcile"
	"github.com/eshaffer321/reconciler/internal/application/service"
	"github.com/eshaffer321/reconciler/internal/domain/records"
)

// setChiURLParams adds chi URL parameters to a request context, given as
// key/value pairs.
func setChiURLParams(ctx context.Context, kv ...string) context.Context {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return context.WithValue(ctx, chi.RouteCtxKey, rctx)
}

func setChiURLParam(ctx context.Context, key, value string) context.Context {
	return setChiURLParams(ctx, key, value)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockReconcileService is a mock implementation of handlers.ReconcileService
type MockReconcileService struct {
	mock.Mock
}

func (m *MockReconcileService) ReconcileUser(ctx context.Context, userID string) (*reconcile.Result, error) {
	args := m.Called(ctx, userID)
	result, _ := args.Get(0).(*reconcile.Result)
	return result, args.Error(1)
}

func (m *MockReconcileService) GetStatus(ctx context.Context, userID string) (*service.Status, error) {
	args := m.Called(ctx, userID)
	status, _ := args.Get(0).(*service.Status)
	return status, args.Error(1)
}

func (m *MockReconcileService) Revert(ctx context.Context, userID, manualID string) (*records.ManualRecord, error) {
	args := m.Called(ctx, userID, manualID)
	rec, _ := args.Get(0).(*records.ManualRecord)
	return rec, args.Error(1)
}

func (m *MockReconcileService) Invalidate(userID string) {
	m.Called(userID)
}
