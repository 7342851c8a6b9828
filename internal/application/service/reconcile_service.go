package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/eshaffer321/reconciler/internal/application/reconcile"
	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/eshaffer321/reconciler/internal/infrastructure/storage"
	"golang.org/x/sync/errgroup"
)

// Defaults used when Config leaves a field at zero.
const (
	DefaultUserConcurrency    = 4
	DefaultStatusCacheEntries = 10000
)

// ErrNoUsers is returned by ReconcileUsers when called with no user ids.
var ErrNoUsers = errors.New("no users to reconcile")

// Reconciler is the slice of the orchestrator the service drives.
type Reconciler interface {
	ReconcileUser(ctx context.Context, userID string) (*reconcile.Result, error)
	Revert(ctx context.Context, userID, manualID string) (*records.ManualRecord, error)
}

// Config holds service settings.
type Config struct {
	UserConcurrency    int
	StatusCacheEntries int64
}

// Status summarises a user's manual records.
type Status struct {
	UserID           string                     `json:"user_id"`
	IsReconciled     bool                       `json:"is_reconciled"`
	LastReconciledAt *time.Time                 `json:"last_reconciled_at,omitempty"`
	PendingItems     int                        `json:"pending_items"`
	TotalItems       int                        `json:"total_items"`
	PendingByType    map[records.EntityType]int `json:"pending_by_type"`
}

// UserResult is one user's outcome in a batch run.
type UserResult struct {
	UserID string
	Result *reconcile.Result
	Err    error
}

// ReconcileService runs reconciliation for users and answers status queries.
type ReconcileService struct {
	repo        storage.Repository
	reconciler  Reconciler
	logger      *slog.Logger
	concurrency int

	cache *ristretto.Cache[string, *Status]

	// generations guards against caching a status computed before an
	// invalidation landed.
	mu          sync.Mutex
	generations map[string]uint64
}

// NewReconcileService creates a new reconcile service.
func NewReconcileService(
	repo storage.Repository,
	reconciler Reconciler,
	cfg Config,
	logger *slog.Logger,
) (*ReconcileService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UserConcurrency <= 0 {
		cfg.UserConcurrency = DefaultUserConcurrency
	}
	if cfg.StatusCacheEntries <= 0 {
		cfg.StatusCacheEntries = DefaultStatusCacheEntries
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, *Status]{
		NumCounters: cfg.StatusCacheEntries * 10, // number of keys to track frequency of
		MaxCost:     cfg.StatusCacheEntries,
		BufferItems: 64, // number of keys per Get buffer
		// Every entry costs 1, so MaxCost is an entry count.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize status cache: %w", err)
	}

	return &ReconcileService{
		repo:        repo,
		reconciler:  reconciler,
		logger:      logger,
		concurrency: cfg.UserConcurrency,
		cache:       cache,
		generations: make(map[string]uint64),
	}, nil
}

// Close releases the status cache.
func (s *ReconcileService) Close() {
	s.cache.Close()
}

// ReconcileUser runs one user's reconciliation and drops their cached status.
func (s *ReconcileService) ReconcileUser(ctx context.Context, userID string) (*reconcile.Result, error) {
	defer s.Invalidate(userID)

	result, err := s.reconciler.ReconcileUser(ctx, userID)
	if err != nil {
		s.logger.Error("reconciliation failed", "user_id", userID, "error", err)
		return result, err
	}

	s.logger.Info("reconciliation finished",
		"user_id", userID,
		"run_id", result.RunID,
		"matched", result.Matched,
		"created", result.Created,
		"errors", len(result.Errors),
	)
	return result, nil
}

// ReconcileUsers runs several users in parallel, at most UserConcurrency at a
// time. One user's failure never stops the others; results come back in the
// order of userIDs with duplicates removed.
func (s *ReconcileService) ReconcileUsers(ctx context.Context, userIDs []string) ([]UserResult, error) {
	unique := dedupe(userIDs)
	if len(unique) == 0 {
		return nil, ErrNoUsers
	}

	results := make([]UserResult, len(unique))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, userID := range unique {
		i, userID := i, userID
		g.Go(func() error {
			result, err := s.ReconcileUser(ctx, userID)
			results[i] = UserResult{UserID: userID, Result: result, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// Revert undoes one record's reconciliation.
func (s *ReconcileService) Revert(ctx context.Context, userID, manualID string) (*records.ManualRecord, error) {
	defer s.Invalidate(userID)
	return s.reconciler.Revert(ctx, userID, manualID)
}

// GetStatus reports how many of the user's records are still pending. It
// never writes to the store.
func (s *ReconcileService) GetStatus(ctx context.Context, userID string) (*Status, error) {
	if cached, ok := s.cache.Get(userID); ok {
		return cached, nil
	}

	generation := s.generation(userID)

	all, err := s.repo.ListManual(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	checkpoint, err := s.repo.GetCheckpoint(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	status := &Status{
		UserID:           userID,
		LastReconciledAt: checkpoint,
		TotalItems:       len(all),
		PendingByType:    make(map[records.EntityType]int, len(records.AllEntityTypes)),
	}
	for _, t := range records.AllEntityTypes {
		status.PendingByType[t] = 0
	}
	for i := range all {
		if !all[i].Reconciled {
			status.PendingItems++
			status.PendingByType[all[i].Type]++
		}
	}
	status.IsReconciled = checkpoint != nil && status.PendingItems == 0

	s.mu.Lock()
	if s.generations[userID] == generation {
		s.cache.Set(userID, status, 1)
	}
	s.mu.Unlock()

	return status, nil
}

func (s *ReconcileService) generation(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[userID]
}

// Invalidate drops the user's cached status. Callers that write records
// outside the service must call it.
func (s *ReconcileService) Invalidate(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[userID]++
	s.cache.Del(userID)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
