package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/google/uuid"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
// It is safe for concurrent use so multi-user runs can share one instance.
type MockRepository struct {
	mu sync.Mutex

	manual      []*records.ManualRecord // insertion order
	external    []*records.ExternalRecord
	log         []LogEntry
	checkpoints map[string]time.Time
	runs        map[string]*Run
	runOrder    []string

	// Hooks for test assertions
	ApplyChangeCalls int
	LastChange       *Change
	ListManualCalls  int

	// Error injection for testing error paths
	ListManualErr       error
	ListExternalErr     error
	InsertManualErr     error
	UpsertExternalErr   error
	IsExternalLinkedErr error
	ApplyChangeErr      error
	AppendLogErr        error
	SetCheckpointErr    error
	StartRunErr         error
	CompleteRunErr      error

	// ApplyChangeHook, when set, runs before each ApplyChange. A non-nil
	// return fails that change only.
	ApplyChangeHook func(Change) error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		checkpoints: make(map[string]time.Time),
		runs:        make(map[string]*Run),
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// ListManual returns copies of the user's records in insertion order
func (m *MockRepository) ListManual(_ context.Context, userID string, entityType records.EntityType) ([]records.ManualRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListManualCalls++
	if m.ListManualErr != nil {
		return nil, m.ListManualErr
	}

	var out []records.ManualRecord
	for _, rec := range m.manual {
		if rec.UserID != userID || (entityType != "" && rec.Type != entityType) {
			continue
		}
		out = append(out, rec.Clone())
	}
	return out, nil
}

// GetManual returns a copy of a record
func (m *MockRepository) GetManual(_ context.Context, id string) (*records.ManualRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.findManual(id)
	if rec == nil {
		return nil, fmt.Errorf("manual record %s: %w", id, ErrNotFound)
	}
	c := rec.Clone()
	return &c, nil
}

// InsertManual stores a copy of rec
func (m *MockRepository) InsertManual(_ context.Context, rec *records.ManualRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InsertManualErr != nil {
		return m.InsertManualErr
	}
	return m.insertManual(rec)
}

// UpsertExternal stores a copy of rec, replacing by user and ID
func (m *MockRepository) UpsertExternal(_ context.Context, rec *records.ExternalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpsertExternalErr != nil {
		return m.UpsertExternalErr
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	copied := *rec
	for i, existing := range m.external {
		if existing.UserID == rec.UserID && existing.ID == rec.ID {
			m.external[i] = &copied
			return nil
		}
	}
	m.external = append(m.external, &copied)
	return nil
}

// ListExternal returns the user's aggregator records in arrival order
func (m *MockRepository) ListExternal(_ context.Context, userID string, entityType records.EntityType) ([]records.ExternalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListExternalErr != nil {
		return nil, m.ListExternalErr
	}
	var out []records.ExternalRecord
	for _, rec := range m.external {
		if rec.UserID != userID || (entityType != "" && rec.Type != entityType) {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

// IsExternalLinked checks the stored records for externalID
func (m *MockRepository) IsExternalLinked(_ context.Context, userID string, entityType records.EntityType, externalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsExternalLinkedErr != nil {
		return false, m.IsExternalLinkedErr
	}
	for _, rec := range m.manual {
		if rec.UserID == userID && rec.Type == entityType && rec.ExternalID == externalID {
			return true, nil
		}
	}
	return false, nil
}

// ApplyChange applies every part of change or none of it
func (m *MockRepository) ApplyChange(_ context.Context, change Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ApplyChangeCalls++
	m.LastChange = &change
	if m.ApplyChangeErr != nil {
		return m.ApplyChangeErr
	}
	if m.ApplyChangeHook != nil {
		if err := m.ApplyChangeHook(change); err != nil {
			return err
		}
	}

	// Validate everything up front so a failure leaves no partial write.
	var existing *records.ManualRecord
	if change.Update != nil {
		if err := change.Update.Validate(); err != nil {
			return err
		}
		existing = m.findManual(change.Update.ID)
		if existing == nil {
			return fmt.Errorf("manual record %s: %w", change.Update.ID, ErrNotFound)
		}
	}
	if change.Create != nil {
		if err := change.Create.Validate(); err != nil {
			return err
		}
		if change.Create.ID != "" && m.findManual(change.Create.ID) != nil {
			return fmt.Errorf("manual record %s already exists", change.Create.ID)
		}
	}

	if change.Update != nil {
		change.Update.UpdatedAt = time.Now().UTC()
		*existing = change.Update.Clone()
	}
	if change.Create != nil {
		_ = m.insertManual(change.Create)
	}
	if change.Log != nil {
		m.appendLog(change.Log)
	}
	return nil
}

// AppendLog stores a log entry
func (m *MockRepository) AppendLog(_ context.Context, entry *LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AppendLogErr != nil {
		return m.AppendLogErr
	}
	m.appendLog(entry)
	return nil
}

// ListLog returns the user's entries, newest first
func (m *MockRepository) ListLog(_ context.Context, userID string, limit int) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = defaultListLimit
	}
	var out []LogEntry
	for i := len(m.log) - 1; i >= 0 && len(out) < limit; i-- {
		if m.log[i].UserID == userID {
			out = append(out, m.log[i])
		}
	}
	return out, nil
}

// SetCheckpoint records the user's checkpoint
func (m *MockRepository) SetCheckpoint(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SetCheckpointErr != nil {
		return m.SetCheckpointErr
	}
	m.checkpoints[userID] = at
	return nil
}

// GetCheckpoint returns the user's checkpoint, or nil
func (m *MockRepository) GetCheckpoint(_ context.Context, userID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at, ok := m.checkpoints[userID]
	if !ok {
		return nil, nil
	}
	return &at, nil
}

// StartRun creates a running run
func (m *MockRepository) StartRun(_ context.Context, userID string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.StartRunErr != nil {
		return nil, m.StartRunErr
	}
	run := &Run{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: time.Now().UTC(),
		Status:    RunStatusRunning,
	}
	m.runs[run.ID] = run
	m.runOrder = append(m.runOrder, run.ID)
	copied := *run
	return &copied, nil
}

// CompleteRun records the final counts
func (m *MockRepository) CompleteRun(_ context.Context, runID string, stats RunStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CompleteRunErr != nil {
		return m.CompleteRunErr
	}
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Matched = stats.Matched
	run.Created = stats.Created
	run.ConflictsResolved = stats.ConflictsResolved
	run.Skipped = stats.Skipped
	run.Errors = stats.Errors
	run.Status = stats.Status()
	return nil
}

// ListRuns returns runs, newest first
func (m *MockRepository) ListRuns(_ context.Context, filters RunFilters) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	var out []Run
	for i := len(m.runOrder) - 1; i >= 0 && len(out) < limit; i-- {
		run := m.runs[m.runOrder[i]]
		if filters.UserID != "" && run.UserID != filters.UserID {
			continue
		}
		out = append(out, *run)
	}
	return out, nil
}

// GetRun returns a run by ID
func (m *MockRepository) GetRun(_ context.Context, runID string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	copied := *run
	return &copied, nil
}

// LogEntries returns every stored log entry in append order (test helper)
func (m *MockRepository) LogEntries() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]LogEntry, len(m.log))
	copy(out, m.log)
	return out
}

func (m *MockRepository) findManual(id string) *records.ManualRecord {
	for _, rec := range m.manual {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

func (m *MockRepository) insertManual(rec *records.ManualRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.DataSource == "" {
		rec.DataSource = records.SourceManual
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	copied := rec.Clone()
	m.manual = append(m.manual, &copied)
	return nil
}

func (m *MockRepository) appendLog(entry *LogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.log = append(m.log, *entry)
}
