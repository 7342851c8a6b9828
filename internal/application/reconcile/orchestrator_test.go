package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/eshaffer321/reconciler/internal/domain/resolver"
	"github.com/eshaffer321/reconciler/internal/infrastructure/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "user-1"

var testNow = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func newTestOrchestrator(repo storage.Repository) *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOrchestrator(repo, logger, WithClock(func() time.Time { return testNow }))
}

func holding(id string, h records.Holding) records.ManualRecord {
	return records.ManualRecord{ID: id, UserID: testUser, Type: records.EntityHolding, Holding: &h}
}

func income(id string, in records.Income) records.ManualRecord {
	return records.ManualRecord{ID: id, UserID: testUser, Type: records.EntityIncome, Income: &in}
}

func expense(id string, ex records.Expense) records.ManualRecord {
	return records.ManualRecord{ID: id, UserID: testUser, Type: records.EntityExpense, Expense: &ex}
}

func extHolding(id string, h records.ExternalHolding) records.ExternalRecord {
	return records.ExternalRecord{ID: id, UserID: testUser, Type: records.EntityHolding, AccountID: "acct-1", Holding: &h}
}

func extIncome(id string, in records.ExternalIncome) records.ExternalRecord {
	return records.ExternalRecord{ID: id, UserID: testUser, Type: records.EntityIncome, AccountID: "acct-1", Income: &in}
}

func extExpense(id string, ex records.ExternalExpense) records.ExternalRecord {
	return records.ExternalRecord{ID: id, UserID: testUser, Type: records.EntityExpense, AccountID: "acct-1", Expense: &ex}
}

func seed(t *testing.T, repo storage.Repository, manual []records.ManualRecord, external []records.ExternalRecord) {
	t.Helper()
	ctx := context.Background()
	for i := range manual {
		require.NoError(t, repo.InsertManual(ctx, &manual[i]))
	}
	for i := range external {
		require.NoError(t, repo.UpsertExternal(ctx, &external[i]))
	}
}

func getManual(t *testing.T, repo storage.Repository, id string) *records.ManualRecord {
	t.Helper()
	rec, err := repo.GetManual(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func appleHolding() records.ManualRecord {
	return holding("m-aapl", records.Holding{
		Ticker: "AAPL", Name: "Apple Inc", CUSIP: "037833100", ISIN: "US0378331005",
		Shares: 100, CostBasis: 150,
	})
}

func TestOrchestrator_ReplaceOnIdenticalHolding(t *testing.T) {
	// Arrange
	repo := storage.NewMockRepository()
	seed(t, repo,
		[]records.ManualRecord{appleHolding()},
		[]records.ExternalRecord{extHolding("e-aapl", records.ExternalHolding{
			Symbol: "AAPL", Name: "Apple Inc", CUSIP: "037833100", ISIN: "US0378331005",
			Quantity: 100, CostBasis: 150, Price: 190,
		})},
	)
	o := newTestOrchestrator(repo)

	// Act
	result, err := o.ReconcileUser(context.Background(), testUser)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Strategies[resolver.ReplaceWithExternal])
	assert.False(t, result.HasErrors())

	rec := getManual(t, repo, "m-aapl")
	assert.True(t, rec.Reconciled)
	require.NotNil(t, rec.ReconciledAt)
	assert.Equal(t, testNow, *rec.ReconciledAt)
	assert.Equal(t, "e-aapl", rec.ExternalID)
	assert.Equal(t, records.SourceExternal, rec.DataSource)
	assert.Equal(t, 190.0, rec.Holding.CurrentPrice)
	assert.Equal(t, "acct-1", rec.Holding.AccountID)
	require.NotNil(t, rec.Metadata.OriginalManualData)
	assert.Equal(t, 0.0, rec.Metadata.OriginalManualData.Holding.CurrentPrice)
	assert.Equal(t, result.RunID, rec.Metadata.LastRunID)

	entries := repo.LogEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, string(resolver.ReplaceWithExternal), entries[0].Action)
	assert.Equal(t, "m-aapl", entries[0].ManualID)
	assert.Equal(t, "e-aapl", entries[0].ExternalID)
	assert.Equal(t, "HIGH", entries[0].Confidence)
	assert.Equal(t, 1.0, entries[0].Score)
	assert.Contains(t, string(entries[0].Metadata), `"manual"`)
}

func TestOrchestrator_MergeQuantitiesOnShareDrift(t *testing.T) {
	// Arrange
	repo := storage.NewMockRepository()
	seed(t, repo,
		[]records.ManualRecord{appleHolding()},
		[]records.ExternalRecord{extHolding("e-aapl", records.ExternalHolding{
			Symbol: "AAPL", CUSIP: "037833100", ISIN: "US0378331005",
			Quantity: 120, CostBasis: 160, Price: 190,
		})},
	)
	o := newTestOrchestrator(repo)

	// Act
	result, err := o.ReconcileUser(context.Background(), testUser)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Strategies[resolver.MergeQuantities])
	assert.Equal(t, 1, result.ConflictsResolved)

	rec := getManual(t, repo, "m-aapl")
	assert.Equal(t, records.SourceMerged, rec.DataSource)
	assert.Equal(t, 220.0, rec.Holding.Shares)
	assert.InDelta(t, 155.454545, rec.Holding.CostBasis, 1e-6)
	assert.Equal(t, 190.0, rec.Holding.CurrentPrice)
	assert.Equal(t, "Apple Inc", rec.Holding.Name)
	require.NotNil(t, rec.Metadata.OriginalManualData)
	assert.Equal(t, 100.0, rec.Metadata.OriginalManualData.Holding.Shares)
}

func TestOrchestrator_KeepManualLinksWithoutChangingValues(t *testing.T) {
	// Arrange
	repo := storage.NewMockRepository()
	seed(t, repo,
		[]records.ManualRecord{income("m-div", records.Income{Source: "Dividend Payment", Amount: 100, Date: day(1)})},
		[]records.ExternalRecord{extIncome("e-div", records.ExternalIncome{Description: "DIV AAPL", Amount: 100, TransactionDate: day(2)})},
	)
	o := newTestOrchestrator(repo)

	// Act
	result, err := o.ReconcileUser(context.Background(), testUser)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Strategies[resolver.KeepManual])

	rec := getManual(t, repo, "m-div")
	assert.True(t, rec.Reconciled)
	assert.Equal(t, "e-div", rec.ExternalID)
	assert.Equal(t, records.SourceManual, rec.DataSource)
	assert.Equal(t, "Dividend Payment", rec.Income.Source)
	assert.Equal(t, day(1), rec.Income.Date)
	assert.Nil(t, rec.Metadata.OriginalManualData)

	entries := repo.LogEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "MEDIUM", entries[0].Confidence)
	assert.Contains(t, entries[0].Reason, "source LOW (Dividend Payment → DIV AAPL)")
}

func TestOrchestrator_KeepBothCreatesLinkedCounterpart(t *testing.T) {
	// Arrange
	repo := storage.NewMockRepository()
	seed(t, repo,
		[]records.ManualRecord{income("m-pay", records.Income{Source: "Freelance", Amount: 100, Date: day(1)})},
		[]records.ExternalRecord{extIncome("e-pay", records.ExternalIncome{Description: "WIRE 8812", Amount: 100, TransactionDate: day(20)})},
	)
	o := newTestOrchestrator(repo)

	// Act
	result, err := o.ReconcileUser(context.Background(), testUser)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 1, result.Strategies[resolver.KeepBoth])
	assert.Equal(t, 0, result.Created, "the counterpart is part of the decision, not the unmatched pass")

	all, err := repo.ListManual(context.Background(), testUser, records.EntityIncome)
	require.NoError(t, err)
	require.Len(t, all, 2)

	manual, created := all[0], all[1]
	assert.Equal(t, "m-pay", manual.ID)
	assert.Empty(t, manual.ExternalID)
	assert.True(t, manual.Metadata.HasExternalCounterpart)
	assert.Equal(t, "e-pay", manual.Metadata.CounterpartExternalID)
	assert.Equal(t, created.ID, manual.Metadata.CounterpartRecordID)

	assert.Equal(t, "e-pay", created.ExternalID)
	assert.Equal(t, records.SourceExternal, created.DataSource)
	assert.True(t, created.Reconciled)
	assert.Equal(t, "m-pay", created.Metadata.CounterpartRecordID)
	assert.Equal(t, "WIRE 8812", created.Income.Source)
}

func TestOrchestrator_ReplaceKeepsManualSignConvention(t *testing.T) {
	// Arrange
	repo := storage.NewMockRepository()
	seed(t, repo,
		[]records.ManualRecord{expense("m-wf", records.Expense{
			Merchant: "Whole Foods", Amount: 84.12, Date: day(5), Category: "groceries",
		})},
		[]records.ExternalRecord{extExpense("e-wf", records.ExternalExpense{
			Merchant: "Whole Foods Market", Description: "WHOLE FOODS MARKET #123", Amount: -84.12,
			TransactionDate: day(5), Category: "Groceries",
		})},
	)
	o := newTestOrchestrator(repo)

	// Act
	_, err := o.ReconcileUser(context.Background(), testUser)

	// Assert
	require.NoError(t, err)
	rec := getManual(t, repo, "m-wf")
	assert.Equal(t, records.SourceExternal, rec.DataSource)
	assert.Equal(t, 84.12, rec.Expense.Amount)
	assert.Equal(t, "Whole Foods Market", rec.Expense.Merchant)
	assert.Equal(t, "Groceries", rec.Expense.Category)
}

func TestOrchestrator_CreatesRecordsForUnmatchedExternals(t *testing.T) {
	// Arrange
	repo := storage.NewMockRepository()
	seed(t, repo, nil, []records.ExternalRecord{
		extHolding("e-msft", records.ExternalHolding{Symbol: "MSFT", Quantity: 10, Price: 400}),
		extIncome("e-int", records.ExternalIncome{Description: "INTEREST", Amount: 3.12, SettleDate: day(31)}),
	})
	o := newTestOrchestrator(repo)

	// Act
	result, err := o.ReconcileUser(context.Background(), testUser)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.ByType[records.EntityHolding].Created)
	assert.Equal(t, 1, result.ByType[records.EntityIncome].Created)
	assert.Equal(t, 0, result.ByType[records.EntityExpense].TotalProcessed)

	all, err := repo.ListManual(context.Background(), testUser, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, rec := range all {
		assert.True(t, rec.Reconciled)
		assert.Equal(t, records.SourceExternal, rec.DataSource)
		assert.Equal(t, storage.ActionCreateFromExternal, rec.Metadata.LastStrategy)
	}
	assert.Equal(t, day(31), all[1].Income.Date)

	for _, entry := range repo.LogEntries() {
		assert.Equal(t, storage.ActionCreateFromExternal, entry.Action)
	}
}

func TestOrchestrator_SecondRunChangesNothing(t *testing.T) {
	// Arrange
	repo := storage.NewMockRepository()
	seed(t, repo,
		[]records.ManualRecord{
			appleHolding(),
			income("m-pay", records.Income{Source: "Freelance", Amount: 100, Date: day(1)}),
		},
		[]records.ExternalRecord{
			extHolding("e-aapl", records.ExternalHolding{Symbol: "AAPL", CUSIP: "037833100", ISIN: "US0378331005", Quantity: 100, CostBasis: 150}),
			extHolding("e-msft", records.ExternalHolding{Symbol: "MSFT", Quantity: 10}),
			extIncome("e-pay", records.ExternalIncome{Description: "WIRE 8812", Amount: 100, TransactionDate: day(20)}),
		},
	)
	o := newTestOrchestrator(repo)
	_, err := o.ReconcileUser(context.Background(), testUser)
	require.NoError(t, err)
	before, err := repo.ListManual(context.Background(), testUser, "")
	require.NoError(t, err)
	logCount := len(repo.LogEntries())

	// Act
	result, err := o.ReconcileUser(context.Background(), testUser)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 0, result.Matched)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, len(before), result.Skipped)

	after, err := repo.ListManual(context.Background(), testUser, "")
	require.NoError(t, err)
	assert.Len(t, after, len(before))
	assert.Len(t, repo.LogEntries(), logCount)
}

func TestOrchestrator_ExternalRecordClaimedAtMostOnce(t *testing.T) {
	// Arrange
	first := appleHolding()
	second := appleHolding()
	second.ID = "m-aapl-2"
	repo := storage.NewMockRepository()
	seed(t, repo,
		[]records.ManualRecord{first, second},
		[]records.ExternalRecord{extHolding("e-aapl", records.ExternalHolding{
			Symbol: "AAPL", CUSIP: "037833100", ISIN: "US0378331005", Quantity: 100, CostBasis: 150,
		})},
	)
	o := newTestOrchestrator(repo)

	// Act
	result, err := o.ReconcileUser(context.Background(), testUser)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 1, result.Unmatched)
	assert.Equal(t, "e-aapl", getManual(t, repo, "m-aapl").ExternalID)

	unmatched := getManual(t, repo, "m-aapl-2")
	assert.True(t, unmatched.Reconciled)
	assert.Empty(t, unmatched.ExternalID)
	assert.Equal(t, records.SourceManual, unmatched.DataSource)
}

func TestOrchestrator_EveryManualRecordEndsReconciled(t *testing.T) {
	// Arrange
	repo := storage.NewMockRepository()
	seed(t, repo,
		[]records.ManualRecord{
			appleHolding(),
			holding("m-gold", records.Holding{Ticker: "GLD", Shares: 3}),
			income("m-div", records.Income{Source: "Dividend Payment", Amount: 100, Date: day(1)}),
			expense("m-coffee", records.Expense{Merchant: "Blue Bottle", Amount: 6.5, Date: day(3)}),
		},
		[]records.ExternalRecord{
			extHolding("e-aapl", records.ExternalHolding{Symbol: "AAPL", Quantity: 100, CostBasis: 150}),
			extIncome("e-div", records.ExternalIncome{Description: "DIV AAPL", Amount: 100, TransactionDate: day(2)}),
		},
	)
	o := newTestOrchestrator(repo)

	// Act
	result, err := o.ReconcileUser(context.Background(), testUser)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 6, result.TotalProcessed)
	all, err := repo.ListManual(context.Background(), testUser, "")
	require.NoError(t, err)
	for _, rec := range all {
		assert.True(t, rec.Reconciled, "record %s", rec.ID)
	}

	checkpoint, err := repo.GetCheckpoint(context.Background(), testUser)
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	assert.Equal(t, testNow, *checkpoint)
}

func TestOrchestrator_RecordFailureDoesNotAbortRun(t *testing.T) {
	// Arrange
	repo := storage.NewMockRepository()
	seed(t, repo,
		[]records.ManualRecord{
			appleHolding(),
			income("m-div", records.Income{Source: "Dividend Payment", Amount: 100, Date: day(1)}),
		},
		[]records.ExternalRecord{
			extHolding("e-aapl", records.ExternalHolding{Symbol: "AAPL", CUSIP: "037833100", ISIN: "US0378331005", Quantity: 100}),
			extIncome("e-div", records.ExternalIncome{Description: "DIV AAPL", Amount: 100, TransactionDate: day(2)}),
		},
	)
	repo.ApplyChangeHook = func(c storage.Change) error {
		if c.Update != nil && c.Update.ID == "m-aapl" {
			return errors.New("disk full")
		}
		return nil
	}
	o := newTestOrchestrator(repo)

	// Act
	result, err := o.ReconcileUser(context.Background(), testUser)

	// Assert
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "m-aapl", result.Errors[0].RecordID)
	assert.Equal(t, "e-aapl", result.Errors[0].ExternalID)
	assert.Contains(t, result.Errors[0].Error(), "disk full")
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 0, result.Created, "the failed pair must not turn into a duplicate")

	assert.False(t, getManual(t, repo, "m-aapl").Reconciled)
	assert.True(t, getManual(t, repo, "m-div").Reconciled)

	runs, err := repo.ListRuns(context.Background(), storage.RunFilters{UserID: testUser})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, storage.RunStatusCompletedWithErrors, runs[0].Status)
	assert.Equal(t, 1, runs[0].Errors)
}

func TestOrchestrator_InvalidExternalIsReported(t *testing.T) {
	// Arrange
	repo := storage.NewMockRepository()
	o := newTestOrchestrator(repo)
	bad := records.ExternalRecord{ID: "e-bad", UserID: testUser, Type: records.EntityIncome}

	// Act
	result, err := o.Reconcile(context.Background(), testUser, nil,
		map[records.EntityType][]records.ExternalRecord{records.EntityIncome: {bad}})

	// Assert
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "e-bad", result.Errors[0].ExternalID)
	assert.Equal(t, 0, result.Created)
}

func TestOrchestrator_RunTrackingFailureDoesNotBlock(t *testing.T) {
	// Arrange
	repo := storage.NewMockRepository()
	repo.StartRunErr = errors.New("runs table locked")
	seed(t, repo, nil, []records.ExternalRecord{extHolding("e-msft", records.ExternalHolding{Symbol: "MSFT", Quantity: 10})})
	o := newTestOrchestrator(repo)

	// Act
	result, err := o.ReconcileUser(context.Background(), testUser)

	// Assert
	require.NoError(t, err)
	assert.Empty(t, result.RunID)
	assert.Equal(t, 1, result.Created)
}

func TestOrchestrator_CheckpointFailureIsRunLevel(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.SetCheckpointErr = errors.New("read-only database")
	o := newTestOrchestrator(repo)

	result, err := o.ReconcileUser(context.Background(), testUser)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint")
	require.NotNil(t, result)
}

func TestOrchestrator_CancelledContextStopsBetweenRecords(t *testing.T) {
	// Arrange
	repo := storage.NewMockRepository()
	o := newTestOrchestrator(repo)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	manual := map[records.EntityType][]records.ManualRecord{
		records.EntityHolding: {appleHolding()},
	}

	// Act
	result, err := o.Reconcile(ctx, testUser, manual, nil)

	// Assert
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Matched)
	assert.Equal(t, 0, repo.ApplyChangeCalls)

	runs, err := repo.ListRuns(context.Background(), storage.RunFilters{UserID: testUser})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotNil(t, runs[0].CompletedAt)
}

func TestOrchestrator_LoadFailureIsRunLevel(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.ListExternalErr = errors.New("connection reset")
	o := newTestOrchestrator(repo)

	result, err := o.ReconcileUser(context.Background(), testUser)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestOrchestrator_NoRepository(t *testing.T) {
	o := NewOrchestrator(nil, nil)

	_, err := o.ReconcileUser(context.Background(), testUser)
	assert.ErrorIs(t, err, ErrNoRepository)

	_, err = o.Reconcile(context.Background(), testUser, nil, nil)
	assert.ErrorIs(t, err, ErrNoRepository)

	_, err = o.Revert(context.Background(), testUser, "m1")
	assert.ErrorIs(t, err, ErrNoRepository)
}
