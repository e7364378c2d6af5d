package state

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yield-optimizer/internal/types"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestEnsureSchema(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS transactions").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNilRepository(t *testing.T) {
	var repo *Repository
	require.ErrorIs(t, repo.EnsureSchema(context.Background()), ErrDBNotInitialized)
	_, err := repo.ListTransactions(context.Background(), "alice.near", 10)
	require.ErrorIs(t, err, ErrDBNotInitialized)
}

func TestSaveAndListTransactions(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tx := types.Transaction{
		ID: "tx-1", AccountID: "alice.near", Date: now, Type: types.TxRebalance,
		Protocol: "Ref Finance", Asset: "NEAR", Amount: 25.5, Status: types.TxCompleted,
		TxHash: "abc", ExplorerURL: "https://explorer.near.org/transactions/abc",
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WithArgs("tx-1", "alice.near", now, "rebalance", "Ref Finance", "NEAR", 25.5, "completed", "abc", tx.ExplorerURL).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.SaveTransaction(ctx, tx))

	rows := sqlmock.NewRows([]string{"tx_id", "account_id", "tx_timestamp", "tx_type", "protocol", "asset", "amount", "status", "tx_hash", "explorer_url"}).
		AddRow("tx-1", "alice.near", now, "rebalance", "Ref Finance", "NEAR", 25.5, "completed", "abc", tx.ExplorerURL)
	mock.ExpectQuery("SELECT tx_id, account_id").WithArgs("alice.near", 50).WillReturnRows(rows)

	got, err := repo.ListTransactions(ctx, "alice.near", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, tx, got[0])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTransactionRequiresIDs(t *testing.T) {
	repo, _ := newMockRepo(t)
	require.Error(t, repo.SaveTransaction(context.Background(), types.Transaction{ID: "tx-1"}))
}

func TestGetSettingsDefaultsWhenMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT notifications").WithArgs("alice.near").WillReturnError(sql.ErrNoRows)

	s, found, err := repo.GetSettings(context.Background(), "alice.near")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, types.DefaultSettings(), s)
}

func TestGetSettings(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := sqlmock.NewRows([]string{"notifications", "auto_rebalance", "security_alerts", "rebalance_threshold", "dark_mode"}).
		AddRow(false, true, true, 7, true)
	mock.ExpectQuery("SELECT notifications").WithArgs("alice.near").WillReturnRows(rows)

	s, found, err := repo.GetSettings(context.Background(), "alice.near")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, types.Settings{AutoRebalance: true, SecurityAlerts: true, RebalanceThreshold: 7, DarkMode: true}, s)
}

func TestSaveSettingsCommits(t *testing.T) {
	repo, mock := newMockRepo(t)
	s := types.DefaultSettings()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO user_settings").
		WithArgs("alice.near", s.Notifications, s.AutoRebalance, s.SecurityAlerts, s.RebalanceThreshold, s.DarkMode).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveSettings(context.Background(), "alice.near", s))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSettingsRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO user_settings").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	require.Error(t, repo.SaveSettings(context.Background(), "alice.near", types.DefaultSettings()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSettingsValidatesThreshold(t *testing.T) {
	repo, _ := newMockRepo(t)
	s := types.DefaultSettings()
	s.RebalanceThreshold = 50
	require.ErrorIs(t, repo.SaveSettings(context.Background(), "alice.near", s), ErrInvalidSettings)
}

func TestOptimizationRuns(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	result := types.OptimizationResult{
		ExpectedAPY:  9.8,
		ExpectedRisk: 4.2,
		Allocations: []types.Allocation{
			{ProtocolID: "meta-pool", AssetID: "near", Percentage: 60, ExpectedAPY: 5.8},
			{ProtocolID: "burrow", AssetID: "usn", Percentage: 40, ExpectedAPY: 8.2},
		},
	}

	mock.ExpectQuery("INSERT INTO optimization_runs").
		WithArgs("alice.near", 5, 9.8, 4.2, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"run_id"}).AddRow(int64(7)))

	runID, err := repo.SaveOptimizationRun(ctx, "alice.near", 5, result)
	require.NoError(t, err)
	assert.Equal(t, int64(7), runID)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"run_id", "account_id", "run_timestamp", "risk_level", "expected_apy", "expected_risk", "protocol_ids", "allocations", "executed"}).
		AddRow(int64(7), "alice.near", now, 5, 9.8, 4.2, []byte("{meta-pool,burrow}"),
			[]byte(`[{"protocolId":"meta-pool","assetId":"near","percentage":60,"expectedApy":5.8},{"protocolId":"burrow","assetId":"usn","percentage":40,"expectedApy":8.2}]`), false)
	mock.ExpectQuery("SELECT run_id").WithArgs("alice.near", 10).WillReturnRows(rows)

	runs, err := repo.GetRecentRuns(ctx, "alice.near", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, []string{"meta-pool", "burrow"}, runs[0].ProtocolIDs)
	assert.Equal(t, result, runs[0].Result)

	mock.ExpectExec("UPDATE optimization_runs SET executed").WithArgs("alice.near").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkRunExecuted(ctx, "alice.near"))

	mock.ExpectQuery("SELECT COUNT").WithArgs("alice.near").
		WillReturnRows(sqlmock.NewRows([]string{"count", "executed", "avg", "max"}).AddRow(3, 1, 9.5, now))
	summary, err := repo.GetRunSummary(ctx, "alice.near")
	require.NoError(t, err)
	assert.Equal(t, RunSummary{TotalRuns: 3, ExecutedRuns: 1, AvgExpectedAPY: 9.5, LastRunTimestamp: "2026-05-01T12:00:00Z"}, summary)

	require.NoError(t, mock.ExpectationsWereMet())
}
