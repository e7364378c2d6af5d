package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver for array support

	"github.com/elys-network/yield-optimizer/internal/types"
)

// OptimizationRun is one optimization result recorded for an account.
type OptimizationRun struct {
	RunID       int64                    `json:"runId"`
	AccountID   string                   `json:"accountId"`
	Timestamp   time.Time                `json:"timestamp"`
	RiskLevel   int                      `json:"riskLevel"`
	Result      types.OptimizationResult `json:"result"`
	ProtocolIDs []string                 `json:"protocolIds"`
	Executed    bool                     `json:"executed"`
}

// RunSummary represents aggregated optimization activity for an account.
type RunSummary struct {
	TotalRuns        int     `json:"totalRuns"`
	ExecutedRuns     int     `json:"executedRuns"`
	AvgExpectedAPY   float64 `json:"avgExpectedApy"`
	LastRunTimestamp string  `json:"lastRunTimestamp,omitempty"`
}

// SaveOptimizationRun stores an optimization result and returns its run id.
func (r *Repository) SaveOptimizationRun(ctx context.Context, accountID string, riskLevel int, result types.OptimizationResult) (int64, error) {
	if r == nil || r.db == nil {
		return 0, ErrDBNotInitialized
	}

	allocationsJSON, err := json.Marshal(result.Allocations)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal allocations: %w", err)
	}
	protocolIDs := make([]string, 0, len(result.Allocations))
	for _, a := range result.Allocations {
		protocolIDs = append(protocolIDs, a.ProtocolID)
	}

	query := `
		INSERT INTO optimization_runs (
			account_id, risk_level, expected_apy, expected_risk, protocol_ids, allocations
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING run_id;
	`

	var runID int64
	err = r.db.QueryRowContext(ctx, query,
		accountID, riskLevel, result.ExpectedAPY, result.ExpectedRisk,
		pq.Array(protocolIDs), allocationsJSON,
	).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("failed to save optimization run: %w", err)
	}

	dbLogger.Info().
		Int64("run_id", runID).
		Str("account_id", accountID).
		Int("risk_level", riskLevel).
		Float64("expected_apy", result.ExpectedAPY).
		Msg("Optimization run saved to database")
	return runID, nil
}

// MarkRunExecuted flags the account's latest run as rebalanced.
func (r *Repository) MarkRunExecuted(ctx context.Context, accountID string) error {
	if r == nil || r.db == nil {
		return ErrDBNotInitialized
	}
	query := `
		UPDATE optimization_runs SET executed = TRUE
		WHERE run_id = (
			SELECT run_id FROM optimization_runs WHERE account_id = $1 ORDER BY run_timestamp DESC LIMIT 1
		);`
	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("failed to mark run executed: %w", err)
	}
	return nil
}

// GetRecentRuns retrieves the account's recent optimization runs, newest first.
func (r *Repository) GetRecentRuns(ctx context.Context, accountID string, limit int) ([]OptimizationRun, error) {
	if r == nil || r.db == nil {
		return nil, ErrDBNotInitialized
	}
	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	query := `
		SELECT run_id, account_id, run_timestamp, risk_level, expected_apy, expected_risk,
			protocol_ids, allocations, executed
		FROM optimization_runs
		WHERE account_id = $1
		ORDER BY run_timestamp DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		dbLogger.Error().Err(err).Msg("Failed to query recent runs")
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []OptimizationRun
	for rows.Next() {
		var run OptimizationRun
		var allocationsJSON []byte
		if err := rows.Scan(
			&run.RunID, &run.AccountID, &run.Timestamp, &run.RiskLevel,
			&run.Result.ExpectedAPY, &run.Result.ExpectedRisk,
			pq.Array(&run.ProtocolIDs), &allocationsJSON, &run.Executed,
		); err != nil {
			dbLogger.Error().Err(err).Msg("Failed to scan run row")
			continue // Skip this row and continue with others
		}
		if err := json.Unmarshal(allocationsJSON, &run.Result.Allocations); err != nil {
			dbLogger.Error().Err(err).Int64("run_id", run.RunID).Msg("Failed to unmarshal allocations")
			continue
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// GetRunSummary aggregates the account's optimization activity.
func (r *Repository) GetRunSummary(ctx context.Context, accountID string) (RunSummary, error) {
	if r == nil || r.db == nil {
		return RunSummary{}, ErrDBNotInitialized
	}

	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE executed),
			COALESCE(AVG(expected_apy), 0),
			MAX(run_timestamp)
		FROM optimization_runs
		WHERE account_id = $1;`

	var summary RunSummary
	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&summary.TotalRuns, &summary.ExecutedRuns, &summary.AvgExpectedAPY, &last,
	); err != nil {
		return RunSummary{}, fmt.Errorf("failed to summarize runs: %w", err)
	}
	if last.Valid {
		summary.LastRunTimestamp = last.Time.UTC().Format(time.RFC3339)
	}
	return summary, nil
}
