// ./internal/state/transactions_store.go
package state

import (
	"context"
	"fmt"

	"github.com/elys-network/yield-optimizer/internal/types"
)

const maxHistoryLimit = 500

// SaveTransaction records a transaction in the account's history.
func (r *Repository) SaveTransaction(ctx context.Context, tx types.Transaction) error {
	if r == nil || r.db == nil {
		return ErrDBNotInitialized
	}
	if tx.ID == "" || tx.AccountID == "" {
		return fmt.Errorf("transaction id and account id are required")
	}

	query := `
		INSERT INTO transactions (
			tx_id, account_id, tx_timestamp, tx_type, protocol, asset, amount, status, tx_hash, explorer_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	_, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.AccountID, tx.Date, string(tx.Type), tx.Protocol, tx.Asset, tx.Amount,
		string(tx.Status), tx.TxHash, tx.ExplorerURL,
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", tx.ID, err)
	}

	dbLogger.Info().
		Str("tx_id", tx.ID).
		Str("account_id", tx.AccountID).
		Str("type", string(tx.Type)).
		Msg("Transaction saved to database")
	return nil
}

// ListTransactions returns the account's most recent transactions, newest first.
func (r *Repository) ListTransactions(ctx context.Context, accountID string, limit int) ([]types.Transaction, error) {
	if r == nil || r.db == nil {
		return nil, ErrDBNotInitialized
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = 50
	}

	query := `
		SELECT tx_id, account_id, tx_timestamp, tx_type, protocol, asset, amount, status,
			COALESCE(tx_hash, ''), COALESCE(explorer_url, '')
		FROM transactions
		WHERE account_id = $1
		ORDER BY tx_timestamp DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		dbLogger.Error().Err(err).Msg("Failed to query transactions")
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []types.Transaction
	for rows.Next() {
		var tx types.Transaction
		var txType, status string
		if err := rows.Scan(
			&tx.ID, &tx.AccountID, &tx.Date, &txType, &tx.Protocol, &tx.Asset, &tx.Amount,
			&status, &tx.TxHash, &tx.ExplorerURL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		tx.Type = types.TransactionType(txType)
		tx.Status = types.TransactionStatus(status)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return out, nil
}
