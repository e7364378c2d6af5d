/*

This file contains the transaction history sources shown on the History page.

MockSource serves a fixed five-day history relative to the current time and keeps
rebalances recorded during the session in memory. DBSource reads and writes the
transactions table through the state repository.

*/

package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elys-network/yield-optimizer/internal/logger"
	"github.com/elys-network/yield-optimizer/internal/state"
	"github.com/elys-network/yield-optimizer/internal/types"
)

var historyLogger = logger.GetForComponent("history")

const DefaultLimit = 50

// Error definitions for zero-tolerance error handling
var (
	ErrEmptyAccountID = errors.New("account id is required")
	ErrNilRepository  = errors.New("history repository is nil")
)

// Source lists and records an account's transactions.
type Source interface {
	List(ctx context.Context, accountID string, limit int) ([]types.Transaction, error)
	Record(ctx context.Context, tx types.Transaction) error
}

// ExplorerURL builds the explorer link for a transaction hash.
func ExplorerURL(explorerBase, txHash string) string {
	if explorerBase == "" || txHash == "" {
		return ""
	}
	return strings.TrimRight(explorerBase, "/") + "/transactions/" + txHash
}

// NewRebalanceTransaction describes a rebalance submission as a history entry.
func NewRebalanceTransaction(accountID string, allocations []types.Allocation, amount float64, success bool, at time.Time) types.Transaction {
	seen := make(map[string]bool)
	var protocols, assets []string
	for _, a := range allocations {
		if !seen["p:"+a.ProtocolID] {
			seen["p:"+a.ProtocolID] = true
			protocols = append(protocols, a.ProtocolID)
		}
		if !seen["a:"+a.AssetID] {
			seen["a:"+a.AssetID] = true
			assets = append(assets, strings.ToUpper(a.AssetID))
		}
	}

	status := types.TxCompleted
	if !success {
		status = types.TxFailed
	}
	return types.Transaction{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Date:      at.UTC(),
		Type:      types.TxRebalance,
		Protocol:  strings.Join(protocols, ", "),
		Asset:     strings.Join(assets, ", "),
		Amount:    amount,
		Status:    status,
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// MockSource is the in-memory history used when no database is configured.
type MockSource struct {
	explorerURL string
	now         func() time.Time

	mu       sync.Mutex
	recorded map[string][]types.Transaction
}

var _ Source = (*MockSource)(nil)

func NewMockSource(explorerURL string) *MockSource {
	return &MockSource{
		explorerURL: explorerURL,
		now:         time.Now,
		recorded:    make(map[string][]types.Transaction),
	}
}

// WithClock replaces the clock used to date the canned entries.
func (m *MockSource) WithClock(now func() time.Time) *MockSource {
	m.now = now
	return m
}

type cannedTx struct {
	id       string
	daysAgo  int
	txType   types.TransactionType
	protocol string
	asset    string
	amount   float64
	hash     string
}

var cannedHistory = []cannedTx{
	{"1", 0, types.TxRebalance, "Ref Finance", "NEAR", 25.5, "8FzNz3E5pVx9XNrJgHVvxftMSM1qRLRdQvDNBXXYCZ6K"},
	{"2", 1, types.TxRebalance, "Burrow", "USN", 100, "GtR7Xz3E5pVx9XNrJgHVvxftMSM1qRLRdQvDNBXXYCZ6K"},
	{"3", 2, types.TxDeposit, "Meta Pool", "NEAR", 50, "KpR7Xz3E5pVx9XNrJgHVvxftMSM1qRLRdQvDNBXXYCZ6K"},
	{"4", 3, types.TxClaim, "Ref Finance", "REF", 12.3, "LmR7Xz3E5pVx9XNrJgHVvxftMSM1qRLRdQvDNBXXYCZ6K"},
	{"5", 4, types.TxWithdraw, "Burrow", "USN", 50, "NpR7Xz3E5pVx9XNrJgHVvxftMSM1qRLRdQvDNBXXYCZ6K"},
}

func (m *MockSource) List(ctx context.Context, accountID string, limit int) ([]types.Transaction, error) {
	if accountID == "" {
		return nil, ErrEmptyAccountID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	m.mu.Lock()
	out := append([]types.Transaction(nil), m.recorded[accountID]...)
	m.mu.Unlock()

	for _, c := range cannedHistory {
		out = append(out, types.Transaction{
			ID:          c.id,
			AccountID:   accountID,
			Date:        now.AddDate(0, 0, -c.daysAgo),
			Type:        c.txType,
			Protocol:    c.protocol,
			Asset:       c.asset,
			Amount:      c.amount,
			Status:      types.TxCompleted,
			TxHash:      c.hash,
			ExplorerURL: ExplorerURL(m.explorerURL, c.hash),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockSource) Record(ctx context.Context, tx types.Transaction) error {
	if tx.AccountID == "" {
		return ErrEmptyAccountID
	}
	if tx.ExplorerURL == "" {
		tx.ExplorerURL = ExplorerURL(m.explorerURL, tx.TxHash)
	}
	m.mu.Lock()
	m.recorded[tx.AccountID] = append([]types.Transaction{tx}, m.recorded[tx.AccountID]...)
	m.mu.Unlock()

	historyLogger.Debug().Str("account", tx.AccountID).Str("tx_id", tx.ID).Msg("Recorded transaction in memory")
	return nil
}

// DBSource persists history in PostgreSQL.
type DBSource struct {
	repo        *state.Repository
	explorerURL string
}

var _ Source = (*DBSource)(nil)

func NewDBSource(repo *state.Repository, explorerURL string) (*DBSource, error) {
	if repo == nil {
		return nil, ErrNilRepository
	}
	return &DBSource{repo: repo, explorerURL: explorerURL}, nil
}

func (d *DBSource) List(ctx context.Context, accountID string, limit int) ([]types.Transaction, error) {
	if accountID == "" {
		return nil, ErrEmptyAccountID
	}
	txs, err := d.repo.ListTransactions(ctx, accountID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list history for %s: %w", accountID, err)
	}
	for i := range txs {
		if txs[i].ExplorerURL == "" {
			txs[i].ExplorerURL = ExplorerURL(d.explorerURL, txs[i].TxHash)
		}
	}
	return txs, nil
}

func (d *DBSource) Record(ctx context.Context, tx types.Transaction) error {
	if tx.AccountID == "" {
		return ErrEmptyAccountID
	}
	if tx.ExplorerURL == "" {
		tx.ExplorerURL = ExplorerURL(d.explorerURL, tx.TxHash)
	}
	if err := d.repo.SaveTransaction(ctx, tx); err != nil {
		return fmt.Errorf("record history for %s: %w", tx.AccountID, err)
	}
	return nil
}
