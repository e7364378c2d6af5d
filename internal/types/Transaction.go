/*

This file contains the types for the user's transaction history.

*/

package types

import "time"

type TransactionType string

const (
	TxDeposit   TransactionType = "deposit"
	TxWithdraw  TransactionType = "withdraw"
	TxRebalance TransactionType = "rebalance"
	TxClaim     TransactionType = "claim"
)

type TransactionStatus string

const (
	TxCompleted TransactionStatus = "completed"
	TxPending   TransactionStatus = "pending"
	TxFailed    TransactionStatus = "failed"
)

type Transaction struct {
	ID          string            `json:"id"`
	AccountID   string            `json:"accountId"`
	Date        time.Time         `json:"date"`
	Type        TransactionType   `json:"type"`
	Protocol    string            `json:"protocol"` // Display name, e.g. "Ref Finance"
	Asset       string            `json:"asset"`    // Symbol, e.g. "NEAR"
	Amount      float64           `json:"amount"`
	Status      TransactionStatus `json:"status"`
	TxHash      string            `json:"txHash"`
	ExplorerURL string            `json:"explorerUrl,omitempty"`
}
