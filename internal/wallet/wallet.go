/*

This file contains the wallet adapter contract shared by the NEAR native wallet and the
browser-extension (EIP-1193) wallet.

An adapter with no signed-in account reports an empty account id, not an error. Errors are
reserved for transport failures and user rejections.

*/

package wallet

import (
	"context"
	"errors"

	"github.com/elys-network/yield-optimizer/internal/logger"
	"github.com/elys-network/yield-optimizer/internal/metrics"
	"github.com/elys-network/yield-optimizer/internal/types"
)

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks github.com/elys-network/yield-optimizer/internal/wallet Adapter

// Error definitions for zero-tolerance error handling
var (
	ErrNotInstalled     = errors.New("wallet provider is not installed")
	ErrUserRejected     = errors.New("user rejected the request")
	ErrInvalidAccountID = errors.New("invalid account id")
	ErrAccountNotFound  = errors.New("account does not exist on chain")
	ErrKeyMismatch      = errors.New("public key does not match pending sign-in")
	ErrNoPendingSignIn  = errors.New("no sign-in is pending")
	ErrAccessKeyUnknown = errors.New("access key is not registered for the account")
	ErrNotSignedIn      = errors.New("wallet is not signed in")
	ErrInvalidResponse  = errors.New("invalid provider response")
)

var walletLogger = logger.GetForComponent("wallet")

// ConnectResult is what a connect attempt produced. Redirect wallets return a URL the
// user must visit; injected wallets return the account directly.
type ConnectResult struct {
	AccountID   string `json:"accountId,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// Adapter is implemented by every supported wallet.
type Adapter interface {
	Kind() types.WalletType
	IsAvailable(ctx context.Context) bool
	Connect(ctx context.Context) (ConnectResult, error)
	Disconnect(ctx context.Context) error
	// CurrentAccount returns the signed-in account, or "" when there is none.
	CurrentAccount(ctx context.Context) (string, error)
}

// FormatAddress shortens an EVM address for display: first six characters, "...", last four.
// NEAR account ids are readable and returned as they are.
func FormatAddress(kind types.WalletType, address string) string {
	if kind != types.WalletMetaMask || len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

func recordCall(kind types.WalletType, op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrUserRejected):
		outcome = "rejected"
	case errors.Is(err, ErrNotInstalled):
		outcome = "not_installed"
	default:
		outcome = "error"
	}
	metrics.RecordWalletCall(string(kind), op, outcome)
}
