/*

This file contains the browser-extension wallet adapter. It speaks the EIP-1193 request
interface; on the server side the provider is a JSON-RPC endpoint (see RPCClient).

Extensions cannot be disconnected programmatically, so Disconnect only forgets the account
locally until the next Connect.

*/

package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/elys-network/yield-optimizer/internal/config"
	"github.com/elys-network/yield-optimizer/internal/types"
	"github.com/elys-network/yield-optimizer/internal/utils"
)

// userRejectedCode is the EIP-1193 error code for a request the user declined.
const userRejectedCode = 4001

// Provider is an EIP-1193 style request interface.
type Provider interface {
	Request(ctx context.Context, method string, params any) (gjson.Result, error)
}

var _ Provider = (*RPCClient)(nil)

// ExtensionWallet implements Adapter on top of an EIP-1193 provider. A nil provider means
// the extension is not installed.
type ExtensionWallet struct {
	provider Provider

	mu           sync.Mutex
	disconnected bool
}

var _ Adapter = (*ExtensionWallet)(nil)

func NewExtensionWallet(provider Provider) *ExtensionWallet {
	return &ExtensionWallet{provider: provider}
}

// NewExtensionWalletFromConfig uses the configured RPC endpoint as provider. An empty URL
// yields an adapter that reports itself as not installed.
func NewExtensionWalletFromConfig(cfg config.ExtensionConfig) *ExtensionWallet {
	if cfg.RPCURL == "" {
		return NewExtensionWallet(nil)
	}
	return NewExtensionWallet(NewRPCClient(cfg.RPCURL))
}

func (w *ExtensionWallet) Kind() types.WalletType { return types.WalletMetaMask }

func (w *ExtensionWallet) IsAvailable(ctx context.Context) bool { return w.provider != nil }

// Connect asks the provider for account access and returns the first account. A provider
// that grants access to no accounts yields an empty result, not an error.
func (w *ExtensionWallet) Connect(ctx context.Context) (ConnectResult, error) {
	accounts, err := w.accounts(ctx, "eth_requestAccounts")
	recordCall(w.Kind(), "connect", err)
	if err != nil {
		return ConnectResult{}, err
	}
	if len(accounts) == 0 {
		walletLogger.Warn().Msg("Extension wallet granted access to no accounts")
		return ConnectResult{}, nil
	}

	w.mu.Lock()
	w.disconnected = false
	w.mu.Unlock()

	return ConnectResult{AccountID: accounts[0]}, nil
}

func (w *ExtensionWallet) Disconnect(ctx context.Context) error {
	w.mu.Lock()
	w.disconnected = true
	w.mu.Unlock()
	recordCall(w.Kind(), "disconnect", nil)
	walletLogger.Info().Msg("Extension wallet disconnected locally")
	return nil
}

// CurrentAccount returns the first authorized account, "" when none or not installed.
func (w *ExtensionWallet) CurrentAccount(ctx context.Context) (string, error) {
	if w.provider == nil {
		return "", nil
	}
	w.mu.Lock()
	disconnected := w.disconnected
	w.mu.Unlock()
	if disconnected {
		return "", nil
	}

	accounts, err := w.accounts(ctx, "eth_accounts")
	if err != nil {
		recordCall(w.Kind(), "current_account", err)
		return "", err
	}
	if len(accounts) == 0 {
		return "", nil
	}
	return accounts[0], nil
}

// NetworkInfo returns the chain the provider is connected to.
func (w *ExtensionWallet) NetworkInfo(ctx context.Context) (types.NetworkInfo, error) {
	chainID, err := w.chainID(ctx)
	if err != nil {
		return types.NetworkInfo{}, err
	}
	return types.NetworkInfo{ChainID: chainID, Name: config.ChainName(chainID)}, nil
}

// AccountBalance returns the ether balance of the connected account.
func (w *ExtensionWallet) AccountBalance(ctx context.Context) (float64, error) {
	account, err := w.signedInAccount(ctx)
	if err != nil {
		return 0, err
	}
	return w.balanceOf(ctx, account)
}

func (w *ExtensionWallet) balanceOf(ctx context.Context, address string) (float64, error) {
	res, err := w.request(ctx, "eth_getBalance", []any{address, "latest"})
	if err != nil {
		return 0, err
	}
	return utils.WeiHexToEther(res.String())
}

// SignMessage asks the wallet for a personal_sign signature of message by the connected account.
func (w *ExtensionWallet) SignMessage(ctx context.Context, message string) (types.SignedMessage, error) {
	account, err := w.signedInAccount(ctx)
	if err != nil {
		return types.SignedMessage{}, err
	}
	payload := "0x" + hex.EncodeToString([]byte(message))
	res, err := w.request(ctx, "personal_sign", []any{payload, account})
	recordCall(w.Kind(), "sign_message", err)
	if err != nil {
		return types.SignedMessage{}, err
	}
	sig := res.String()
	if !strings.HasPrefix(sig, "0x") {
		return types.SignedMessage{}, fmt.Errorf("%w: signature %q", ErrInvalidResponse, sig)
	}
	return types.SignedMessage{Signer: account, Message: message, Signature: sig}, nil
}

func (w *ExtensionWallet) signedInAccount(ctx context.Context) (string, error) {
	if w.provider == nil {
		return "", ErrNotInstalled
	}
	account, err := w.CurrentAccount(ctx)
	if err != nil {
		return "", err
	}
	if account == "" {
		return "", ErrNotSignedIn
	}
	return account, nil
}

// Watch polls the provider and calls onAccounts / onChain whenever the account list or the
// chain changes. The first poll establishes the baseline. It returns when ctx is done.
func (w *ExtensionWallet) Watch(ctx context.Context, interval time.Duration, onAccounts func([]string), onChain func(int64)) error {
	if w.provider == nil {
		return ErrNotInstalled
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}

	var (
		lastAccounts []string
		lastChain    int64
		primed       bool
	)

	poll := func() {
		accounts, err := w.accounts(ctx, "eth_accounts")
		if err != nil {
			walletLogger.Debug().Err(err).Msg("Extension account poll failed")
			return
		}
		chainID, err := w.chainID(ctx)
		if err != nil {
			walletLogger.Debug().Err(err).Msg("Extension chain poll failed")
			return
		}
		if primed && !equalStrings(accounts, lastAccounts) && onAccounts != nil {
			onAccounts(accounts)
		}
		if primed && chainID != lastChain && onChain != nil {
			onChain(chainID)
		}
		lastAccounts, lastChain, primed = accounts, chainID, true
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	poll()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			poll()
		}
	}
}

func (w *ExtensionWallet) accounts(ctx context.Context, method string) ([]string, error) {
	res, err := w.request(ctx, method, []any{})
	if err != nil {
		return nil, err
	}
	if !res.IsArray() {
		return nil, fmt.Errorf("%w: %s returned %s", ErrInvalidResponse, method, res.Type)
	}
	var out []string
	for _, a := range res.Array() {
		if s := a.String(); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func (w *ExtensionWallet) chainID(ctx context.Context) (int64, error) {
	res, err := w.request(ctx, "eth_chainId", []any{})
	if err != nil {
		return 0, err
	}
	raw := strings.TrimPrefix(res.String(), "0x")
	id, err := strconv.ParseInt(raw, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: chain id %q", ErrInvalidResponse, res.String())
	}
	return id, nil
}

func (w *ExtensionWallet) request(ctx context.Context, method string, params any) (gjson.Result, error) {
	if w.provider == nil {
		return gjson.Result{}, ErrNotInstalled
	}
	res, err := w.provider.Request(ctx, method, params)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == userRejectedCode {
			return gjson.Result{}, fmt.Errorf("%w: %s", ErrUserRejected, rpcErr.Message)
		}
		return gjson.Result{}, fmt.Errorf("%s: %w", method, err)
	}
	return res, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
