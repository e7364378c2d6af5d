package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elys-network/yield-optimizer/internal/metrics"
	"github.com/elys-network/yield-optimizer/internal/types"
	"github.com/elys-network/yield-optimizer/internal/wallet"
)

// authPriority is the order wallets are asked for an active session.
var authPriority = []types.WalletType{types.WalletNear, types.WalletMetaMask}

// CheckAuthentication asks each wallet for an active session, NEAR first. Adapter failures are
// logged and treated as "not signed in". When a session is found the protocol, asset and
// portfolio fetches are started in the background.
func (s *Store) CheckAuthentication(ctx context.Context) types.Result[types.WalletInfo] {
	const action = "check_authentication"
	if s.Closed() {
		return closedResult[types.WalletInfo]()
	}

	for _, kind := range authPriority {
		adapter, ok := s.wallets[kind]
		if !ok {
			continue
		}
		callCtx, cancel := s.callContext(ctx)
		account, err := adapter.CurrentAccount(callCtx)
		cancel()
		if err != nil {
			storeLogger.Warn().Err(err).Str("wallet", string(kind)).Msg("Wallet session check failed, treating as signed out")
			continue
		}
		if account == "" {
			continue
		}

		info := types.WalletInfo{Type: kind, Address: account, IsConnected: true}
		s.SetWalletInfo(&info)
		metrics.RecordStoreAction(action, string(types.StatusOK), "")
		storeLogger.Info().Str("wallet", string(kind)).Str("account", account).Msg("Restored wallet session")
		return types.OK(info)
	}

	s.SetWalletInfo(nil)
	metrics.RecordStoreAction(action, string(types.StatusEmpty), string(types.KindNoAccount))
	return noAccount[types.WalletInfo]()
}

// SetWalletInfo replaces the wallet state. nil signs the store out. A connected wallet
// triggers the three data fetches in the background.
func (s *Store) SetWalletInfo(info *types.WalletInfo) {
	s.mu.Lock()
	prevAccount := s.state.AccountID

	if info == nil {
		s.state.WalletInfo = nil
		s.state.IsAuthenticated = false
		s.state.AccountID = ""
	} else {
		wi := *info
		s.state.WalletInfo = &wi
		s.state.IsAuthenticated = wi.IsConnected
		s.state.AccountID = wi.Address
	}
	if s.state.AccountID != prevAccount {
		s.invalidateAccountLocked()
	}
	s.state.Outcomes[FieldAuth] = types.Outcome{Status: types.StatusOK, At: s.cfg.Now()}
	if !s.state.IsAuthenticated {
		s.state.Outcomes[FieldAuth] = types.Outcome{Status: types.StatusEmpty, Kind: types.KindNoAccount, At: s.cfg.Now()}
	}
	s.notifyLocked()
	connected := info != nil && info.IsConnected
	s.mu.Unlock()

	if connected {
		s.spawn("refresh_after_auth", s.RefreshAll)
	}
}

// Connect starts a connection with the given wallet. Injected wallets connect directly;
// redirect wallets return the URL the user has to visit.
func (s *Store) Connect(ctx context.Context, kind types.WalletType) types.Result[wallet.ConnectResult] {
	const action = "connect_wallet"
	if s.Closed() {
		return closedResult[wallet.ConnectResult]()
	}

	adapter, ok := s.wallets[kind]
	if !kind.Valid() {
		return s.walletFailure(action, fmt.Errorf("%w: %q", ErrUnknownWallet, kind))
	}
	if !ok {
		return s.walletFailure(action, fmt.Errorf("%s: %w", kind, wallet.ErrNotInstalled))
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	if !adapter.IsAvailable(callCtx) {
		return s.walletFailure(action, fmt.Errorf("%s: %w", kind, wallet.ErrNotInstalled))
	}
	res, err := adapter.Connect(callCtx)
	if err != nil {
		return s.walletFailure(action, err)
	}

	if res.AccountID != "" {
		s.SetWalletInfo(&types.WalletInfo{Type: kind, Address: res.AccountID, IsConnected: true})
		storeLogger.Info().Str("wallet", string(kind)).Str("account", res.AccountID).Msg("Wallet connected")
	} else if res.RedirectURL != "" {
		storeLogger.Info().Str("wallet", string(kind)).Msg("Wallet sign-in requires redirect")
	} else {
		// The provider granted access to no accounts.
		return s.walletEmpty(action)
	}

	s.recordWalletOutcome(action, types.OK(res).Outcome(s.cfg.Now()))
	return types.OK(res)
}

// CompleteNearSignIn finishes a NEAR redirect sign-in and connects the account.
func (s *Store) CompleteNearSignIn(ctx context.Context, accountID, publicKey string) types.Result[types.WalletInfo] {
	const action = "complete_sign_in"
	if s.Closed() {
		return closedResult[types.WalletInfo]()
	}

	adapter, ok := s.wallets[types.WalletNear]
	if !ok {
		return s.walletInfoFailure(action, fmt.Errorf("%s: %w", types.WalletNear, wallet.ErrNotInstalled))
	}
	completer, ok := adapter.(SignInCompleter)
	if !ok {
		return s.walletInfoFailure(action, ErrSignInUnsupported)
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if err := completer.CompleteSignIn(callCtx, accountID, publicKey); err != nil {
		return s.walletInfoFailure(action, err)
	}

	info := types.WalletInfo{Type: types.WalletNear, Address: accountID, IsConnected: true}
	s.SetWalletInfo(&info)
	s.recordWalletOutcome(action, types.OK(info).Outcome(s.cfg.Now()))
	return types.OK(info)
}

// Disconnect signs out of the active wallet and clears the session state. The state is
// cleared even when the adapter fails to sign out.
func (s *Store) Disconnect(ctx context.Context) types.Result[bool] {
	const action = "disconnect_wallet"
	s.mu.Lock()
	var kind types.WalletType
	if s.state.WalletInfo != nil {
		kind = s.state.WalletInfo.Type
	}
	s.mu.Unlock()

	var err error
	if adapter, ok := s.wallets[kind]; ok {
		callCtx, cancel := s.callContext(ctx)
		err = adapter.Disconnect(callCtx)
		cancel()
	}
	s.SetWalletInfo(nil)

	if err != nil {
		storeLogger.Error().Err(err).Str("wallet", string(kind)).Msg("Wallet sign-out failed")
		res := types.Fail[bool](classify(err), err)
		s.recordWalletOutcome(action, res.Outcome(s.cfg.Now()))
		return res
	}
	storeLogger.Info().Str("wallet", string(kind)).Msg("Wallet disconnected")
	res := types.OK(kind != "")
	s.recordWalletOutcome(action, res.Outcome(s.cfg.Now()))
	return res
}

// WalletDetails reads the connected account's balance and network from its wallet.
func (s *Store) WalletDetails(ctx context.Context) types.Result[types.WalletDetails] {
	const action = "wallet_details"
	info, adapter, res := connectedAdapter[types.WalletDetails](s)
	if adapter == nil {
		return res
	}
	reader, ok := adapter.(BalanceReader)
	if !ok {
		return walletReadFailure[types.WalletDetails](action, fmt.Errorf("%s balance: %w", info.Type, ErrUnsupported))
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	balance, err := reader.AccountBalance(callCtx)
	if err != nil {
		return walletReadFailure[types.WalletDetails](action, err)
	}

	details := types.WalletDetails{
		Type:           info.Type,
		Address:        info.Address,
		DisplayAddress: wallet.FormatAddress(info.Type, info.Address),
		Balance:        balance,
		Currency:       currencyOf(info.Type),
	}
	if reporter, ok := adapter.(NetworkReporter); ok {
		network, err := reporter.NetworkInfo(callCtx)
		if err != nil {
			storeLogger.Warn().Err(err).Str("wallet", string(info.Type)).Msg("Wallet network lookup failed")
		} else {
			details.Network = &network
		}
	}

	if !s.stillSignedInAs(info.Address) {
		return types.Empty[types.WalletDetails](types.KindStale, ErrStale.Error())
	}
	metrics.RecordStoreAction(action, string(types.StatusOK), "")
	return types.OK(details)
}

// SignMessage asks the connected wallet to sign message.
func (s *Store) SignMessage(ctx context.Context, message string) types.Result[types.SignedMessage] {
	const action = "sign_message"
	if message == "" {
		return walletReadFailure[types.SignedMessage](action, ErrEmptyMessage)
	}
	info, adapter, res := connectedAdapter[types.SignedMessage](s)
	if adapter == nil {
		return res
	}
	signer, ok := adapter.(MessageSigner)
	if !ok {
		return walletReadFailure[types.SignedMessage](action, fmt.Errorf("%s signing: %w", info.Type, ErrUnsupported))
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	signed, err := signer.SignMessage(callCtx, message)
	if err != nil {
		return walletReadFailure[types.SignedMessage](action, err)
	}
	if signed.Signer != info.Address {
		return types.Empty[types.SignedMessage](types.KindStale, ErrStale.Error())
	}
	metrics.RecordStoreAction(action, string(types.StatusOK), "")
	storeLogger.Info().Str("wallet", string(info.Type)).Str("account", info.Address).Msg("Message signed")
	return types.OK(signed)
}

// ViewContract runs a read-only method of the optimizer contract through the NEAR wallet.
// No sign-in is needed.
func (s *Store) ViewContract(ctx context.Context, method string, args map[string]any) types.Result[json.RawMessage] {
	const action = "view_contract"
	if s.Closed() {
		return closedResult[json.RawMessage]()
	}
	if method == "" {
		return walletReadFailure[json.RawMessage](action, ErrEmptyMethod)
	}
	adapter, ok := s.wallets[types.WalletNear]
	if !ok {
		return walletReadFailure[json.RawMessage](action, fmt.Errorf("%s: %w", types.WalletNear, wallet.ErrNotInstalled))
	}
	viewer, ok := adapter.(ContractViewer)
	if !ok {
		return walletReadFailure[json.RawMessage](action, fmt.Errorf("%s view calls: %w", types.WalletNear, ErrUnsupported))
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	res, err := viewer.CallViewMethod(callCtx, method, args)
	if err != nil {
		return walletReadFailure[json.RawMessage](action, err)
	}
	if res.Raw == "" {
		metrics.RecordStoreAction(action, string(types.StatusEmpty), "")
		return types.Empty[json.RawMessage](types.KindNone, "view method returned no value")
	}
	metrics.RecordStoreAction(action, string(types.StatusOK), "")
	return types.OK(json.RawMessage(res.Raw))
}

// connectedAdapter returns the wallet of the signed-in account, or the result to return
// when there is none.
func connectedAdapter[T any](s *Store) (types.WalletInfo, wallet.Adapter, types.Result[T]) {
	if s.Closed() {
		return types.WalletInfo{}, nil, closedResult[T]()
	}
	s.mu.Lock()
	var info types.WalletInfo
	if s.state.WalletInfo != nil {
		info = *s.state.WalletInfo
	}
	authenticated := s.state.IsAuthenticated
	s.mu.Unlock()

	if !authenticated || info.Address == "" {
		return info, nil, noAccount[T]()
	}
	adapter, ok := s.wallets[info.Type]
	if !ok {
		return info, nil, types.Fail[T](types.KindWalletNotInstalled, fmt.Errorf("%s: %w", info.Type, wallet.ErrNotInstalled))
	}
	return info, adapter, types.Result[T]{}
}

func (s *Store) stillSignedInAs(account string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.AccountID == account
}

func currencyOf(kind types.WalletType) string {
	if kind == types.WalletNear {
		return "NEAR"
	}
	return "ETH"
}

func walletReadFailure[T any](action string, err error) types.Result[T] {
	res := types.Fail[T](classify(err), err)
	storeLogger.Warn().Err(err).Str("action", action).Str("kind", string(res.Kind)).Msg("Wallet read failed")
	metrics.RecordStoreAction(action, string(res.Status), string(res.Kind))
	return res
}

// Wallet returns the adapter registered for kind.
func (s *Store) Wallet(kind types.WalletType) (wallet.Adapter, bool) {
	w, ok := s.wallets[kind]
	return w, ok
}

func (s *Store) recordWalletOutcome(action string, outcome types.Outcome) {
	s.recordOutcome(FieldWallet, action, outcome)
}

func (s *Store) walletFailure(action string, err error) types.Result[wallet.ConnectResult] {
	res := types.Fail[wallet.ConnectResult](classify(err), err)
	storeLogger.Warn().Err(err).Str("action", action).Str("kind", string(res.Kind)).Msg("Wallet action failed")
	s.recordWalletOutcome(action, res.Outcome(s.cfg.Now()))
	return res
}

func (s *Store) walletEmpty(action string) types.Result[wallet.ConnectResult] {
	res := noAccount[wallet.ConnectResult]()
	s.recordWalletOutcome(action, res.Outcome(s.cfg.Now()))
	return res
}

func (s *Store) walletInfoFailure(action string, err error) types.Result[types.WalletInfo] {
	res := types.Fail[types.WalletInfo](classify(err), err)
	storeLogger.Warn().Err(err).Str("action", action).Str("kind", string(res.Kind)).Msg("Wallet action failed")
	s.recordWalletOutcome(action, res.Outcome(s.cfg.Now()))
	return res
}
