package store_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/elys-network/yield-optimizer/internal/analyzer"
	"github.com/elys-network/yield-optimizer/internal/config"
	"github.com/elys-network/yield-optimizer/internal/gateway"
	gwmocks "github.com/elys-network/yield-optimizer/internal/gateway/mocks"
	"github.com/elys-network/yield-optimizer/internal/history"
	"github.com/elys-network/yield-optimizer/internal/store"
	"github.com/elys-network/yield-optimizer/internal/types"
	"github.com/elys-network/yield-optimizer/internal/wallet"
	walletmocks "github.com/elys-network/yield-optimizer/internal/wallet/mocks"
)

func newTestStore(t *testing.T, cfg store.Config) *store.Store {
	t.Helper()
	if cfg.Gateway == nil {
		cfg.Gateway = gateway.NewMockGateway()
	}
	s, err := store.New(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func newAdapter(ctrl *gomock.Controller, kind types.WalletType) *walletmocks.MockAdapter {
	a := walletmocks.NewMockAdapter(ctrl)
	a.EXPECT().Kind().Return(kind).AnyTimes()
	return a
}

func connected(kind types.WalletType, account string) *types.WalletInfo {
	return &types.WalletInfo{Type: kind, Address: account, IsConnected: true}
}

func TestNewRequiresGateway(t *testing.T) {
	_, err := store.New(store.Config{})
	require.ErrorIs(t, err, store.ErrNilGateway)
}

func TestInitialState(t *testing.T) {
	s := newTestStore(t, store.Config{})
	st := s.Snapshot()

	assert.False(t, st.IsAuthenticated)
	assert.Empty(t, st.AccountID)
	assert.Nil(t, st.Portfolio)
	assert.Nil(t, st.OptimizationResult)
	assert.False(t, st.IsLoading)
	assert.False(t, st.DarkMode)
	assert.Equal(t, "balanced", st.RiskProfile.ID)
	assert.Equal(t, store.DefaultTab, st.ActiveTab)
}

func TestSelectRiskLevelSnapsToCanonicalProfiles(t *testing.T) {
	s := newTestStore(t, store.Config{})

	for level := types.MinRiskLevel; level <= types.MaxRiskLevel; level++ {
		res := s.SelectRiskLevel(level)
		require.True(t, res.IsOK(), "level %d", level)

		var want *types.RiskProfile
		for i, p := range config.DefaultRiskProfiles {
			d := p.RiskLevel - level
			if d >= -1 && d <= 1 {
				want = &config.DefaultRiskProfiles[i]
				break
			}
		}
		if want != nil {
			assert.Equal(t, *want, res.Value, "level %d", level)
		} else {
			assert.Equal(t, types.CustomRiskProfileID, res.Value.ID, "level %d", level)
			assert.Equal(t, float64(2*level), res.Value.ExpectedReturn)
			assert.Equal(t, float64(3*level), res.Value.MaxDrawdown)
		}
		assert.Equal(t, res.Value, s.Snapshot().RiskProfile)
	}

	res := s.SelectRiskLevel(11)
	assert.True(t, res.IsError())
	assert.Equal(t, types.KindInvalidInput, res.Kind)
}

func TestSetRiskProfileIsDirectReplacement(t *testing.T) {
	s := newTestStore(t, store.Config{})
	p := types.RiskProfile{ID: "anything", RiskLevel: 42}
	s.SetRiskProfile(p)
	assert.Equal(t, p, s.Snapshot().RiskProfile)
}

func TestCheckAuthenticationPrefersNear(t *testing.T) {
	ctrl := gomock.NewController(t)
	near := newAdapter(ctrl, types.WalletNear)
	ext := newAdapter(ctrl, types.WalletMetaMask)
	near.EXPECT().CurrentAccount(gomock.Any()).Return("alice.near", nil)
	ext.EXPECT().CurrentAccount(gomock.Any()).Return("0xabc", nil).AnyTimes()

	// Registration order must not matter.
	s := newTestStore(t, store.Config{Wallets: []wallet.Adapter{ext, near}})

	res := s.CheckAuthentication(context.Background())
	require.True(t, res.IsOK())
	assert.Equal(t, types.WalletInfo{Type: types.WalletNear, Address: "alice.near", IsConnected: true}, res.Value)

	s.Wait()
	st := s.Snapshot()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "alice.near", st.AccountID)
	assert.Len(t, st.Protocols, 5)
	assert.NotEmpty(t, st.Assets)
	require.NotNil(t, st.Portfolio)
	assert.False(t, st.IsLoading)
}

func TestCheckAuthenticationFallsBackToExtension(t *testing.T) {
	ctrl := gomock.NewController(t)
	near := newAdapter(ctrl, types.WalletNear)
	ext := newAdapter(ctrl, types.WalletMetaMask)
	near.EXPECT().CurrentAccount(gomock.Any()).Return("", errors.New("session file unreadable"))
	ext.EXPECT().CurrentAccount(gomock.Any()).Return("0xabc", nil)

	s := newTestStore(t, store.Config{Wallets: []wallet.Adapter{near, ext}})
	res := s.CheckAuthentication(context.Background())
	require.True(t, res.IsOK())
	assert.Equal(t, types.WalletMetaMask, res.Value.Type)
	s.Wait()
	assert.Equal(t, "0xabc", s.Snapshot().AccountID)
}

func TestCheckAuthenticationWithoutSessionClearsState(t *testing.T) {
	ctrl := gomock.NewController(t)
	near := newAdapter(ctrl, types.WalletNear)
	ext := newAdapter(ctrl, types.WalletMetaMask)
	near.EXPECT().CurrentAccount(gomock.Any()).Return("", nil)
	ext.EXPECT().CurrentAccount(gomock.Any()).Return("", errors.New("rpc down"))

	s := newTestStore(t, store.Config{Wallets: []wallet.Adapter{near, ext}})
	s.SetWalletInfo(&types.WalletInfo{Type: types.WalletNear, Address: "stale.near"})

	res := s.CheckAuthentication(context.Background())
	assert.True(t, res.IsEmpty())
	assert.Equal(t, types.KindNoAccount, res.Kind)
	st := s.Snapshot()
	assert.False(t, st.IsAuthenticated)
	assert.Empty(t, st.AccountID)
	assert.Nil(t, st.WalletInfo)
}

func TestSetWalletInfoNilClearsAuthentication(t *testing.T) {
	s := newTestStore(t, store.Config{})
	s.SetWalletInfo(connected(types.WalletNear, "alice.near"))
	s.Wait()
	require.True(t, s.Snapshot().IsAuthenticated)

	s.SetWalletInfo(nil)
	st := s.Snapshot()
	assert.False(t, st.IsAuthenticated)
	assert.Empty(t, st.AccountID)
	assert.Nil(t, st.WalletInfo)
	assert.Nil(t, st.Assets)
	assert.Nil(t, st.Portfolio)
	// Protocols are not account data.
	assert.Len(t, st.Protocols, 5)
}

func TestAccountFetchesAreNoOpsWithoutAccount(t *testing.T) {
	ctrl := gomock.NewController(t)
	// No expectations: any gateway call fails the test.
	gw := gwmocks.NewMockGateway(ctrl)
	s := newTestStore(t, store.Config{Gateway: gw})

	before := s.Snapshot()
	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	assets := s.FetchUserAssets(context.Background())
	assert.True(t, assets.IsEmpty())
	assert.Equal(t, types.KindNoAccount, assets.Kind)

	portfolio := s.FetchUserPortfolio(context.Background())
	assert.True(t, portfolio.IsEmpty())

	opt := s.RunOptimization(context.Background(), 5)
	assert.True(t, opt.IsEmpty())

	select {
	case <-updates:
		t.Fatal("state changed without an account")
	default:
	}
	assert.Equal(t, before, s.Snapshot())
}

func TestProtocolShareFromStoreState(t *testing.T) {
	s := newTestStore(t, store.Config{})
	s.SetWalletInfo(connected(types.WalletNear, "alice.near"))
	s.Wait()

	res := s.Allocation()
	require.True(t, res.IsOK(), res.Message)

	var share float64
	for _, slice := range res.Value.ByProtocol {
		if slice.ID == "ref-finance" {
			share = slice.Percentage
		}
	}
	assert.Equal(t, 6.9, share)
	assert.Equal(t, 2500.0, res.Value.TotalValue)
}

func TestRunOptimizationAllocationsSumToHundred(t *testing.T) {
	s := newTestStore(t, store.Config{})
	s.SetWalletInfo(connected(types.WalletNear, "alice.near"))
	s.Wait()

	res := s.RunOptimization(context.Background(), 5)
	require.True(t, res.IsOK(), res.Message)
	require.Len(t, res.Value.Allocations, 5)
	assert.Equal(t, 100.0, analyzer.AllocationSum(res.Value.Allocations))
	assert.Equal(t, res.Value, s.Snapshot().OptimizationResult)
	assert.False(t, s.Snapshot().IsLoading)
}

type fakeRuns struct {
	saved    atomic.Int32
	executed atomic.Int32
}

func (f *fakeRuns) SaveOptimizationRun(ctx context.Context, accountID string, riskLevel int, result types.OptimizationResult) (int64, error) {
	return int64(f.saved.Add(1)), nil
}

func (f *fakeRuns) MarkRunExecuted(ctx context.Context, accountID string) error {
	f.executed.Add(1)
	return nil
}

func TestRunOptimizationPersistsRun(t *testing.T) {
	runs := &fakeRuns{}
	s := newTestStore(t, store.Config{Runs: runs})
	s.SetWalletInfo(connected(types.WalletNear, "alice.near"))
	s.Wait()

	require.True(t, s.RunOptimization(context.Background(), 3).IsOK())
	assert.Equal(t, int32(1), runs.saved.Load())
}

func TestFetchProtocolsIsDeterministic(t *testing.T) {
	s := newTestStore(t, store.Config{})
	first := s.FetchProtocols(context.Background())
	second := s.FetchProtocols(context.Background())
	require.True(t, first.IsOK())
	require.True(t, second.IsOK())
	assert.Equal(t, first.Value, second.Value)
	assert.Equal(t, second.Value, s.Snapshot().Protocols)
}

func TestToggleDarkModeIsInvolution(t *testing.T) {
	theme := &store.ThemeClassList{}
	s := newTestStore(t, store.Config{Theme: theme})

	assert.True(t, s.ToggleDarkMode())
	assert.True(t, s.Snapshot().DarkMode)
	assert.True(t, theme.Has(store.DarkClass))

	assert.False(t, s.ToggleDarkMode())
	assert.False(t, s.Snapshot().DarkMode)
	assert.False(t, theme.Has(store.DarkClass))
	assert.Empty(t, theme.Classes())
}

func TestSetActiveTabNotifiesSubscribers(t *testing.T) {
	s := newTestStore(t, store.Config{})
	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.SetActiveTab("history")
	assert.Equal(t, "history", s.Snapshot().ActiveTab)
	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
}

func TestStaleProtocolCompletionIsDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := gwmocks.NewMockGateway(ctrl)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	gw.EXPECT().ListProtocols(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]types.Protocol, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return []types.Protocol{{ID: "old"}}, nil
		}
		return []types.Protocol{{ID: "new"}}, nil
	}).Times(2)

	s := newTestStore(t, store.Config{Gateway: gw})

	firstDone := make(chan types.Result[[]types.Protocol], 1)
	go func() { firstDone <- s.FetchProtocols(context.Background()) }()
	<-started

	second := s.FetchProtocols(context.Background())
	require.True(t, second.IsOK())
	assert.True(t, s.Snapshot().IsLoading, "first request is still in flight")

	close(release)
	first := <-firstDone
	assert.True(t, first.IsEmpty())
	assert.Equal(t, types.KindStale, first.Kind)

	st := s.Snapshot()
	require.Len(t, st.Protocols, 1)
	assert.Equal(t, "new", st.Protocols[0].ID)
	assert.False(t, st.IsLoading)
}

func TestAccountSwitchDiscardsPreviousAccountAssets(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := gwmocks.NewMockGateway(ctrl)

	started := make(chan struct{})
	release := make(chan struct{})
	gw.EXPECT().ListProtocols(gomock.Any()).Return([]types.Protocol{{ID: "ref-finance"}}, nil).Times(2)
	gw.EXPECT().ListUserAssets(gomock.Any(), "alice.near").DoAndReturn(func(ctx context.Context, account string) ([]types.Asset, error) {
		close(started)
		<-release
		return []types.Asset{{ID: "alice-token"}}, nil
	})
	// The first portfolio fetch may start before or after the switch.
	gw.EXPECT().GetUserPortfolio(gomock.Any(), "alice.near").Return(&types.Portfolio{TotalValue: 1}, nil).MaxTimes(1)
	gw.EXPECT().ListUserAssets(gomock.Any(), "bob.near").Return([]types.Asset{{ID: "bob-token"}}, nil)
	gw.EXPECT().GetUserPortfolio(gomock.Any(), "bob.near").Return(&types.Portfolio{TotalValue: 2}, nil).MinTimes(1).MaxTimes(2)

	s := newTestStore(t, store.Config{Gateway: gw})
	s.SetWalletInfo(connected(types.WalletNear, "alice.near"))
	<-started

	s.SetWalletInfo(connected(types.WalletNear, "bob.near"))
	close(release)
	s.Wait()

	st := s.Snapshot()
	assert.Equal(t, "bob.near", st.AccountID)
	require.Len(t, st.Assets, 1)
	assert.Equal(t, "bob-token", st.Assets[0].ID)
	require.NotNil(t, st.Portfolio)
	assert.Equal(t, 2.0, st.Portfolio.TotalValue)
}

func TestFetchFailureKeepsPreviousState(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := gwmocks.NewMockGateway(ctrl)
	gw.EXPECT().ListProtocols(gomock.Any()).Return([]types.Protocol{{ID: "ref-finance"}}, nil)
	gw.EXPECT().ListProtocols(gomock.Any()).Return(nil, &gateway.Error{Op: "list_protocols", Kind: types.KindNetwork, Err: errors.New("connection reset")})

	s := newTestStore(t, store.Config{Gateway: gw})
	require.True(t, s.FetchProtocols(context.Background()).IsOK())

	res := s.FetchProtocols(context.Background())
	assert.True(t, res.IsError())
	assert.True(t, res.Retryable())
	assert.Equal(t, types.KindNetwork, res.Kind)

	st := s.Snapshot()
	require.Len(t, st.Protocols, 1)
	assert.Equal(t, types.KindNetwork, st.Outcomes[store.FieldProtocols].Kind)
	assert.False(t, st.IsLoading)
}

func TestRequestTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := gwmocks.NewMockGateway(ctrl)
	gw.EXPECT().ListProtocols(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]types.Protocol, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	s := newTestStore(t, store.Config{Gateway: gw, RequestTimeout: 20 * time.Millisecond})
	res := s.FetchProtocols(context.Background())
	assert.Equal(t, types.KindTimeout, res.Kind)
	assert.False(t, s.Snapshot().IsLoading)
}

func TestCloseCancelsInFlightRequests(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := gwmocks.NewMockGateway(ctrl)
	started := make(chan struct{})
	gw.EXPECT().ListProtocols(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]types.Protocol, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	s := newTestStore(t, store.Config{Gateway: gw, RequestTimeout: time.Minute})
	updates, _ := s.Subscribe()

	done := make(chan types.Result[[]types.Protocol], 1)
	go func() { done <- s.FetchProtocols(context.Background()) }()
	<-started

	s.Close()
	select {
	case res := <-done:
		assert.Equal(t, types.KindCanceled, res.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("fetch was not cancelled by Close")
	}

	assert.True(t, s.Closed())
	res := s.FetchProtocols(context.Background())
	assert.Equal(t, types.KindCanceled, res.Kind)

	// The subscription channel is closed once drained.
	for range updates {
	}
}

// hourAgo dates the canned history before anything recorded during the test.
func hourAgo() time.Time { return time.Now().Add(-time.Hour) }

type rebalanceGateway struct {
	*gateway.MockGateway
	calls   atomic.Int32
	execute func(ctx context.Context) (bool, error)
}

func (g *rebalanceGateway) ExecuteRebalance(ctx context.Context, accountID string, allocations []types.Allocation) (bool, error) {
	g.calls.Add(1)
	return g.execute(ctx)
}

func newRebalanceStore(t *testing.T, gw *rebalanceGateway, src history.Source, runs store.RunRecorder) *store.Store {
	t.Helper()
	cfg := store.Config{Gateway: gw, History: src}
	if runs != nil {
		cfg.Runs = runs
	}
	s := newTestStore(t, cfg)
	s.SetWalletInfo(connected(types.WalletNear, "alice.near"))
	s.Wait()
	require.True(t, s.RunOptimization(context.Background(), 5).IsOK())
	return s
}

func TestExecuteRebalanceIsSingleFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	gw := &rebalanceGateway{MockGateway: gateway.NewMockGateway()}
	gw.execute = func(ctx context.Context) (bool, error) {
		close(started)
		<-release
		return true, nil
	}
	src := history.NewMockSource("https://explorer.near.org").WithClock(hourAgo)
	runs := &fakeRuns{}
	s := newRebalanceStore(t, gw, src, runs)

	done := make(chan types.Result[types.RebalanceOutcome], 1)
	go func() { done <- s.ExecuteRebalance(context.Background()) }()
	<-started

	dup := s.ExecuteRebalance(context.Background())
	assert.True(t, dup.IsError())
	assert.Equal(t, types.KindRejected, dup.Kind)

	close(release)
	res := <-done
	require.True(t, res.IsOK(), res.Message)
	assert.True(t, res.Value.Success)
	assert.Equal(t, int32(1), gw.calls.Load())
	assert.Equal(t, int32(1), runs.executed.Load())

	st := s.Snapshot()
	require.NotNil(t, st.LastRebalance)
	assert.True(t, st.LastRebalance.Success)
	assert.False(t, st.IsLoading)

	txs := s.History(context.Background(), 1)
	require.True(t, txs.IsOK())
	require.Len(t, txs.Value, 1)
	assert.Equal(t, res.Value.TransactionID, txs.Value[0].ID)
	assert.Equal(t, types.TxCompleted, txs.Value[0].Status)
}

func TestExecuteRebalanceFailureIsSurfacedNotRetried(t *testing.T) {
	gw := &rebalanceGateway{MockGateway: gateway.NewMockGateway()}
	gw.execute = func(ctx context.Context) (bool, error) {
		return false, &gateway.Error{Op: "rebalance", Kind: types.KindNetwork, StatusCode: 503, Err: gateway.ErrUnexpectedStatus}
	}
	src := history.NewMockSource("").WithClock(hourAgo)
	s := newRebalanceStore(t, gw, src, nil)

	res := s.ExecuteRebalance(context.Background())
	assert.True(t, res.IsError())
	assert.Equal(t, types.KindNetwork, res.Kind)
	assert.False(t, res.Value.Success)
	assert.NotEmpty(t, res.Value.Message)
	assert.Equal(t, int32(1), gw.calls.Load())

	st := s.Snapshot()
	require.NotNil(t, st.LastRebalance)
	assert.False(t, st.LastRebalance.Success)
	assert.Equal(t, types.StatusError, st.Outcomes[store.FieldRebalance].Status)

	txs := s.History(context.Background(), 1)
	require.True(t, txs.IsOK())
	assert.Equal(t, types.TxFailed, txs.Value[0].Status)
}

func TestExecuteRebalanceBackendRefusal(t *testing.T) {
	gw := &rebalanceGateway{MockGateway: gateway.NewMockGateway()}
	gw.execute = func(ctx context.Context) (bool, error) { return false, nil }
	s := newRebalanceStore(t, gw, nil, nil)

	res := s.ExecuteRebalance(context.Background())
	assert.Equal(t, types.KindRejected, res.Kind)
}

func TestExecuteRebalanceRequiresOptimization(t *testing.T) {
	s := newTestStore(t, store.Config{})
	assert.Equal(t, types.KindNoAccount, s.ExecuteRebalance(context.Background()).Kind)

	s.SetWalletInfo(connected(types.WalletNear, "alice.near"))
	s.Wait()
	res := s.ExecuteRebalance(context.Background())
	assert.True(t, res.IsError())
	assert.Equal(t, types.KindInvalidInput, res.Kind)
}

func TestConnectExtensionNotInstalled(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := newAdapter(ctrl, types.WalletMetaMask)
	ext.EXPECT().IsAvailable(gomock.Any()).Return(false)

	s := newTestStore(t, store.Config{Wallets: []wallet.Adapter{ext}})
	res := s.Connect(context.Background(), types.WalletMetaMask)
	assert.True(t, res.IsError())
	assert.Equal(t, types.KindWalletNotInstalled, res.Kind)
	assert.False(t, s.Snapshot().IsAuthenticated)

	res = s.Connect(context.Background(), types.WalletNear)
	assert.Equal(t, types.KindWalletNotInstalled, res.Kind)

	res = s.Connect(context.Background(), "ledger")
	assert.Equal(t, types.KindInvalidInput, res.Kind)
}

func TestConnectExtension(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := newAdapter(ctrl, types.WalletMetaMask)
	ext.EXPECT().IsAvailable(gomock.Any()).Return(true)
	ext.EXPECT().Connect(gomock.Any()).Return(wallet.ConnectResult{AccountID: "0xabc"}, nil)

	s := newTestStore(t, store.Config{Wallets: []wallet.Adapter{ext}})
	res := s.Connect(context.Background(), types.WalletMetaMask)
	require.True(t, res.IsOK())
	s.Wait()

	st := s.Snapshot()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "0xabc", st.AccountID)
	assert.Equal(t, types.WalletMetaMask, st.WalletInfo.Type)
}

func TestConnectExtensionUserRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := newAdapter(ctrl, types.WalletMetaMask)
	ext.EXPECT().IsAvailable(gomock.Any()).Return(true)
	ext.EXPECT().Connect(gomock.Any()).Return(wallet.ConnectResult{}, wallet.ErrUserRejected)

	s := newTestStore(t, store.Config{Wallets: []wallet.Adapter{ext}})
	res := s.Connect(context.Background(), types.WalletMetaMask)
	assert.Equal(t, types.KindRejected, res.Kind)
}

type signInAdapter struct {
	*walletmocks.MockAdapter
	completed string
}

func (a *signInAdapter) CompleteSignIn(ctx context.Context, accountID, publicKey string) error {
	if accountID == "ghost.near" {
		return wallet.ErrAccountNotFound
	}
	a.completed = accountID
	return nil
}

func TestNearRedirectSignIn(t *testing.T) {
	ctrl := gomock.NewController(t)
	near := &signInAdapter{MockAdapter: newAdapter(ctrl, types.WalletNear)}
	near.EXPECT().IsAvailable(gomock.Any()).Return(true)
	near.EXPECT().Connect(gomock.Any()).Return(wallet.ConnectResult{RedirectURL: "https://wallet.near.org/login/?contract_id=x"}, nil)

	s := newTestStore(t, store.Config{Wallets: []wallet.Adapter{near}})

	res := s.Connect(context.Background(), types.WalletNear)
	require.True(t, res.IsOK())
	assert.NotEmpty(t, res.Value.RedirectURL)
	assert.False(t, s.Snapshot().IsAuthenticated)

	missing := s.CompleteNearSignIn(context.Background(), "ghost.near", "")
	assert.Equal(t, types.KindNoAccount, missing.Kind)

	info := s.CompleteNearSignIn(context.Background(), "alice.near", "")
	require.True(t, info.IsOK())
	assert.Equal(t, "alice.near", near.completed)
	s.Wait()
	assert.Equal(t, "alice.near", s.Snapshot().AccountID)
}

func TestCompleteSignInUnsupported(t *testing.T) {
	ctrl := gomock.NewController(t)
	near := newAdapter(ctrl, types.WalletNear)
	s := newTestStore(t, store.Config{Wallets: []wallet.Adapter{near}})

	res := s.CompleteNearSignIn(context.Background(), "alice.near", "")
	assert.Equal(t, types.KindInvalidInput, res.Kind)
}

func TestDisconnectClearsStateEvenOnFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	near := newAdapter(ctrl, types.WalletNear)
	near.EXPECT().Disconnect(gomock.Any()).Return(errors.New("disk full"))

	s := newTestStore(t, store.Config{Wallets: []wallet.Adapter{near}})
	s.SetWalletInfo(connected(types.WalletNear, "alice.near"))
	s.Wait()

	res := s.Disconnect(context.Background())
	assert.True(t, res.IsError())
	st := s.Snapshot()
	assert.False(t, st.IsAuthenticated)
	assert.Empty(t, st.AccountID)
}

func TestSettingsRoundTrip(t *testing.T) {
	theme := &store.ThemeClassList{}
	s := newTestStore(t, store.Config{Settings: store.NewMemorySettings(), Theme: theme})

	assert.Equal(t, types.KindNoAccount, s.Settings(context.Background()).Kind)

	s.SetWalletInfo(connected(types.WalletNear, "alice.near"))
	s.Wait()

	res := s.Settings(context.Background())
	require.True(t, res.IsOK())
	assert.Equal(t, types.DefaultSettings(), res.Value)

	update := types.DefaultSettings()
	update.AutoRebalance = true
	update.RebalanceThreshold = 10
	update.DarkMode = true
	require.True(t, s.UpdateSettings(context.Background(), update).IsOK())
	assert.True(t, s.Snapshot().DarkMode)
	assert.True(t, theme.Has(store.DarkClass))

	res = s.Settings(context.Background())
	require.True(t, res.IsOK())
	assert.Equal(t, update, res.Value)

	update.RebalanceThreshold = 0
	bad := s.UpdateSettings(context.Background(), update)
	assert.Equal(t, types.KindInvalidInput, bad.Kind)
}
