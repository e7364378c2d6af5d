package store

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/elys-network/yield-optimizer/internal/analyzer"
	"github.com/elys-network/yield-optimizer/internal/history"
	"github.com/elys-network/yield-optimizer/internal/metrics"
	"github.com/elys-network/yield-optimizer/internal/planner"
	"github.com/elys-network/yield-optimizer/internal/types"
)

// RefreshAll runs the protocol, asset and portfolio fetches concurrently. Each fetch updates
// its own field, so one failing does not stop the others. The first failure is returned.
func (s *Store) RefreshAll(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return s.FetchProtocols(ctx).Err() })
	g.Go(func() error { return s.FetchUserAssets(ctx).Err() })
	g.Go(func() error { return s.FetchUserPortfolio(ctx).Err() })
	return g.Wait()
}

func (s *Store) FetchProtocols(ctx context.Context) types.Result[[]types.Protocol] {
	const action = "fetch_protocols"
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return closedResult[[]types.Protocol]()
	}
	token := s.beginLocked(FieldProtocols)
	s.mu.Unlock()
	defer s.endLoading()

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	protocols, err := s.cfg.Gateway.ListProtocols(callCtx)
	return complete(s, FieldProtocols, token, action, protocols, err, func(v []types.Protocol) {
		s.state.Protocols = v
	})
}

// RefreshProtocols drops any cached protocol list before fetching, so an explicit refresh
// always reaches the backend.
func (s *Store) RefreshProtocols(ctx context.Context) types.Result[[]types.Protocol] {
	if inv, ok := s.cfg.Gateway.(CacheInvalidator); ok {
		inv.Invalidate()
		storeLogger.Debug().Msg("Protocol cache invalidated")
	}
	return s.FetchProtocols(ctx)
}

// FetchUserAssets loads the signed-in account's wallet balances. Without an account it
// returns an empty result and leaves the state untouched.
func (s *Store) FetchUserAssets(ctx context.Context) types.Result[[]types.Asset] {
	const action = "fetch_assets"
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return closedResult[[]types.Asset]()
	}
	account := s.state.AccountID
	if account == "" {
		s.mu.Unlock()
		return noAccount[[]types.Asset]()
	}
	token := s.beginLocked(FieldAssets)
	s.mu.Unlock()
	defer s.endLoading()

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	assets, err := s.cfg.Gateway.ListUserAssets(callCtx, account)
	return complete(s, FieldAssets, token, action, assets, err, func(v []types.Asset) {
		s.state.Assets = v
	})
}

// FetchUserPortfolio loads the signed-in account's deposits. Without an account it returns an
// empty result and leaves the state untouched.
func (s *Store) FetchUserPortfolio(ctx context.Context) types.Result[*types.Portfolio] {
	const action = "fetch_portfolio"
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return closedResult[*types.Portfolio]()
	}
	account := s.state.AccountID
	if account == "" {
		s.mu.Unlock()
		return noAccount[*types.Portfolio]()
	}
	token := s.beginLocked(FieldPortfolio)
	s.mu.Unlock()
	defer s.endLoading()

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	portfolio, err := s.cfg.Gateway.GetUserPortfolio(callCtx, account)
	if err == nil {
		if drift, cerr := analyzer.CheckPortfolioTotal(portfolio); cerr != nil {
			storeLogger.Warn().
				Err(cerr).
				Str("account", account).
				Float64("drift", drift).
				Msg("Portfolio positions do not add up to the reported total")
		}
	}
	return complete(s, FieldPortfolio, token, action, portfolio.Clone(), err, func(v *types.Portfolio) {
		s.state.Portfolio = v
	})
}

// SetRiskProfile replaces the selected risk profile as given.
func (s *Store) SetRiskProfile(profile types.RiskProfile) {
	s.mu.Lock()
	s.state.RiskProfile = profile
	s.notifyLocked()
	s.mu.Unlock()
	storeLogger.Debug().Str("profile", profile.ID).Int("level", profile.RiskLevel).Msg("Risk profile set")
}

// SelectRiskLevel applies the slider rule: a level within one step of a canonical profile
// selects it, any other level produces a custom profile.
func (s *Store) SelectRiskLevel(level int) types.Result[types.RiskProfile] {
	profile, err := analyzer.SelectRiskProfileFrom(s.cfg.RiskProfiles, level)
	if err != nil {
		metrics.RecordStoreAction("select_risk_level", string(types.StatusError), string(types.KindInvalidInput))
		return types.Fail[types.RiskProfile](types.KindInvalidInput, err)
	}
	s.SetRiskProfile(profile)
	metrics.RecordStoreAction("select_risk_level", string(types.StatusOK), "")
	return types.OK(profile)
}

// RunOptimization asks the backend for a target allocation at riskLevel. It does nothing
// without an account.
func (s *Store) RunOptimization(ctx context.Context, riskLevel int) types.Result[*types.OptimizationResult] {
	const action = "run_optimization"
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return closedResult[*types.OptimizationResult]()
	}
	account := s.state.AccountID
	if account == "" {
		s.mu.Unlock()
		return noAccount[*types.OptimizationResult]()
	}
	token := s.beginLocked(FieldOptimization)
	s.mu.Unlock()
	defer s.endLoading()

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	result, err := s.cfg.Gateway.OptimizePortfolio(callCtx, account, riskLevel)
	res := complete(s, FieldOptimization, token, action, result.Clone(), err, func(v *types.OptimizationResult) {
		s.state.OptimizationResult = v
	})

	if res.IsOK() && result != nil && s.cfg.Runs != nil {
		if _, rerr := s.cfg.Runs.SaveOptimizationRun(callCtx, account, riskLevel, *result); rerr != nil {
			storeLogger.Warn().Err(rerr).Str("account", account).Msg("Failed to persist optimization run")
		}
	}
	return res
}

// ExecuteRebalance submits the current optimization result. Only one submission may be in
// flight and it is never retried: a failure is returned and recorded for the user to act on.
func (s *Store) ExecuteRebalance(ctx context.Context) types.Result[types.RebalanceOutcome] {
	const action = "execute_rebalance"
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return closedResult[types.RebalanceOutcome]()
	}
	account := s.state.AccountID
	if account == "" {
		s.mu.Unlock()
		return noAccount[types.RebalanceOutcome]()
	}
	if s.state.OptimizationResult == nil || len(s.state.OptimizationResult.Allocations) == 0 {
		s.mu.Unlock()
		metrics.RecordStoreAction(action, string(types.StatusError), string(types.KindInvalidInput))
		return types.Fail[types.RebalanceOutcome](types.KindInvalidInput, ErrNoOptimization)
	}
	if s.rebalancing {
		s.mu.Unlock()
		metrics.RecordRebalance("duplicate")
		metrics.RecordStoreAction(action, string(types.StatusError), string(types.KindRejected))
		storeLogger.Warn().Str("account", account).Msg("Rebalance already in flight, refusing duplicate submission")
		return types.Fail[types.RebalanceOutcome](types.KindRejected, ErrRebalanceInFlight)
	}
	s.rebalancing = true
	allocations := append([]types.Allocation(nil), s.state.OptimizationResult.Allocations...)
	var amount float64
	if s.state.Portfolio != nil {
		amount = s.state.Portfolio.TotalValue
	}
	token := s.beginLocked(FieldRebalance)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.rebalancing = false
		s.mu.Unlock()
		s.endLoading()
	}()

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	success, err := s.cfg.Gateway.ExecuteRebalance(callCtx, account, allocations)
	if err == nil && !success {
		err = ErrRebalanceRejected
	}

	tx := history.NewRebalanceTransaction(account, allocations, amount, err == nil, s.cfg.Now())
	outcome := types.RebalanceOutcome{Success: err == nil, TransactionID: tx.ID, Allocations: allocations}
	if err != nil {
		outcome.Message = err.Error()
		metrics.RecordRebalance(string(classify(err)))
		storeLogger.Error().
			Err(err).
			Str("account", account).
			Int("allocations", len(allocations)).
			Msg("Rebalance submission failed")
	} else {
		metrics.RecordRebalance("ok")
		storeLogger.Info().Str("account", account).Str("tx_id", tx.ID).Msg("Rebalance submitted")
	}

	// History is written with a fresh deadline: a timed-out submission still gets recorded.
	s.recordRebalance(account, tx, err == nil)

	res := complete(s, FieldRebalance, token, action, outcome, err, nil)
	s.mu.Lock()
	if s.state.AccountID == account {
		o := outcome
		s.state.LastRebalance = &o
		s.notifyLocked()
	}
	s.mu.Unlock()
	if res.IsError() {
		res.Value = outcome
	}
	return res
}

func (s *Store) recordRebalance(account string, tx types.Transaction, success bool) {
	ctx, cancel := s.callContext(context.Background())
	defer cancel()

	if s.cfg.History != nil {
		if err := s.cfg.History.Record(ctx, tx); err != nil {
			storeLogger.Error().Err(err).Str("tx_id", tx.ID).Msg("Failed to record rebalance in history")
		}
	}
	if success && s.cfg.Runs != nil {
		if err := s.cfg.Runs.MarkRunExecuted(ctx, account); err != nil {
			storeLogger.Warn().Err(err).Str("account", account).Msg("Failed to mark optimization run executed")
		}
	}
}

// Allocation breaks the current portfolio down by protocol and asset.
func (s *Store) Allocation() types.Result[analyzer.AllocationBreakdown] {
	snap := s.Snapshot()
	if snap.AccountID == "" {
		return noAccount[analyzer.AllocationBreakdown]()
	}
	if snap.Portfolio == nil {
		return types.Empty[analyzer.AllocationBreakdown](types.KindNone, "portfolio not loaded")
	}
	breakdown, err := analyzer.BreakDown(snap.Portfolio, snap.Protocols, snap.Assets)
	if err != nil {
		return types.Fail[analyzer.AllocationBreakdown](types.KindInvalidData, err)
	}
	return types.OK(breakdown)
}

// RebalancePlan compares the loaded portfolio with the current optimization result.
func (s *Store) RebalancePlan(opts planner.Options) types.Result[planner.Plan] {
	snap := s.Snapshot()
	if snap.AccountID == "" {
		return noAccount[planner.Plan]()
	}
	if snap.Portfolio == nil {
		return types.Empty[planner.Plan](types.KindNone, "portfolio not loaded")
	}
	if snap.OptimizationResult == nil || len(snap.OptimizationResult.Allocations) == 0 {
		return types.Empty[planner.Plan](types.KindNone, ErrNoOptimization.Error())
	}
	plan, err := planner.GeneratePlan(snap.Portfolio, snap.OptimizationResult.Allocations, opts)
	if err != nil {
		kind := types.KindInvalidData
		if errors.Is(err, planner.ErrInvalidThreshold) || errors.Is(err, planner.ErrInvalidWithdrawalCap) {
			kind = types.KindInvalidInput
		}
		return types.Fail[planner.Plan](kind, err)
	}
	return types.OK(plan)
}

// History lists the signed-in account's transactions.
func (s *Store) History(ctx context.Context, limit int) types.Result[[]types.Transaction] {
	account := s.Snapshot().AccountID
	if account == "" {
		return noAccount[[]types.Transaction]()
	}
	if s.cfg.History == nil {
		return types.OK([]types.Transaction{})
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	txs, err := s.cfg.History.List(callCtx, account, limit)
	if err != nil {
		storeLogger.Warn().Err(err).Str("account", account).Msg("Failed to load history")
		return types.Fail[[]types.Transaction](classify(err), fmt.Errorf("load history: %w", err))
	}
	return types.OK(txs)
}
