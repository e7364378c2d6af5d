/*

This file contains the mock gateway. It serves a fixed set of NEAR protocols, balances and
a canned optimization so the dashboard can run without a backend.

*/

package gateway

import (
	"context"
	"time"

	"github.com/elys-network/yield-optimizer/internal/logger"
	"github.com/elys-network/yield-optimizer/internal/types"
)

var mockLogger = logger.GetForComponent("mock_gateway")

const logoBaseURL = "https://cryptologos.cc/logos/"

// MockGateway returns deterministic canned data. Every call returns fresh copies.
type MockGateway struct {
	// Delay simulates network latency. The call fails with the context error if ctx ends first.
	Delay time.Duration
}

var _ Gateway = (*MockGateway)(nil)

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) wait(ctx context.Context, op string) error {
	if m.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(m.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return newError(op, Classify(ctx.Err()), ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (m *MockGateway) ListProtocols(ctx context.Context) ([]types.Protocol, error) {
	if err := m.wait(ctx, "list protocols"); err != nil {
		return nil, err
	}
	return []types.Protocol{
		{
			ID:          "ref-finance",
			Name:        "Ref Finance",
			Icon:        logoBaseURL + "ref-finance-ref-logo.png",
			Description: "Leading AMM on NEAR Protocol",
			APY:         12.5,
			TVL:         45000000,
			Risk:        types.RiskMedium,
			Type:        types.CategoryYieldFarming,
		},
		{
			ID:          "burrow",
			Name:        "Burrow",
			Icon:        logoBaseURL + "burrow-brw-logo.png",
			Description: "Lending and borrowing protocol on NEAR",
			APY:         8.2,
			TVL:         32000000,
			Risk:        types.RiskMedium,
			Type:        types.CategoryLending,
		},
		{
			ID:          "bastion",
			Name:        "Bastion",
			Icon:        logoBaseURL + "bastion-bstn-logo.png",
			Description: "Money market protocol on Aurora (NEAR)",
			APY:         9.7,
			TVL:         28000000,
			Risk:        types.RiskMedium,
			Type:        types.CategoryLending,
		},
		{
			ID:          "meta-pool",
			Name:        "Meta Pool",
			Icon:        logoBaseURL + "meta-pool-meta-logo.png",
			Description: "Liquid staking for NEAR",
			APY:         5.8,
			TVL:         65000000,
			Risk:        types.RiskLow,
			Type:        types.CategoryStaking,
		},
		{
			ID:          "jumbo",
			Name:        "Jumbo Exchange",
			Icon:        logoBaseURL + "jumbo-exchange-jumbo-logo.png",
			Description: "DEX on NEAR Protocol",
			APY:         15.3,
			TVL:         18000000,
			Risk:        types.RiskHigh,
			Type:        types.CategoryYieldFarming,
		},
	}, nil
}

func (m *MockGateway) ListUserAssets(ctx context.Context, accountID string) ([]types.Asset, error) {
	if err := checkAccount(accountID); err != nil {
		return nil, err
	}
	if err := m.wait(ctx, "list assets"); err != nil {
		return nil, err
	}
	return []types.Asset{
		{ID: "near", Symbol: "NEAR", Name: "NEAR Protocol", Icon: logoBaseURL + "near-protocol-near-logo.png", Balance: 120.5, Price: 3.45, Change24h: 2.3},
		{ID: "usn", Symbol: "USN", Name: "USN Stablecoin", Icon: logoBaseURL + "usn-usn-logo.png", Balance: 500, Price: 1.0, Change24h: 0.01},
		{ID: "aurora", Symbol: "AURORA", Name: "Aurora", Icon: logoBaseURL + "aurora-aurora-logo.png", Balance: 1000, Price: 0.18, Change24h: -1.2},
		{ID: "ref", Symbol: "REF", Name: "Ref Finance", Icon: logoBaseURL + "ref-finance-ref-logo.png", Balance: 250, Price: 0.42, Change24h: 5.7},
	}, nil
}

func (m *MockGateway) GetUserPortfolio(ctx context.Context, accountID string) (*types.Portfolio, error) {
	if err := checkAccount(accountID); err != nil {
		return nil, err
	}
	if err := m.wait(ctx, "get portfolio"); err != nil {
		return nil, err
	}
	return &types.Portfolio{
		TotalValue: 2500,
		Assets: []types.PortfolioPosition{
			{ProtocolID: "ref-finance", AssetID: "near", Amount: 50, Value: 172.5, APY: 12.5},
			{ProtocolID: "burrow", AssetID: "usn", Amount: 300, Value: 300, APY: 8.2},
			{ProtocolID: "meta-pool", AssetID: "near", Amount: 70.5, Value: 243.23, APY: 5.8},
		},
	}, nil
}

// OptimizePortfolio returns the same allocation for every risk level.
func (m *MockGateway) OptimizePortfolio(ctx context.Context, accountID string, riskLevel int) (*types.OptimizationResult, error) {
	if err := checkAccount(accountID); err != nil {
		return nil, err
	}
	if err := checkRiskLevel(riskLevel); err != nil {
		return nil, err
	}
	if err := m.wait(ctx, "optimize"); err != nil {
		return nil, err
	}
	return &types.OptimizationResult{
		ExpectedAPY:  9.8,
		ExpectedRisk: 4.2,
		Allocations: []types.Allocation{
			{ProtocolID: "meta-pool", AssetID: "near", Percentage: 30, ExpectedAPY: 5.8},
			{ProtocolID: "burrow", AssetID: "usn", Percentage: 25, ExpectedAPY: 8.2},
			{ProtocolID: "ref-finance", AssetID: "near", Percentage: 20, ExpectedAPY: 12.5},
			{ProtocolID: "bastion", AssetID: "aurora", Percentage: 15, ExpectedAPY: 9.7},
			{ProtocolID: "jumbo", AssetID: "ref", Percentage: 10, ExpectedAPY: 15.3},
		},
	}, nil
}

func (m *MockGateway) ExecuteRebalance(ctx context.Context, accountID string, allocations []types.Allocation) (bool, error) {
	if err := checkAccount(accountID); err != nil {
		return false, err
	}
	if err := m.wait(ctx, "rebalance"); err != nil {
		return false, err
	}
	mockLogger.Info().
		Str("account", accountID).
		Int("slices", len(allocations)).
		Msg("Mock rebalance accepted")
	return true, nil
}
