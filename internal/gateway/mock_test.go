package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yield-optimizer/internal/analyzer"
	"github.com/elys-network/yield-optimizer/internal/types"
)

func TestMockGatewayProtocolsAreDeterministic(t *testing.T) {
	g := NewMockGateway()
	ctx := context.Background()

	first, err := g.ListProtocols(ctx)
	require.NoError(t, err)
	second, err := g.ListProtocols(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, first, 5)
	assert.Equal(t, "ref-finance", first[0].ID)
	assert.Equal(t, 12.5, first[0].APY)
	assert.Equal(t, 45000000.0, first[0].TVL)
	require.NoError(t, analyzer.ValidateProtocols(first))

	// Mutating one result must not leak into the next.
	first[0].APY = 99
	third, err := g.ListProtocols(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12.5, third[0].APY)
}

func TestMockGatewayOptimizationSumsToHundred(t *testing.T) {
	g := NewMockGateway()
	result, err := g.OptimizePortfolio(context.Background(), "alice.near", 5)
	require.NoError(t, err)

	require.Len(t, result.Allocations, 5)
	assert.Equal(t, 100.0, analyzer.AllocationSum(result.Allocations))
	assert.Equal(t, 9.8, result.ExpectedAPY)
	assert.Equal(t, 4.2, result.ExpectedRisk)
}

func TestMockGatewayValidatesInput(t *testing.T) {
	g := NewMockGateway()
	ctx := context.Background()

	_, err := g.ListUserAssets(ctx, "")
	require.ErrorIs(t, err, ErrEmptyAccountID)
	assert.Equal(t, types.KindInvalidInput, Classify(err))

	_, err = g.OptimizePortfolio(ctx, "alice.near", 11)
	require.ErrorIs(t, err, ErrInvalidRiskLevel)
}

func TestMockGatewayPortfolioAndAssets(t *testing.T) {
	g := NewMockGateway()
	ctx := context.Background()

	assets, err := g.ListUserAssets(ctx, "alice.near")
	require.NoError(t, err)
	require.Len(t, assets, 4)
	assert.InDelta(t, 415.725, assets[0].Value(), 1e-9)

	portfolio, err := g.GetUserPortfolio(ctx, "alice.near")
	require.NoError(t, err)
	assert.Equal(t, 2500.0, portfolio.TotalValue)
	require.Len(t, portfolio.Assets, 3)

	ok, err := g.ExecuteRebalance(ctx, "alice.near", nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMockGatewayDelayHonorsContext(t *testing.T) {
	g := &MockGateway{Delay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.ListProtocols(ctx)
	require.Error(t, err)
	assert.Equal(t, types.KindTimeout, Classify(err))
}
