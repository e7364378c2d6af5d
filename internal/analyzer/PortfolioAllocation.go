/*

This file contains the functions that break a portfolio down into its per-protocol and
per-asset shares, and the check of the portfolio's reported total.

All arithmetic runs on decimals so shares like 172.5/2500 come out as exactly 6.9.

*/

package analyzer

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/elys-network/yield-optimizer/internal/types"
)

var (
	ErrNilPortfolio           = errors.New("portfolio is nil")
	ErrNonPositiveTotal       = errors.New("portfolio total value must be positive")
	ErrPortfolioTotalMismatch = errors.New("portfolio total does not match sum of positions")
)

// PortfolioTotalTolerance is the absolute drift, in USD, accepted between the reported
// total and the sum of position values.
const PortfolioTotalTolerance = 0.01

var hundred = decimal.NewFromInt(100)

// AllocationSlice is the share of the portfolio held in one protocol or asset.
type AllocationSlice struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Value      float64 `json:"value"`
	Percentage float64 `json:"percentage"`
}

// AllocationBreakdown is the portfolio grouped by protocol and by asset, plus the
// value-weighted APY of the deposited positions.
type AllocationBreakdown struct {
	TotalValue  float64           `json:"totalValue"`
	WeightedAPY float64           `json:"weightedApy"`
	ByProtocol  []AllocationSlice `json:"byProtocol"`
	ByAsset     []AllocationSlice `json:"byAsset"`
}

// SharePercent returns value as a percentage of total, rounded to two decimals.
func SharePercent(value, total float64) (float64, error) {
	if total <= 0 {
		return 0, fmt.Errorf("%w: %f", ErrNonPositiveTotal, total)
	}
	share := decimal.NewFromFloat(value).Div(decimal.NewFromFloat(total)).Mul(hundred).Round(2)
	return share.InexactFloat64(), nil
}

// ProtocolShare returns the share of the portfolio's reported total deposited in protocolID.
func ProtocolShare(portfolio *types.Portfolio, protocolID string) (float64, error) {
	if portfolio == nil {
		return 0, ErrNilPortfolio
	}
	sum := decimal.Zero
	for _, pos := range portfolio.Assets {
		if pos.ProtocolID == protocolID {
			sum = sum.Add(decimal.NewFromFloat(pos.Value))
		}
	}
	return SharePercent(sum.InexactFloat64(), portfolio.TotalValue)
}

// BreakDown groups the portfolio by protocol and by asset. Shares are taken against the
// reported TotalValue; names come from the protocol and asset lists and fall back to ids.
func BreakDown(portfolio *types.Portfolio, protocols []types.Protocol, assets []types.Asset) (AllocationBreakdown, error) {
	if portfolio == nil {
		return AllocationBreakdown{}, ErrNilPortfolio
	}
	if portfolio.TotalValue <= 0 {
		return AllocationBreakdown{}, fmt.Errorf("%w: %f", ErrNonPositiveTotal, portfolio.TotalValue)
	}

	protocolNames := make(map[string]string, len(protocols))
	for _, p := range protocols {
		protocolNames[p.ID] = p.Name
	}
	assetNames := make(map[string]string, len(assets))
	for _, a := range assets {
		assetNames[a.ID] = a.Symbol
	}

	total := decimal.NewFromFloat(portfolio.TotalValue)
	byProtocol := newGrouper()
	byAsset := newGrouper()
	positionsValue := decimal.Zero
	weighted := decimal.Zero

	for _, pos := range portfolio.Assets {
		value := decimal.NewFromFloat(pos.Value)
		byProtocol.add(pos.ProtocolID, value)
		byAsset.add(pos.AssetID, value)
		positionsValue = positionsValue.Add(value)
		weighted = weighted.Add(value.Mul(decimal.NewFromFloat(pos.APY)))
	}

	out := AllocationBreakdown{
		TotalValue: portfolio.TotalValue,
		ByProtocol: byProtocol.slices(total, protocolNames),
		ByAsset:    byAsset.slices(total, assetNames),
	}
	if positionsValue.IsPositive() {
		out.WeightedAPY = weighted.Div(positionsValue).Round(2).InexactFloat64()
	}
	return out, nil
}

// CheckPortfolioTotal compares the reported total with the sum of position values and
// returns the drift (total minus sum). A drift beyond PortfolioTotalTolerance is reported
// as ErrPortfolioTotalMismatch; the portfolio itself is left untouched.
func CheckPortfolioTotal(portfolio *types.Portfolio) (float64, error) {
	if portfolio == nil {
		return 0, ErrNilPortfolio
	}
	sum := decimal.Zero
	for _, pos := range portfolio.Assets {
		sum = sum.Add(decimal.NewFromFloat(pos.Value))
	}
	drift := decimal.NewFromFloat(portfolio.TotalValue).Sub(sum)
	if drift.Abs().GreaterThan(decimal.NewFromFloat(PortfolioTotalTolerance)) {
		return drift.InexactFloat64(), fmt.Errorf("%w: total %.2f, positions %s",
			ErrPortfolioTotalMismatch, portfolio.TotalValue, sum.StringFixed(2))
	}
	return drift.InexactFloat64(), nil
}

// grouper sums values per key, keeping first-seen order.
type grouper struct {
	order  []string
	values map[string]decimal.Decimal
}

func newGrouper() *grouper {
	return &grouper{values: make(map[string]decimal.Decimal)}
}

func (g *grouper) add(key string, value decimal.Decimal) {
	if _, ok := g.values[key]; !ok {
		g.order = append(g.order, key)
		g.values[key] = decimal.Zero
	}
	g.values[key] = g.values[key].Add(value)
}

func (g *grouper) slices(total decimal.Decimal, names map[string]string) []AllocationSlice {
	out := make([]AllocationSlice, 0, len(g.order))
	for _, key := range g.order {
		name, ok := names[key]
		if !ok || name == "" {
			name = key
		}
		value := g.values[key]
		out = append(out, AllocationSlice{
			ID:         key,
			Name:       name,
			Value:      value.InexactFloat64(),
			Percentage: value.Div(total).Mul(hundred).Round(2).InexactFloat64(),
		})
	}
	return out
}
